package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// structuredProduct is the subset of a schema.org Product we read.
type structuredProduct struct {
	Name        string
	Description string
	Image       string
	Attributes  []datasheet.Attribute
}

// productFromJSONLD returns the first schema.org Product embedded in doc.
func productFromJSONLD(doc *goquery.Document) (structuredProduct, bool) {
	var (
		found structuredProduct
		ok    bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}
		if obj := findProductNode(raw); obj != nil {
			found, ok = toStructuredProduct(obj), true
			return false
		}
		return true
	})
	return found, ok
}

func findProductNode(node any) map[string]any {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			if obj := findProductNode(item); obj != nil {
				return obj
			}
		}
	case map[string]any:
		if isProductType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"]; ok {
			return findProductNode(graph)
		}
	}
	return nil
}

func isProductType(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []any:
		for _, item := range v {
			if isProductType(item) {
				return true
			}
		}
	}
	return false
}

func toStructuredProduct(obj map[string]any) structuredProduct {
	p := structuredProduct{
		Name:        stringField(obj["name"]),
		Description: stringField(obj["description"]),
		Image:       firstImage(obj["image"]),
	}
	if brand := obj["brand"]; brand != nil {
		if name := stringField(brand); name != "" {
			p.Attributes = append(p.Attributes, datasheet.Attribute{Key: "Marca", Value: name})
		}
	}
	for _, key := range []string{"model", "mpn", "sku", "gtin13", "gtin"} {
		if v := stringField(obj[key]); v != "" {
			p.Attributes = append(p.Attributes, datasheet.Attribute{Key: strings.ToUpper(key[:1]) + key[1:], Value: v})
		}
	}
	if props, ok := obj["additionalProperty"].([]any); ok {
		for _, prop := range props {
			m, ok := prop.(map[string]any)
			if !ok {
				continue
			}
			p.Attributes = append(p.Attributes, datasheet.Attribute{
				Key:   stringField(m["name"]),
				Value: stringField(m["value"]),
			})
		}
	}
	return p
}

// stringField flattens strings, numbers and {"name": ...} objects.
func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		return stringField(t["name"])
	case []any:
		if len(t) > 0 {
			return stringField(t[0])
		}
	}
	return ""
}

func firstImage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if img := firstImage(item); img != "" {
				return img
			}
		}
	case map[string]any:
		if u := stringField(t["url"]); u != "" {
			return u
		}
		return stringField(t["contentUrl"])
	}
	return ""
}
