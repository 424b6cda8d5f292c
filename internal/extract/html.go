package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

// Recipe describes where a site keeps its product data. Selector lists are
// tried in order and the first non-empty match wins.
type Recipe struct {
	Site          string
	FallbackTitle string
	Title         []string
	Description   []string
	Image         []string
	// SpecRows select table-like rows. Without SpecKey/SpecValue the first
	// and last th/td cells of each row form the pair.
	SpecRows  []string
	SpecKey   string
	SpecValue string
	// SpecTerms select label elements whose next sibling holds the value (dt/dd).
	SpecTerms []string
	// TableFallback scans every table row when no spec selector matched.
	TableFallback bool
	// Blocked lists lowercase markers of anti-bot or captcha pages.
	Blocked []string
	// RequireTitle fails the extraction when no title element is present.
	RequireTitle bool
	// CaptureImage asks a browser fetcher to screenshot the first Image
	// element. The capture is preferred over downloading the image URL.
	CaptureImage bool
}

// FetchRequest builds the page request for url. The first Title selector is
// what a browser waits for before reading the DOM.
func (r Recipe) FetchRequest(url string, headers http.Header) datasheet.FetchRequest {
	req := datasheet.FetchRequest{URL: url, Headers: headers}
	if len(r.Title) > 0 {
		req.WaitSelector = r.Title[0]
	}
	if r.CaptureImage && len(r.Image) > 0 {
		req.CaptureSelector = r.Image[0]
	}
	return req
}

var imageAttrs = []string{"content", "data-zoom-image", "data-old-hires", "data-src", "src"}

// HTMLExtractor implements datasheet.Extractor by applying a Recipe to a
// fetched page.
type HTMLExtractor struct {
	recipe  Recipe
	fetcher datasheet.Fetcher
	images  ImageSaver
	headers http.Header
	logger  *zap.Logger
}

// NewHTMLExtractor builds an HTMLExtractor.
func NewHTMLExtractor(recipe Recipe, fetcher datasheet.Fetcher, images ImageSaver, logger *zap.Logger) (*HTMLExtractor, error) {
	if recipe.Site == "" {
		return nil, fmt.Errorf("recipe site is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("recipe %s: fetcher is required", recipe.Site)
	}
	return &HTMLExtractor{
		recipe:  recipe,
		fetcher: fetcher,
		images:  images,
		headers: http.Header{"Accept-Language": {"pt-BR,pt;q=0.9,en;q=0.8"}},
		logger:  logging.OrNop(logger).With(zap.String("site", recipe.Site)),
	}, nil
}

// Extract fetches url and maps the page into a normalized product.
func (e *HTMLExtractor) Extract(ctx context.Context, url string, outputDir string) (datasheet.Product, error) {
	site := e.recipe.Site
	resp, err := e.fetcher.Fetch(ctx, e.recipe.FetchRequest(url, e.headers.Clone()))
	if err != nil {
		return datasheet.Product{}, datasheet.Failf(site, "fetch product page", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return datasheet.Product{}, datasheet.Failf(site, fmt.Sprintf("product page returned HTTP %d", resp.StatusCode), nil)
	}
	product, imageURL, err := e.Parse(resp.Body)
	if err != nil {
		return datasheet.Product{}, err
	}
	e.logger.Debug("page parsed",
		zap.String("url", url),
		zap.Bool("headless", resp.UsedHeadless),
		zap.Bool("product_ready", resp.ProductReady),
		zap.Int("attributes", len(product.Attributes)),
		zap.Bool("has_image", imageURL != ""),
		zap.Int("capture_bytes", len(resp.Capture)),
	)
	if e.images == nil {
		return product, nil
	}
	if len(resp.Capture) > 0 {
		product.ImagePath = e.images.SaveCaptured(resp.Capture, outputDir)
	}
	if product.ImagePath == "" && imageURL != "" {
		pageURL := resp.URL
		if pageURL == "" {
			pageURL = url
		}
		product.ImagePath = e.images.Save(ctx, imageURL, pageURL, outputDir)
	}
	return product, nil
}

// Parse applies the recipe to an HTML body. It returns the normalized
// product and the raw image reference, if any.
func (e *HTMLExtractor) Parse(body []byte) (datasheet.Product, string, error) {
	r := e.recipe
	lowered := strings.ToLower(string(body))
	for _, marker := range r.Blocked {
		if strings.Contains(lowered, marker) {
			return datasheet.Product{}, "", datasheet.Failf(r.Site, "blocked by anti-bot page ("+marker+")", nil)
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return datasheet.Product{}, "", datasheet.Failf(r.Site, "parse product page", err)
	}
	ld, hasLD := productFromJSONLD(doc)

	title := firstText(doc, r.Title)
	if title == "" && r.RequireTitle {
		return datasheet.Product{}, "", datasheet.Failf(r.Site, "product title not found on page", nil)
	}
	if title == "" && hasLD {
		title = ld.Name
	}
	if title == "" {
		title = metaContent(doc, `meta[property="og:title"]`)
	}

	description := firstBlockText(doc, r.Description)
	if description == "" && hasLD {
		description = ld.Description
	}
	if description == "" {
		description = metaContent(doc, `meta[property="og:description"]`, `meta[name="description"]`)
	}

	imageURL := firstImageRef(doc, r.Image)
	if imageURL == "" && hasLD {
		imageURL = ld.Image
	}
	if imageURL == "" {
		imageURL = metaContent(doc, `meta[property="og:image"]`)
	}

	attrs := specsFromRows(doc, r.SpecRows, r.SpecKey, r.SpecValue)
	attrs = append(attrs, specsFromTerms(doc, r.SpecTerms)...)
	if len(attrs) == 0 && r.TableFallback {
		attrs = specsFromRows(doc, []string{"table tr"}, "", "")
	}
	if hasLD {
		attrs = append(attrs, ld.Attributes...)
	}

	product := Normalize(datasheet.Product{
		Title:       title,
		Description: description,
		Attributes:  attrs,
	}, r.FallbackTitle)
	return product, imageURL, nil
}

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := CleanText(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// firstBlockText keeps line structure: block elements and <br> become newlines.
func firstBlockText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		node = node.Clone()
		node.Find("script, style, noscript").Remove()
		node.Find("br").ReplaceWithHtml("\n")
		node.Find("p, li, div, tr, h1, h2, h3, h4, h5, h6").AppendHtml("\n")
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstImageRef(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		node := doc.Find(sel).First()
		for _, attr := range imageAttrs {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func specsFromRows(doc *goquery.Document, selectors []string, keySel, valueSel string) []datasheet.Attribute {
	var attrs []datasheet.Attribute
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, row *goquery.Selection) {
			var key, value string
			if keySel != "" && valueSel != "" {
				key = row.Find(keySel).First().Text()
				value = row.Find(valueSel).First().Text()
			} else {
				cells := row.Find("th, td")
				if cells.Length() < 2 {
					return
				}
				key = cells.First().Text()
				value = cells.Last().Text()
			}
			attrs = append(attrs, datasheet.Attribute{Key: CleanText(key), Value: CleanText(value)})
		})
	}
	return attrs
}

func specsFromTerms(doc *goquery.Document, selectors []string) []datasheet.Attribute {
	var attrs []datasheet.Attribute
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, term *goquery.Selection) {
			attrs = append(attrs, datasheet.Attribute{
				Key:   CleanText(term.Text()),
				Value: CleanText(term.Next().Text()),
			})
		})
	}
	return attrs
}
