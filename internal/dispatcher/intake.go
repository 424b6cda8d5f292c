package dispatcher

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Field names accepted from callers.
const (
	fieldTaskCode = "codigoTarefa"
	fieldData     = "dados"
	fieldURL      = "url"
	fieldLink     = "link"
	fieldURLs     = "urls"
	fieldWebhook  = "webhook_url"
)

// externalIDFields are tried in order. Empty strings and zero numbers count
// as absent, so the next field is tried.
var externalIDFields = []string{"custom_id", "pedido_id", "id", "id_externo"}

// Intake is one URL accepted from a submission, before an id is assigned.
type Intake struct {
	URL         string
	CallbackURL string
	// TaskCode is the caller's codigoTarefa as sent, null included.
	TaskCode    json.RawMessage
	ExternalID  string
	Origin      datasheet.Origin
}

// Normalize turns a decoded submission body into intakes. The presence of
// the task code key selects the structured task shape, which always uses
// fixedCallback. Anything else is read as the flexible shape. Zero resolved
// URLs yields datasheet.ErrNoURL.
func Normalize(body map[string]any, fixedCallback string) ([]Intake, error) {
	var out []Intake
	if code, ok := body[fieldTaskCode]; ok {
		data, _ := body[fieldData].(map[string]any)
		if u := stringValue(data[fieldURL]); u != "" {
			out = append(out, Intake{
				URL:         u,
				CallbackURL: fixedCallback,
				TaskCode:    rawValue(code),
				Origin:      datasheet.OriginTask,
			})
		}
	} else {
		var urls []string
		if list, ok := body[fieldURLs].([]any); ok {
			for _, item := range list {
				if u := stringValue(item); u != "" {
					urls = append(urls, u)
				}
			}
		}
		single := stringValue(body[fieldURL])
		if single == "" {
			single = stringValue(body[fieldLink])
		}
		if single != "" {
			urls = append(urls, single)
		}
		callback := stringValue(body[fieldWebhook])
		externalID := ""
		for _, key := range externalIDFields {
			if v := scalarString(body[key]); v != "" {
				externalID = v
				break
			}
		}
		for _, u := range urls {
			out = append(out, Intake{
				URL:         u,
				CallbackURL: callback,
				ExternalID:  externalID,
				Origin:      datasheet.OriginFlexible,
			})
		}
	}
	if len(out) == 0 {
		return nil, datasheet.ErrNoURL
	}
	return out, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// scalarString renders strings and non-zero numbers. Zero, empty and
// non-scalar values are absent.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return ""
		}
		return t.String()
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		if t == 0 {
			return ""
		}
		return strconv.Itoa(t)
	case int64:
		if t == 0 {
			return ""
		}
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// rawValue re-encodes a decoded JSON value. Values that cannot be encoded
// become null.
func rawValue(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
