// Package extract holds the shared toolkit behind the site extractors:
// boilerplate policy, HTML recipes, PDF datasheets and image capture.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Placeholders used when a page yields no usable text.
const (
	DescriptionUnavailable = "Descrição não disponível."
	DescriptionSparse      = "Informações técnicas não detalhadas."
	UntitledProduct        = "Produto sem título"
)

// forbiddenTerms flags commercial boilerplate: warranty, shipping, stock,
// payment terms, calls to action and marketplace names.
var forbiddenTerms = []string{
	"garantia", "devolução", "reembolso", "troca",
	"frete", "envio", "entrega", "postagem", "rastreio",
	"estoque", "pronta entrega", "disponível",
	"parcele", "juros", "cartão", "boleto", "pagamento",
	"clique aqui", "veja mais", "confira", "acesse", "visite",
	"site", "loja", "vendedor", "comprar", "oferta", "promoção",
	"whatsapp", "atendimento", "sac", "dúvidas",
	"mercadolivre", "mercado livre", "amazon", "magalu",
}

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	leadingBullets = regexp.MustCompile(`^[\s\-•.*]+`)
)

// ForbiddenTerms returns a copy of the boilerplate term list.
func ForbiddenTerms() []string {
	return append([]string(nil), forbiddenTerms...)
}

// CleanText collapses whitespace runs into single spaces.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// ContainsForbidden reports whether s mentions any boilerplate term.
func ContainsForbidden(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// CleanDescription drops boilerplate lines and leading bullets. Empty input
// yields DescriptionUnavailable; a near-empty result yields DescriptionSparse.
func CleanDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return DescriptionUnavailable
	}
	kept := make([]string, 0, 8)
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if utf8.RuneCountInString(trimmed) < 3 {
			continue
		}
		if ContainsForbidden(trimmed) {
			continue
		}
		line = strings.TrimSpace(leadingBullets.ReplaceAllString(line, ""))
		kept = append(kept, whitespaceRun.ReplaceAllString(line, " "))
	}
	out := strings.Join(kept, "\n")
	if utf8.RuneCountInString(out) < 10 {
		return DescriptionSparse
	}
	return out
}

// FilterAttributes drops rows with boilerplate keys, blank cells, or a key
// already seen. Order is preserved.
func FilterAttributes(attrs []datasheet.Attribute) []datasheet.Attribute {
	out := make([]datasheet.Attribute, 0, len(attrs))
	seen := make(map[string]struct{}, len(attrs))
	for _, attr := range attrs {
		key := strings.TrimSuffix(CleanText(attr.Key), ":")
		value := CleanText(attr.Value)
		if key == "" || value == "" || ContainsForbidden(key) {
			continue
		}
		folded := strings.ToLower(key)
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		out = append(out, datasheet.Attribute{Key: key, Value: value})
	}
	return out
}

// Normalize applies the boilerplate policy and placeholder fallbacks so the
// returned product always has a title and a description.
func Normalize(p datasheet.Product, fallbackTitle string) datasheet.Product {
	p.Title = CleanText(p.Title)
	if p.Title == "" {
		p.Title = CleanText(fallbackTitle)
	}
	if p.Title == "" {
		p.Title = UntitledProduct
	}
	p.Description = CleanDescription(p.Description)
	p.Attributes = FilterAttributes(p.Attributes)
	return p
}
