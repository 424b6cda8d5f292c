// Package detector decides when a statically fetched product page needs a
// browser render.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Heuristic promotes a static product page when the product element the
// request waits for is missing from it. Requests that name no product element
// fall back to spotting small script-heavy application shells.
type Heuristic struct {
	// ShellSize is the body size below which a page with a script mount point
	// or mostly script content is treated as an unrendered shell.
	ShellSize int
}

// NewHeuristic creates a detector. A zero shellSize uses 2048 bytes.
func NewHeuristic(shellSize int) *Heuristic {
	if shellSize <= 0 {
		shellSize = 2048
	}
	return &Heuristic{ShellSize: shellSize}
}

// mountPoints are the empty containers storefront frameworks render into.
var mountPoints = []string{`id="__next"`, `id="root"`, `id="app"`, "data-reactroot", "vtex-render-runtime"}

// challengeMarkers show up on bot-challenge interstitials served with 200.
var challengeMarkers = []string{
	"cf-browser-verification",
	"challenge-platform",
	"please enable javascript",
	"habilite o javascript",
}

// ShouldPromote implements datasheet.HeadlessDetector.
func (h *Heuristic) ShouldPromote(req datasheet.FetchRequest, resp datasheet.FetchResponse) bool {
	if resp.UsedHeadless || resp.StatusCode != http.StatusOK {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	lower := strings.ToLower(string(resp.Body))
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	if req.WaitSelector != "" {
		return !hasProductElement(doc, req.WaitSelector)
	}
	return h.looksLikeShell(doc, lower)
}

// hasProductElement reports whether sel matches an element with text.
func hasProductElement(doc *goquery.Document, sel string) bool {
	found := false
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.TrimSpace(s.Text()) != ""
		return !found
	})
	return found
}

func (h *Heuristic) looksLikeShell(doc *goquery.Document, lower string) bool {
	if len(lower) >= h.ShellSize {
		return false
	}
	for _, marker := range mountPoints {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	scripts := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts += len(s.Text())
	})
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	visible := len(strings.TrimSpace(body.Text()))
	return scripts > 0 && scripts >= 3*visible
}
