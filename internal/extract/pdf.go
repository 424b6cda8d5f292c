package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

const maxPDFBytes = 50 << 20

var (
	pdfKeyValueSplit = regexp.MustCompile(`\.{2,}|:| {2,}|\t| – | - `)
	pdfStringLiteral = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
)

// PDFConfig controls datasheet PDF retrieval and parsing.
type PDFConfig struct {
	Site          string
	FallbackTitle string
	UserAgent     string
	Timeout       time.Duration
	// NoiseMarkers are lowercase fragments of header/footer lines to skip.
	NoiseMarkers []string
}

// PDFExtractor reads product data out of a vendor datasheet PDF.
type PDFExtractor struct {
	client *http.Client
	cfg    PDFConfig
	logger *zap.Logger
}

// NewPDFExtractor builds a PDFExtractor. A nil client uses a default one.
func NewPDFExtractor(client *http.Client, cfg PDFConfig, logger *zap.Logger) *PDFExtractor {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PDFExtractor{client: client, cfg: cfg, logger: logging.OrNop(logger)}
}

// Extract downloads the PDF at rawURL and parses it. PDFs carry no
// separately addressable product image, so ImagePath stays empty.
func (e *PDFExtractor) Extract(ctx context.Context, rawURL string, _ string) (datasheet.Product, error) {
	data, err := e.download(ctx, rawURL)
	if err != nil {
		return datasheet.Product{}, datasheet.Failf(e.cfg.Site, "download datasheet PDF", err)
	}
	lines, err := PDFLines(data)
	if err != nil {
		return datasheet.Product{}, datasheet.Failf(e.cfg.Site, "read datasheet PDF", err)
	}
	product := e.ParseLines(lines, rawURL)
	e.logger.Debug("datasheet PDF parsed",
		zap.String("url", rawURL),
		zap.Int("lines", len(lines)),
		zap.Int("attributes", len(product.Attributes)),
	)
	return product, nil
}

func (e *PDFExtractor) download(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// ParseLines maps extracted text lines to a product.
func (e *PDFExtractor) ParseLines(lines []string, rawURL string) datasheet.Product {
	var (
		title     string
		attrs     []datasheet.Attribute
		descLines []string
	)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) < 4 || e.isNoise(line) {
			continue
		}
		if utf8.RuneCountInString(line) > 50 && len(descLines) < 10 {
			descLines = append(descLines, line)
		}
		if title == "" && !isNumeric(line) {
			title = line
		}
		if attr, ok := splitKeyValue(line); ok {
			attrs = append(attrs, attr)
		}
	}
	fallback := e.cfg.FallbackTitle
	if name := titleFromURL(rawURL); name != "" {
		fallback = name
	}
	return Normalize(datasheet.Product{
		Title:       title,
		Description: strings.Join(descLines, "\n"),
		Attributes:  attrs,
	}, fallback)
}

func (e *PDFExtractor) isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range e.cfg.NoiseMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// splitKeyValue splits a datasheet line on dot leaders, colons, tabs, wide
// gaps or a spaced dash. The last fragment is the value.
func splitKeyValue(line string) (datasheet.Attribute, bool) {
	parts := pdfKeyValueSplit.Split(line, -1)
	if len(parts) < 2 {
		return datasheet.Attribute{}, false
	}
	key := CleanText(parts[0])
	value := CleanText(parts[len(parts)-1])
	n := utf8.RuneCountInString(key)
	if n <= 2 || n >= 60 || value == "" {
		return datasheet.Attribute{}, false
	}
	if strings.Contains(strings.ToLower(key), "especificações") {
		return datasheet.Attribute{}, false
	}
	return datasheet.Attribute{Key: key, Value: value}, true
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := strings.TrimSuffix(path.Base(u.Path), path.Ext(u.Path))
	if base == "" || base == "." || base == "/" {
		return ""
	}
	words := strings.Fields(strings.NewReplacer("-", " ", "_", " ").Replace(base))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = strings.ToUpper(string(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func isNumeric(s string) bool {
	return strings.Trim(s, "0123456789.,-/ ") == ""
}

// PDFLines returns the text lines of every page in document order.
func PDFLines(data []byte) ([]string, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	var lines []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		lines = append(lines, contentStreamLines(content)...)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no text content found in PDF")
	}
	return lines, nil
}

// contentStreamLines reads text-showing operators from a page content
// stream. Positioning operators and ET end the current line.
func contentStreamLines(data []byte) []string {
	var (
		lines   []string
		current strings.Builder
	)
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			lines = append(lines, text)
		}
		current.Reset()
	}
	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringLiteral.FindAllSubmatch(line, -1) {
				current.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")), bytes.HasSuffix(line, []byte(`"`)):
			flush()
			for _, m := range pdfStringLiteral.FindAllSubmatch(line, -1) {
				current.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")),
			bytes.HasSuffix(line, []byte("Tm")), bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			flush()
		}
	}
	flush()
	return lines
}

func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 't':
			sb.WriteByte('\t')
		case '\\', '(', ')':
			sb.WriteByte(raw[i])
		default:
			if raw[i] < '0' || raw[i] > '7' {
				sb.WriteByte(raw[i])
				continue
			}
			val := int(raw[i] - '0')
			for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
				i++
				val = val*8 + int(raw[i]-'0')
			}
			sb.WriteByte(byte(val))
		}
	}
	return latin1ToUTF8(sb.String())
}

// latin1ToUTF8 maps single-byte text (WinAnsi/Latin-1 fonts) to UTF-8.
func latin1ToUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	runes := make([]rune, 0, len(s))
	for i := 0; i < len(s); i++ {
		runes = append(runes, rune(s[i]))
	}
	return string(runes)
}
