package render

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

const (
	pageWidthMM    = 210.0
	productImageMM = 80.0
	logoWidthMM    = 30.0
)

var typographicQuotes = strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`, "–", "-", "—", "-")

// WritePDF writes an A4 datasheet for product to path. maxDescription caps
// the description in runes; zero means no cap.
func WritePDF(path string, product datasheet.Product, lh Letterhead, maxDescription int) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	txt := func(s string) string { return tr(typographicQuotes.Replace(s)) }

	if lh.LogoPath != "" && pdfImageType(lh.LogoPath) != "" {
		pdf.ImageOptions(lh.LogoPath, 165, 8, logoWidthMM, 0, false,
			fpdf.ImageOptions{ImageType: pdfImageType(lh.LogoPath), ReadDpi: true}, 0, "")
		if pdf.Err() {
			// the logo is optional
			pdf.ClearError()
		}
	}
	pdf.SetXY(10, 10)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 5, txt(lh.Company), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(0, 4, txt(lh.TaxID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 4, txt(lh.Address), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, txt(product.Title), "", "C", false)
	pdf.Ln(5)

	if product.ImagePath != "" {
		pdf.ImageOptions(product.ImagePath, (pageWidthMM-productImageMM)/2, 0, productImageMM, 0, true,
			fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
		if pdf.Err() {
			pdf.ClearError()
		} else {
			pdf.Ln(5)
		}
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, txt("Descrição"), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, txt(truncateRunes(product.Description, maxDescription)), "", "L", false)
	pdf.Ln(5)

	if len(product.Attributes) > 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, txt("Ficha Técnica"), "", 1, "L", false, 0, "")
		pdf.SetFillColor(240, 240, 240)
		for _, attr := range product.Attributes {
			pdf.SetFont("Helvetica", "B", 9)
			pdf.CellFormat(0, 6, txt(attr.Key), "", 1, "L", true, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 5, txt(attr.Value), "B", "L", false)
			pdf.Ln(1)
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pdfImageType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "JPG"
	case ".png":
		return "PNG"
	case ".gif":
		return "GIF"
	}
	return ""
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
