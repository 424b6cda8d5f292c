package render

import (
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG for picture sizing
	_ "image/png"  // register PNG for picture sizing
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

const (
	productImageWidth units.Inch = 3.2
	logoWidth         units.Inch = 0.9
	specTableStyle               = "LightList-Accent4"
)

// WriteDOCX writes a Word datasheet for product to path.
func WriteDOCX(path string, product datasheet.Product, lh Letterhead) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("new docx: %w", err)
	}

	writeLetterhead(doc, lh)
	doc.AddParagraph("")
	if _, err := doc.AddHeading(product.Title, 0); err != nil {
		return fmt.Errorf("docx title: %w", err)
	}
	if product.ImagePath != "" {
		// A vanished or unreadable image leaves the document without a picture.
		_ = addScaledPicture(doc, product.ImagePath, productImageWidth)
	}

	if _, err := doc.AddHeading("Descrição", 1); err != nil {
		return fmt.Errorf("docx heading: %w", err)
	}
	for _, line := range strings.Split(product.Description, "\n") {
		doc.AddParagraph(stripControl(line))
	}
	if len(product.Attributes) > 0 {
		if _, err := doc.AddHeading("Ficha Técnica", 1); err != nil {
			return fmt.Errorf("docx heading: %w", err)
		}
		writeSpecTable(doc, product.Attributes)
	}

	if err := doc.SaveTo(path); err != nil {
		return fmt.Errorf("save docx: %w", err)
	}
	return nil
}

func writeLetterhead(doc *docx.RootDoc, lh Letterhead) {
	if lh.LogoPath != "" && docxImageExt(lh.LogoPath) {
		_ = addScaledPicture(doc, lh.LogoPath, logoWidth)
	}
	doc.AddParagraph("").AddText(stripControl(lh.Company)).Bold(true)
	for _, line := range []string{lh.TaxID, lh.Address} {
		if line != "" {
			doc.AddParagraph(stripControl(line))
		}
	}
}

func writeSpecTable(doc *docx.RootDoc, attrs []datasheet.Attribute) {
	table := doc.AddTable()
	table.Style(specTableStyle)
	header := table.AddRow()
	header.AddCell().AddParagraph("").AddText("Item").Bold(true)
	header.AddCell().AddParagraph("").AddText("Detalhe").Bold(true)
	for _, attr := range attrs {
		row := table.AddRow()
		row.AddCell().AddParagraph(stripControl(attr.Key))
		row.AddCell().AddParagraph(stripControl(attr.Value))
	}
	// Word expects a paragraph between a table and the section properties.
	doc.AddParagraph("")
}

// addScaledPicture embeds the image at path with the given width, keeping
// its aspect ratio.
func addScaledPicture(doc *docx.RootDoc, path string, width units.Inch) error {
	if !docxImageExt(path) {
		return fmt.Errorf("unsupported picture %s", filepath.Base(path))
	}
	f, err := os.Open(path) //nolint:gosec // configured logo or downloaded temp image
	if err != nil {
		return fmt.Errorf("open picture: %w", err)
	}
	cfg, _, err := image.DecodeConfig(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("decode picture config: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("picture has no pixels")
	}
	height := width * units.Inch(cfg.Height) / units.Inch(cfg.Width)
	if _, err := doc.AddPicture(path, width, height); err != nil {
		return fmt.Errorf("add picture: %w", err)
	}
	return nil
}

func docxImageExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// stripControl drops characters XML 1.0 cannot carry.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r >= 0x20 {
			return r
		}
		return -1
	}, s)
}
