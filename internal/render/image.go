package render

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"

	"github.com/JakeFAU/datasheet-crawler/internal/extract"
)

// FrameSquare rewrites the image at path as a size×size JPEG: the picture
// is scaled to fit and centered on white, so tall products never overflow
// the page.
func FrameSquare(path string, size int) error {
	if size <= 0 {
		return fmt.Errorf("frame size must be positive")
	}
	f, err := os.Open(path) //nolint:gosec // path comes from the image downloader
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	src, err := extract.DecodeBounded(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	flat := extract.FlattenOnWhite(src)
	w, h := flat.Bounds().Dx(), flat.Bounds().Dy()
	if w == 0 || h == 0 {
		return fmt.Errorf("image has no pixels")
	}
	fw, fh := fitWithin(w, h, size)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	offX, offY := (size-fw)/2, (size-fh)/2
	target := image.Rect(offX, offY, offX+fw, offY+fh)
	draw.CatmullRom.Scale(dst, target, flat, flat.Bounds(), draw.Over, nil)

	out, err := os.Create(path) //nolint:gosec // same path as above
	if err != nil {
		return fmt.Errorf("rewrite image: %w", err)
	}
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: 95}); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode framed image: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close framed image: %w", err)
	}
	return nil
}

// fitWithin shrinks w×h to fit a size×size box keeping the aspect ratio.
// Smaller images are left at their natural size.
func fitWithin(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		nh := h * size / w
		if nh < 1 {
			nh = 1
		}
		return size, nh
	}
	nw := w * size / h
	if nw < 1 {
		nw = 1
	}
	return nw, size
}
