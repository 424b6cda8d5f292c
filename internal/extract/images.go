package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

const maxImageBytes = 20 << 20

// MaxImagePixels caps width×height of any image we decode. Compressed size
// says little about the decoded buffer, so the header is checked first.
const MaxImagePixels = 40_000_000

// ErrImageTooLarge reports an image whose dimensions exceed MaxImagePixels.
var ErrImageTooLarge = errors.New("image exceeds pixel budget")

// ImageSaver stores a product image as a temporary local JPEG.
type ImageSaver interface {
	// Save downloads imageURL. It returns the local path, or "" when no
	// usable image was obtained.
	Save(ctx context.Context, imageURL, pageURL, outputDir string) string
	// SaveCaptured stores an element screenshot taken by a browser fetcher.
	SaveCaptured(data []byte, outputDir string) string
}

// ImageDownloaderConfig controls image retrieval.
type ImageDownloaderConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// ImageDownloader fetches, decodes and re-encodes product images as JPEG.
type ImageDownloader struct {
	client *http.Client
	cfg    ImageDownloaderConfig
	logger *zap.Logger
}

// NewImageDownloader builds an ImageDownloader. A nil client uses a default one.
func NewImageDownloader(client *http.Client, cfg ImageDownloaderConfig, logger *zap.Logger) *ImageDownloader {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ImageDownloader{client: client, cfg: cfg, logger: logging.OrNop(logger)}
}

// Save implements ImageSaver. Failures are logged and reported as "".
func (d *ImageDownloader) Save(ctx context.Context, imageURL, pageURL, outputDir string) string {
	if imageURL == "" || outputDir == "" {
		return ""
	}
	path, err := d.save(ctx, imageURL, pageURL, outputDir)
	if err != nil {
		d.logger.Warn("product image skipped", zap.String("image_url", imageURL), zap.Error(err))
		return ""
	}
	return path
}

func (d *ImageDownloader) save(ctx context.Context, imageURL, pageURL, outputDir string) (string, error) {
	resolved, err := ResolveURL(imageURL, pageURL)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,*/*;q=0.8")
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: unexpected status %d", resp.StatusCode)
	}

	img, err := DecodeBounded(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", err
	}
	return writeTempJPEG(img, outputDir)
}

// SaveCaptured implements ImageSaver. Failures are logged and reported as "".
func (d *ImageDownloader) SaveCaptured(data []byte, outputDir string) string {
	if len(data) == 0 || outputDir == "" {
		return ""
	}
	img, err := DecodeBounded(bytes.NewReader(data))
	if err == nil {
		var path string
		if path, err = writeTempJPEG(img, outputDir); err == nil {
			return path
		}
	}
	d.logger.Warn("captured product image skipped", zap.Int("bytes", len(data)), zap.Error(err))
	return ""
}

// DecodeBounded reads the image header, rejects anything above
// MaxImagePixels and only then decodes the pixels.
func DecodeBounded(r io.Reader) (image.Image, error) {
	var header bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &header))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode image header: empty %dx%d image", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(io.MultiReader(&header, r))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func writeTempJPEG(img image.Image, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outputDir, "tmp_"+uuid.NewString()+".jpg")
	f, err := os.Create(path) //nolint:gosec // path is built from a fresh uuid
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if err := jpeg.Encode(f, FlattenOnWhite(img), &jpeg.Options{Quality: 90}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("encode image: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp image: %w", err)
	}
	return path, nil
}

// FlattenOnWhite composites img over an opaque white background.
func FlattenOnWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// ResolveURL turns protocol-relative and relative references into absolute
// http(s) URLs using pageURL as the base.
func ResolveURL(ref, pageURL string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		return "", fmt.Errorf("inline data URIs are not supported")
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse image url: %w", err)
	}
	if !u.IsAbs() {
		base, err := url.Parse(pageURL)
		if err != nil || !base.IsAbs() {
			return "", fmt.Errorf("relative image url %q without absolute page url", ref)
		}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported image scheme %q", u.Scheme)
	}
	return u.String(), nil
}
