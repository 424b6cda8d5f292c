// Package render produces the Word and PDF datasheets for extracted products.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

// Letterhead is the company block printed at the top of every datasheet.
type Letterhead struct {
	Company  string
	TaxID    string
	Address  string
	LogoPath string
}

// Config controls output location and layout.
type Config struct {
	OutputDir      string
	Letterhead     Letterhead
	ImageSize      int
	MaxDescription int
}

// TokenSource returns a short random token for filename suffixes.
type TokenSource func() string

// Renderer implements datasheet.Renderer.
type Renderer struct {
	cfg    Config
	clock  datasheet.Clock
	token  TokenSource
	logger *zap.Logger
}

// New builds a Renderer and makes sure the output directory exists.
func New(cfg Config, clock datasheet.Clock, token TokenSource, logger *zap.Logger) (*Renderer, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("render: output dir is required")
	}
	if clock == nil {
		return nil, errors.New("render: clock is required")
	}
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 500
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("render: create output dir: %w", err)
	}
	if cfg.Letterhead.LogoPath != "" {
		if _, err := os.Stat(cfg.Letterhead.LogoPath); err != nil {
			logging.OrNop(logger).Warn("letterhead logo unavailable", zap.String("path", cfg.Letterhead.LogoPath), zap.Error(err))
			cfg.Letterhead.LogoPath = ""
		}
	}
	return &Renderer{cfg: cfg, clock: clock, token: token, logger: logging.OrNop(logger)}, nil
}

// Render writes both documents concurrently. On failure no partial file is left behind.
func (r *Renderer) Render(ctx context.Context, product datasheet.Product) (datasheet.Documents, error) {
	if err := ctx.Err(); err != nil {
		return datasheet.Documents{}, fmt.Errorf("render: %w", err)
	}
	if product.ImagePath != "" {
		if err := FrameSquare(product.ImagePath, r.cfg.ImageSize); err != nil {
			r.logger.Warn("product image dropped", zap.String("path", product.ImagePath), zap.Error(err))
			product.ImagePath = ""
		}
	}

	token := ""
	if r.token != nil {
		token = r.token()
	}
	stem := Stem(product.Title, r.clock.Now(), token)
	docs := datasheet.Documents{Word: stem + ".docx", PDF: stem + ".pdf"}
	wordPath := filepath.Join(r.cfg.OutputDir, docs.Word)
	pdfPath := filepath.Join(r.cfg.OutputDir, docs.PDF)

	var g errgroup.Group
	g.Go(func() error {
		if err := WriteDOCX(wordPath, product, r.cfg.Letterhead); err != nil {
			return fmt.Errorf("render word: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := WritePDF(pdfPath, product, r.cfg.Letterhead, r.cfg.MaxDescription); err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		for _, p := range []string{wordPath, pdfPath} {
			if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				r.logger.Warn("partial datasheet not removed", zap.String("path", p), zap.Error(rmErr))
			}
		}
		return datasheet.Documents{}, err
	}
	r.logger.Debug("datasheet rendered", zap.String("word", docs.Word), zap.String("pdf", docs.PDF))
	return docs, nil
}
