// Package auto combines a static fetcher with a browser fallback, promoting
// requests whose static response looks script-rendered or challenged.
package auto

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

// Fetcher tries Static first and re-fetches with Browser when the detector
// finds the static page unusable.
type Fetcher struct {
	static   datasheet.Fetcher
	browser  datasheet.Fetcher
	detector datasheet.HeadlessDetector
	logger   *zap.Logger
}

// New builds a promoting fetcher. A nil browser or detector disables promotion.
func New(static, browser datasheet.Fetcher, detector datasheet.HeadlessDetector, logger *zap.Logger) *Fetcher {
	return &Fetcher{static: static, browser: browser, detector: detector, logger: logging.OrNop(logger)}
}

// Fetch implements datasheet.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req datasheet.FetchRequest) (datasheet.FetchResponse, error) {
	resp, err := f.static.Fetch(ctx, req)
	if err != nil || f.browser == nil || f.detector == nil || !f.detector.ShouldPromote(req, resp) {
		return resp, err
	}
	f.logger.Debug("promoting to browser render", zap.String("url", req.URL), zap.Int("static_bytes", len(resp.Body)))
	rendered, berr := f.browser.Fetch(ctx, req)
	if berr != nil {
		f.logger.Warn("browser render failed, keeping static response", zap.String("url", req.URL), zap.Error(berr))
		return resp, nil
	}
	return rendered, nil
}
