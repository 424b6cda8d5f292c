// Package worker runs the per-URL pipeline: route, extract, render, record, notify.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
	"github.com/JakeFAU/datasheet-crawler/internal/metrics"
	"github.com/JakeFAU/datasheet-crawler/internal/notify"
	"github.com/JakeFAU/datasheet-crawler/internal/sites"
)

const (
	contentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	contentTypePDF  = "application/pdf"
)

// Router matches a URL to a site definition.
type Router interface {
	Route(rawURL string) (sites.Definition, bool)
}

// Resolver returns the extractor registered under a strategy key.
type Resolver interface {
	Resolve(key string) (datasheet.Extractor, error)
}

// Config controls Worker behavior.
type Config struct {
	// OutputDir is shared by every worker; extractors drop temp images here.
	OutputDir string
	// BaseURL prefixes download links in success payloads.
	BaseURL string
	// MirrorPrefix is the object prefix used when a mirror is configured.
	MirrorPrefix string
	// Topic is passed to the publisher when one is configured.
	Topic string
}

// Option configures optional sinks.
type Option func(*Worker)

// WithMirror copies generated datasheets to store after a successful render.
func WithMirror(store datasheet.BlobStore) Option {
	return func(w *Worker) { w.mirror = store }
}

// WithDigests attaches a content digest per document to published events.
func WithDigests(hasher datasheet.Hasher) Option {
	return func(w *Worker) { w.hasher = hasher }
}

// WithArchive records every terminal request in archive.
func WithArchive(archive datasheet.ResultArchive) Option {
	return func(w *Worker) { w.archive = archive }
}

// WithPublisher fans terminal payloads out to a topic.
func WithPublisher(publisher datasheet.Publisher) Option {
	return func(w *Worker) { w.publisher = publisher }
}

// Worker processes one request record at a time. It is safe for concurrent
// use; each call to Process owns exactly one record.
type Worker struct {
	router    Router
	resolver  Resolver
	renderer  datasheet.Renderer
	ledger    datasheet.Ledger
	notifier  datasheet.Notifier
	clock     datasheet.Clock
	mirror    datasheet.BlobStore
	archive   datasheet.ResultArchive
	publisher datasheet.Publisher
	hasher    datasheet.Hasher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	router Router,
	resolver Resolver,
	renderer datasheet.Renderer,
	ledger datasheet.Ledger,
	notifier datasheet.Notifier,
	clock datasheet.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Worker {
	w := &Worker{
		router:   router,
		resolver: resolver,
		renderer: renderer,
		ledger:   ledger,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// outcome is the terminal result of one pipeline run.
type outcome struct {
	status  datasheet.Status
	payload json.RawMessage
	docs    datasheet.Documents
	reason  string
}

// Process runs the pipeline for record, which must already be in the ledger
// as processing. It never panics and always leaves the record terminal
// unless the ledger itself refuses the write.
func (w *Worker) Process(ctx context.Context, record datasheet.RequestRecord) (final datasheet.RequestRecord) {
	metrics.IncActiveRequests()
	defer metrics.DecActiveRequests()

	start := w.clock.Now()
	logger := w.logger.With(
		zap.String("request_id", record.InternalID),
		zap.String("url", record.SourceURL),
	)
	final = record

	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			final = w.critical(ctx, final, fmt.Sprintf("critical error: %v", r), start, logger)
		}
	}()

	out := w.run(ctx, &final, logger)
	if out.status == datasheet.StatusCriticallyFailed {
		return w.critical(ctx, final, out.reason, start, logger)
	}
	final = w.finish(ctx, final, out, start, logger)
	return final
}

// run performs route, extract and render, and builds the payload.
func (w *Worker) run(ctx context.Context, record *datasheet.RequestRecord, logger *zap.Logger) outcome {
	def, ok := w.router.Route(record.SourceURL)
	if !ok {
		logger.Info("unsupported site")
		return w.failure(*record, datasheet.ErrUnsupportedSite.Error())
	}
	record.Site = def.Name
	logger = logger.With(zap.String("site", def.Name))

	extractor, err := w.resolver.Resolve(def.Strategy)
	if err != nil {
		logger.Error("strategy unavailable", zap.String("strategy", def.Strategy), zap.Error(err))
		return w.failure(*record, err.Error())
	}

	logger.Info("extracting")
	product, err := extractor.Extract(ctx, record.SourceURL, w.cfg.OutputDir)
	// The temp image belongs to this worker from here on and is removed once.
	defer w.removeTemp(product.ImagePath, logger)
	if err != nil {
		logger.Warn("extraction failed", zap.Error(err))
		return w.failure(*record, err.Error())
	}

	docs, err := w.renderer.Render(ctx, product)
	if err != nil {
		logger.Warn("render failed", zap.Error(err))
		return w.failure(*record, err.Error())
	}

	payload, err := notify.Success(*record, notify.DownloadLinks(w.cfg.BaseURL, docs))
	if err != nil {
		return outcome{status: datasheet.StatusCriticallyFailed, reason: err.Error()}
	}
	return outcome{status: datasheet.StatusCompleted, payload: payload, docs: docs}
}

func (w *Worker) failure(record datasheet.RequestRecord, message string) outcome {
	payload, err := notify.Failure(record, message)
	if err != nil {
		return outcome{status: datasheet.StatusCriticallyFailed, reason: err.Error()}
	}
	return outcome{status: datasheet.StatusFailed, payload: payload, reason: message}
}

// critical records a critically_failed result using the failure payload shape.
func (w *Worker) critical(
	ctx context.Context,
	record datasheet.RequestRecord,
	reason string,
	start time.Time,
	logger *zap.Logger,
) datasheet.RequestRecord {
	payload, err := notify.Failure(record, reason)
	if err != nil {
		payload = json.RawMessage(`{"status":"critically_failed"}`)
	}
	return w.finish(ctx, record, outcome{
		status:  datasheet.StatusCriticallyFailed,
		payload: payload,
		reason:  reason,
	}, start, logger)
}

// finish commits the terminal record then runs the best-effort sinks.
func (w *Worker) finish(
	ctx context.Context,
	record datasheet.RequestRecord,
	out outcome,
	start time.Time,
	logger *zap.Logger,
) datasheet.RequestRecord {
	finished := w.clock.Now()
	record.Status = out.status
	record.Result = out.payload
	record.FinishedAt = &finished

	if err := w.ledger.Put(ctx, record); err != nil {
		// Only a record that is already terminal can land here; do not
		// notify twice for it.
		logger.Error("ledger update rejected", zap.String("status", string(out.status)), zap.Error(err))
		return record
	}
	metrics.ObserveFinished(record.Site, string(record.Status), finished.Sub(start))
	logger.Info("request finished",
		zap.String("site", record.Site),
		zap.String("status", string(record.Status)),
		zap.Duration("elapsed", finished.Sub(start)),
	)

	var digests map[string]string
	if record.Status == datasheet.StatusCompleted {
		digests = w.mirrorDocuments(ctx, record, out.docs, logger)
	}
	if w.archive != nil {
		if err := w.archive.Archive(ctx, record); err != nil {
			logger.Warn("result archive failed", zap.Error(err))
		}
	}
	if w.publisher != nil {
		if _, err := w.publisher.Publish(ctx, w.cfg.Topic, newEvent(record, digests)); err != nil {
			logger.Warn("publish result failed", zap.Error(err))
		}
	}
	if err := w.notifier.Notify(ctx, record.CallbackURL, record.Result); err != nil {
		// Delivery failures never change the recorded outcome.
		logger.Debug("webhook not delivered", zap.Error(err))
	}
	return record
}

// mirrorDocuments copies the documents to the mirror and digests them. It
// returns digests keyed by file name, or nil when neither sink is configured.
func (w *Worker) mirrorDocuments(
	ctx context.Context,
	record datasheet.RequestRecord,
	docs datasheet.Documents,
	logger *zap.Logger,
) map[string]string {
	if w.mirror == nil && w.hasher == nil {
		return nil
	}
	digests := make(map[string]string, 2)
	for _, doc := range []struct{ name, contentType string }{
		{docs.Word, contentTypeDOCX},
		{docs.PDF, contentTypePDF},
	} {
		if doc.name == "" {
			continue
		}
		// #nosec G304 -- name was produced by the renderer inside OutputDir.
		data, err := os.ReadFile(filepath.Join(w.cfg.OutputDir, doc.name))
		if err != nil {
			logger.Warn("datasheet unreadable", zap.String("file", doc.name), zap.Error(err))
			continue
		}
		if w.hasher != nil {
			sum, err := w.hasher.Hash(data)
			if err != nil {
				logger.Warn("datasheet digest failed", zap.String("file", doc.name), zap.Error(err))
			} else {
				digests[doc.name] = sum
			}
		}
		if w.mirror == nil {
			continue
		}
		key := path.Join(strings.Trim(w.cfg.MirrorPrefix, "/"), record.InternalID, doc.name)
		uri, err := w.mirror.PutObject(ctx, key, doc.contentType, bytes.NewReader(data))
		if err != nil {
			logger.Warn("datasheet mirror failed", zap.String("key", key), zap.Error(err))
			continue
		}
		logger.Debug("datasheet mirrored", zap.String("uri", uri))
	}
	return digests
}

func (w *Worker) removeTemp(imagePath string, logger *zap.Logger) {
	if imagePath == "" {
		return
	}
	if err := os.Remove(imagePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("temp image not removed", zap.String("path", imagePath), zap.Error(err))
	}
}
