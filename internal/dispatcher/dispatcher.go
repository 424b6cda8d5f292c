// Package dispatcher accepts submissions and launches one worker per URL.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
	"github.com/JakeFAU/datasheet-crawler/internal/metrics"
)

// Processor runs the pipeline for one accepted record.
type Processor interface {
	Process(ctx context.Context, record datasheet.RequestRecord) datasheet.RequestRecord
}

// Config controls Dispatcher behavior.
type Config struct {
	// FixedCallbackURL receives every structured-task notification.
	FixedCallbackURL string
}

// Dispatcher records accepted URLs and runs them in detached goroutines.
// Workers are never canceled; Wait only lets shutdown drain them.
type Dispatcher struct {
	ledger    datasheet.Ledger
	ids       datasheet.IDGenerator
	clock     datasheet.Clock
	processor Processor
	cfg       Config
	logger    *zap.Logger

	wg sync.WaitGroup
}

// New creates a Dispatcher.
func New(
	ledger datasheet.Ledger,
	ids datasheet.IDGenerator,
	clock datasheet.Clock,
	processor Processor,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		ledger:    ledger,
		ids:       ids,
		clock:     clock,
		processor: processor,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
	}
}

// Submit normalizes body, records one processing entry per URL and launches
// a worker for each. It returns the internal ids in submission order without
// waiting for any worker. datasheet.ErrNoURL reports a body with no URL.
//
// When the ledger rejects a record, the records stored before it still run
// and their ids are returned together with the error.
func (d *Dispatcher) Submit(ctx context.Context, body map[string]any) ([]string, error) {
	intakes, err := Normalize(body, d.cfg.FixedCallbackURL)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(intakes))
	for i := range intakes {
		id, err := d.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate internal id: %w", err)
		}
		ids[i] = id
	}

	records := make([]datasheet.RequestRecord, 0, len(intakes))
	var putErr error
	for i, in := range intakes {
		record := datasheet.RequestRecord{
			InternalID:  ids[i],
			ExternalID:  in.ExternalID,
			TaskCode:    in.TaskCode,
			SourceURL:   in.URL,
			CallbackURL: in.CallbackURL,
			Origin:      in.Origin,
			Status:      datasheet.StatusProcessing,
			CreatedAt:   d.clock.Now(),
		}
		if err := d.ledger.Put(ctx, record); err != nil {
			putErr = fmt.Errorf("record %s: %w", record.InternalID, err)
			break
		}
		records = append(records, record)
	}

	// Every accepted record is in the ledger before any worker starts, so a
	// failed insert never leaves a running worker the caller was not told about.
	workerCtx := context.WithoutCancel(ctx)
	for _, record := range records {
		metrics.ObserveSubmitted(string(record.Origin))
		d.logger.Info("request accepted",
			zap.String("request_id", record.InternalID),
			zap.String("url", record.SourceURL),
			zap.String("origin", string(record.Origin)),
			zap.String("external_id", record.ExternalID),
		)
		d.launch(workerCtx, record)
	}
	return ids[:len(records)], putErr
}

func (d *Dispatcher) launch(ctx context.Context, record datasheet.RequestRecord) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.processor.Process(ctx, record)
	}()
}

// Wait blocks until every launched worker returns or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}
