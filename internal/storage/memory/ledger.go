// Package memory holds process-local implementations of the storage contracts.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Ledger keeps request records in process memory. Records are stored by
// value and replaced whole, so readers never observe a half-written record.
// Contents are lost when the process exits.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]datasheet.RequestRecord
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]datasheet.RequestRecord)}
}

// Put inserts a new processing record or replaces a processing record with
// its terminal version. Any other write is rejected.
func (l *Ledger) Put(_ context.Context, record datasheet.RequestRecord) error {
	if record.InternalID == "" {
		return fmt.Errorf("put record: internal id is required")
	}
	if !record.Status.Valid() {
		return fmt.Errorf("put record %s: unknown status %q", record.InternalID, record.Status)
	}
	if record.Status.Terminal() != (len(record.Result) > 0) {
		return fmt.Errorf("put record %s: result must be present exactly when status is terminal", record.InternalID)
	}
	record.Result = append([]byte(nil), record.Result...)

	l.mu.Lock()
	defer l.mu.Unlock()
	current, exists := l.records[record.InternalID]
	if !exists {
		if record.Status != datasheet.StatusProcessing {
			return fmt.Errorf("put record %s: %w: new records start as %s",
				record.InternalID, datasheet.ErrInvalidTransition, datasheet.StatusProcessing)
		}
		l.records[record.InternalID] = record
		return nil
	}
	if !record.Status.Terminal() {
		return fmt.Errorf("put record %s: %w", record.InternalID, datasheet.ErrDuplicateID)
	}
	if current.Status.Terminal() {
		return fmt.Errorf("put record %s: %w: already %s",
			record.InternalID, datasheet.ErrInvalidTransition, current.Status)
	}
	if current.SourceURL != record.SourceURL || !current.CreatedAt.Equal(record.CreatedAt) {
		return fmt.Errorf("put record %s: source url and creation time are immutable", record.InternalID)
	}
	l.records[record.InternalID] = record
	return nil
}

// Get fetches a record by internal id.
func (l *Ledger) Get(_ context.Context, internalID string) (datasheet.RequestRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	record, ok := l.records[internalID]
	if !ok {
		return datasheet.RequestRecord{}, datasheet.ErrNotFound
	}
	record.Result = append([]byte(nil), record.Result...)
	return record, nil
}

// CountWhere returns how many records currently hold status.
func (l *Ledger) CountWhere(_ context.Context, status datasheet.Status) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, record := range l.records {
		if record.Status == status {
			count++
		}
	}
	return count, nil
}
