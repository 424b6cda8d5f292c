package worker

import (
	"encoding/json"
	"time"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

// Event is the message published for every terminal request.
type Event struct {
	InternalID string          `json:"internal_id"`
	ExternalID string          `json:"external_id,omitempty"`
	TaskCode   json.RawMessage `json:"task_code,omitempty"`
	Origin     string          `json:"origin"`
	Status     string          `json:"status"`
	Site       string          `json:"site,omitempty"`
	URL        string          `json:"url"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	// Digests maps generated file names to their SHA-256 hex digest.
	Digests map[string]string `json:"digests,omitempty"`
}

func newEvent(record datasheet.RequestRecord, digests map[string]string) Event {
	return Event{
		InternalID: record.InternalID,
		ExternalID: record.ExternalID,
		TaskCode:   record.TaskCode,
		Origin:     string(record.Origin),
		Status:     string(record.Status),
		Site:       record.Site,
		URL:        record.SourceURL,
		FinishedAt: record.FinishedAt,
		Payload:    record.Result,
		Digests:    digests,
	}
}

// Attributes exposes routing metadata as message attributes.
func (e Event) Attributes() map[string]string {
	return map[string]string{
		"internal_id": e.InternalID,
		"origin":      e.Origin,
		"status":      e.Status,
		"site":        e.Site,
	}
}
