// Package datasheet defines core types shared across subsystems.
package datasheet

import (
	"encoding/json"
	"net/http"
	"time"
)

// Status represents the lifecycle state of a datasheet request.
type Status string

// Request status values held by the ledger.
const (
	StatusProcessing       Status = "processing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCriticallyFailed Status = "critically_failed"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCriticallyFailed:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s == StatusProcessing || s.Terminal()
}

// Origin tags the caller payload shape that produced a request.
type Origin string

// Supported caller shapes.
const (
	// OriginTask is the structured task shape ({"codigoTarefa", "dados": {"url"}}).
	OriginTask Origin = "task"
	// OriginFlexible is the free-form shape (url/link/urls plus optional ids).
	OriginFlexible Origin = "flexible"
)

// RequestRecord is the ledger entry for one accepted URL.
type RequestRecord struct {
	InternalID  string          `json:"internal_id"`
	ExternalID  string          `json:"external_id,omitempty"`
	TaskCode    json.RawMessage `json:"task_code,omitempty"`
	SourceURL   string          `json:"source_url"`
	CallbackURL string          `json:"callback_url,omitempty"`
	Origin      Origin          `json:"origin"`
	Status      Status          `json:"status"`
	Site        string          `json:"site,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// ResolvedID is the identifier echoed to callers: the external id when
// supplied, otherwise the internal id.
func (r RequestRecord) ResolvedID() string {
	if r.ExternalID != "" {
		return r.ExternalID
	}
	return r.InternalID
}

// Attribute is one label/value row of a product specification table.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Product is the normalized record produced by an extractor.
type Product struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
	// ImagePath points at a temporary local file, empty when no image was found.
	ImagePath string `json:"image_path,omitempty"`
}

// Documents names the files produced by a renderer inside the output directory.
type Documents struct {
	Word string `json:"word"`
	PDF  string `json:"pdf"`
}

// FetchRequest describes a single page retrieval.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// WaitSelector is a CSS selector for the product element. Browser
	// fetchers wait for it to become visible before reading the DOM; static
	// fetchers ignore it.
	WaitSelector string
	// CaptureSelector asks browser fetchers for a PNG screenshot of the
	// first matching element, returned in FetchResponse.Capture.
	CaptureSelector string
}

// FetchResponse captures the data returned from a page fetch.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	// Capture holds the element screenshot requested by CaptureSelector.
	Capture []byte
	// ProductReady reports that WaitSelector matched before the deadline.
	ProductReady bool
}
