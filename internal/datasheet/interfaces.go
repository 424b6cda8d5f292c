package datasheet

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Ledger holds request records keyed by internal id.
type Ledger interface {
	Put(ctx context.Context, record RequestRecord) error
	Get(ctx context.Context, internalID string) (RequestRecord, error)
	CountWhere(ctx context.Context, status Status) (int, error)
}

// Extractor turns a product page URL into a normalized record.
type Extractor interface {
	Extract(ctx context.Context, url string, outputDir string) (Product, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, url string, outputDir string) (Product, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, url string, outputDir string) (Product, error) {
	return f(ctx, url, outputDir)
}

// Renderer produces the Word and PDF datasheets for a product.
type Renderer interface {
	Render(ctx context.Context, product Product) (Documents, error)
}

// Notifier delivers a terminal payload to a callback URL.
type Notifier interface {
	Notify(ctx context.Context, callbackURL string, payload json.RawMessage) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a statically fetched page must be
// rendered in a browser. req is the request that produced resp.
type HeadlessDetector interface {
	ShouldPromote(req FetchRequest, resp FetchResponse) bool
}

// BlobStore writes generated artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher produces content digests for generated documents.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes terminal payloads to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ResultArchive keeps an audit copy of terminal records.
type ResultArchive interface {
	Archive(ctx context.Context, record RequestRecord) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces internal request ids.
type IDGenerator interface {
	NewID() (string, error)
}
