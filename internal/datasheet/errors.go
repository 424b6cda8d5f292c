package datasheet

import "errors"

var (
	// ErrNotFound is returned when a ledger lookup misses.
	ErrNotFound = errors.New("id not found")
	// ErrUnsupportedSite is returned when no site definition matches a URL.
	ErrUnsupportedSite = errors.New("site not configured or invalid URL")
	// ErrNoURL is returned when a submission resolves zero URLs.
	ErrNoURL = errors.New("no URL supplied")
	// ErrDuplicateID is returned when a ledger insert reuses an internal id.
	ErrDuplicateID = errors.New("internal id already exists")
	// ErrInvalidTransition is returned for lifecycle regressions.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ExtractionError is a structured failure reported by an extractor.
// Its message is surfaced to callers verbatim.
type ExtractionError struct {
	Site   string
	Reason string
	Err    error
}

// Error implements error.
func (e *ExtractionError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return e.Reason + ": " + e.Err.Error()
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "extraction failed"
	}
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Failf builds an ExtractionError for site with the given reason and cause.
func Failf(site, reason string, err error) error {
	return &ExtractionError{Site: site, Reason: reason, Err: err}
}
