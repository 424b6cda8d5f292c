package ratelimit

import (
	"context"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

type throttled struct {
	limiter *Limiter
	next    datasheet.Fetcher
}

// Throttle returns a Fetcher that waits for the request host's token before
// delegating to next.
func (l *Limiter) Throttle(next datasheet.Fetcher) datasheet.Fetcher {
	return &throttled{limiter: l, next: next}
}

func (t *throttled) Fetch(ctx context.Context, req datasheet.FetchRequest) (datasheet.FetchResponse, error) {
	if err := t.limiter.Wait(ctx, req.URL); err != nil {
		return datasheet.FetchResponse{}, err
	}
	return t.next.Fetch(ctx, req)
}
