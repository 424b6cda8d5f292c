package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.slots))
	require.Equal(t, 45*time.Second, fetcher.cfg.NavigationTimeout)
	require.Equal(t, 20*time.Second, fetcher.cfg.ProductWait)
	require.Equal(t, 1500*time.Millisecond, fetcher.cfg.SettleDelay)
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{slots: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, fetcher.acquire(ctx), context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestActionsDependOnSelectors(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{cfg: withDefaults(Config{})}

	// setup, navigate, body, two scrolls, settle, location, html
	plain := fetcher.actions(datasheet.FetchRequest{URL: "https://example.com"}, &pageResult{})
	assert.Len(t, plain, 8)

	// the product wait replaces the settle delay and the capture is appended
	product := fetcher.actions(datasheet.FetchRequest{
		URL:             "https://example.com",
		WaitSelector:    "h1.title",
		CaptureSelector: "figure img",
	}, &pageResult{})
	assert.Len(t, product, 9)
}

func TestBoundedStepToleratesItsOwnTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{cfg: Config{ProductWait: 20 * time.Millisecond}}

	called := false
	action := fetcher.bounded(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func() { called = true })
	require.NoError(t, action.Do(context.Background()))
	assert.False(t, called)

	action = fetcher.bounded(func(context.Context) error { return errors.New("no node") }, func() { called = true })
	require.NoError(t, action.Do(context.Background()))
	assert.False(t, called)

	action = fetcher.bounded(func(context.Context) error { return nil }, func() { called = true })
	require.NoError(t, action.Do(context.Background()))
	assert.True(t, called)
}

func TestBoundedStepFailsWhenTabIsDone(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{cfg: Config{ProductWait: time.Second}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	action := fetcher.bounded(func(ctx context.Context) error { return ctx.Err() }, nil)
	require.ErrorIs(t, action.Do(ctx), context.Canceled)
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	headers := networkHeaders(http.Header{"X-Test": {"a", "b"}, "Accept-Language": {"pt-BR"}, "Empty": {}})
	require.Equal(t, []string{"a", "b"}, headers["X-Test"])
	require.Equal(t, "pt-BR", headers["Accept-Language"])
	require.NotContains(t, headers, "Empty")
}

func TestDocumentResponseResult(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://cdn.example.com/a.png"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	status, headers, url := doc.result("https://req", "")
	require.Equal(t, 404, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", url)

	status, headers, url = (&documentResponse{}).result("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)

	_, _, url = (&documentResponse{}).result("https://req", "")
	require.Equal(t, "https://req", url)
}
