package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSender_Delivers(t *testing.T) {
	t.Parallel()

	type received struct {
		body        []byte
		contentType string
		userAgent   string
	}
	got := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{body: body, contentType: r.Header.Get("Content-Type"), userAgent: r.UserAgent()}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	sender := NewSender(srv.Client(), SenderConfig{UserAgent: "datasheetd-test"}, nil)
	err := sender.Notify(context.Background(), srv.URL, json.RawMessage(`{"status":"Feito"}`))
	require.NoError(t, err)

	r := <-got
	require.JSONEq(t, `{"status":"Feito"}`, string(r.body))
	require.Equal(t, "application/json", r.contentType)
	require.Equal(t, "datasheetd-test", r.userAgent)
}

func TestSender_Rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	err := NewSender(srv.Client(), SenderConfig{}, nil).Notify(context.Background(), srv.URL, json.RawMessage(`{}`))
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, http.StatusInternalServerError, rejected.StatusCode)
}

func TestSender_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	sender := NewSender(srv.Client(), SenderConfig{Timeout: 50 * time.Millisecond}, nil)
	start := time.Now()
	err := sender.Notify(context.Background(), srv.URL, json.RawMessage(`{}`))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
	var rejected *RejectedError
	require.False(t, errors.As(err, &rejected))
}

func TestSender_SkipsEmptyURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewSender(nil, SenderConfig{}, nil).Notify(context.Background(), " ", nil))
}

func TestSender_BadURL(t *testing.T) {
	t.Parallel()

	err := NewSender(nil, SenderConfig{}, nil).Notify(context.Background(), "http://[::1", json.RawMessage(`{}`))
	require.ErrorContains(t, err, "build webhook request")
}
