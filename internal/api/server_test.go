package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/config"
	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/dispatcher"
	"github.com/JakeFAU/datasheet-crawler/internal/notify"
	"github.com/JakeFAU/datasheet-crawler/internal/sites"
	"github.com/JakeFAU/datasheet-crawler/internal/storage/memory"
	"github.com/JakeFAU/datasheet-crawler/internal/worker"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%d", s.n.Add(1)), nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type fileRenderer struct{ dir string }

func (r fileRenderer) Render(_ context.Context, p datasheet.Product) (datasheet.Documents, error) {
	docs := datasheet.Documents{Word: p.Title + ".docx", PDF: p.Title + ".pdf"}
	for _, name := range []string{docs.Word, docs.PDF} {
		if err := os.WriteFile(filepath.Join(r.dir, name), []byte("datasheet "+name), 0o600); err != nil {
			return datasheet.Documents{}, err
		}
	}
	return docs, nil
}

type stack struct {
	server *Server
	ledger *memory.Ledger
	disp   *dispatcher.Dispatcher
	dir    string
	gate   chan struct{}
}

func testConfig(dir string) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 6004, BaseURL: "http://localhost:6004"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		Output: config.OutputConfig{Dir: dir},
	}
}

// newStack wires the real dispatcher and worker behind the HTTP surface. The
// KABUM extractor blocks on gate so tests can observe the processing state.
func newStack(t *testing.T, mutate func(*config.Config)) *stack {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)
	if mutate != nil {
		mutate(&cfg)
	}
	st := &stack{ledger: memory.NewLedger(), dir: dir, gate: make(chan struct{})}

	registry := sites.NewRegistry()
	registry.Register("kabum", func() (datasheet.Extractor, error) {
		return datasheet.ExtractorFunc(func(context.Context, string, string) (datasheet.Product, error) {
			select {
			case <-st.gate:
			case <-time.After(5 * time.Second):
			}
			return datasheet.Product{Title: "MONITOR_24", Description: "Monitor"}, nil
		}), nil
	})
	registry.Register("dell", func() (datasheet.Extractor, error) {
		return datasheet.ExtractorFunc(func(context.Context, string, string) (datasheet.Product, error) {
			return datasheet.Product{}, datasheet.Failf("DELL", "captcha page served", nil)
		}), nil
	})
	router := sites.NewRouter([]sites.Definition{
		sites.MustDefine("KABUM", "kabum", `kabum\.com\.br`),
		sites.MustDefine("DELL", "dell", `dell\.com`),
	})
	w := worker.New(router, registry, fileRenderer{dir: dir}, st.ledger,
		notify.NewSender(nil, notify.SenderConfig{}, nil), wallClock{},
		worker.Config{OutputDir: dir, BaseURL: cfg.Server.BaseURL}, zap.NewNop())
	st.disp = dispatcher.New(st.ledger, &seqIDs{}, wallClock{}, w, dispatcher.Config{}, zap.NewNop())
	st.server = NewServer(st.disp, st.ledger, cfg, zap.NewNop())
	t.Cleanup(func() {
		select {
		case <-st.gate:
		default:
			close(st.gate)
		}
		_ = st.disp.Wait(context.Background())
	})
	return st
}

func (st *stack) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	st.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (st *stack) waitTerminal(t *testing.T, id string) map[string]any {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, err := st.ledger.Get(context.Background(), id)
		return err == nil && rec.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	rec := st.do(t, http.MethodGet, "/status/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody(t, rec)
}

func TestSubmit_FlexibleLifecycleAndDownload(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	rec := st.do(t, http.MethodPost, "/submit", `{"urls": ["https://www.kabum.com.br/produto/1"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	require.Equal(t, "processing started", body["message"])
	require.Equal(t, []any{"id-1"}, body["ids_internos"])

	status := st.do(t, http.MethodGet, "/api/status/id-1", "")
	require.Equal(t, http.StatusOK, status.Code)
	require.JSONEq(t, `{"success": true, "status": "processing"}`, status.Body.String())

	health := decodeBody(t, st.do(t, http.MethodGet, "/health", ""))
	require.Equal(t, "online", health["status"])
	require.Equal(t, st.dir, health["output_dir"])
	require.EqualValues(t, 1, health["active_requests"])

	close(st.gate)
	final := st.waitTerminal(t, "id-1")
	require.Equal(t, "Feito", final["status"])
	for _, key := range []string{"request_id", "custom_id", "id", "pedido_id"} {
		require.Equal(t, "id-1", final[key])
	}
	download := final["download"].(map[string]any)
	require.Equal(t, "http://localhost:6004/download/MONITOR_24.pdf", download["pdf"])

	file := st.do(t, http.MethodGet, "/download/MONITOR_24.pdf", "")
	require.Equal(t, http.StatusOK, file.Code)
	require.Equal(t, "datasheet MONITOR_24.pdf", file.Body.String())
	require.Contains(t, file.Header().Get("Content-Disposition"), "attachment")

	health = decodeBody(t, st.do(t, http.MethodGet, "/health", ""))
	require.EqualValues(t, 0, health["active_requests"])
}

func TestSubmit_TaskShapeUnsupportedSite(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	rec := st.do(t, http.MethodPost, "/api/datasheet/processar",
		`{"codigoTarefa": "T1", "dados": {"url": "https://example.com"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	final := st.waitTerminal(t, "id-1")
	require.Equal(t, map[string]any{
		"codigoTarefa": "T1",
		"status":       "ERRO",
		"sucesso":      false,
		"erro":         "site not configured or invalid URL",
	}, final)
}

func TestSubmit_IndependentWorkers(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	rec := st.do(t, http.MethodPost, "/submit",
		`{"urls": ["https://www.kabum.com.br/p/2", "https://www.dell.com/p/3"], "custom_id": 5512}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The Dell worker fails while the Kabum worker is still blocked.
	failed := st.waitTerminal(t, "id-2")
	require.Equal(t, "Erro", failed["status"])
	require.Equal(t, "captcha page served", failed["mensagem"])
	require.Equal(t, "5512", failed["pedido_id"])

	pending, err := st.ledger.Get(context.Background(), "id-1")
	require.NoError(t, err)
	require.Equal(t, datasheet.StatusProcessing, pending.Status)

	close(st.gate)
	done := st.waitTerminal(t, "id-1")
	require.Equal(t, "Feito", done["status"])
	require.Equal(t, "5512", done["custom_id"])
}

func TestSubmit_Rejections(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	for _, body := range []string{``, `{}`, `[]`, `"url"`, `null`, `{"urls": []}`, `{invalid`} {
		rec := st.do(t, http.MethodPost, "/submit", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		require.JSONEq(t, `{"error": "no URL supplied"}`, rec.Body.String(), body)
	}
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, map[string]any) ([]string, error) {
	return nil, errors.New("ledger unavailable")
}

func TestSubmit_InternalError(t *testing.T) {
	t.Parallel()

	srv := NewServer(failingSubmitter{}, memory.NewLedger(), testConfig(t.TempDir()), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit", bytes.NewBufferString(`{"url":"https://a.com"}`)))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type partialSubmitter struct{}

func (partialSubmitter) Submit(context.Context, map[string]any) ([]string, error) {
	return []string{"id-1"}, errors.New("record id-2: ledger full")
}

func TestSubmit_PartialAcceptReturnsAcceptedIDs(t *testing.T) {
	t.Parallel()

	srv := NewServer(partialSubmitter{}, memory.NewLedger(), testConfig(t.TempDir()), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit",
		bytes.NewBufferString(`{"urls":["https://a.com","https://b.com"]}`)))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"success": true, "message": "processing started", "ids_internos": ["id-1"]}`, rec.Body.String())
}

func TestStatus_NotFound(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	rec := st.do(t, http.MethodGet, "/status/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"success": false, "message": "id not found"}`, rec.Body.String())
}

func TestDownload_Rejects(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(st.dir, "sub"), 0o750))

	for _, path := range []string{
		"/download/missing.pdf",
		"/download/..%2Fsecret.txt",
		"/download/sub",
		"/download/%2E%2E",
		"/download/a%5Cb.pdf",
	} {
		rec := st.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDownload_EscapedName(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(st.dir, "CÂMERA IP.pdf"), []byte("pdf"), 0o600))
	rec := st.do(t, http.MethodGet, "/download/C%C3%82MERA%20IP.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pdf", rec.Body.String())
}

func TestAPIKey(t *testing.T) {
	t.Parallel()

	st := newStack(t, func(c *config.Config) {
		c.Auth = config.AuthConfig{Enabled: true, APIKey: "s3cret"}
	})

	rec := st.do(t, http.MethodGet, "/status/x", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/status/x", nil)
	req.Header.Set("X-API-Key", "s3cret")
	out := httptest.NewRecorder()
	st.server.Handler().ServeHTTP(out, req)
	require.Equal(t, http.StatusNotFound, out.Code)

	require.Equal(t, http.StatusOK, st.do(t, http.MethodGet, "/health", "").Code)
}

func TestSubmitRateLimit(t *testing.T) {
	t.Parallel()

	st := newStack(t, func(c *config.Config) { c.RateLimit.SubmitPerMinute = 1 })
	require.Equal(t, http.StatusBadRequest, st.do(t, http.MethodPost, "/submit", `{}`).Code)
	require.Equal(t, http.StatusTooManyRequests, st.do(t, http.MethodPost, "/submit", `{}`).Code)
}

func TestRequestIDAndMetrics(t *testing.T) {
	t.Parallel()

	st := newStack(t, nil)
	rec := st.do(t, http.MethodGet, "/health", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	metricsRec := st.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metricsRec.Code)
	require.Contains(t, metricsRec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDownloadName(t *testing.T) {
	t.Parallel()

	name, ok := downloadName("A%20B.pdf")
	require.True(t, ok)
	require.Equal(t, "A B.pdf", name)
	for _, raw := range []string{"", ".", "..", "a/b", `a\b`, "%zz"} {
		_, ok := downloadName(raw)
		require.False(t, ok, raw)
	}
}
