package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

type fakeApp struct {
	record  datasheet.RequestRecord
	err     error
	ran     bool
	closed  int
	gotURL  string
	cfgPath string
}

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) ExtractOnce(_ context.Context, rawURL string) (datasheet.RequestRecord, error) {
	f.gotURL = rawURL
	return f.record, f.err
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Close() error {
	f.closed++
	return nil
}

// withFakeApp swaps the factory; tests using it must not run in parallel.
func withFakeApp(t *testing.T, app *fakeApp) {
	t.Helper()
	original := newApp
	newApp = func(_ context.Context, cfgPath string) (App, error) {
		app.cfgPath = cfgPath
		return app, nil
	}
	t.Cleanup(func() { newApp = original })
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestServeRunsApp(t *testing.T) {
	app := &fakeApp{}
	withFakeApp(t, app)

	_, err := execute(t, "serve", "--config", "conf.yaml")
	require.NoError(t, err)
	assert.True(t, app.ran)
	assert.Equal(t, "conf.yaml", app.cfgPath)
	assert.Equal(t, 1, app.closed)
}

func TestExtractPrintsRecord(t *testing.T) {
	app := &fakeApp{record: datasheet.RequestRecord{
		InternalID: "id-1",
		Site:       "kabum",
		Status:     datasheet.StatusCompleted,
		Result:     json.RawMessage(`{"status":"Feito"}`),
	}}
	withFakeApp(t, app)

	out, err := execute(t, "extract", "https://www.kabum.com.br/produto/1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.kabum.com.br/produto/1", app.gotURL)

	var printed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, "id-1", printed["id"])
	assert.Equal(t, "completed", printed["status"])
	assert.Equal(t, map[string]any{"status": "Feito"}, printed["result"])
}

func TestExtractFailureReturnsError(t *testing.T) {
	app := &fakeApp{record: datasheet.RequestRecord{
		InternalID: "id-2",
		Status:     datasheet.StatusFailed,
		Result:     json.RawMessage(`{"status":"Erro"}`),
	}}
	withFakeApp(t, app)

	_, err := execute(t, "extract", "https://nowhere.example")
	require.ErrorContains(t, err, "extraction failed")
	assert.Equal(t, 1, app.closed)
}

func TestExtractRequiresURL(t *testing.T) {
	withFakeApp(t, &fakeApp{})

	_, err := execute(t, "extract")
	require.Error(t, err)
}

func TestBuildFailureSurfaces(t *testing.T) {
	original := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { newApp = original })

	_, err := execute(t, "serve")
	require.ErrorContains(t, err, "boom")
}
