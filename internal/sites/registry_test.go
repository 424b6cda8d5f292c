package sites

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

func noopExtractor() datasheet.Extractor {
	return datasheet.ExtractorFunc(func(context.Context, string, string) (datasheet.Product, error) {
		return datasheet.Product{Title: "x"}, nil
	})
}

func TestRegistry_MemoizesSuccessfulBuilds(t *testing.T) {
	t.Parallel()

	var builds atomic.Int32
	reg := NewRegistry()
	reg.Register("k", func() (datasheet.Extractor, error) {
		builds.Add(1)
		return noopExtractor(), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex, err := reg.Resolve("k")
			assert.NoError(t, err)
			assert.NotNil(t, ex)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, builds.Load())
}

func TestRegistry_DoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var calls int
	reg := NewRegistry()
	reg.Register("flaky", func() (datasheet.Extractor, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("browser unavailable")
		}
		return noopExtractor(), nil
	})

	_, err := reg.Resolve("flaky")
	require.EqualError(t, err, `build strategy "flaky": browser unavailable`)
	ex, err := reg.Resolve("flaky")
	require.NoError(t, err)
	require.NotNil(t, ex)
	require.Equal(t, 2, calls)
}

func TestRegistry_Unregistered(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Resolve("missing")
	require.ErrorIs(t, err, ErrStrategyNotRegistered)

	reg.Register("nil", func() (datasheet.Extractor, error) { return nil, nil })
	_, err = reg.Resolve("nil")
	require.Error(t, err)
}

func TestRegistry_RegisterReplacesBuilt(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("k", func() (datasheet.Extractor, error) { return noopExtractor(), nil })
	_, err := reg.Resolve("k")
	require.NoError(t, err)

	reg.Register("k", func() (datasheet.Extractor, error) { return nil, errors.New("replaced") })
	_, err = reg.Resolve("k")
	require.ErrorContains(t, err, "replaced")
	require.Equal(t, []string{"k"}, reg.Keys())
}
