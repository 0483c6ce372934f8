package scraper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDestroyed = errors.New("Execution context was destroyed, most likely because of a navigation")

func TestSampleWithRetry_RecoversFromDestroyedContext(t *testing.T) {
	t.Parallel()

	attempts := 0
	sample, err := sampleWithRetry(func() (ReadinessSample, error) {
		attempts++
		if attempts <= 2 {
			return ReadinessSample{}, errDestroyed
		}
		return ReadinessSample{Title: "Listing", BodyLen: 5000}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "Listing", sample.Title)
}

func TestSampleWithRetry_GivesUpAtCap(t *testing.T) {
	t.Parallel()

	attempts := 0
	_, err := sampleWithRetry(func() (ReadinessSample, error) {
		attempts++
		return ReadinessSample{}, errDestroyed
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errDestroyed)
	assert.Equal(t, evalRetryCap, attempts)
}

func TestSampleWithRetry_OtherErrorsAreFinal(t *testing.T) {
	t.Parallel()

	attempts := 0
	_, err := sampleWithRetry(func() (ReadinessSample, error) {
		attempts++
		return ReadinessSample{}, errors.New("net::ERR_CONNECTION_RESET")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "non-transient failures are not retried")
}

func TestIsContextDestroyed(t *testing.T) {
	t.Parallel()

	assert.True(t, isContextDestroyed(errDestroyed))
	assert.True(t, isContextDestroyed(errors.New("Cannot find context with specified id")))
	assert.True(t, isContextDestroyed(errors.New("the JS context was destroyed")))
	assert.False(t, isContextDestroyed(errors.New("net::ERR_TIMED_OUT")))
	assert.False(t, isContextDestroyed(nil))
}
