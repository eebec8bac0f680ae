package static

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/scan-core/internal/pkg/errors"
)

type scriptedFetcher struct {
	calls     int
	failCount int // number of leading calls that fail with an Unavailable error
	callTimes []time.Time
}

func (f *scriptedFetcher) Do(req *http.Request) (*http.Response, error) {
	f.callTimes = append(f.callTimes, time.Now())
	f.calls++
	if f.calls <= f.failCount {
		return nil, errors.New(errors.Unavailable, "simulated 429")
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func (f *scriptedFetcher) Close() error { return nil }

func newReq(t *testing.T) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "https://example.test/search", nil)
	require.NoError(t, err)
	return req
}

// TestFixedScheduleFetcher_RetriesOnFixedSchedule is spec.md §8 scenario 6:
// an Unavailable failure on attempts 1 and 2 (the fake returns the same
// Unavailable error for both), success on attempt 3, with
// MAX_RETRY_ATTEMPTS=2 (three total attempts, per scenario 6)
// and the fixed 2s/5s backoff -- not an exponential curve.
func TestFixedScheduleFetcher_RetriesOnFixedSchedule(t *testing.T) {
	t.Setenv("MAX_RETRY_ATTEMPTS", "2")
	delegate := &scriptedFetcher{failCount: 2}
	f := &fixedScheduleFetcher{delegate: delegate}

	start := time.Now()
	resp, err := f.Do(newReq(t))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 3, delegate.calls, "must succeed on the third attempt, not retry indefinitely")
	assert.GreaterOrEqual(t, elapsed, 7*time.Second, "the 2s+5s pre-third-attempt waits must both be honored")
}

func TestFixedScheduleFetcher_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Setenv("MAX_RETRY_ATTEMPTS", "1")
	delegate := &scriptedFetcher{failCount: 100}
	f := &fixedScheduleFetcher{delegate: delegate}

	_, err := f.Do(newReq(t))
	require.Error(t, err)
	assert.Equal(t, 2, delegate.calls, "MAX_RETRY_ATTEMPTS=1 means one retry, two total attempts")
}

// A non-Unavailable error (e.g. a malformed-request classification) is
// never retried, regardless of the attempt budget.
func TestFixedScheduleFetcher_NonRetryableErrorStopsImmediately(t *testing.T) {
	wrapped := &failOnceFetcher{err: errors.New(errors.InvalidInput, "bad request")}
	f := &fixedScheduleFetcher{delegate: wrapped}

	_, err := f.Do(newReq(t))
	require.Error(t, err)
	assert.Equal(t, 1, wrapped.calls)
}

type failOnceFetcher struct {
	err   error
	calls int
}

func (f *failOnceFetcher) Do(*http.Request) (*http.Response, error) {
	f.calls++
	return nil, f.err
}
func (f *failOnceFetcher) Close() error { return nil }

func TestMaxAttempts_DefaultsToTwoAttempts(t *testing.T) {
	_ = os.Unsetenv("MAX_RETRY_ATTEMPTS")
	assert.Equal(t, 2, maxAttempts(), "unset MAX_RETRY_ATTEMPTS defaults to 1 retry (2 total attempts)")
}

func TestMaxAttempts_HonorsEnvOverride(t *testing.T) {
	t.Setenv("MAX_RETRY_ATTEMPTS", "5")
	assert.Equal(t, 6, maxAttempts())
}
