package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpcal/internal/metrics"
)

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/test", "200"))

	metrics.RecordHTTPRequest("GET", "/api/test", 200, 20*time.Millisecond)

	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/test", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordFeedFetch(t *testing.T) {
	before := testutil.ToFloat64(metrics.FeedFetchTotal.WithLabelValues("test", "ok"))

	metrics.RecordFeedFetch("test", "ok", time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FeedFetchTotal.WithLabelValues("test", "ok")))
}

func TestSetContestsLoaded_ReplacesPlatforms(t *testing.T) {
	metrics.SetContestsLoaded(map[string]int{"LeetCode": 3, "AtCoder": 1})
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.ContestsLoaded))
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.ContestsLoaded.WithLabelValues("LeetCode")))

	metrics.SetContestsLoaded(map[string]int{"Codeforces": 5})
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ContestsLoaded))
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.ContestsLoaded.WithLabelValues("Codeforces")))
}

func TestRecordReminder(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.RemindersSent.WithLabelValues("metrics-test", "ok"))
	errBefore := testutil.ToFloat64(metrics.RemindersSent.WithLabelValues("metrics-test", "error"))

	metrics.RecordReminder("metrics-test", nil)
	metrics.RecordReminder("metrics-test", errors.New("down"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.RemindersSent.WithLabelValues("metrics-test", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.RemindersSent.WithLabelValues("metrics-test", "error")))
}

func TestServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- metrics.NewServer("127.0.0.1:0").Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
