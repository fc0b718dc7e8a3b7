package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := regexp.MustCompile(name + `\{[^}]*` + labels + `[^}]*\}\s+` + value)
	assert.Regexp(t, pattern, output)
}

func TestNewBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)
	assert.NotNil(t, bm)
}

func TestBusinessMetrics_Export(t *testing.T) {
	provider, err := NewProvider("bg")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "bg")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "jobs", "process_due", StatusSuccess)
	bm.RecordOperation(ctx, "jobs", "process_due", StatusSuccess)
	bm.RecordOperation(ctx, "webhooks", "trigger", StatusError)
	bm.RecordDuration(ctx, "jobs", "process_due", 40*time.Millisecond, StatusSuccess)
	bm.RecordBatch(ctx, "webhooks", 3)

	output := scrape(t, provider)

	assertMetricLine(t, output, `bg_operations_total`, `domain="jobs".*operation="process_due".*status="success"`, `2`)
	assertMetricLine(t, output, `bg_operations_total`, `domain="webhooks".*operation="trigger".*status="error"`, `1`)
	assertMetricLine(
		t,
		output,
		`bg_operation_duration_seconds_count`,
		`domain="jobs".*operation="process_due".*status="success"`,
		`1`,
	)
	assertMetricLine(t, output, `bg_batch_size_sum`, `domain="webhooks"`, `3`)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	noOp := NewNoOpBusinessMetrics()

	assert.NotPanics(t, func() {
		noOp.RecordOperation(context.Background(), "events", "publish", StatusSuccess)
		noOp.RecordDuration(context.Background(), "events", "publish", time.Millisecond, StatusError)
		noOp.RecordBatch(context.Background(), "jobs", 10)
	})
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusError, StatusOf(assert.AnError))
}
