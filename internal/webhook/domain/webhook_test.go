package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func TestEndpoint_Subscribes(t *testing.T) {
	e := &Endpoint{Events: []string{"payment.completed", "lease.signed"}}

	assert.True(t, e.Subscribes("payment.completed"))
	assert.False(t, e.Subscribes("payment.failed"))
}

func TestShouldAutoDisable(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		threshold int
		want      bool
	}{
		{name: "Disabled", failures: 1000, threshold: 0, want: false},
		{name: "BelowThreshold", failures: 2, threshold: 3, want: false},
		{name: "AtThreshold", failures: 3, threshold: 3, want: true},
		{name: "AboveThreshold", failures: 7, threshold: 3, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldAutoDisable(tt.failures, tt.threshold))
		})
	}
}

func TestDelivery_Apply(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		d := &Delivery{Status: DeliveryStatusPending}

		d.Apply(AttemptResult{StatusCode: 204, Body: "", Latency: 120 * time.Millisecond}, testNow)

		assert.Equal(t, DeliveryStatusDelivered, d.Status)
		assert.Equal(t, 0, d.Attempts)
		assert.Equal(t, 204, *d.HTTPStatus)
		assert.Equal(t, int64(120), *d.ResponseTimeMs)
		assert.Equal(t, testNow, *d.DeliveredAt)
		assert.Nil(t, d.NextRetryAt)
	})

	t.Run("FiveFailuresEndInFailed", func(t *testing.T) {
		d := &Delivery{Status: DeliveryStatusPending}
		now := testNow
		wantDelays := []time.Duration{2 * time.Minute, 4 * time.Minute, 8 * time.Minute, 16 * time.Minute}

		for i, delay := range wantDelays {
			d.Apply(AttemptResult{StatusCode: 500, Body: "oops"}, now)
			assert.Equal(t, i+1, d.Attempts)
			assert.Equal(t, DeliveryStatusRetrying, d.Status)
			require.NotNil(t, d.NextRetryAt)
			assert.Equal(t, now.Add(delay), *d.NextRetryAt)
			now = *d.NextRetryAt
		}

		d.Apply(AttemptResult{StatusCode: 500}, now)

		assert.Equal(t, DeliveryStatusFailed, d.Status)
		assert.Equal(t, MaxDeliveryAttempts, d.Attempts)
		assert.Nil(t, d.NextRetryAt)
		assert.Equal(t, "HTTP 500 internal server error", *d.LastError)
	})

	t.Run("NetworkError", func(t *testing.T) {
		d := &Delivery{Status: DeliveryStatusPending}

		d.Apply(AttemptResult{Err: errors.New("dial tcp: connection refused")}, testNow)

		assert.Equal(t, DeliveryStatusRetrying, d.Status)
		assert.Nil(t, d.HTTPStatus)
		assert.Equal(t, "dial tcp: connection refused", *d.LastError)
	})

	t.Run("RedirectIsFailure", func(t *testing.T) {
		d := &Delivery{Status: DeliveryStatusPending}

		d.Apply(AttemptResult{StatusCode: 302}, testNow)

		assert.Equal(t, DeliveryStatusRetrying, d.Status)
	})
}

func TestDelivery_Abandon(t *testing.T) {
	next := testNow.Add(time.Minute)
	d := &Delivery{Status: DeliveryStatusRetrying, Attempts: 2, NextRetryAt: &next}

	d.Abandon("endpoint inactive", testNow)

	assert.Equal(t, DeliveryStatusFailed, d.Status)
	assert.Equal(t, 2, d.Attempts)
	assert.Nil(t, d.NextRetryAt)
}

func TestTruncateBody(t *testing.T) {
	assert.Equal(t, "short", TruncateBody("short"))

	long := strings.Repeat("é", ResponseBodyLimit+10)
	assert.Equal(t, ResponseBodyLimit, len([]rune(TruncateBody(long))))
}
