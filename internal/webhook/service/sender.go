package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/allisson/propflow/internal/webhook/domain"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"

	DefaultUserAgent = "PropFlow-Webhooks/1.0"
)

// Request is one signed POST to a receiver.
type Request struct {
	URL        string
	Secret     string
	EventType  string
	DeliveryID string
	Body       []byte
}

// Sender performs one delivery attempt. Transport failures are reported in the
// result, not as an error, so every outcome flows through the same state machine.
type Sender interface {
	Send(ctx context.Context, req Request) domain.AttemptResult
}

// HTTPSender posts signed JSON with a bounded per-attempt timeout.
type HTTPSender struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSender creates an HTTPSender. A zero timeout uses domain.DeliveryTimeout.
func NewHTTPSender(timeout time.Duration, userAgent string) *HTTPSender {
	if timeout <= 0 {
		timeout = domain.DeliveryTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPSender{
		client: &http.Client{
			Timeout: timeout,
			// Receivers must answer directly; a redirect is a failed attempt.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: userAgent,
	}
}

// Send signs req.Body and POSTs it.
func (s *HTTPSender) Send(ctx context.Context, req Request) domain.AttemptResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return domain.AttemptResult{Err: fmt.Errorf("invalid webhook request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", s.userAgent)
	httpReq.Header.Set(HeaderSignature, Sign(req.Secret, req.Body))
	httpReq.Header.Set(HeaderEvent, req.EventType)
	if req.DeliveryID != "" {
		httpReq.Header.Set(HeaderDelivery, req.DeliveryID)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return domain.AttemptResult{Latency: time.Since(start), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	// Read a little past the stored limit; multi-byte runes are cut later.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, domain.ResponseBodyLimit*4))
	return domain.AttemptResult{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Latency:    time.Since(start),
	}
}
