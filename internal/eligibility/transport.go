package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Transport delivers a raw 270 transmission to a clearinghouse and returns
// the raw 271 response. Implementations must honor context cancellation for
// callers that enforce their own deadlines.
type Transport interface {
	Send(ctx context.Context, raw []byte) ([]byte, error)
}

// ClearinghouseTransport is the production Transport: an HTTP client posting
// X12 payloads to a clearinghouse endpoint.
type ClearinghouseTransport struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewClearinghouseTransport builds an HTTP transport for the given
// clearinghouse base URL. The client timeout is a backstop; the adapter
// enforces the per-verification deadline through the request context.
func NewClearinghouseTransport(baseURL, apiKey string, logger zerolog.Logger) *ClearinghouseTransport {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(45 * time.Second).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/edi-x12").
		SetHeader("Accept", "application/edi-x12")
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}

	return &ClearinghouseTransport{client: client, logger: logger}
}

func (t *ClearinghouseTransport) Send(ctx context.Context, raw []byte) ([]byte, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(raw).
		Post("/eligibility/270")
	if err != nil {
		return nil, fmt.Errorf("eligibility: clearinghouse request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		t.logger.Warn().
			Int("status", resp.StatusCode()).
			Msg("clearinghouse returned non-2xx")
		return nil, fmt.Errorf("eligibility: clearinghouse returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
