// Package monitor probes registered services on a schedule and feeds the
// outcomes into the catalog recorder.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
)

// Prober performs health checks against a single service.
type Prober interface {
	Probe(ctx context.Context, service domain.Service) domain.ProbeOutcome
}

// ErrUnexpectedStatus is returned when the endpoint answers with a status code
// other than the configured one.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// maxDrainBytes bounds how much of a response body is read before closing so
// the connection can be reused.
const maxDrainBytes = 64 << 10

// HTTPProber checks services with HTTP GET requests.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProber creates a prober. A nil client uses a client without a global
// timeout; every attempt is bounded by the service timeout instead. Redirects
// are followed and the final response status is compared.
func NewHTTPProber(client *http.Client, userAgent string) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{client: client, userAgent: userAgent}
}

// Probe makes up to 1+RetryAttempts sequential attempts, each with its own
// deadline of MonitoringConfig.Timeout, and returns on the first success.
func (p *HTTPProber) Probe(ctx context.Context, service domain.Service) domain.ProbeOutcome {
	cfg := service.MonitoringConfig
	attempts := 1 + max(cfg.RetryAttempts, 0)

	var outcome domain.ProbeOutcome
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome = p.attempt(ctx, service)
		outcome.Attempts = attempt

		if outcome.Success {
			return outcome
		}

		ctxlog.FromContext(ctx).Debug("probe attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", outcome.Err,
		)

		if ctx.Err() != nil {
			break
		}
	}

	return outcome
}

func (p *HTTPProber) attempt(ctx context.Context, service domain.Service) domain.ProbeOutcome {
	cfg := service.MonitoringConfig

	attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, service.Endpoint, nil)
	if err != nil {
		return domain.ProbeOutcome{Err: fmt.Errorf("build request: %w", err)}
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.ProbeOutcome{Err: fmt.Errorf("timeout after %s: %w", cfg.Timeout, context.DeadlineExceeded)}
		}
		return domain.ProbeOutcome{Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != cfg.ExpectedStatus {
		return domain.ProbeOutcome{
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("%w: got %d, expected %d", ErrUnexpectedStatus, resp.StatusCode, cfg.ExpectedStatus),
		}
	}

	return domain.ProbeOutcome{
		Success:    true,
		LatencyMs:  elapsed.Milliseconds(),
		HTTPStatus: resp.StatusCode,
	}
}
