package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// Storage outages always map to 503 and requests cut off by their deadline to
// 504. If no mapping matches, logs the error and returns 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		ctxlog.FromContext(ctx).Warn("storage unavailable", "error", err)
		Error(w, http.StatusServiceUnavailable, "database connection not available")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ctxlog.FromContext(ctx).Warn("request deadline exceeded", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
		return
	}

	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
