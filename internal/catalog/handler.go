package catalog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = domain.StatusHistoryCap
)

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers read-only routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/services", h.ListServices)
	r.Get("/services/{id}", h.GetService)
	r.Get("/services/{id}/history", h.GetServiceHistory)
	r.Get("/metrics", h.GetMetrics)
}

// RegisterAdminRoutes registers routes used by administrative tooling.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/services", h.RegisterService)
	r.Post("/services/{id}/status", h.SetStatus)
}

// MonitoringConfigRequest represents monitoring settings in milliseconds.
type MonitoringConfigRequest struct {
	TimeoutMs      int64 `json:"timeoutMs" validate:"gte=0,lte=3600000"`
	IntervalMs     int64 `json:"intervalMs" validate:"gte=0,lte=86400000"`
	ExpectedStatus int   `json:"expectedStatus" validate:"omitempty,min=100,max=599"`
	RetryAttempts  int   `json:"retryAttempts" validate:"gte=0,lte=10"`
}

// ToDomain converts the request to a domain model.
func (r MonitoringConfigRequest) ToDomain() domain.MonitoringConfig {
	return domain.MonitoringConfig{
		Timeout:        time.Duration(r.TimeoutMs) * time.Millisecond,
		Interval:       time.Duration(r.IntervalMs) * time.Millisecond,
		ExpectedStatus: r.ExpectedStatus,
		RetryAttempts:  r.RetryAttempts,
	}
}

// RegisterServiceRequest represents the request body for registering a service.
type RegisterServiceRequest struct {
	Name             string                  `json:"name" validate:"required,min=1,max=255"`
	Endpoint         string                  `json:"endpoint" validate:"required,url"`
	Description      string                  `json:"description" validate:"max=1000"`
	MonitoringConfig MonitoringConfigRequest `json:"monitoringConfig"`
}

// MetricsRequest holds optional metric overrides for a manual status change.
type MetricsRequest struct {
	Latency      *int64   `json:"latency" validate:"omitempty,gte=-1"`
	Availability *float64 `json:"availability" validate:"omitempty,gte=0,lte=100"`
	ErrorRate    *float64 `json:"errorRate" validate:"omitempty,gte=0,lte=100"`
}

// SetStatusRequest represents the request body for a manual status change.
type SetStatusRequest struct {
	Status  string          `json:"status" validate:"required,oneof=operational degraded outage maintenance"`
	Message string          `json:"message" validate:"max=1000"`
	Metrics *MetricsRequest `json:"metrics"`
}

// ToDomain converts the request to service input.
func (r *SetStatusRequest) ToDomain() SetStatusInput {
	input := SetStatusInput{
		Status:  domain.ServiceStatus(r.Status),
		Message: r.Message,
	}
	if r.Metrics != nil {
		input.Metrics = &MetricsOverride{
			Latency:      r.Metrics.Latency,
			Availability: r.Metrics.Availability,
			ErrorRate:    r.Metrics.ErrorRate,
		}
	}
	return input
}

// ListServices handles GET /services request.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	snapshots := make([]domain.ServiceSnapshot, 0, len(services))
	for i := range services {
		snapshots = append(snapshots, services[i].Snapshot())
	}

	httputil.JSON(w, http.StatusOK, snapshots)
}

// ServiceDetail is the single-service view including monitoring settings.
type ServiceDetail struct {
	domain.ServiceSnapshot
	MonitoringConfig domain.MonitoringConfig `json:"monitoringConfig"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// GetService handles GET /services/{id} request.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	service, err := h.service.GetService(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, toDetail(service))
}

// GetServiceHistory handles GET /services/{id}/history request.
func (h *Handler) GetServiceHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, MaxHistoryLimit)
	}

	history, err := h.service.GetStatusHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, history)
}

// GetMetrics handles GET /metrics request.
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	metrics := make(map[string]domain.Metrics, len(services))
	for _, s := range services {
		metrics[s.ID] = s.Metrics
	}

	httputil.JSON(w, http.StatusOK, metrics)
}

// RegisterService handles POST /services request.
func (h *Handler) RegisterService(w http.ResponseWriter, r *http.Request) {
	var req RegisterServiceRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	service, err := h.service.RegisterService(r.Context(), RegisterServiceInput{
		Name:             req.Name,
		Endpoint:         req.Endpoint,
		Description:      req.Description,
		MonitoringConfig: req.MonitoringConfig.ToDomain(),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, toDetail(service))
}

// SetStatus handles POST /services/{id}/status request.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	service, err := h.service.SetStatus(r.Context(), chi.URLParam(r, "id"), req.ToDomain())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, service.Snapshot())
}

func toDetail(service *domain.Service) ServiceDetail {
	return ServiceDetail{
		ServiceSnapshot:  service.Snapshot(),
		MonitoringConfig: service.MonitoringConfig,
		CreatedAt:        service.CreatedAt,
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		{Error: ErrDuplicateName, Status: http.StatusConflict},
		{Error: ErrInvalidEndpoint, Status: http.StatusBadRequest},
		{Error: ErrInvalidConfig, Status: http.StatusBadRequest},
		{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	})
}
