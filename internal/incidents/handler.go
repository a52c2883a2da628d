package incidents

import (
	"net/http"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterPublicRoutes registers read-only routes.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/incidents", h.ListIncidents)
	r.Get("/incidents/{id}", h.GetIncident)
}

// RegisterAdminRoutes registers routes used by administrative tooling.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/incidents", h.CreateIncident)
	r.Post("/incidents/{id}/updates", h.AddUpdate)
}

// UpdateRequest represents one narrative entry in a create request.
type UpdateRequest struct {
	Status    string     `json:"status" validate:"max=50"`
	Message   string     `json:"message" validate:"required,max=5000"`
	Timestamp *time.Time `json:"timestamp"`
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title     string          `json:"title" validate:"required,min=1,max=500"`
	Status    string          `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved"`
	Severity  string          `json:"severity" validate:"required,oneof=minor major critical"`
	ServiceID string          `json:"serviceId" validate:"omitempty,uuid"`
	Updates   []UpdateRequest `json:"updates" validate:"omitempty,dive"`
}

// ToDomain converts the request to service input.
func (r *CreateIncidentRequest) ToDomain() CreateIncidentInput {
	input := CreateIncidentInput{
		Title:     r.Title,
		Status:    domain.IncidentStatus(r.Status),
		Severity:  domain.Severity(r.Severity),
		ServiceID: r.ServiceID,
		Updates:   make([]UpdateInput, 0, len(r.Updates)),
	}
	for _, u := range r.Updates {
		input.Updates = append(input.Updates, UpdateInput{
			Status:    u.Status,
			Message:   u.Message,
			Timestamp: u.Timestamp,
		})
	}
	return input
}

// AddUpdateRequest represents the request body for appending an incident update.
type AddUpdateRequest struct {
	Status  string `json:"status" validate:"required,oneof=investigating identified monitoring resolved"`
	Message string `json:"message" validate:"required,max=5000"`
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListRecent(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, list)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := h.service.GetIncident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, incident)
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), req.ToDomain())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, incident)
}

// AddUpdate handles POST /incidents/{id}/updates request.
func (h *Handler) AddUpdate(w http.ResponseWriter, r *http.Request) {
	var req AddUpdateRequest
	if !httputil.Bind(w, r, h.validator, &req) {
		return
	}

	incident, err := h.service.AddUpdate(r.Context(), chi.URLParam(r, "id"), AddUpdateInput{
		Status:  domain.IncidentStatus(req.Status),
		Message: req.Message,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, incident)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrServiceNotFound, Status: http.StatusBadRequest},
		{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
		{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
		{Error: ErrInvalidTitle, Status: http.StatusBadRequest},
	})
}
