package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	gridmodels "gridreg/internal/grid/models"
	"gridreg/internal/project/models"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/httputil"
	"gridreg/pkg/requestcontext"
)

type Service interface {
	GenerateID(ctx context.Context, stateCode string) (*models.GeneratedID, error)
	CurrentCounter(ctx context.Context) (int64, error)
	RegisterProject(ctx context.Context, req models.RegisterRequest) (*models.RegistrationResult, error)
	GetProject(ctx context.Context, projectID string) (*models.Project, error)
	PublishGrid(ctx context.Context, projectID string, req gridmodels.LoadCellsRequest) (*models.PublishResult, error)
	DeleteProject(ctx context.Context, projectID string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts project endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/projects/ids", h.HandleGenerateID)
	r.Get("/projects/ids/counter", h.HandleCounter)
	r.Post("/projects", h.HandleRegisterProject)
	r.Get("/projects/{projectID}", h.HandleGetProject)
	r.Delete("/projects/{projectID}", h.HandleDeleteProject)
	r.Post("/projects/{projectID}/grid", h.HandlePublishGrid)
}

type counterResponse struct {
	Counter int64 `json:"counter"`
}

// HandleGenerateID handles POST /projects/ids.
func (h *Handler) HandleGenerateID(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateIDRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	gen, err := h.service.GenerateID(r.Context(), req.StateCode)
	if err != nil {
		h.writeError(r.Context(), w, "generate project id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, gen)
}

// HandleCounter handles GET /projects/ids/counter.
func (h *Handler) HandleCounter(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.CurrentCounter(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "read project counter", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counterResponse{Counter: n})
}

// HandleRegisterProject handles POST /projects.
func (h *Handler) HandleRegisterProject(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.RegisterProject(r.Context(), req)
	if err != nil {
		h.writeError(r.Context(), w, "register project", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleGetProject handles GET /projects/{projectID}.
func (h *Handler) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeError(r.Context(), w, "get project", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandlePublishGrid handles POST /projects/{projectID}/grid.
func (h *Handler) HandlePublishGrid(w http.ResponseWriter, r *http.Request) {
	var req gridmodels.LoadCellsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.PublishGrid(r.Context(), chi.URLParam(r, "projectID"), req)
	if err != nil {
		h.writeError(r.Context(), w, "publish grid", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleDeleteProject handles DELETE /projects/{projectID}.
func (h *Handler) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProject(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		h.writeError(r.Context(), w, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeStoreUnavailable, dErrors.CodeUpstreamUnavailable:
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
