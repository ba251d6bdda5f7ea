package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gridreg/internal/grid/models"
	id "gridreg/pkg/domain"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/httputil"
	"gridreg/pkg/requestcontext"
)

// IdempotencyKeyHeader may carry the registration idempotency key instead of the body.
const IdempotencyKeyHeader = "Idempotency-Key"

// Service defines the grid operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, projectID string, req models.RegisterRequest) (*models.RegistrationResult, error)
	AvailableCells(ctx context.Context, projectID string) ([]models.AvailableCell, error)
	CellDetail(ctx context.Context, cellID id.CellID) (*models.CellDetail, error)
	Members(ctx context.Context, cellID id.CellID) ([]models.Member, error)
	ProjectCells(ctx context.Context, projectID string) ([]models.CellAggregate, error)
	LastGridNumber(ctx context.Context, projectID string) (int, error)
	LoadCells(ctx context.Context, projectID string, seeds []models.CellSeed) (int, error)
}

// Handler wires grid endpoints to the grid service.
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

// Register mounts grid endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/projects/{projectID}/registrations", h.HandleRegister)
	r.Get("/projects/{projectID}/cells", h.HandleProjectCells)
	r.Post("/projects/{projectID}/cells", h.HandleLoadCells)
	r.Get("/projects/{projectID}/cells/available", h.HandleAvailableCells)
	r.Get("/projects/{projectID}/cells/last-id", h.HandleLastGridID)
	r.Get("/cells/{cellID}", h.HandleCellDetail)
	r.Get("/cells/{cellID}/members", h.HandleMembers)
}

type loadCellsResponse struct {
	InsertedCount int `json:"insertedCount"`
}

type lastGridIDResponse struct {
	LastID int `json:"lastId"`
}

// HandleRegister handles POST /projects/{projectID}/registrations.
// A replayed registration answers 200 instead of 201.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := chi.URLParam(r, "projectID")

	var req models.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid registration body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	result, err := h.service.Register(ctx, projectID, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, result)
}

// HandleAvailableCells handles GET /projects/{projectID}/cells/available.
func (h *Handler) HandleAvailableCells(w http.ResponseWriter, r *http.Request) {
	cells, err := h.service.AvailableCells(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeReadError(r.Context(), w, "available cells", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cells)
}

// HandleProjectCells handles GET /projects/{projectID}/cells.
func (h *Handler) HandleProjectCells(w http.ResponseWriter, r *http.Request) {
	cells, err := h.service.ProjectCells(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeReadError(r.Context(), w, "project cells", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cells)
}

// HandleLastGridID handles GET /projects/{projectID}/cells/last-id.
func (h *Handler) HandleLastGridID(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.LastGridNumber(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeReadError(r.Context(), w, "last grid id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lastGridIDResponse{LastID: n})
}

// HandleLoadCells handles POST /projects/{projectID}/cells.
func (h *Handler) HandleLoadCells(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LoadCellsRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	seeds, err := req.Seeds()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	inserted, err := h.service.LoadCells(ctx, chi.URLParam(r, "projectID"), seeds)
	if err != nil {
		h.writeReadError(ctx, w, "load cells", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, loadCellsResponse{InsertedCount: inserted})
}

// HandleCellDetail handles GET /cells/{cellID}.
func (h *Handler) HandleCellDetail(w http.ResponseWriter, r *http.Request) {
	cellID, err := id.ParseCellID(chi.URLParam(r, "cellID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	detail, err := h.service.CellDetail(r.Context(), cellID)
	if err != nil {
		h.writeReadError(r.Context(), w, "cell detail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, detail)
}

// HandleMembers handles GET /cells/{cellID}/members.
func (h *Handler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	cellID, err := id.ParseCellID(chi.URLParam(r, "cellID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	members, err := h.service.Members(r.Context(), cellID)
	if err != nil {
		h.writeReadError(r.Context(), w, "cell members", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, members)
}

func (h *Handler) writeReadError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeStoreUnavailable:
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
