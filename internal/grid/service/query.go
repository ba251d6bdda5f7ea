package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gridreg/internal/grid/models"
	"gridreg/internal/outbox"
	id "gridreg/pkg/domain"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/sentinel"
	"gridreg/pkg/requestcontext"
)

// fillTimeout bounds a shared cache fill, which outlives the caller that started it.
const fillTimeout = 5 * time.Second

// AvailableCells returns the project's non-full cells ordered by grid ID.
// With a cache configured, concurrent misses for one project share a single store read.
func (s *Service) AvailableCells(ctx context.Context, projectID string) ([]models.AvailableCell, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "projectId is required")
	}
	if s.cache == nil {
		return s.loadAvailable(ctx, projectID)
	}

	cached, ok, err := s.cache.GetAvailable(ctx, projectID)
	if err != nil {
		s.logger.WarnContext(ctx, "available cells cache read failed", "project_id", projectID, "error", err)
	}
	if ok {
		if s.metrics != nil {
			s.metrics.CacheHit()
		}
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.CacheMiss()
	}

	gen, err := s.cache.Generation(ctx, projectID)
	if err != nil {
		s.logger.WarnContext(ctx, "available cells cache generation read failed", "project_id", projectID, "error", err)
		return s.loadAvailable(ctx, projectID)
	}

	// Callers that arrive after an invalidation get a new generation and
	// therefore a new flight instead of joining a read that predates it.
	key := "available:" + projectID + ":" + strconv.FormatInt(gen, 10)
	v, err, _ := s.group.Do(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		cells, err := s.loadAvailable(fillCtx, projectID)
		if err != nil {
			return nil, err
		}
		stored, err := s.cache.SetAvailable(fillCtx, projectID, gen, cells)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "available cells cache write failed", "project_id", projectID, "error", err)
		case !stored:
			s.logger.DebugContext(ctx, "available cells cache fill skipped, invalidated during read", "project_id", projectID)
		}
		return cells, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.AvailableCell), nil
}

func (s *Service) loadAvailable(ctx context.Context, projectID string) ([]models.AvailableCell, error) {
	cells, err := s.cells.ListAvailable(ctx, projectID)
	if err != nil {
		return nil, readError(err, "list available cells")
	}
	out := make([]models.AvailableCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, models.ToAvailable(c))
	}
	return out, nil
}

// CellDetail returns a cell with its members in registration order.
func (s *Service) CellDetail(ctx context.Context, cellID id.CellID) (*models.CellDetail, error) {
	cell, err := s.cells.FindByID(ctx, cellID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeCellNotFound, "cell not found")
		}
		return nil, readError(err, "find cell")
	}
	members, err := s.members.ListByCell(ctx, cellID)
	if err != nil {
		return nil, readError(err, "list members")
	}
	if members == nil {
		members = []models.Member{}
	}
	return &models.CellDetail{Cell: *cell, Members: members}, nil
}

// Members returns the members of a cell in registration order.
func (s *Service) Members(ctx context.Context, cellID id.CellID) ([]models.Member, error) {
	detail, err := s.CellDetail(ctx, cellID)
	if err != nil {
		return nil, err
	}
	return detail.Members, nil
}

// ProjectCells returns every cell with its live member count; Drift marks
// cells whose cached count disagrees with their rows.
func (s *Service) ProjectCells(ctx context.Context, projectID string) ([]models.CellAggregate, error) {
	aggs, err := s.cells.ListWithAggregate(ctx, projectID)
	if err != nil {
		return nil, readError(err, "list project cells")
	}
	for _, a := range aggs {
		if a.Drift {
			s.logger.WarnContext(ctx, "cell count drift",
				"project_id", projectID,
				"cell_id", a.ID.String(),
				"member_count", a.MemberCount,
				"live_count", a.LiveCount,
			)
		}
	}
	if aggs == nil {
		aggs = []models.CellAggregate{}
	}
	return aggs, nil
}

// LastGridNumber parses the numeric suffix of the most recent grid ID
// ("G-088" gives 88). Returns 0 when there are no cells or the label has no number.
func (s *Service) LastGridNumber(ctx context.Context, projectID string) (int, error) {
	gridID, err := s.cells.LastGridID(ctx, projectID)
	if err != nil {
		return 0, readError(err, "last grid id")
	}
	return ParseGridNumber(gridID), nil
}

// ParseGridNumber returns n for labels of the form "<prefix>-<n>", else 0.
func ParseGridNumber(gridID string) int {
	parts := strings.Split(gridID, "-")
	if len(parts) != 2 {
		return 0
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// LoadCells seeds a project's cells. Re-loading existing grid IDs is a no-op;
// the result counts only newly inserted cells.
func (s *Service) LoadCells(ctx context.Context, projectID string, seeds []models.CellSeed) (int, error) {
	ctx, span := s.tracer.Start(ctx, "grid.LoadCells", trace.WithAttributes(
		attribute.String("project_id", projectID),
		attribute.Int("requested", len(seeds)),
	))
	defer span.End()

	if strings.TrimSpace(projectID) == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "projectId is required")
	}
	if len(seeds) == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "at least one cell is required")
	}

	now := requestcontext.Now(ctx)
	var inserted int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.cells.CreateCells(ctx, projectID, seeds, now)
		if err != nil {
			return err
		}
		inserted = n
		if n == 0 {
			return nil
		}
		return s.appendEvent(ctx, outbox.AggregateProject, projectID, outbox.EventCellsLoaded, outbox.CellsLoaded{
			ProjectID: projectID,
			Requested: len(seeds),
			Inserted:  n,
			At:        now,
		}, now)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, dErrors.New(dErrors.CodeNotFound, "project "+projectID+" not found")
		}
		return 0, readError(err, "load cells")
	}

	if s.metrics != nil {
		s.metrics.AddCellsLoaded(inserted)
	}
	if inserted > 0 {
		s.invalidate(ctx, projectID)
	}
	s.logger.InfoContext(ctx, "cells loaded",
		"project_id", projectID,
		"requested", len(seeds),
		"inserted", inserted,
	)
	return inserted, nil
}

// InvalidateProject drops cached projections for a project, e.g. after it is deleted.
func (s *Service) InvalidateProject(ctx context.Context, projectID string) {
	s.invalidate(ctx, projectID)
}

func readError(err error, op string) error {
	if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
		return err
	}
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, op+": store unavailable")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("%s failed", op))
}
