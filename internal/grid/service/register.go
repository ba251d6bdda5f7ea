package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gridreg/internal/grid/metrics"
	"gridreg/internal/grid/models"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/sentinel"
	"gridreg/pkg/requestcontext"
)

// Register admits one member into a cell of projectID, or fails with
// invalid_input, cell_not_found, cell_full or store_unavailable. A failed
// call changes nothing.
func (s *Service) Register(ctx context.Context, projectID string, req models.RegisterRequest) (*models.RegistrationResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "grid.Register", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer span.End()

	result, err := s.register(ctx, projectID, req)
	if err != nil {
		outcome := outcomeOf(err)
		s.observe(outcome, start)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))

		attrs := []any{"project_id", projectID, "cell_ref", req.CellRef, "outcome", outcome, "error", err}
		if outcome == metrics.OutcomeUnavailable {
			s.logger.WarnContext(ctx, "registration failed", attrs...)
		} else {
			s.logger.InfoContext(ctx, "registration rejected", attrs...)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.String("cell_id", result.CellID),
		attribute.Int("member_count", result.MemberCount),
		attribute.Bool("replayed", result.Replayed),
	)
	if result.Replayed {
		s.observe(metrics.OutcomeReplayed, start)
	} else {
		s.observe(metrics.OutcomeAdmitted, start)
		s.invalidate(ctx, projectID)
	}
	s.logger.InfoContext(ctx, "member registered",
		"project_id", projectID,
		"cell_id", result.CellID,
		"grid_id", result.GridID,
		"member_id", result.MemberID,
		"member_count", result.MemberCount,
		"is_full", result.IsFull,
		"replayed", result.Replayed,
		"request_id", requestcontext.RequestID(ctx),
	)
	return result, nil
}

func (s *Service) register(ctx context.Context, projectID string, req models.RegisterRequest) (*models.RegistrationResult, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "projectId is required")
	}
	req.Normalize()
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}
	ref, err := models.ParseCellRef(req.CellRef)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var result *models.RegistrationResult
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		res, err := s.admit(ctx, projectID, ref, req, now)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, translateRegisterError(err, ref)
	}
	return result, nil
}

// translateRegisterError reduces any failure to the four registration kinds.
func translateRegisterError(err error, ref models.CellRef) error {
	switch {
	case dErrors.HasCode(err, dErrors.CodeCellFull), dErrors.HasCode(err, dErrors.CodeInvalidInput):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeCellNotFound, "cell "+ref.String()+" not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "registration could not be completed, retry")
	}
}

func outcomeOf(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeCellFull:
		return metrics.OutcomeFull
	case dErrors.CodeCellNotFound:
		return metrics.OutcomeNotFound
	case dErrors.CodeInvalidInput:
		return metrics.OutcomeInvalidInput
	default:
		return metrics.OutcomeUnavailable
	}
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRegister(outcome, start)
	}
}
