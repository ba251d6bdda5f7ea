package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridreg/internal/grid/models"
	"gridreg/internal/outbox"
	"gridreg/pkg/platform/sentinel"
)

// admit is the single capacity enforcement point. It must run inside a
// transaction: the cell row stays locked from the first statement until
// commit or rollback, so the count it checks cannot change underneath it.
// Any error returned leaves the transaction to be rolled back.
func (s *Service) admit(ctx context.Context, projectID string, ref models.CellRef, req models.RegisterRequest, now time.Time) (*models.RegistrationResult, error) {
	cell, err := s.cells.LockCell(ctx, projectID, ref)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := s.members.FindByIdempotencyKey(ctx, cell.ID, req.IdempotencyKey)
		switch {
		case err == nil:
			// Occupancy is current, not the value at admission.
			return &models.RegistrationResult{
				MemberID:    prior.ID.String(),
				CellID:      cell.ID.String(),
				GridID:      cell.GridID,
				MemberCount: cell.MemberCount,
				IsFull:      cell.IsFull,
				Replayed:    true,
			}, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	if err := cell.Admit(); err != nil {
		return nil, err
	}

	member := models.NewMember(cell.ID, req, now)
	if err := s.members.Insert(ctx, &member); err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	if err := s.cells.UpdateOccupancy(ctx, cell); err != nil {
		return nil, fmt.Errorf("update occupancy: %w", err)
	}

	result := &models.RegistrationResult{
		MemberID:    member.ID.String(),
		CellID:      cell.ID.String(),
		GridID:      cell.GridID,
		MemberCount: cell.MemberCount,
		IsFull:      cell.IsFull,
	}
	if err := s.appendEvent(ctx, outbox.AggregateCell, cell.ID.String(), outbox.EventMemberRegistered, outbox.MemberRegistered{
		ProjectID:   projectID,
		CellID:      result.CellID,
		GridID:      cell.GridID,
		MemberID:    result.MemberID,
		MemberCount: cell.MemberCount,
		IsFull:      cell.IsFull,
		At:          now,
	}, now); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return result, nil
}
