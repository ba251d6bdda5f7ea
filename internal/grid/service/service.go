// Package service implements cell registration under the capacity guard and
// the read-only cell queries.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"gridreg/internal/grid/metrics"
	"gridreg/internal/grid/models"
	"gridreg/internal/outbox"
	id "gridreg/pkg/domain"
)

// CellStore is the persistence contract for grid cells.
type CellStore interface {
	CreateCells(ctx context.Context, projectID string, seeds []models.CellSeed, now time.Time) (int, error)
	LockCell(ctx context.Context, projectID string, ref models.CellRef) (*models.Cell, error)
	UpdateOccupancy(ctx context.Context, cell *models.Cell) error
	FindByID(ctx context.Context, cellID id.CellID) (*models.Cell, error)
	ListAvailable(ctx context.Context, projectID string) ([]models.Cell, error)
	ListWithAggregate(ctx context.Context, projectID string) ([]models.CellAggregate, error)
	LastGridID(ctx context.Context, projectID string) (string, error)
}

// MemberStore is the persistence contract for cell members.
type MemberStore interface {
	Insert(ctx context.Context, m *models.Member) error
	ListByCell(ctx context.Context, cellID id.CellID) ([]models.Member, error)
	FindByIdempotencyKey(ctx context.Context, cellID id.CellID, key string) (*models.Member, error)
}

// TxRunner runs fn in one transaction carried by the context passed to fn.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventWriter appends outbox events within the caller's transaction.
type EventWriter interface {
	Append(ctx context.Context, evt outbox.Event) error
}

// AvailabilityCache holds the available-cells projection per project.
// Invalidate advances the project's generation; SetAvailable must not store a
// projection read under an older generation.
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, projectID string) ([]models.AvailableCell, bool, error)
	Generation(ctx context.Context, projectID string) (int64, error)
	SetAvailable(ctx context.Context, projectID string, gen int64, cells []models.AvailableCell) (bool, error)
	Invalidate(ctx context.Context, projectID string) error
}

type Service struct {
	cells   CellStore
	members MemberStore
	tx      TxRunner
	events  EventWriter
	cache   AvailabilityCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	group   singleflight.Group
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEvents enables outbox events for registrations and cell loads.
func WithEvents(w EventWriter) Option {
	return func(s *Service) { s.events = w }
}

// WithCache serves AvailableCells through cache.
func WithCache(cache AvailabilityCache) Option {
	return func(s *Service) { s.cache = cache }
}

func New(cells CellStore, members MemberStore, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		cells:   cells,
		members: members,
		tx:      tx,
		logger:  slog.Default(),
		tracer:  otel.Tracer("gridreg/internal/grid/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) appendEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any, now time.Time) error {
	if s.events == nil {
		return nil
	}
	evt, err := outbox.NewEvent(aggregateType, aggregateID, eventType, payload, now)
	if err != nil {
		return err
	}
	return s.events.Append(ctx, evt)
}

// invalidate drops the cached projection. Failures only cost freshness up to the TTL.
func (s *Service) invalidate(ctx context.Context, projectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, projectID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate available cells cache",
			"project_id", projectID,
			"error", err,
		)
	}
}
