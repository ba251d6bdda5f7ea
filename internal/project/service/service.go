// Package service registers projects, hands out project IDs and publishes
// project grids into the grid module.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	gridmodels "gridreg/internal/grid/models"
	"gridreg/internal/outbox"
	"gridreg/internal/project/models"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/sentinel"
	"gridreg/pkg/platform/validation"
	"gridreg/pkg/requestcontext"
)

const defaultIDPrefix = "NCCR"

type Store interface {
	Create(ctx context.Context, p *models.Project) error
	FindByID(ctx context.Context, projectID string) (*models.Project, error)
	SetGridsRef(ctx context.Context, projectID, ref string, now time.Time) error
	Delete(ctx context.Context, projectID string) error
}

type Sequence interface {
	Next(ctx context.Context) (int64, error)
	Current(ctx context.Context) (int64, error)
}

// ContentStore stores documents and returns their content reference.
type ContentStore interface {
	PutJSON(ctx context.Context, name string, v any) (string, error)
}

// Ledger anchors a registration document on chain.
type Ledger interface {
	RegisterProject(ctx context.Context, projectID, ref string) (string, error)
}

// Grid is the part of the grid service a published grid feeds.
type Grid interface {
	LoadCells(ctx context.Context, projectID string, seeds []gridmodels.CellSeed) (int, error)
	InvalidateProject(ctx context.Context, projectID string)
}

// GridProjects mirrors project lifecycle into a grid store that does not
// share the projects table, such as the in-memory store.
type GridProjects interface {
	AddProject(ctx context.Context, projectID string) error
	DeleteProject(ctx context.Context, projectID string) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventWriter interface {
	Append(ctx context.Context, evt outbox.Event) error
}

type Service struct {
	projects     Store
	seq          Sequence
	content      ContentStore
	grid         Grid
	tx           TxRunner
	ledger       Ledger
	events       EventWriter
	gridProjects GridProjects
	idPrefix     string
	logger       *slog.Logger
	tracer       trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithLedger anchors registrations on chain. Without it registrations are stored only.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

func WithEvents(w EventWriter) Option {
	return func(s *Service) { s.events = w }
}

func WithGridProjects(g GridProjects) Option {
	return func(s *Service) { s.gridProjects = g }
}

func WithIDPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.idPrefix = prefix
		}
	}
}

func New(projects Store, seq Sequence, content ContentStore, grid Grid, tx TxRunner, opts ...Option) *Service {
	s := &Service{
		projects: projects,
		seq:      seq,
		content:  content,
		grid:     grid,
		tx:       tx,
		idPrefix: defaultIDPrefix,
		logger:   slog.Default(),
		tracer:   otel.Tracer("gridreg/internal/project/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateID consumes the next counter value and formats it as
// {prefix}-{STATE}-{YEAR}-{NNN}.
func (s *Service) GenerateID(ctx context.Context, stateCode string) (*models.GeneratedID, error) {
	req := models.GenerateIDRequest{StateCode: strings.TrimSpace(stateCode)}
	if err := validation.Struct(ctx, &req); err != nil {
		return nil, err
	}
	n, err := s.seq.Next(ctx)
	if err != nil {
		return nil, storeError(err, "advance project counter")
	}
	projectID := FormatProjectID(s.idPrefix, req.StateCode, requestcontext.Now(ctx).Year(), n)
	s.logger.InfoContext(ctx, "project id generated", "project_id", projectID, "counter", n)
	return &models.GeneratedID{ProjectID: projectID, Counter: n}, nil
}

// FormatProjectID renders a project ID; the counter is zero-padded to three digits.
func FormatProjectID(prefix, stateCode string, year int, n int64) string {
	return fmt.Sprintf("%s-%s-%d-%03d", prefix, strings.ToUpper(stateCode), year, n)
}

func (s *Service) CurrentCounter(ctx context.Context) (int64, error) {
	n, err := s.seq.Current(ctx)
	if err != nil {
		return 0, storeError(err, "read project counter")
	}
	return n, nil
}

// RegisterProject stores the registration document, anchors it on the ledger
// when one is configured, and persists the project.
func (s *Service) RegisterProject(ctx context.Context, req models.RegisterRequest) (*models.RegistrationResult, error) {
	req.Normalize()
	ctx, span := s.tracer.Start(ctx, "project.Register", trace.WithAttributes(
		attribute.String("project_id", req.ProjectID),
	))
	defer span.End()

	if err := req.Validate(ctx); err != nil {
		return nil, err
	}
	if _, err := s.projects.FindByID(ctx, req.ProjectID); err == nil {
		return nil, dErrors.New(dErrors.CodeConflict, "project "+req.ProjectID+" already registered")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, storeError(err, "find project")
	}

	now := requestcontext.Now(ctx)
	cid, err := s.content.PutJSON(ctx, req.ProjectID+"-registration.json", models.NewRegistrationDocument(req, now))
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "registration document upload failed", "project_id", req.ProjectID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "content store unavailable")
	}

	var txHash string
	if s.ledger != nil {
		txHash, err = s.ledger.RegisterProject(ctx, req.ProjectID, cid)
		if err != nil {
			span.RecordError(err)
			s.logger.WarnContext(ctx, "ledger registration failed", "project_id", req.ProjectID, "cid", cid, "error", err)
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, dErrors.Wrap(err, dErrors.CodeConflict, "project "+req.ProjectID+" already anchored")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "ledger unavailable")
		}
	}

	project := &models.Project{
		ID:              req.ProjectID,
		Name:            req.ProjectName,
		Location:        req.Location(),
		OfficerName:     req.OfficerName,
		AreaHectares:    req.AreaInHectares,
		RegistrationRef: cid,
		LedgerTx:        txHash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.projects.Create(ctx, project); err != nil {
			return err
		}
		return s.appendEvent(ctx, project.ID, outbox.EventProjectCreated, now, outbox.ProjectChanged{
			ProjectID:       project.ID,
			RegistrationRef: cid,
			LedgerTx:        txHash,
			At:              now,
		})
	})
	if err != nil {
		return nil, storeError(err, "create project")
	}

	if s.gridProjects != nil {
		if err := s.gridProjects.AddProject(ctx, project.ID); err != nil {
			return nil, storeError(err, "register project with grid store")
		}
	}

	s.logger.InfoContext(ctx, "project registered",
		"project_id", project.ID,
		"cid", cid,
		"tx_hash", txHash,
		"request_id", requestcontext.RequestID(ctx),
	)
	return &models.RegistrationResult{ProjectID: project.ID, CID: cid, TxHash: txHash}, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	p, err := s.projects.FindByID(ctx, strings.TrimSpace(projectID))
	if err != nil {
		return nil, storeError(err, "find project")
	}
	return p, nil
}

// PublishGrid stores the grid document, then loads its cells and records the
// document reference in one transaction. Loading is idempotent, so a retried
// publish only adds cells that are missing.
func (s *Service) PublishGrid(ctx context.Context, projectID string, req gridmodels.LoadCellsRequest) (*models.PublishResult, error) {
	ctx, span := s.tracer.Start(ctx, "project.PublishGrid", trace.WithAttributes(
		attribute.String("project_id", projectID),
	))
	defer span.End()

	if _, err := s.projects.FindByID(ctx, projectID); err != nil {
		return nil, storeError(err, "find project")
	}
	seeds, err := req.Seeds()
	if err != nil {
		return nil, err
	}

	cid, err := s.content.PutJSON(ctx, projectID+"-grid.geojson", req)
	if err != nil {
		span.RecordError(err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "content store unavailable")
	}

	// Cells and gridsRef commit together; LoadCells joins this transaction.
	var inserted int
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.grid.LoadCells(ctx, projectID, seeds)
		if err != nil {
			return err
		}
		inserted = n
		return s.projects.SetGridsRef(ctx, projectID, cid, requestcontext.Now(ctx))
	})
	if err != nil {
		span.RecordError(err)
		return nil, storeError(err, "publish grid")
	}
	// LoadCells invalidated before the outer commit; readers in between may
	// have cached the pre-commit projection.
	s.grid.InvalidateProject(ctx, projectID)

	s.logger.InfoContext(ctx, "grid published",
		"project_id", projectID,
		"cid", cid,
		"cells", len(seeds),
		"inserted", inserted,
	)
	return &models.PublishResult{ProjectID: projectID, CID: cid, InsertedCount: inserted}, nil
}

// DeleteProject removes the project with its cells and members.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	projectID = strings.TrimSpace(projectID)
	now := requestcontext.Now(ctx)
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.projects.Delete(ctx, projectID); err != nil {
			return err
		}
		return s.appendEvent(ctx, projectID, outbox.EventProjectDeleted, now, outbox.ProjectChanged{
			ProjectID: projectID,
			At:        now,
		})
	})
	if err != nil {
		return storeError(err, "delete project")
	}

	if s.gridProjects != nil {
		if err := s.gridProjects.DeleteProject(ctx, projectID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "grid store project delete failed", "project_id", projectID, "error", err)
		}
	}
	s.grid.InvalidateProject(ctx, projectID)
	s.logger.InfoContext(ctx, "project deleted", "project_id", projectID)
	return nil
}

func (s *Service) appendEvent(ctx context.Context, projectID, eventType string, now time.Time, payload outbox.ProjectChanged) error {
	if s.events == nil {
		return nil
	}
	evt, err := outbox.NewEvent(outbox.AggregateProject, projectID, eventType, payload, now)
	if err != nil {
		return err
	}
	return s.events.Append(ctx, evt)
}

func storeError(err error, op string) error {
	if _, ok := dErrors.Is(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "project not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "project already exists")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, op+": store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op+" failed")
	}
}
