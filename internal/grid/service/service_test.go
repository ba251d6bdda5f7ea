package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"gridreg/internal/grid/metrics"
	"gridreg/internal/grid/models"
	"gridreg/internal/grid/store/memory"
	"gridreg/internal/outbox"
	id "gridreg/pkg/domain"
	dErrors "gridreg/pkg/domain-errors"
	"gridreg/pkg/platform/sentinel"
	"gridreg/pkg/testutil"
)

const projectID = "NCCR-MH-2025-001"

var errInjected = errors.New("injected failure")

type ServiceSuite struct {
	suite.Suite
	store   *memory.Store
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(s.store, s.store, s.store, WithEvents(s.store), WithMetrics(s.metrics))
	s.Require().NoError(s.store.AddProject(s.ctx, projectID))
}

func (s *ServiceSuite) load(gridIDs ...string) {
	seeds := make([]models.CellSeed, len(gridIDs))
	for i, g := range gridIDs {
		seeds[i] = models.CellSeed{GridID: g}
	}
	_, err := s.service.LoadCells(s.ctx, projectID, seeds)
	s.Require().NoError(err)
}

func (s *ServiceSuite) register(cellRef, name string) (*models.RegistrationResult, error) {
	return s.service.Register(s.ctx, projectID, models.RegisterRequest{CellRef: cellRef, MemberName: name})
}

func (s *ServiceSuite) cellByGrid(gridID string) models.CellAggregate {
	aggs, err := s.service.ProjectCells(s.ctx, projectID)
	s.Require().NoError(err)
	for _, a := range aggs {
		if a.GridID == gridID {
			return a
		}
	}
	s.FailNow("cell not found", gridID)
	return models.CellAggregate{}
}

// assertConsistent checks count consistency and the full flag for every cell.
func (s *ServiceSuite) assertConsistent() {
	aggs, err := s.service.ProjectCells(s.ctx, projectID)
	s.Require().NoError(err)
	for _, a := range aggs {
		s.False(a.Drift, "cell %s: cached %d, rows %d", a.GridID, a.MemberCount, a.LiveCount)
		s.Equal(a.MemberCount >= models.CellCapacity, a.IsFull, "cell %s full flag", a.GridID)
		s.LessOrEqual(a.MemberCount, models.CellCapacity)
	}
}

func (s *ServiceSuite) TestConcurrentRegistration_NoOvercommit() {
	s.load("G-001")
	const goroutines = 10

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		full     atomic.Int32
		other    atomic.Int32
	)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.register("G-001", fmt.Sprintf("member-%d", i))
			switch {
			case err == nil:
				admitted.Add(1)
			case dErrors.HasCode(err, dErrors.CodeCellFull):
				full.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(models.CellCapacity), admitted.Load())
	s.Equal(int32(goroutines-models.CellCapacity), full.Load())
	s.Zero(other.Load())

	cell := s.cellByGrid("G-001")
	s.Equal(models.CellCapacity, cell.MemberCount)
	s.Equal(models.CellCapacity, cell.LiveCount)
	s.True(cell.IsFull)
	s.assertConsistent()

	s.Equal(5.0, promtest.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeAdmitted)))
	s.Equal(5.0, promtest.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeFull)))
}

func (s *ServiceSuite) TestLastSlotRace() {
	s.load("G-001")
	for i := range 4 {
		_, err := s.register("G-001", fmt.Sprintf("existing-%d", i))
		s.Require().NoError(err)
	}

	testutil.Given(s.T(), "cell G-001 with 4 members", func(t *testing.T) {
		testutil.When(t, "two registrations race for the last slot", func(t *testing.T) {
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				results []*models.RegistrationResult
				errs    []error
			)
			for i := range 2 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					res, err := s.register("G-001", fmt.Sprintf("racer-%d", i))
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					results = append(results, res)
				}()
			}
			wg.Wait()

			testutil.Then(t, "exactly one wins and fills the cell", func(t *testing.T) {
				require.Len(t, results, 1)
				assert.Equal(t, 5, results[0].MemberCount)
				assert.True(t, results[0].IsFull)
				require.Len(t, errs, 1)
				assert.True(t, dErrors.HasCode(errs[0], dErrors.CodeCellFull))
			})
		})

		testutil.When(t, "a third registration arrives afterwards", func(t *testing.T) {
			before := s.cellByGrid("G-001")
			_, err := s.register("G-001", "late")

			testutil.Then(t, "it is rejected and nothing changes", func(t *testing.T) {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeCellFull))
				after := s.cellByGrid("G-001")
				assert.Equal(t, before.MemberCount, after.MemberCount)
				assert.Equal(t, before.LiveCount, after.LiveCount)
				assert.Equal(t, before.IsFull, after.IsFull)
			})
		})
	})
}

func (s *ServiceSuite) TestPerCellIsolation() {
	s.load("G-001", "G-002")
	cellA := s.cellByGrid("G-001")

	// Hold G-001's lock in another transaction.
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.store.RunInTx(s.ctx, func(ctx context.Context) error {
			if _, err := s.store.LockCell(ctx, projectID, models.CellRef{ID: cellA.ID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	res, err := s.service.Register(ctx, projectID, models.RegisterRequest{CellRef: "G-002", MemberName: "unblocked"})
	s.Require().NoError(err, "a locked cell must not block a different cell")
	s.Equal(1, res.MemberCount)

	close(release)
	s.Require().NoError(<-done)

	// Both cells fill independently under concurrency.
	var wg sync.WaitGroup
	for _, g := range []string{"G-001", "G-002"} {
		for i := range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.register(g, fmt.Sprintf("%s-%d", g, i))
			}()
		}
	}
	wg.Wait()

	s.Equal(models.CellCapacity, s.cellByGrid("G-001").MemberCount)
	s.Equal(models.CellCapacity, s.cellByGrid("G-002").MemberCount)
	s.assertConsistent()
}

func (s *ServiceSuite) TestLockTimeout_IsEffectFree() {
	s.load("G-001")
	_, err := s.register("G-001", "first")
	s.Require().NoError(err)
	cell := s.cellByGrid("G-001")

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.store.RunInTx(s.ctx, func(ctx context.Context) error {
			if _, err := s.store.LockCell(ctx, projectID, models.CellRef{ID: cell.ID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Millisecond)
	defer cancel()
	_, err = s.service.Register(ctx, projectID, models.RegisterRequest{CellRef: cell.ID.String(), MemberName: "waiter"})
	s.True(dErrors.HasCode(err, dErrors.CodeStoreUnavailable), "got %v", err)

	close(release)
	s.Require().NoError(<-done)

	after := s.cellByGrid("G-001")
	s.Equal(1, after.MemberCount)
	s.Equal(1, after.LiveCount)

	// Safe to retry.
	res, err := s.service.Register(s.ctx, projectID, models.RegisterRequest{CellRef: cell.ID.String(), MemberName: "waiter"})
	s.Require().NoError(err)
	s.Equal(2, res.MemberCount)
}

func (s *ServiceSuite) TestFailureAfterLock_IsEffectFree() {
	tests := []struct {
		name    string
		service func() *Service
	}{
		{"member insert fails", func() *Service {
			return New(s.store, failingMembers{s.store}, s.store, WithEvents(s.store))
		}},
		{"occupancy update fails", func() *Service {
			return New(failingCells{s.store}, s.store, s.store, WithEvents(s.store))
		}},
		{"event append fails", func() *Service {
			return New(s.store, s.store, s.store, WithEvents(failingEvents{}))
		}},
	}

	s.load("G-001")
	for i := range 3 {
		_, err := s.register("G-001", fmt.Sprintf("existing-%d", i))
		s.Require().NoError(err)
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			before := s.cellByGrid("G-001")
			eventsBefore := len(s.store.Events())

			_, err := tt.service().Register(s.ctx, projectID, models.RegisterRequest{CellRef: "G-001", MemberName: "doomed"})
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeStoreUnavailable))
			de, ok := dErrors.Is(err)
			s.Require().True(ok)
			s.NotContains(de.Message, "injected")

			after := s.cellByGrid("G-001")
			s.Equal(before.MemberCount, after.MemberCount)
			s.Equal(before.IsFull, after.IsFull)
			s.Equal(before.LiveCount, after.LiveCount)
			s.Len(s.store.Events(), eventsBefore)
		})
	}
	s.assertConsistent()
}

func (s *ServiceSuite) TestInvalidInput_OpensNoTransaction() {
	s.load("G-001")
	spy := &countingTx{TxRunner: s.store}
	svc := New(s.store, s.store, spy)

	tests := []struct {
		name      string
		projectID string
		req       models.RegisterRequest
	}{
		{"missing member name", projectID, models.RegisterRequest{CellRef: "G-001"}},
		{"missing cell ref", projectID, models.RegisterRequest{MemberName: "Asha"}},
		{"blank project", "  ", models.RegisterRequest{CellRef: "G-001", MemberName: "Asha"}},
		{"grid label too long", projectID, models.RegisterRequest{CellRef: "G-0000000000000000000001", MemberName: "Asha"}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := svc.Register(s.ctx, tt.projectID, tt.req)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
		})
	}
	s.Zero(spy.calls.Load())
	s.Equal(0, s.cellByGrid("G-001").MemberCount)
}

func (s *ServiceSuite) TestCellNotFound() {
	s.load("G-001")

	_, err := s.register("G-999", "Asha")
	s.True(dErrors.HasCode(err, dErrors.CodeCellNotFound))

	_, err = s.register(id.NewCellID().String(), "Asha")
	s.True(dErrors.HasCode(err, dErrors.CodeCellNotFound))
}

func (s *ServiceSuite) TestRegisterByCellID() {
	s.load("G-001")
	cell := s.cellByGrid("G-001")

	res, err := s.register(cell.ID.String(), "Asha")
	s.Require().NoError(err)
	s.Equal(cell.ID.String(), res.CellID)
	s.Equal("G-001", res.GridID)
	s.Equal(1, res.MemberCount)
	s.False(res.IsFull)
}

func (s *ServiceSuite) TestProjectScoping() {
	other := "NCCR-KA-2025-002"
	s.Require().NoError(s.store.AddProject(s.ctx, other))
	s.load("G-001")
	_, err := s.service.LoadCells(s.ctx, other, []models.CellSeed{{GridID: "G-001"}})
	s.Require().NoError(err)

	for i := range models.CellCapacity {
		_, err := s.register("G-001", fmt.Sprintf("m-%d", i))
		s.Require().NoError(err)
	}
	_, err = s.register("G-001", "overflow")
	s.True(dErrors.HasCode(err, dErrors.CodeCellFull))

	// The same label in another project has its own capacity.
	res, err := s.service.Register(s.ctx, other, models.RegisterRequest{CellRef: "G-001", MemberName: "Ravi"})
	s.Require().NoError(err)
	s.Equal(1, res.MemberCount)

	// A cell ID from one project does not resolve in another.
	cell := s.cellByGrid("G-001")
	_, err = s.service.Register(s.ctx, other, models.RegisterRequest{CellRef: cell.ID.String(), MemberName: "Ravi"})
	s.True(dErrors.HasCode(err, dErrors.CodeCellNotFound))
}

func (s *ServiceSuite) TestIdempotentReplay() {
	s.load("G-001")
	req := models.RegisterRequest{CellRef: "G-001", MemberName: "Asha", IdempotencyKey: "req-1"}

	first, err := s.service.Register(s.ctx, projectID, req)
	s.Require().NoError(err)
	s.False(first.Replayed)

	second, err := s.service.Register(s.ctx, projectID, req)
	s.Require().NoError(err)
	s.True(second.Replayed)
	s.Equal(first.MemberID, second.MemberID)
	s.Equal(1, second.MemberCount)

	s.Equal(1, s.cellByGrid("G-001").LiveCount)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Registrations.WithLabelValues(metrics.OutcomeReplayed)))
}

func (s *ServiceSuite) TestIdempotentReplay_OnFullCell() {
	s.load("G-001")
	var keyed *models.RegistrationResult
	for i := range models.CellCapacity {
		res, err := s.service.Register(s.ctx, projectID, models.RegisterRequest{
			CellRef: "G-001", MemberName: "m", IdempotencyKey: fmt.Sprintf("k-%d", i),
		})
		s.Require().NoError(err)
		keyed = res
	}

	res, err := s.service.Register(s.ctx, projectID, models.RegisterRequest{
		CellRef: "G-001", MemberName: "m", IdempotencyKey: "k-4",
	})
	s.Require().NoError(err, "a retried success is replayed even when the cell is now full")
	s.True(res.Replayed)
	s.Equal(keyed.MemberID, res.MemberID)
}

func (s *ServiceSuite) TestIdempotentReplay_ReportsCurrentOccupancy() {
	s.load("G-001")
	early := models.RegisterRequest{CellRef: "G-001", MemberName: "early", IdempotencyKey: "early-1"}
	first, err := s.service.Register(s.ctx, projectID, early)
	s.Require().NoError(err)
	s.Equal(1, first.MemberCount)
	s.False(first.IsFull)

	for i := 1; i < models.CellCapacity; i++ {
		_, err := s.register("G-001", fmt.Sprintf("later-%d", i))
		s.Require().NoError(err)
	}

	replay, err := s.service.Register(s.ctx, projectID, early)
	s.Require().NoError(err)
	s.True(replay.Replayed)
	s.Equal(first.MemberID, replay.MemberID)
	s.Equal(models.CellCapacity, replay.MemberCount)
	s.True(replay.IsFull)
}

func (s *ServiceSuite) TestLoadCells_Idempotent() {
	seeds := []models.CellSeed{{GridID: "G-001"}, {GridID: "G-002"}, {GridID: "G-003"}}

	n, err := s.service.LoadCells(s.ctx, projectID, seeds)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.service.LoadCells(s.ctx, projectID, seeds)
	s.Require().NoError(err)
	s.Equal(0, n)

	n, err = s.service.LoadCells(s.ctx, projectID, append(seeds, models.CellSeed{GridID: "G-004"}))
	s.Require().NoError(err)
	s.Equal(1, n)

	cells, err := s.service.AvailableCells(s.ctx, projectID)
	s.Require().NoError(err)
	s.Len(cells, 4)
	s.Equal(4.0, promtest.ToFloat64(s.metrics.CellsLoaded))

	var loaded int
	for _, e := range s.store.Events() {
		if e.EventType == outbox.EventCellsLoaded {
			loaded++
		}
	}
	s.Equal(2, loaded, "no event for a load that inserted nothing")
}

func (s *ServiceSuite) TestLoadCells_UnknownProject() {
	_, err := s.service.LoadCells(s.ctx, "NCCR-XX-2025-404", []models.CellSeed{{GridID: "G-001"}})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAvailableCells_ExcludesFullAndOrders() {
	s.load("G-003", "G-001", "G-002")
	for i := range models.CellCapacity {
		_, err := s.register("G-002", fmt.Sprintf("m-%d", i))
		s.Require().NoError(err)
	}

	cells, err := s.service.AvailableCells(s.ctx, projectID)
	s.Require().NoError(err)
	s.Require().Len(cells, 2)
	s.Equal("G-001", cells[0].GridID)
	s.Equal("G-003", cells[1].GridID)
}

func (s *ServiceSuite) TestCellDetail() {
	s.load("G-001")
	_, err := s.register("G-001", "first")
	s.Require().NoError(err)
	_, err = s.register("G-001", "second")
	s.Require().NoError(err)
	cell := s.cellByGrid("G-001")

	detail, err := s.service.CellDetail(s.ctx, cell.ID)
	s.Require().NoError(err)
	s.Equal(2, detail.Cell.MemberCount)
	s.Require().Len(detail.Members, 2)
	for _, m := range detail.Members {
		s.Equal(models.StatusPending, m.Status)
	}

	_, err = s.service.CellDetail(s.ctx, id.NewCellID())
	s.True(dErrors.HasCode(err, dErrors.CodeCellNotFound))
}

func (s *ServiceSuite) TestLastGridNumber() {
	n, err := s.service.LastGridNumber(s.ctx, projectID)
	s.Require().NoError(err)
	s.Zero(n)

	s.load("G-087", "G-088")
	n, err = s.service.LastGridNumber(s.ctx, projectID)
	s.Require().NoError(err)
	s.Equal(88, n)
}

func (s *ServiceSuite) TestRegistrationEvents() {
	s.load("G-001")
	res, err := s.register("G-001", "Asha")
	s.Require().NoError(err)

	var found bool
	for _, e := range s.store.Events() {
		if e.EventType == outbox.EventMemberRegistered {
			found = true
			s.Equal(res.CellID, e.AggregateID)
			s.Contains(string(e.Payload), res.MemberID)
		}
	}
	s.True(found)
}

func TestParseGridNumber(t *testing.T) {
	tests := map[string]int{
		"G-088":   88,
		"G-001":   1,
		"":        0,
		"G088":    0,
		"G-A":     0,
		"G-1-2":   0,
		"CELL-12": 12,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseGridNumber(in), in)
	}
}

func TestAvailableCells_Cache(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AddProject(ctx, projectID))
	cache := newFakeCache()
	svc := New(store, store, store, WithCache(cache))

	_, err := svc.LoadCells(ctx, projectID, []models.CellSeed{{GridID: "G-001"}, {GridID: "G-002"}})
	require.NoError(t, err)

	cells, err := svc.AvailableCells(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, 1, cache.sets)

	_, err = svc.AvailableCells(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets, "second read is served from cache")

	_, err = svc.Register(ctx, projectID, models.RegisterRequest{CellRef: "G-001", MemberName: "Asha"})
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidations, "load and register both invalidate")

	cells, err = svc.AvailableCells(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, 1, cells[0].MemberCount)
}

func TestAvailableCells_FillRacingRegistrationsIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AddProject(ctx, projectID))
	cache := newFakeCache()
	svc := New(store, store, store, WithCache(cache))
	_, err := svc.LoadCells(ctx, projectID, []models.CellSeed{{GridID: "G-001"}})
	require.NoError(t, err)

	testutil.Given(t, "registrations that fill G-001 commit while a cache fill is in flight", func(t *testing.T) {
		cache.beforeSet = func() {
			for i := range models.CellCapacity {
				_, err := svc.Register(ctx, projectID, models.RegisterRequest{
					CellRef:    "G-001",
					MemberName: fmt.Sprintf("member-%d", i),
				})
				require.NoError(t, err)
			}
		}

		testutil.When(t, "the racing read finishes", func(t *testing.T) {
			cells, err := svc.AvailableCells(ctx, projectID)
			require.NoError(t, err)
			require.Len(t, cells, 1, "the in-flight read may still see its own snapshot")

			testutil.Then(t, "its snapshot is not cached and the next read sees the full cell", func(t *testing.T) {
				assert.Zero(t, cache.sets)
				cells, err := svc.AvailableCells(ctx, projectID)
				require.NoError(t, err)
				assert.Empty(t, cells)

				cached, ok, err := cache.GetAvailable(ctx, projectID)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Empty(t, cached)
			})
		})
	})
}

func TestAvailableCells_FillSurvivesCallerCancellation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AddProject(ctx, projectID))
	cache := newFakeCache()
	svc := New(cancelAwareCells{store}, store, store, WithCache(cache))
	_, err := svc.LoadCells(ctx, projectID, []models.CellSeed{{GridID: "G-001"}, {GridID: "G-002"}})
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	cells, err := svc.AvailableCells(canceled, projectID)
	require.NoError(t, err, "a shared fill does not inherit the first caller's cancellation")
	assert.Len(t, cells, 2)
	assert.Equal(t, 1, cache.sets)
}

func TestAvailableCells_CacheErrorsFallBackToStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.AddProject(ctx, projectID))
	svc := New(store, store, store, WithCache(brokenCache{}))

	_, err := svc.LoadCells(ctx, projectID, []models.CellSeed{{GridID: "G-001"}})
	require.NoError(t, err, "invalidate failure is logged, not returned")

	cells, err := svc.AvailableCells(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, cells, 1)
}

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type failingMembers struct{ MemberStore }

func (failingMembers) Insert(context.Context, *models.Member) error { return errInjected }

type failingCells struct{ CellStore }

func (failingCells) UpdateOccupancy(context.Context, *models.Cell) error {
	return errors.Join(sentinel.ErrUnavailable, errInjected)
}

type failingEvents struct{}

func (failingEvents) Append(context.Context, outbox.Event) error { return errInjected }

type countingTx struct {
	TxRunner
	calls atomic.Int32
}

func (c *countingTx) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	c.calls.Add(1)
	return c.TxRunner.RunInTx(ctx, fn)
}

type fakeCache struct {
	mu            sync.Mutex
	data          map[string][]models.AvailableCell
	gens          map[string]int64
	sets          int
	invalidations int
	beforeSet     func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		data: make(map[string][]models.AvailableCell),
		gens: make(map[string]int64),
	}
}

func (f *fakeCache) GetAvailable(_ context.Context, projectID string) ([]models.AvailableCell, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cells, ok := f.data[projectID]
	return cells, ok, nil
}

func (f *fakeCache) Generation(_ context.Context, projectID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gens[projectID], nil
}

func (f *fakeCache) SetAvailable(_ context.Context, projectID string, gen int64, cells []models.AvailableCell) (bool, error) {
	if hook := f.beforeSet; hook != nil {
		f.beforeSet = nil
		hook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gens[projectID] != gen {
		return false, nil
	}
	f.data[projectID] = cells
	f.sets++
	return true, nil
}

func (f *fakeCache) Invalidate(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, projectID)
	f.gens[projectID]++
	f.invalidations++
	return nil
}

type brokenCache struct{}

func (brokenCache) GetAvailable(context.Context, string) ([]models.AvailableCell, bool, error) {
	return nil, false, errInjected
}
func (brokenCache) Generation(context.Context, string) (int64, error) { return 0, errInjected }
func (brokenCache) SetAvailable(context.Context, string, int64, []models.AvailableCell) (bool, error) {
	return false, errInjected
}
func (brokenCache) Invalidate(context.Context, string) error { return errInjected }

// cancelAwareCells fails reads on a done context, like the Postgres store.
type cancelAwareCells struct{ CellStore }

func (c cancelAwareCells) ListAvailable(ctx context.Context, projectID string) ([]models.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(sentinel.ErrUnavailable, err)
	}
	return c.CellStore.ListAvailable(ctx, projectID)
}
