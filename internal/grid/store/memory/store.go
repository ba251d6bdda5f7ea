// Package memory is an in-process grid store with the same locking protocol
// as the Postgres stores: per-cell exclusive locks held until commit or
// rollback, writes staged inside the transaction and applied atomically at
// commit. Readers outside a transaction see committed state only.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gridreg/internal/grid/models"
	"gridreg/internal/outbox"
	id "gridreg/pkg/domain"
	"gridreg/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

type gridKey struct {
	projectID string
	gridID    string
}

type storedEvent struct {
	event     outbox.Event
	published bool
}

// Store implements the cell store, member store, transaction runner and
// outbox writer/source over maps.
type Store struct {
	mu       sync.RWMutex
	projects map[string]struct{}
	cells    map[id.CellID]models.Cell
	byGrid   map[gridKey]id.CellID
	members  map[id.CellID][]models.Member
	events   []storedEvent

	locksMu sync.Mutex
	locks   map[id.CellID]chan struct{}

	publishMu sync.Mutex
	txTimeout time.Duration
}

type Option func(*Store)

// WithTxTimeout bounds transactions whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) { s.txTimeout = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		projects:  make(map[string]struct{}),
		cells:     make(map[id.CellID]models.Cell),
		byGrid:    make(map[gridKey]id.CellID),
		members:   make(map[id.CellID][]models.Member),
		locks:     make(map[id.CellID]chan struct{}),
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// txState is the uncommitted part of one transaction.
type txState struct {
	held    []id.CellID
	created []models.Cell
	cells   map[id.CellID]models.Cell
	members []models.Member
	events  []outbox.Event
}

func (t *txState) holds(cellID id.CellID) bool {
	for _, h := range t.held {
		if h == cellID {
			return true
		}
	}
	return false
}

type txKey struct{}

func txFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{}).(*txState)
	return st, ok
}

// RunInTx runs fn in a transaction. A transaction already in ctx is joined.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	st := &txState{cells: make(map[id.CellID]models.Cell)}
	defer s.release(st)

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(sentinel.ErrUnavailable, fmt.Errorf("commit: %w", err))
	}
	s.commit(st)
	return nil
}

func (s *Store) commit(st *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A grid ID committed concurrently wins, like ON CONFLICT DO NOTHING.
	for _, c := range st.created {
		key := gridKey{c.ProjectID, c.GridID}
		if _, ok := s.projects[c.ProjectID]; !ok {
			continue
		}
		if _, exists := s.byGrid[key]; exists {
			continue
		}
		s.cells[c.ID] = c
		s.byGrid[key] = c.ID
	}
	// Cells deleted by a concurrent project delete stay deleted, like an FK cascade.
	for cellID, c := range st.cells {
		if _, ok := s.cells[cellID]; ok {
			s.cells[cellID] = c
		}
	}
	for _, m := range st.members {
		if _, ok := s.cells[m.CellID]; ok {
			s.members[m.CellID] = append(s.members[m.CellID], m)
		}
	}
	for _, e := range st.events {
		s.events = append(s.events, storedEvent{event: e})
	}
}

func (s *Store) release(st *txState) {
	for _, cellID := range st.held {
		<-s.lockFor(cellID)
	}
	st.held = nil
}

func (s *Store) lockFor(cellID id.CellID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	ch, ok := s.locks[cellID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[cellID] = ch
	}
	return ch
}

// AddProject registers a project so cells can reference it.
func (s *Store) AddProject(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[projectID] = struct{}{}
	return nil
}

// DeleteProject removes a project with its cells and their members.
func (s *Store) DeleteProject(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.projects, projectID)
	for cellID, c := range s.cells {
		if c.ProjectID != projectID {
			continue
		}
		delete(s.cells, cellID)
		delete(s.byGrid, gridKey{projectID, c.GridID})
		delete(s.members, cellID)
	}
	return nil
}

// CreateCells inserts seeds that are not yet present for the project and
// returns how many were inserted. Inside a transaction the cells are staged
// and become visible at commit.
func (s *Store) CreateCells(ctx context.Context, projectID string, seeds []models.CellSeed, now time.Time) (int, error) {
	st, inTx := txFrom(ctx)
	if !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	if _, ok := s.projects[projectID]; !ok {
		return 0, fmt.Errorf("project %s: %w", projectID, sentinel.ErrNotFound)
	}

	staged := make(map[gridKey]struct{})
	if inTx {
		for _, c := range st.created {
			staged[gridKey{c.ProjectID, c.GridID}] = struct{}{}
		}
	}
	inserted := 0
	for _, seed := range seeds {
		key := gridKey{projectID, seed.GridID}
		if _, exists := s.byGrid[key]; exists {
			continue
		}
		if _, exists := staged[key]; exists {
			continue
		}
		c := models.Cell{
			ID:        id.NewCellID(),
			ProjectID: projectID,
			GridID:    seed.GridID,
			Geometry:  append([]byte(nil), seed.Geometry...),
			CreatedAt: now,
		}
		staged[key] = struct{}{}
		inserted++
		if inTx {
			st.created = append(st.created, c)
			continue
		}
		s.cells[c.ID] = c
		s.byGrid[key] = c.ID
	}
	return inserted, nil
}

func (s *Store) resolve(projectID string, ref models.CellRef) (id.CellID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ref.IsID() {
		c, ok := s.cells[ref.ID]
		if !ok || c.ProjectID != projectID {
			return id.CellID{}, sentinel.ErrNotFound
		}
		return c.ID, nil
	}
	cellID, ok := s.byGrid[gridKey{projectID, ref.GridID}]
	if !ok {
		return id.CellID{}, sentinel.ErrNotFound
	}
	return cellID, nil
}

// LockCell takes the cell's exclusive lock for the rest of the transaction and
// returns its current state. Waiting honours ctx cancellation.
func (s *Store) LockCell(ctx context.Context, projectID string, ref models.CellRef) (*models.Cell, error) {
	st, ok := txFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("lock cell outside transaction: %w", sentinel.ErrInvalidState)
	}
	cellID, err := s.resolve(projectID, ref)
	if err != nil {
		return nil, err
	}
	if !st.holds(cellID) {
		select {
		case s.lockFor(cellID) <- struct{}{}:
			st.held = append(st.held, cellID)
		case <-ctx.Done():
			return nil, errors.Join(sentinel.ErrUnavailable, fmt.Errorf("lock cell %s: %w", cellID, ctx.Err()))
		}
	}
	c, ok := s.view(st, cellID)
	if !ok {
		// Deleted while we waited.
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *Store) view(st *txState, cellID id.CellID) (models.Cell, bool) {
	if st != nil {
		if c, ok := st.cells[cellID]; ok {
			return c, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[cellID]
	return c, ok
}

// UpdateOccupancy stages the cell's count and full flag. The caller must hold the lock.
func (s *Store) UpdateOccupancy(ctx context.Context, cell *models.Cell) error {
	st, ok := txFrom(ctx)
	if !ok || !st.holds(cell.ID) {
		return fmt.Errorf("update cell %s without lock: %w", cell.ID, sentinel.ErrInvalidState)
	}
	st.cells[cell.ID] = *cell
	return nil
}

// Insert adds a member. Inside a transaction the row is staged until commit.
func (s *Store) Insert(ctx context.Context, m *models.Member) error {
	st, inTx := txFrom(ctx)
	if _, ok := s.view(st, m.CellID); !ok {
		return fmt.Errorf("cell %s: %w", m.CellID, sentinel.ErrNotFound)
	}
	if m.IdempotencyKey != "" {
		if _, err := s.FindByIdempotencyKey(ctx, m.CellID, m.IdempotencyKey); err == nil {
			return sentinel.ErrConflict
		}
	}
	if inTx {
		st.members = append(st.members, *m)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.CellID] = append(s.members[m.CellID], *m)
	return nil
}

func (s *Store) membersOf(st *txState, cellID id.CellID) []models.Member {
	s.mu.RLock()
	out := append([]models.Member(nil), s.members[cellID]...)
	s.mu.RUnlock()
	if st != nil {
		for _, m := range st.members {
			if m.CellID == cellID {
				out = append(out, m)
			}
		}
	}
	return out
}

// FindByIdempotencyKey returns the member of cellID registered under key.
func (s *Store) FindByIdempotencyKey(ctx context.Context, cellID id.CellID, key string) (*models.Member, error) {
	st, _ := txFrom(ctx)
	for _, m := range s.membersOf(st, cellID) {
		if m.IdempotencyKey == key {
			return &m, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListByCell returns members ordered by registration time, ties by ID.
func (s *Store) ListByCell(ctx context.Context, cellID id.CellID) ([]models.Member, error) {
	st, _ := txFrom(ctx)
	out := s.membersOf(st, cellID)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.Before(out[j].RegisteredAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, cellID id.CellID) (*models.Cell, error) {
	st, _ := txFrom(ctx)
	c, ok := s.view(st, cellID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

func (s *Store) projectCells(projectID string) []models.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Cell
	for _, c := range s.cells {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GridID < out[j].GridID })
	return out
}

// ListAvailable returns the project's non-full cells ordered by grid ID.
func (s *Store) ListAvailable(_ context.Context, projectID string) ([]models.Cell, error) {
	var out []models.Cell
	for _, c := range s.projectCells(projectID) {
		if !c.IsFull {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListWithAggregate returns every cell of the project with its live member count.
func (s *Store) ListWithAggregate(_ context.Context, projectID string) ([]models.CellAggregate, error) {
	cells := s.projectCells(projectID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CellAggregate, 0, len(cells))
	for _, c := range cells {
		live := len(s.members[c.ID])
		out = append(out, models.CellAggregate{Cell: c, LiveCount: live, Drift: live != c.MemberCount})
	}
	return out, nil
}

// LastGridID returns the most recently created grid ID, or "" when the project has none.
func (s *Store) LastGridID(_ context.Context, projectID string) (string, error) {
	var last *models.Cell
	cells := s.projectCells(projectID)
	for i := range cells {
		c := &cells[i]
		if last == nil || c.CreatedAt.After(last.CreatedAt) ||
			(c.CreatedAt.Equal(last.CreatedAt) && c.GridID > last.GridID) {
			last = c
		}
	}
	if last == nil {
		return "", nil
	}
	return last.GridID, nil
}

// Append stages an outbox event with the current transaction.
func (s *Store) Append(ctx context.Context, evt outbox.Event) error {
	if st, ok := txFrom(ctx); ok {
		st.events = append(st.events, evt)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, storedEvent{event: evt})
	return nil
}

// PublishPending hands up to limit unpublished events to publish and marks
// them published when it succeeds.
func (s *Store) PublishPending(ctx context.Context, limit int, publish func(context.Context, []outbox.Event) error) (int, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.RLock()
	var (
		batch []outbox.Event
		idx   []int
	)
	for i, e := range s.events {
		if e.published {
			continue
		}
		batch = append(batch, e.event)
		idx = append(idx, i)
		if len(batch) == limit {
			break
		}
	}
	s.mu.RUnlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	for _, i := range idx {
		s.events[i].published = true
	}
	s.mu.Unlock()
	return len(batch), nil
}

// Events returns every committed outbox event, published or not.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Event, len(s.events))
	for i, e := range s.events {
		out[i] = e.event
	}
	return out
}
