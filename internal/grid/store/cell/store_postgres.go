package cell

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"gridreg/internal/grid/models"
	"gridreg/internal/platform/postgres"
	id "gridreg/pkg/domain"
	"gridreg/pkg/platform/sentinel"
	txcontext "gridreg/pkg/platform/tx"
)

const cellColumns = `id, project_id, grid_id, geometry, member_count, is_full, created_at`

// PostgresStore persists grid cells. It never decides capacity; it only
// executes the locking reads and writes the service asks for.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCell(row rowScanner) (*models.Cell, error) {
	var (
		c        models.Cell
		geometry []byte
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &c.GridID, &geometry, &c.MemberCount, &c.IsFull, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Geometry = json.RawMessage(geometry)
	return &c, nil
}

// CreateCells bulk-inserts seeds, skipping (project_id, grid_id) pairs that
// already exist. Returns the number of rows inserted.
func (s *PostgresStore) CreateCells(ctx context.Context, projectID string, seeds []models.CellSeed, now time.Time) (int, error) {
	if len(seeds) == 0 {
		return 0, nil
	}
	ids := make([]string, len(seeds))
	gridIDs := make([]string, len(seeds))
	geometries := make([]string, len(seeds))
	for i, seed := range seeds {
		ids[i] = id.NewCellID().String()
		gridIDs[i] = seed.GridID
		geometries[i] = string(seed.Geometry)
		if len(seed.Geometry) == 0 {
			geometries[i] = "{}"
		}
	}

	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO grid_cells (id, project_id, grid_id, geometry, member_count, is_full, created_at)
		SELECT u.id, $2, u.grid_id, u.geometry, 0, FALSE, $5
		FROM unnest($1::uuid[], $3::text[], $4::jsonb[]) AS u(id, grid_id, geometry)
		ON CONFLICT (project_id, grid_id) DO NOTHING
	`, pq.Array(ids), projectID, pq.Array(gridIDs), pq.Array(geometries), now)
	if err != nil {
		return 0, postgres.Classifyf(err, "insert cells for project %s", projectID)
	}
	n, err := postgres.RowsAffected(res, "insert cells for project %s", projectID)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// LockCell selects the cell FOR UPDATE. It must run inside a transaction; the
// lock is held until that transaction ends.
func (s *PostgresStore) LockCell(ctx context.Context, projectID string, ref models.CellRef) (*models.Cell, error) {
	sqlTx, ok := txcontext.From(ctx)
	if !ok {
		return nil, fmt.Errorf("lock cell outside transaction: %w", sentinel.ErrInvalidState)
	}
	query := `SELECT ` + cellColumns + ` FROM grid_cells WHERE project_id = $1 AND grid_id = $2 FOR UPDATE`
	arg := any(ref.GridID)
	if ref.IsID() {
		query = `SELECT ` + cellColumns + ` FROM grid_cells WHERE project_id = $1 AND id = $2 FOR UPDATE`
		arg = ref.ID
	}
	c, err := scanCell(sqlTx.QueryRowContext(ctx, query, projectID, arg))
	if err != nil {
		return nil, postgres.Classifyf(err, "lock cell %s", ref)
	}
	return c, nil
}

// UpdateOccupancy writes the cached count and full flag.
func (s *PostgresStore) UpdateOccupancy(ctx context.Context, c *models.Cell) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE grid_cells SET member_count = $1, is_full = $2 WHERE id = $3`,
		c.MemberCount, c.IsFull, c.ID)
	if err != nil {
		return postgres.Classifyf(err, "update cell %s", c.ID)
	}
	n, err := postgres.RowsAffected(res, "update cell %s", c.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update cell %s: %w", c.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, cellID id.CellID) (*models.Cell, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+cellColumns+` FROM grid_cells WHERE id = $1`, cellID)
	c, err := scanCell(row)
	if err != nil {
		return nil, postgres.Classifyf(err, "find cell %s", cellID)
	}
	return c, nil
}

// ListAvailable returns the project's non-full cells ordered by grid ID.
func (s *PostgresStore) ListAvailable(ctx context.Context, projectID string) ([]models.Cell, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT `+cellColumns+` FROM grid_cells WHERE project_id = $1 AND is_full = FALSE ORDER BY grid_id`,
		projectID)
	if err != nil {
		return nil, postgres.Classifyf(err, "list available cells")
	}
	defer rows.Close()

	var cells []models.Cell
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, postgres.Classifyf(err, "scan cell")
		}
		cells = append(cells, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classifyf(err, "iterate cells")
	}
	return cells, nil
}

// ListWithAggregate returns every cell with the live count of its member rows.
func (s *PostgresStore) ListWithAggregate(ctx context.Context, projectID string) ([]models.CellAggregate, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT c.id, c.project_id, c.grid_id, c.geometry, c.member_count, c.is_full, c.created_at,
		       COUNT(m.id) AS live_count
		FROM grid_cells c
		LEFT JOIN grid_members m ON m.grid_cell_id = c.id
		WHERE c.project_id = $1
		GROUP BY c.id
		ORDER BY c.grid_id
	`, projectID)
	if err != nil {
		return nil, postgres.Classifyf(err, "list cells with aggregate")
	}
	defer rows.Close()

	var out []models.CellAggregate
	for rows.Next() {
		var (
			agg      models.CellAggregate
			geometry []byte
		)
		if err := rows.Scan(&agg.ID, &agg.ProjectID, &agg.GridID, &geometry,
			&agg.MemberCount, &agg.IsFull, &agg.CreatedAt, &agg.LiveCount); err != nil {
			return nil, postgres.Classifyf(err, "scan cell aggregate")
		}
		agg.Geometry = json.RawMessage(geometry)
		agg.Drift = agg.LiveCount != agg.MemberCount
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classifyf(err, "iterate cell aggregates")
	}
	return out, nil
}

// LastGridID returns the most recently created grid ID, or "" when there is none.
func (s *PostgresStore) LastGridID(ctx context.Context, projectID string) (string, error) {
	var gridID string
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT grid_id FROM grid_cells
		WHERE project_id = $1
		ORDER BY created_at DESC, grid_id DESC
		LIMIT 1
	`, projectID).Scan(&gridID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", postgres.Classifyf(err, "last grid id")
	}
	return gridID, nil
}
