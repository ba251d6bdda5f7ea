package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gridreg/internal/platform/postgres"
	"gridreg/internal/project/models"
	"gridreg/pkg/platform/sentinel"
	txcontext "gridreg/pkg/platform/tx"
)

const projectColumns = `project_id, name, state, district, block, village, officer_name, area_hectares,
	registration_ref, grids_ref, ledger_tx, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts p. A duplicate project ID is sentinel.ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, p *models.Project) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, p.ID, p.Name, p.Location.State, p.Location.District, p.Location.Block, p.Location.Village,
		p.OfficerName, p.AreaHectares, p.RegistrationRef, p.GridsRef, p.LedgerTx, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return postgres.Classifyf(err, "insert project %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, projectID string) (*models.Project, error) {
	var p models.Project
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE project_id = $1`, projectID,
	).Scan(&p.ID, &p.Name, &p.Location.State, &p.Location.District, &p.Location.Block, &p.Location.Village,
		&p.OfficerName, &p.AreaHectares, &p.RegistrationRef, &p.GridsRef, &p.LedgerTx, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, postgres.Classifyf(err, "find project %s", projectID)
	}
	return &p, nil
}

func (s *PostgresStore) SetGridsRef(ctx context.Context, projectID, ref string, now time.Time) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`UPDATE projects SET grids_ref = $1, updated_at = $2 WHERE project_id = $3`, ref, now, projectID)
	if err != nil {
		return postgres.Classifyf(err, "update project %s", projectID)
	}
	return requireRow(res, projectID)
}

// Delete removes the project; its cells and members go with it by cascade.
func (s *PostgresStore) Delete(ctx context.Context, projectID string) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM projects WHERE project_id = $1`, projectID)
	if err != nil {
		return postgres.Classifyf(err, "delete project %s", projectID)
	}
	return requireRow(res, projectID)
}

func requireRow(res sql.Result, projectID string) error {
	n, err := postgres.RowsAffected(res, "delete project %s", projectID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("project %s: %w", projectID, sentinel.ErrNotFound)
	}
	return nil
}
