package member

import (
	"context"
	"database/sql"

	"gridreg/internal/grid/models"
	"gridreg/internal/platform/postgres"
	id "gridreg/pkg/domain"
	txcontext "gridreg/pkg/platform/tx"
)

const memberColumns = `id, grid_cell_id, member_name, member_wallet, member_phone, photo_ref,
	verification_status, COALESCE(idempotency_key, ''), registered_at`

// PostgresStore persists cell members. Insert never checks capacity.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Insert appends one member row.
func (s *PostgresStore) Insert(ctx context.Context, m *models.Member) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO grid_members (id, grid_cell_id, member_name, member_wallet, member_phone,
			photo_ref, verification_status, idempotency_key, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`, m.ID, m.CellID, m.Name, m.Wallet, m.Phone, m.PhotoRef, string(m.Status), m.IdempotencyKey, m.RegisteredAt)
	if err != nil {
		return postgres.Classifyf(err, "insert member into cell %s", m.CellID)
	}
	return nil
}

func scanMember(rows interface{ Scan(...any) error }) (*models.Member, error) {
	var (
		m      models.Member
		status string
	)
	if err := rows.Scan(&m.ID, &m.CellID, &m.Name, &m.Wallet, &m.Phone, &m.PhotoRef,
		&status, &m.IdempotencyKey, &m.RegisteredAt); err != nil {
		return nil, err
	}
	m.Status = models.VerificationStatus(status)
	return &m, nil
}

// ListByCell returns members ordered by registration time, ties by ID.
func (s *PostgresStore) ListByCell(ctx context.Context, cellID id.CellID) ([]models.Member, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT `+memberColumns+` FROM grid_members WHERE grid_cell_id = $1 ORDER BY registered_at, id`,
		cellID)
	if err != nil {
		return nil, postgres.Classifyf(err, "list members of cell %s", cellID)
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, postgres.Classifyf(err, "scan member")
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Classifyf(err, "iterate members")
	}
	return out, nil
}

// FindByIdempotencyKey returns the member of cellID registered under key.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, cellID id.CellID, key string) (*models.Member, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM grid_members WHERE grid_cell_id = $1 AND idempotency_key = $2`,
		cellID, key)
	m, err := scanMember(row)
	if err != nil {
		return nil, postgres.Classifyf(err, "find member by idempotency key")
	}
	return m, nil
}

