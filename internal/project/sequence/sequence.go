// Package sequence hands out durable, strictly increasing project counters.
package sequence

import (
	"context"
	"database/sql"
	"sync"

	"gridreg/internal/platform/postgres"
	txcontext "gridreg/pkg/platform/tx"
)

const projectSequence = "project"

// PostgresSequence increments a row of id_sequences. The UPDATE holds the row
// lock until commit, so concurrent callers never see the same value and a
// committed value is never handed out again.
type PostgresSequence struct {
	db   *sql.DB
	name string
}

func NewPostgres(db *sql.DB) *PostgresSequence {
	return &PostgresSequence{db: db, name: projectSequence}
}

func (s *PostgresSequence) Next(ctx context.Context) (int64, error) {
	var v int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`UPDATE id_sequences SET value = value + 1 WHERE name = $1 RETURNING value`, s.name).Scan(&v)
	if err != nil {
		return 0, postgres.Classifyf(err, "advance sequence %s", s.name)
	}
	return v, nil
}

func (s *PostgresSequence) Current(ctx context.Context) (int64, error) {
	var v int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT value FROM id_sequences WHERE name = $1`, s.name).Scan(&v)
	if err != nil {
		return 0, postgres.Classifyf(err, "read sequence %s", s.name)
	}
	return v, nil
}

// MemorySequence is a process-local counter.
type MemorySequence struct {
	mu sync.Mutex
	v  int64
}

func NewMemory() *MemorySequence {
	return &MemorySequence{}
}

func (s *MemorySequence) Next(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v++
	return s.v, nil
}

func (s *MemorySequence) Current(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v, nil
}
