package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridreg/internal/project/models"
	"gridreg/pkg/platform/sentinel"
)

// InMemoryStore keeps projects in a map. Writes are not transactional.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects map[string]models.Project
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{projects: make(map[string]models.Project)}
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return fmt.Errorf("project %s: %w", p.ID, sentinel.ErrConflict)
	}
	s.projects[p.ID] = *p
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, projectID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, sentinel.ErrNotFound)
	}
	return &p, nil
}

func (s *InMemoryStore) SetGridsRef(_ context.Context, projectID, ref string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, sentinel.ErrNotFound)
	}
	p.GridsRef = ref
	p.UpdatedAt = now
	s.projects[projectID] = p
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("project %s: %w", projectID, sentinel.ErrNotFound)
	}
	delete(s.projects, projectID)
	return nil
}
