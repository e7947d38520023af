package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPatientStore is an in-process PatientStore. It enforces the same
// external ID uniqueness as the Postgres schema.
type MemoryPatientStore struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*Patient
	byExternal map[string]uuid.UUID
}

func NewMemoryPatientStore() *MemoryPatientStore {
	return &MemoryPatientStore{
		byID:       make(map[uuid.UUID]*Patient),
		byExternal: make(map[string]uuid.UUID),
	}
}

func (s *MemoryPatientStore) FindByExternalID(_ context.Context, externalID string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	p := *s.byID[id]
	return &p, nil
}

func (s *MemoryPatientStore) FindByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryPatientStore) Create(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[p.ExternalID]; exists {
		return ErrAlreadyExists
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	s.byID[p.ID] = &cp
	s.byExternal[p.ExternalID] = p.ID
	return nil
}

func (s *MemoryPatientStore) Update(_ context.Context, p *Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	if p.ExternalID != existing.ExternalID {
		if _, taken := s.byExternal[p.ExternalID]; taken {
			return ErrAlreadyExists
		}
		delete(s.byExternal, existing.ExternalID)
		s.byExternal[p.ExternalID] = p.ID
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

// Count returns the number of stored patients.
func (s *MemoryPatientStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// MemoryStudyStore is an in-process StudyStore with accession number
// uniqueness.
type MemoryStudyStore struct {
	mu          sync.RWMutex
	byAccession map[string]*Study
}

func NewMemoryStudyStore() *MemoryStudyStore {
	return &MemoryStudyStore{byAccession: make(map[string]*Study)}
}

func (s *MemoryStudyStore) FindByAccessionNumber(_ context.Context, accession string) (*Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byAccession[accession]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStudyStore) Create(_ context.Context, st *Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byAccession[st.AccessionNumber]; exists {
		return ErrAlreadyExists
	}
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	cp := *st
	s.byAccession[st.AccessionNumber] = &cp
	return nil
}

func (s *MemoryStudyStore) Update(_ context.Context, st *Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byAccession[st.AccessionNumber]
	if !ok || existing.ID != st.ID {
		return ErrNotFound
	}
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	cp := *st
	s.byAccession[st.AccessionNumber] = &cp
	return nil
}

// Count returns the number of stored studies.
func (s *MemoryStudyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAccession)
}
