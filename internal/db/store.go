package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("kayıt bulunamadı")
	ErrAlreadyExists = errors.New("kayıt zaten mevcut")
)

// PatientStore persists patients keyed by the RIS external patient ID.
// Create returns ErrAlreadyExists when the external ID is taken.
type PatientStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*Patient, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
}

// StudyStore persists studies keyed by accession number.
// Create returns ErrAlreadyExists when the accession number is taken.
type StudyStore interface {
	FindByAccessionNumber(ctx context.Context, accession string) (*Study, error)
	Create(ctx context.Context, s *Study) error
	Update(ctx context.Context, s *Study) error
}
