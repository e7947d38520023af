package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// translate maps driver errors onto the store sentinels.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

// -- Patient store --

type PostgresPatientStore struct {
	pool *pgxpool.Pool
}

func NewPostgresPatientStore(pool *pgxpool.Pool) *PostgresPatientStore {
	return &PostgresPatientStore{pool: pool}
}

const patientCols = `id, external_id, first_name, middle_name, last_name, date_of_birth, sex, phone,
	address_line1, address_line2, city, state, postal_code, country, portal_user_id,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.ExternalID, &p.FirstName, &p.MiddleName, &p.LastName, &p.DateOfBirth, &p.Sex, &p.Phone,
		&p.AddressLine1, &p.AddressLine2, &p.City, &p.State, &p.PostalCode, &p.Country, &p.PortalUserID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresPatientStore) FindByExternalID(ctx context.Context, externalID string) (*Patient, error) {
	p, err := scanPatient(s.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, translate(err, "hasta sorgulanamadı")
	}
	return p, nil
}

func (s *PostgresPatientStore) FindByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(s.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err, "hasta sorgulanamadı")
	}
	return p, nil
}

func (s *PostgresPatientStore) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO patients (`+patientCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.ExternalID, p.FirstName, p.MiddleName, p.LastName, p.DateOfBirth, p.Sex, p.Phone,
		p.AddressLine1, p.AddressLine2, p.City, p.State, p.PostalCode, p.Country, p.PortalUserID,
		p.CreatedAt, p.UpdatedAt,
	)
	return translate(err, "hasta oluşturulamadı")
}

func (s *PostgresPatientStore) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE patients SET
			external_id=$2, first_name=$3, middle_name=$4, last_name=$5, date_of_birth=$6, sex=$7, phone=$8,
			address_line1=$9, address_line2=$10, city=$11, state=$12, postal_code=$13, country=$14,
			portal_user_id=$15, updated_at=$16
		WHERE id = $1`,
		p.ID, p.ExternalID, p.FirstName, p.MiddleName, p.LastName, p.DateOfBirth, p.Sex, p.Phone,
		p.AddressLine1, p.AddressLine2, p.City, p.State, p.PostalCode, p.Country,
		p.PortalUserID, p.UpdatedAt,
	)
	if err != nil {
		return translate(err, "hasta güncellenemedi")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// -- Study store --

type PostgresStudyStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStudyStore(pool *pgxpool.Pool) *PostgresStudyStore {
	return &PostgresStudyStore{pool: pool}
}

const studyCols = `id, accession_number, patient_id, description, ordering_physician, interpreter, status,
	report_text, impression, findings, technique, clinical_history, report_confidence, reported_at,
	created_at, updated_at`

func (s *PostgresStudyStore) FindByAccessionNumber(ctx context.Context, accession string) (*Study, error) {
	var st Study
	err := s.pool.QueryRow(ctx, `SELECT `+studyCols+` FROM studies WHERE accession_number = $1`, accession).Scan(
		&st.ID, &st.AccessionNumber, &st.PatientID, &st.Description, &st.OrderingPhysician, &st.Interpreter, &st.Status,
		&st.ReportText, &st.Impression, &st.Findings, &st.Technique, &st.ClinicalHistory, &st.ReportConfidence, &st.ReportedAt,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, translate(err, "çalışma sorgulanamadı")
	}
	return &st, nil
}

func (s *PostgresStudyStore) Create(ctx context.Context, st *Study) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO studies (`+studyCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		st.ID, st.AccessionNumber, st.PatientID, st.Description, st.OrderingPhysician, st.Interpreter, st.Status,
		st.ReportText, st.Impression, st.Findings, st.Technique, st.ClinicalHistory, st.ReportConfidence, st.ReportedAt,
		st.CreatedAt, st.UpdatedAt,
	)
	return translate(err, "çalışma oluşturulamadı")
}

func (s *PostgresStudyStore) Update(ctx context.Context, st *Study) error {
	st.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE studies SET
			description=$2, ordering_physician=$3, interpreter=$4, status=$5,
			report_text=$6, impression=$7, findings=$8, technique=$9, clinical_history=$10,
			report_confidence=$11, reported_at=$12, updated_at=$13
		WHERE id = $1`,
		st.ID, st.Description, st.OrderingPhysician, st.Interpreter, st.Status,
		st.ReportText, st.Impression, st.Findings, st.Technique, st.ClinicalHistory,
		st.ReportConfidence, st.ReportedAt, st.UpdatedAt,
	)
	if err != nil {
		return translate(err, "çalışma güncellenemedi")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
