package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("veritabanı adresi çözümlenemedi: %w", err)
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bağlantı havuzu oluşturulamadı: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("veritabanına erişilemedi: %w", err)
	}

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id             UUID PRIMARY KEY,
	external_id    TEXT NOT NULL UNIQUE,
	first_name     TEXT NOT NULL DEFAULT '',
	middle_name    TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	date_of_birth  DATE,
	sex            TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	address_line1  TEXT NOT NULL DEFAULT '',
	address_line2  TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	country        TEXT NOT NULL DEFAULT '',
	portal_user_id TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS studies (
	id                 UUID PRIMARY KEY,
	accession_number   TEXT NOT NULL UNIQUE,
	patient_id         UUID NOT NULL REFERENCES patients(id),
	description        TEXT NOT NULL DEFAULT '',
	ordering_physician TEXT NOT NULL DEFAULT '',
	interpreter        TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	report_text        TEXT NOT NULL DEFAULT '',
	impression         TEXT NOT NULL DEFAULT '',
	findings           TEXT NOT NULL DEFAULT '',
	technique          TEXT NOT NULL DEFAULT '',
	clinical_history   TEXT NOT NULL DEFAULT '',
	report_confidence  TEXT NOT NULL DEFAULT '',
	reported_at        TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables used by the Postgres stores.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("şema oluşturulamadı: %w", err)
	}
	return nil
}
