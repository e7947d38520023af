package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil, "op"))
	assert.ErrorIs(t, translate(pgx.ErrNoRows, "select"), ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("scan: %w", pgx.ErrNoRows), "select"), ErrNotFound)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: "23505"}, "insert"), ErrAlreadyExists)

	other := errors.New("connection reset")
	err := translate(other, "insert patient")
	assert.ErrorIs(t, err, other)
	assert.Contains(t, err.Error(), "insert patient")
	assert.NotErrorIs(t, err, ErrAlreadyExists)
}
