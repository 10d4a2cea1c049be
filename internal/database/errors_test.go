package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: ErrConflict},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: ErrInvalid},
		{name: "bad uuid text", err: &pgconn.PgError{Code: "22P02"}, want: ErrInvalid},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_PassThrough(t *testing.T) {
	assert.NoError(t, Classify(nil))

	other := errors.New("something else")
	assert.Equal(t, other, Classify(other))

	syntax := &pgconn.PgError{Code: "42601"}
	assert.Equal(t, error(syntax), Classify(syntax))
}
