package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "pg foreign key", err: &pgconn.PgError{Code: "23503"}, want: ErrReferential},
		{name: "pg serialization", err: &pgconn.PgError{Code: "40001"}, want: ErrTransient},
		{name: "pg deadlock", err: &pgconn.PgError{Code: "40P01"}, want: ErrTransient},
		{name: "pg connection", err: &pgconn.PgError{Code: "08006"}, want: ErrTransient},
		{name: "sqlite foreign key", err: sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, want: ErrReferential},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: ErrTransient},
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			require.ErrorIs(t, got, tc.want)
			require.ErrorIs(t, got, tc.err)
		})
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	plain := errors.New("boom")
	require.Equal(t, plain, classify(plain))
	require.Nil(t, classify(nil))

	unique := &pgconn.PgError{Code: "23505"}
	require.False(t, IsTransient(classify(unique)))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(fmt.Errorf("x: %w", ErrTransient)))
	require.True(t, IsTransient(fmt.Errorf("x: %w", ErrConflict)))
	require.False(t, IsTransient(fmt.Errorf("x: %w", ErrNotFound)))
}
