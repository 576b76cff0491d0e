package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/milk-back/backend/internal/config"
	"github.com/milk-back/backend/internal/model"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PostgresConfig
		want    string
		wantErr bool
	}{
		{
			name: "database-url-wins",
			cfg:  config.PostgresConfig{DatabaseURL: "postgres://u@h/db", User: "x", Database: "y"},
			want: "postgres://u@h/db",
		},
		{
			name: "parts-with-password",
			cfg:  config.PostgresConfig{User: "milk", Password: "secret", Database: "milk", Host: "db", Port: "6432"},
			want: "postgres://milk:secret@db:6432/milk?sslmode=disable",
		},
		{
			name: "defaults",
			cfg:  config.PostgresConfig{User: "milk", Database: "milk"},
			want: "postgres://milk@localhost:5432/milk?sslmode=disable",
		},
		{
			name:    "missing-user",
			cfg:     config.PostgresConfig{Database: "milk"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPostgresURL(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNotFoundMapsNoRows(t *testing.T) {
	_, err := notFound(nil, fmt.Errorf("scan: %w", pgx.ErrNoRows))
	require.ErrorIs(t, err, model.ErrUserNotFound)

	other := errors.New("boom")
	_, err = notFound(nil, other)
	require.ErrorIs(t, err, other)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, isUniqueViolation(errors.New("other")))
}
