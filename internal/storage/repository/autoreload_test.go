package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credit-engine/internal/models"
)

const testReloadKey = "2f1c3b7a-5d0e-5b8c-9a41-7e6d2c1b0a99"

func TestStorage_ClaimReload(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		affected  int64
		wantClaim bool
	}{
		{name: "claimed", affected: 1, wantClaim: true},
		{name: "throttled or disabled", affected: 0, wantClaim: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t, Options{})
			mock.ExpectExec(`UPDATE accounts SET last_reload_at = \$2, reload_pending_key = \$5`).
				WithArgs(testUserUID, now, now.Add(-time.Minute), 3, testReloadKey).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := storage.ClaimReload(context.Background(), testUserUID, now, time.Minute, 3, testReloadKey)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClaim, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecordReloadFailure(t *testing.T) {
	tests := []struct {
		name string
		rows *sqlmock.Rows
		want models.ReloadFailure
	}{
		{
			name: "below the limit",
			rows: sqlmock.NewRows([]string{"auto_reload_failure_count", "auto_reload_enabled"}).AddRow(2, true),
			want: models.ReloadFailure{Settled: true, FailureCount: 2},
		},
		{
			name: "breaker trips",
			rows: sqlmock.NewRows([]string{"auto_reload_failure_count", "auto_reload_enabled"}).AddRow(3, false),
			want: models.ReloadFailure{Settled: true, FailureCount: 3, Disabled: true},
		},
		{
			name: "attempt already settled",
			rows: sqlmock.NewRows([]string{"auto_reload_failure_count", "auto_reload_enabled"}),
			want: models.ReloadFailure{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t, Options{})
			mock.ExpectQuery(`auto_reload_failure_count = LEAST\(auto_reload_failure_count \+ 1, \$3\)(.|\n)*WHERE user_uid = \$1 AND reload_pending_key = \$2`).
				WithArgs(testUserUID, testReloadKey, 3).
				WillReturnRows(tt.rows)

			got, err := storage.RecordReloadFailure(context.Background(), testUserUID, testReloadKey, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecordReloadSuccess(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		wantSettled bool
	}{
		{name: "pending attempt settles", affected: 1, wantSettled: true},
		{name: "duplicate confirmation is ignored", affected: 0, wantSettled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t, Options{})
			mock.ExpectExec(`UPDATE accounts SET auto_reload_failure_count = 0, reload_pending_key = NULL(.|\n)*WHERE user_uid = \$1 AND reload_pending_key = \$2`).
				WithArgs(testUserUID, testReloadKey).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := storage.RecordReloadSuccess(context.Background(), testUserUID, testReloadKey)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSettled, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
