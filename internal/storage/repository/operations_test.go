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

func TestStorage_GetOperation(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		storage, mock := newMockStorage(t, Options{})
		now := time.Now()
		mock.ExpectQuery(`SELECT .+ FROM operations WHERE id = \$1`).
			WithArgs(testOperationID).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "user_uid", "credit_type_used", "credit_refunded", "status", "created_at", "updated_at",
			}).AddRow(testOperationID, testUserUID, "token", false, "processing", now, now))

		o, err := storage.GetOperation(context.Background(), testOperationID)
		require.NoError(t, err)
		assert.Equal(t, testUserUID, o.UserUID)
		assert.Equal(t, models.CreditToken, o.CreditTypeUsed)
		assert.Equal(t, models.OperationProcessing, o.Status)
		assert.False(t, o.CreditRefunded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		storage, mock := newMockStorage(t, Options{})
		mock.ExpectQuery(`FROM operations`).
			WithArgs(testOperationID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := storage.GetOperation(context.Background(), testOperationID)
		assert.ErrorIs(t, err, models.ErrOperationNotFound)
		assert.Contains(t, err.Error(), "storage.GetOperation")
	})
}

func TestStorage_UpdateOperationStatus(t *testing.T) {
	tests := []struct {
		name        string
		affected    int64
		wantChanged bool
	}{
		{name: "pending operation moves", affected: 1, wantChanged: true},
		{name: "finished or unknown operation is left alone", affected: 0, wantChanged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, mock := newMockStorage(t, Options{})
			mock.ExpectExec(`UPDATE operations SET status = \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND status IN \('pending', 'processing'\)`).
				WithArgs(testOperationID, "completed").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			changed, err := storage.UpdateOperationStatus(context.Background(), testOperationID, models.OperationCompleted)
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
