// internal/ledger/attempts_test.go
package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-gateway/internal/models"
)

func TestAttemptCreateInsertsPendingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAttemptStore(db)
	attempt := &models.DeliveryAttempt{
		ID:            "att-1",
		JobID:         "job-1",
		TenantID:      "t1",
		PlatformID:    "pf-1",
		PlatformType:  "telegram",
		AddresseeType: "user",
		AddresseeID:   "12345",
		Status:        models.AttemptStatusPending,
	}

	mock.ExpectExec("INSERT INTO delivery_attempts").
		WithArgs("att-1", "job-1", "t1", "pf-1", "telegram", "user", "12345",
			models.AttemptStatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), attempt))
	assert.False(t, attempt.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptMarkSentGuardsPendingStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAttemptStore(db)

	mock.ExpectExec("UPDATE delivery_attempts").
		WithArgs("att-1", models.AttemptStatusSent, "msg-9", sqlmock.AnyArg(), models.AttemptStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkSent(context.Background(), "att-1", "msg-9"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptMarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAttemptStore(db)

	mock.ExpectExec("UPDATE delivery_attempts").
		WithArgs("att-1", models.AttemptStatusFailed, "connection reset", sqlmock.AnyArg(), models.AttemptStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkFailed(context.Background(), "att-1", "connection reset"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSentReturnsNilWhenAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAttemptStore(db)

	mock.ExpectQuery("SELECT (.+) FROM delivery_attempts").
		WithArgs("job-1", "pf-1", "user", "12345", models.AttemptStatusSent).
		WillReturnRows(sqlmock.NewRows(nil))

	found, err := store.FindSent(context.Background(), "job-1", "pf-1", "user", "12345")
	require.NoError(t, err)
	assert.Nil(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSentReturnsPriorAttempt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAttemptStore(db)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "job_id", "tenant_id", "platform_id", "platform_type",
		"addressee_type", "addressee_id", "status", "provider_message_id",
		"error_message", "created_at", "updated_at",
	}).AddRow(
		"att-1", "job-1", "t1", "pf-1", "telegram",
		"user", "12345", models.AttemptStatusSent, "msg-9", "", now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM delivery_attempts").
		WithArgs("job-1", "pf-1", "user", "12345", models.AttemptStatusSent).
		WillReturnRows(rows)

	found, err := store.FindSent(context.Background(), "job-1", "pf-1", "user", "12345")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "att-1", found.ID)
	assert.Equal(t, "msg-9", found.ProviderMessageID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByJobTargetReportsRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewAttemptStore(db)

	mock.ExpectExec("UPDATE delivery_attempts").
		WithArgs("job-1", "pf-1", "12345", models.AttemptStatusFailed, "worker crashed",
			sqlmock.AnyArg(), models.AttemptStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 2))

	updated, err := store.UpdateByJobTarget(context.Background(),
		"job-1", "pf-1", "12345", models.AttemptStatusFailed, "worker crashed")
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)
	require.NoError(t, mock.ExpectationsWereMet())
}
