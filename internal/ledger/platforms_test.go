// internal/ledger/platforms_test.go
package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func platformRows(active bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "type", "name", "credentials", "active", "created_at", "updated_at",
	}).AddRow("pf-1", "t1", "telegram", "Support Bot", "iv:tag:cipher", active, now, now)
}

func TestPlatformGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPlatformStore(db)

	mock.ExpectQuery("SELECT (.+) FROM platforms").
		WithArgs("pf-1", "t1").
		WillReturnRows(platformRows(true))

	p, err := store.Get(context.Background(), "pf-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "telegram", p.Type)
	assert.Equal(t, "iv:tag:cipher", p.Credentials)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlatformGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPlatformStore(db)

	// A foreign-tenant row is filtered by the WHERE clause, so it surfaces
	// exactly like a missing one.
	mock.ExpectQuery("SELECT (.+) FROM platforms").
		WithArgs("pf-1", "other-tenant").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = store.Get(context.Background(), "pf-1", "other-tenant")
	assert.ErrorIs(t, err, ErrPlatformNotFound)
}

func TestPlatformGetInactive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPlatformStore(db)

	mock.ExpectQuery("SELECT (.+) FROM platforms").
		WithArgs("pf-1", "t1").
		WillReturnRows(platformRows(false))

	_, err = store.Get(context.Background(), "pf-1", "t1")
	assert.ErrorIs(t, err, ErrPlatformInactive)
}
