package db

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKey_Stable(t *testing.T) {
	assert.Equal(t, LockKey("pipeline"), LockKey("pipeline"))
	assert.NotEqual(t, LockKey("pipeline"), LockKey("enrichment"))
}

func TestTryXactLock_Acquired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT pg_try_advisory_xact_lock").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectRollback()

	tx, ok, err := TryXactLock(context.Background(), mock, 42)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tx.Rollback(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryXactLock_Held(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT pg_try_advisory_xact_lock").
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(false))
	mock.ExpectRollback()

	tx, ok, err := TryXactLock(context.Background(), mock, 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, tx)
	assert.NoError(t, mock.ExpectationsWereMet())
}
