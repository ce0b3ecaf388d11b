package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt_1", "payment_intent.succeeded").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt_1", "payment_intent.succeeded").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "inbox_events_pkey"})
	mock.ExpectExec("INSERT INTO inbox_events").
		WithArgs("evt_2", "payment_intent.succeeded").
		WillReturnError(errors.New("connection reset"))

	repo := NewRepository(mock)
	ctx := context.Background()

	fresh, err := repo.Record(ctx, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = repo.Record(ctx, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.False(t, fresh)

	_, err = repo.Record(ctx, "evt_2", "payment_intent.succeeded")
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryRelease(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM inbox_events").WithArgs("evt_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, NewRepository(mock).Release(context.Background(), "evt_1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	fresh, _ := m.Record(ctx, "e1", "t")
	assert.True(t, fresh)
	fresh, _ = m.Record(ctx, "e1", "t")
	assert.False(t, fresh)

	require.NoError(t, m.Release(ctx, "e1"))
	fresh, _ = m.Record(ctx, "e1", "t")
	assert.True(t, fresh)
}
