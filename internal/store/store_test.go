package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should succeed when ping succeeds", func(t *testing.T) {
		_, mockPool := newMockStore(t)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t)
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateCycleLogs)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAppend(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := schemas.AuditRecord{
		RunID:      "run-1",
		AIName:     "Scribe",
		RunStarted: started,
		Cycle:      3,
		Channel:    schemas.ChannelNextAction,
		Payload:    map[string]any{"command": map[string]any{"name": "read_file"}},
		RecordedAt: started.Add(time.Minute),
	}

	t.Run("inserts one row", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertCycleLog)).
			WithArgs("run-1", "Scribe", started, 3, "next_action",
				[]byte(`{"command":{"name":"read_file"}}`), started.Add(time.Minute)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Append(context.Background(), rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("nil payload stored as empty object", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		empty := rec
		empty.Payload = nil
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertCycleLog)).
			WithArgs("run-1", "Scribe", started, 3, "next_action", []byte("{}"), started.Add(time.Minute)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Append(context.Background(), empty))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertCycleLog)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(dbErr)

		err := s.Append(context.Background(), rec)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "cycle 3, channel next_action")
	})
}

func TestRecordsForRun(t *testing.T) {
	s, mockPool := newMockStore(t)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"run_id", "ai_name", "run_started", "cycle", "channel", "payload", "recorded_at"}).
		AddRow("run-1", "Scribe", started, 1, "full_message_history", []byte(`[]`), started).
		AddRow("run-1", "Scribe", started, 1, "next_action", []byte(`{"a":1}`), started)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).WithArgs("run-1").WillReturnRows(rows)

	records, err := s.RecordsForRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, schemas.ChannelFullHistory, records[0].Channel)
	assert.Equal(t, jsoniter.RawMessage(`{"a":1}`), records[1].Payload)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
