package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const sqlCreateCycleLogs = `
        CREATE TABLE IF NOT EXISTS cycle_logs (
            id          BIGSERIAL PRIMARY KEY,
            run_id      TEXT        NOT NULL,
            ai_name     TEXT        NOT NULL,
            run_started TIMESTAMPTZ NOT NULL,
            cycle       INTEGER     NOT NULL,
            channel     TEXT        NOT NULL,
            payload     JSONB       NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS cycle_logs_run_idx ON cycle_logs (run_id, cycle);
    `

const sqlInsertCycleLog = `
        INSERT INTO cycle_logs (run_id, ai_name, run_started, cycle, channel, payload, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `

const sqlSelectRun = `
        SELECT run_id, ai_name, run_started, cycle, channel, payload, recorded_at
        FROM cycle_logs
        WHERE run_id = $1
        ORDER BY cycle ASC, id ASC;
    `

// Store is the PostgreSQL audit sink. It implements schemas.AuditSink.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the cycle_logs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateCycleLogs); err != nil {
		return fmt.Errorf("failed to create cycle_logs table: %w", err)
	}
	return nil
}

// Append inserts one audit record.
func (s *Store) Append(ctx context.Context, rec schemas.AuditRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	if len(payload) == 0 || string(payload) == "null" {
		payload = []byte("{}")
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = s.pool.Exec(ctx, sqlInsertCycleLog,
		rec.RunID, rec.AIName, rec.RunStarted.UTC(), rec.Cycle, string(rec.Channel), payload, recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert cycle log (cycle %d, channel %s): %w", rec.Cycle, rec.Channel, err)
	}
	return nil
}

// RecordsForRun returns every record of a run in cycle order. Payloads come
// back as raw JSON.
func (s *Store) RecordsForRun(ctx context.Context, runID string) ([]schemas.AuditRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle logs: %w", err)
	}
	defer rows.Close()

	var records []schemas.AuditRecord
	for rows.Next() {
		var rec schemas.AuditRecord
		var channel string
		var payload []byte
		if err := rows.Scan(&rec.RunID, &rec.AIName, &rec.RunStarted, &rec.Cycle, &channel, &payload, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle log row: %w", err)
		}
		rec.Channel = schemas.AuditChannel(channel)
		rec.Payload = jsoniter.RawMessage(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// Close releases the pool if it can be closed.
func (s *Store) Close() error {
	if c, ok := s.pool.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
