// File: cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hpcloud/tail"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/autopilot-cli/internal/observability"
	"github.com/xkilldash9x/autopilot-cli/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newLogsCmd() *cobra.Command {
	var (
		follow bool
		runID  string
		level  string
	)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the application log, or the audit trail of one run",
		Long: `Without flags, prints the JSON application log written to logger.log_file.
With --run, prints every audit record stored in audit.database_url for that run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfig(cmd)
			if err != nil {
				return err
			}
			if runID != "" {
				return printRunRecords(cmd.Context(), cfg.Audit().DatabaseURL, runID, cmd.OutOrStdout())
			}

			minLevel, err := zapcore.ParseLevel(level)
			if err != nil {
				return fmt.Errorf("invalid --level: %w", err)
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return fmt.Errorf("logger.log_file is not configured")
			}
			return tailLog(cmd.Context(), path, follow, minLevel, cmd.OutOrStdout())
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are appended.")
	logsCmd.Flags().StringVar(&runID, "run", "", "Print the audit records of this run ID from the database.")
	logsCmd.Flags().StringVar(&level, "level", "debug", "Only print entries at or above this level.")

	return logsCmd
}

// tailLog copies the log at path to out, keeping entries at or above minLevel.
// Lines that are not JSON log entries are always printed.
func tailLog(ctx context.Context, path string, follow bool, minLevel zapcore.Level, out io.Writer) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				observability.GetLogger().Debug("Error reading from log file.")
				continue
			}
			if !atLeast(line.Text, minLevel) {
				continue
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

func atLeast(text string, minLevel zapcore.Level) bool {
	var entry struct {
		Level string `json:"level"`
	}
	if err := json.UnmarshalFromString(text, &entry); err != nil || entry.Level == "" {
		return true
	}
	lvl, err := zapcore.ParseLevel(entry.Level)
	if err != nil {
		return true
	}
	return lvl >= minLevel
}

// printRunRecords writes the audit records of runID as JSON lines.
func printRunRecords(ctx context.Context, databaseURL, runID string, out io.Writer) error {
	if databaseURL == "" {
		return fmt.Errorf("audit.database_url is required to read a run's records")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return writeRunRecords(ctx, pool, runID, out)
}

func writeRunRecords(ctx context.Context, pool store.DBPool, runID string, out io.Writer) error {
	dbStore, err := store.New(ctx, pool, observability.GetLogger())
	if err != nil {
		return err
	}
	records, err := dbStore.RecordsForRun(ctx, runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no audit records found for run %s", runID)
	}
	enc := json.NewEncoder(out)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	return nil
}
