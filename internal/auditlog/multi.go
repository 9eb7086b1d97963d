// File: internal/auditlog/multi.go
package auditlog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/autopilot-cli/api/schemas"
)

// Multi fans each record out to several sinks concurrently. A failing sink is
// logged and reported, but never stops the others.
type Multi struct {
	sinks  []schemas.AuditSink
	logger *zap.Logger
}

// NewMulti combines sinks. Nil sinks are dropped.
func NewMulti(logger *zap.Logger, sinks ...schemas.AuditSink) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{logger: logger.Named("audit")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len reports how many sinks are attached.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Append(ctx context.Context, rec schemas.AuditRecord) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range m.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Append(ctx, rec); err != nil {
				m.logger.Warn("Audit sink failed to record.",
					zap.Int("cycle", rec.Cycle),
					zap.String("channel", string(rec.Channel)),
					zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every record.
type Nop struct{}

func (Nop) Append(context.Context, schemas.AuditRecord) error { return nil }
func (Nop) Close() error                                      { return nil }
