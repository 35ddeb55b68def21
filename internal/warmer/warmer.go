// Package warmer pre-populates the page cache for the known hot
// (table, group) combinations before interactive traffic arrives. The
// sweep is strictly sequential and self-throttled with fixed delays on
// top of the shared limiter: the upstream is fragile enough that the
// warmer never trusts admission control alone.
package warmer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/metrics"
	"snowgate/internal/query"
)

// Source is the cache read path the warmer drives. Satisfied by
// *query.Service.
type Source interface {
	Paginated(ctx context.Context, req query.Request) (*query.PageResult, error)
}

// Combo is one (table, group) combination to keep warm.
type Combo struct {
	Table string
	Group string
}

type Config struct {
	Combos []Combo
	// States are the query shapes warmed per combo; defaults to the
	// unfiltered view plus open tickets.
	States   []string
	PageSize int

	QueryDelay      time.Duration // between queries within a combo
	ComboDelay      time.Duration // between combos
	FailureCooldown time.Duration // after a failed combo
}

func (c Config) withDefaults() Config {
	if len(c.States) == 0 {
		c.States = []string{"all", "3"}
	}
	if c.PageSize <= 0 {
		c.PageSize = 10
	}
	if c.QueryDelay <= 0 {
		c.QueryDelay = 1500 * time.Millisecond
	}
	if c.ComboDelay <= 0 {
		c.ComboDelay = 3 * time.Second
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = 5 * time.Second
	}
	return c
}

type Warmer struct {
	state  *State
	source Source
	cfg    Config
	logger *zap.Logger

	// sleep is replaced in tests so sweeps run instantly.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(state *State, source Source, cfg Config, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{
		state:  state,
		source: source,
		cfg:    cfg.withDefaults(),
		logger: logger.Named("warmer"),
		sleep:  sleepCtx,
	}
}

// WarmAll runs one warming sweep. It is a no-op while a sweep is in
// progress or after one has completed; at most one sweep runs per
// process lifetime. A failed combo is logged and skipped; only a
// sweep-level failure (context cancellation) aborts, leaving the state
// eligible for a later trigger.
func (w *Warmer) WarmAll(ctx context.Context) error {
	if !w.state.begin() {
		inProgress, completed := w.state.Snapshot()
		w.logger.Debug("warm sweep skipped",
			zap.Bool("in_progress", inProgress),
			zap.Bool("completed", completed),
		)
		return nil
	}

	completed := false
	defer w.state.finish(completed)

	start := time.Now()
	w.logger.Info("warm sweep starting", zap.Int("combos", len(w.cfg.Combos)))

	for i, combo := range w.cfg.Combos {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.warmCombo(ctx, combo); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			metrics.WarmerComboFailuresTotal.Inc()
			w.logger.Warn("warm combo failed, continuing sweep",
				zap.String("table", combo.Table),
				zap.String("group", combo.Group),
				zap.Error(err),
			)
			if err := w.sleep(ctx, w.cfg.FailureCooldown); err != nil {
				return err
			}
			continue
		}

		if i < len(w.cfg.Combos)-1 {
			if err := w.sleep(ctx, w.cfg.ComboDelay); err != nil {
				return err
			}
		}
	}

	completed = true
	metrics.WarmerSweepsTotal.Inc()
	w.logger.Info("warm sweep completed",
		zap.Int("combos", len(w.cfg.Combos)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// warmCombo walks the query shapes for one combination, one upstream
// call at a time, never in parallel.
func (w *Warmer) warmCombo(ctx context.Context, combo Combo) error {
	for j, state := range w.cfg.States {
		res, err := w.source.Paginated(ctx, query.Request{
			Entity:     combo.Table,
			Group:      combo.Group,
			State:      state,
			Page:       1,
			PageSize:   w.cfg.PageSize,
			Background: true,
		})
		if err != nil {
			return err
		}

		w.logger.Debug("warmed query",
			zap.String("table", combo.Table),
			zap.String("group", combo.Group),
			zap.String("state", state),
			zap.Int("records", len(res.Data)),
			zap.Bool("degraded", res.Degraded),
		)

		if j < len(w.cfg.States)-1 {
			if err := w.sleep(ctx, w.cfg.QueryDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// Status reports the lifecycle flags for the status endpoint.
func (w *Warmer) Status() (inProgress, completed bool) {
	return w.state.Snapshot()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
