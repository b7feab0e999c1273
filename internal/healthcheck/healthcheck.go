package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/tcp-load-balancer/internal/backend"
	"github.com/angeloszaimis/tcp-load-balancer/internal/metrics"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Checker probes backends and records the result as their availability.
type Checker struct {
	prober    Prober
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	collector *metrics.Collector
}

// NewChecker creates a Checker. A nil collector disables metrics events.
func NewChecker(
	prober Prober,
	interval time.Duration,
	timeout time.Duration,
	logger *slog.Logger,
	collector *metrics.Collector,
) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Checker{
		prober:    prober,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
		collector: collector,
	}
}

// Start launches one checking loop per backend.
func (c *Checker) Start(ctx context.Context, backends []*backend.Backend) {
	for _, b := range backends {
		go c.Run(ctx, b)
	}
}

// Run probes b, then sleeps the fixed interval, until ctx is cancelled.
func (c *Checker) Run(ctx context.Context, b *backend.Backend) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check stopped",
				slog.String("backend", b.Address()))
			return

		case <-timer.C:
			// A probe cut short by shutdown would mark b unavailable.
			if ctx.Err() != nil {
				c.logger.Info("Health check stopped",
					slog.String("backend", b.Address()))
				return
			}
			c.Check(ctx, b)
			timer.Reset(c.interval)
		}
	}
}

// Check runs a single probe against b and stores the outcome.
func (c *Checker) Check(ctx context.Context, b *backend.Backend) backend.State {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.prober.Probe(probeCtx, b.Address())

	state := backend.StateAvailable
	if err != nil {
		state = backend.StateUnavailable
	}
	changed := b.SetState(state)

	attrs := []any{
		slog.String("backend", b.Address()),
		slog.String("state", state.String()),
		slog.Bool("changed", changed),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
		c.logger.Info("Health probe failed", attrs...)
	} else {
		c.logger.Info("Health probe passed", attrs...)
	}

	if changed {
		c.collector.Emit(metrics.MetricEvent{
			Type:      metrics.EventHealthChanged,
			Backend:   b.Address(),
			Available: state == backend.StateAvailable,
		})
	}

	return state
}
