package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventConnectionAccepted EventType = "connection_accepted"
	EventBackendSelected    EventType = "backend_selected"
	EventRelayCompleted     EventType = "relay_completed"
	EventRelayFailed        EventType = "relay_failed"
	EventNoBackend          EventType = "no_backend"
	EventHealthChanged      EventType = "health_changed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Duration  time.Duration
	BytesIn   int64
	BytesOut  int64
	Available bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit queues an event without blocking. It is safe to call on a nil
// Collector, which discards the event.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.logger.Debug("Metrics buffer full, dropping event",
			slog.String("type", string(event.Type)))
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventConnectionAccepted:
		c.metrics.IncrementConnections()

	case EventNoBackend:
		c.metrics.IncrementRejected()

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventRelayCompleted:
		c.metrics.RecordRelay(event.Backend, event.Duration, event.BytesIn, event.BytesOut)

	case EventRelayFailed:
		c.metrics.RecordFailure(event.Backend)

	case EventHealthChanged:
		c.metrics.UpdateAvailability(event.Backend, event.Available)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
