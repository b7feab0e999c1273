package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/angeloszaimis/tcp-load-balancer/internal/backend"
	"github.com/angeloszaimis/tcp-load-balancer/internal/metrics"
)

const (
	chunkSize          = 1024
	DefaultDialTimeout = 5 * time.Second
)

var requestTerminator = []byte("\r\n\r\n")

// Selector picks the backend for a connection.
type Selector interface {
	Select() (*backend.Backend, error)
}

type Options struct {
	// DialTimeout bounds connecting to a backend. Zero means DefaultDialTimeout.
	DialTimeout time.Duration
	// ReadTimeout bounds reading the client request and the backend
	// response. Zero disables the deadline.
	ReadTimeout time.Duration
}

type Handler struct {
	logger      *slog.Logger
	selector    Selector
	collector   *metrics.Collector
	dialer      net.Dialer
	readTimeout time.Duration
}

// NewHandler creates a Handler. A nil collector disables metrics events.
func NewHandler(logger *slog.Logger, selector Selector, collector *metrics.Collector, opts Options) *Handler {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	return &Handler{
		logger:      logger,
		selector:    selector,
		collector:   collector,
		dialer:      net.Dialer{Timeout: dialTimeout},
		readTimeout: opts.ReadTimeout,
	}
}

// Handle relays one client connection and closes it. The returned error
// names the phase the connection failed in.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	h.collector.Emit(metrics.MetricEvent{Type: metrics.EventConnectionAccepted})

	phase := PhaseReading
	defer func() {
		h.logger.Debug("Connection closed",
			slog.String("client", conn.RemoteAddr().String()),
			slog.String("phase", phase.String()))
	}()

	fail := func(err error) error {
		failed := phase
		phase = PhaseFailed
		return fmt.Errorf("%s: %w", failed, err)
	}

	if h.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			return fail(&ClientIOError{Op: "set deadline", Err: err})
		}
	}

	request, err := ReadRequest(conn)
	if err != nil {
		return fail(&ClientIOError{Op: "read", Err: err})
	}

	phase = PhaseSelecting
	chosen, err := h.selector.Select()
	if err != nil {
		h.collector.Emit(metrics.MetricEvent{Type: metrics.EventNoBackend})
		return fail(err)
	}

	h.collector.Emit(metrics.MetricEvent{
		Type:    metrics.EventBackendSelected,
		Backend: chosen.Address(),
	})

	chosen.IncrementRelays()
	defer chosen.DecrementRelays()

	phase = PhaseForwarding
	start := time.Now()

	h.logger.Debug("Forwarding to backend",
		slog.String("client", conn.RemoteAddr().String()),
		slog.String("backend", chosen.Address()),
		slog.Int("bytes", len(request)))

	relayFailed := func(err error) error {
		h.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventRelayFailed,
			Backend: chosen.Address(),
		})
		return fail(err)
	}

	response, err := h.forward(ctx, chosen.Address(), request)
	if err != nil {
		return relayFailed(err)
	}

	phase = PhaseRelayingResponse
	if _, err := conn.Write(response); err != nil {
		return relayFailed(&ClientIOError{Op: "write", Err: err})
	}

	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return relayFailed(&ClientIOError{Op: "shutdown", Err: err})
		}
	}

	phase = PhaseClosed
	duration := time.Since(start)

	h.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventRelayCompleted,
		Backend:  chosen.Address(),
		Duration: duration,
		BytesIn:  int64(len(request)),
		BytesOut: int64(len(response)),
	})

	h.logger.Debug("Relay completed",
		slog.String("client", conn.RemoteAddr().String()),
		slog.String("backend", chosen.Address()),
		slog.Duration("duration", duration))

	return nil
}

// forward sends request to addr and returns everything the backend writes
// before closing its side. No lock is held here.
func (h *Handler) forward(ctx context.Context, addr string, request []byte) ([]byte, error) {
	conn, err := h.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &BackendIOError{Backend: addr, Op: "dial", Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write(request); err != nil {
		return nil, &BackendIOError{Backend: addr, Op: "write", Err: err}
	}

	if h.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			return nil, &BackendIOError{Backend: addr, Op: "set deadline", Err: err}
		}
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return nil, &BackendIOError{Backend: addr, Op: "read", Err: err}
	}

	return response, nil
}

// ReadRequest reads from r until the accumulated bytes contain \r\n\r\n or
// r reports EOF. Everything read is returned, including any bytes after the
// terminator that arrived in the same read.
func ReadRequest(r io.Reader) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, chunkSize)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			// The terminator may straddle two reads.
			searchFrom := max(0, len(buf)-len(requestTerminator)+1)
			buf = append(buf, chunk[:n]...)

			if bytes.Contains(buf[searchFrom:], requestTerminator) {
				return buf, nil
			}
		}

		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}
