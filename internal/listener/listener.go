package listener

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/angeloszaimis/tcp-load-balancer/config"
	"github.com/angeloszaimis/tcp-load-balancer/internal/task"
)

// ConnHandler serves a single accepted connection and is responsible for
// closing it.
type ConnHandler interface {
	Handle(ctx context.Context, conn net.Conn) error
}

const (
	minRetryDelay = 5 * time.Millisecond
	maxRetryDelay = time.Second
)

var temporaryErrnos = []error{
	syscall.EMFILE,
	syscall.ENFILE,
	syscall.ENOBUFS,
	syscall.ENOMEM,
	syscall.ECONNABORTED,
}

type Option func(*Listener)

// WithMaxConnections bounds the number of connections handled at once.
// Accepting pauses while the bound is reached. Zero means unbounded.
func WithMaxConnections(n int64) Option {
	return func(l *Listener) {
		if n > 0 {
			l.slots = semaphore.NewWeighted(n)
		}
	}
}

type Listener struct {
	addr    string
	handler ConnHandler
	logger  *slog.Logger
	slots   *semaphore.Weighted
}

// New creates a Listener for addr. The address is validated before any
// socket is opened.
func New(addr string, handler ConnHandler, logger *slog.Logger, opts ...Option) (*Listener, error) {
	if err := config.ValidateHostPort(addr); err != nil {
		return nil, err
	}

	l := &Listener{
		addr:    addr,
		handler: handler,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// ListenAndServe binds the configured address and serves until ctx is done.
func (l *Listener) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}

	return l.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, which closes ln
// and returns nil. In-flight connections are not waited for. Accept errors
// caused by resource exhaustion are retried with a capped backoff.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	l.logger.Info("Load balancer listening", slog.String("addr", ln.Addr().String()))

	var retryDelay time.Duration

	for {
		if l.slots != nil {
			if err := l.slots.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			l.release()

			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if !isTemporary(err) {
				return err
			}

			if retryDelay == 0 {
				retryDelay = minRetryDelay
			} else {
				retryDelay = min(2*retryDelay, maxRetryDelay)
			}

			l.logger.Warn("Accept error, retrying",
				slog.Any("err", err),
				slog.Duration("delay", retryDelay))

			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		retryDelay = 0

		l.logger.Info("Received connection", slog.String("from", conn.RemoteAddr().String()))

		task.Spawn(l.logger, "relay "+conn.RemoteAddr().String(), func() error {
			defer l.release()
			return l.handler.Handle(ctx, conn)
		})
	}
}

// isTemporary reports whether an accept error is worth retrying: the
// process or system ran out of descriptors or buffers, the peer aborted
// before the connection was accepted, or a deadline expired.
func isTemporary(err error) bool {
	for _, errno := range temporaryErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (l *Listener) release() {
	if l.slots != nil {
		l.slots.Release(1)
	}
}
