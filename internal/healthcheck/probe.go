package healthcheck

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/go-sql-driver/mysql"
)

// Prober checks whether the server at addr is alive. A nil error means the
// backend may receive traffic.
type Prober interface {
	Probe(ctx context.Context, addr string) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, addr string) error

func (f ProberFunc) Probe(ctx context.Context, addr string) error {
	return f(ctx, addr)
}

// NewHTTPProber issues GET http://<addr><path> and treats any 2xx as alive.
func NewHTTPProber(path string) Prober {
	client := &http.Client{}

	return ProberFunc(func(ctx context.Context, addr string) error {
		target := url.URL{Scheme: "http", Host: addr, Path: path}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return err
		}

		res, err := client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d", res.StatusCode)
		}

		return nil
	})
}

// NewTCPProber treats a completed TCP handshake as alive.
func NewTCPProber() Prober {
	return ProberFunc(func(ctx context.Context, addr string) error {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

// NewMySQLProber pings a MySQL server. The DSN supplies credentials and
// options; its address is replaced by the backend's on every probe.
func NewMySQLProber(dsn string) (Prober, error) {
	base, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	return ProberFunc(func(ctx context.Context, addr string) error {
		cfg := base.Clone()
		cfg.Net = "tcp"
		cfg.Addr = addr

		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return err
		}

		db := sql.OpenDB(connector)
		defer db.Close()

		return db.PingContext(ctx)
	}), nil
}

// NewProber builds the prober for a configured probe type.
func NewProber(kind, path, dsn string) (Prober, error) {
	switch kind {
	case "http", "":
		return NewHTTPProber(path), nil
	case "tcp":
		return NewTCPProber(), nil
	case "mysql":
		return NewMySQLProber(dsn)
	default:
		return nil, fmt.Errorf("unknown probe type %q", kind)
	}
}
