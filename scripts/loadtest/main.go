// Loadtest opens raw TCP connections to the load balancer, sends one
// request on each and tallies which backend answered.
//
// Usage:
//
//	go run ./scripts/loadtest --addr 127.0.0.1:8080 --concurrency 10 --requests 1000
//	go run ./scripts/loadtest --addr 127.0.0.1:8080 --out summary.json
//
// The response body is used as the backend identity, which matches the
// "Hello from ..." bodies written by scripts/backend.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type backendStats struct {
	Count     int64           `json:"count"`
	Latencies []time.Duration `json:"-"`
}

type backendSummary struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
}

func main() {
	var (
		addr        = pflag.String("addr", "127.0.0.1:8080", "load balancer address")
		concurrency = pflag.Int("concurrency", 10, "number of concurrent connections")
		requests    = pflag.Int("requests", 100, "total number of connections to open")
		payload     = pflag.String("payload", "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n", "bytes sent on each connection")
		timeout     = pflag.Duration("timeout", 10*time.Second, "per-connection timeout")
		outJSON     = pflag.String("out", "", "write JSON summary to this file (optional)")
		verbose     = pflag.BoolP("verbose", "v", false, "log every connection")
	)
	pflag.Parse()

	var (
		success atomic.Int64
		empty   atomic.Int64
		failure atomic.Int64
		mu      sync.Mutex
		stats   = make(map[string]*backendStats)
	)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	testStart := time.Now()

	for i := 0; i < *requests; i++ {
		g.Go(func() error {
			start := time.Now()
			body, err := exchange(ctx, *addr, []byte(*payload), *timeout)
			dur := time.Since(start)

			if err != nil {
				failure.Add(1)
				if *verbose {
					fmt.Printf("idx=%d error=%v\n", i, err)
				}
				return nil
			}

			// An empty response means the balancer had no backend to offer.
			if len(body) == 0 {
				empty.Add(1)
				return nil
			}

			success.Add(1)
			mu.Lock()
			bs, ok := stats[body]
			if !ok {
				bs = &backendStats{}
				stats[body] = bs
			}
			bs.Count++
			bs.Latencies = append(bs.Latencies, dur)
			mu.Unlock()

			if *verbose {
				fmt.Printf("idx=%d backend=%q dur=%v\n", i, body, dur)
			}
			return nil
		})
	}

	g.Wait()
	total := time.Since(testStart)

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *addr)
	fmt.Printf("Connections: %d  Concurrency: %d\n", *requests, *concurrency)
	fmt.Printf("Answered: %d  Empty: %d  Failed: %d\n", success.Load(), empty.Load(), failure.Load())
	fmt.Printf("Duration: %v  Throughput: %.2f conn/s\n", total, float64(*requests)/total.Seconds())

	summaries := make(map[string]backendSummary, len(stats))
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println("\nBackend distribution:")
	for _, k := range keys {
		bs := stats[k]
		sort.Slice(bs.Latencies, func(i, j int) bool { return bs.Latencies[i] < bs.Latencies[j] })

		s := backendSummary{
			Count: bs.Count,
			P50:   percentileMillis(bs.Latencies, 0.50),
			P95:   percentileMillis(bs.Latencies, 0.95),
			P99:   percentileMillis(bs.Latencies, 0.99),
		}
		summaries[k] = s

		fmt.Printf("  %q -> %d (p50=%.2fms p95=%.2fms p99=%.2fms)\n", k, s.Count, s.P50, s.P95, s.P99)
	}

	if *outJSON != "" {
		report := map[string]any{
			"target":         *addr,
			"connections":    *requests,
			"concurrency":    *concurrency,
			"answered":       success.Load(),
			"empty":          empty.Load(),
			"failed":         failure.Load(),
			"duration_ms":    total.Milliseconds(),
			"throughput_cps": float64(*requests) / total.Seconds(),
			"backends":       summaries,
		}

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failure.Load() > 0 {
		os.Exit(2)
	}
}

// exchange sends payload on a fresh connection and returns the response
// body, or the whole response when it carries no HTTP header block.
func exchange(ctx context.Context, addr string, payload []byte, timeout time.Duration) (string, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}

	if _, err := conn.Write(payload); err != nil {
		return "", err
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return "", err
	}

	if _, body, found := bytes.Cut(response, []byte("\r\n\r\n")); found {
		return string(body), nil
	}
	return string(response), nil
}

func percentileMillis(sorted []time.Duration, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * pct)
	return float64(sorted[idx].Microseconds()) / 1000.0
}
