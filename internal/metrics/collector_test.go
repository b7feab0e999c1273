package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tcp-load-balancer/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("Emit", func() {
		It("should be a no-op on a nil collector", func() {
			var nilCollector *metrics.Collector
			Expect(func() {
				nilCollector.Emit(metrics.MetricEvent{Type: metrics.EventConnectionAccepted})
			}).NotTo(Panic())
		})

		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 10; i++ {
					small.Emit(metrics.MetricEvent{Type: metrics.EventConnectionAccepted})
				}
			}()
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("Start and event processing", func() {
		It("should process EventConnectionAccepted", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventConnectionAccepted})

			Eventually(func() int64 {
				return collector.Snapshot().TotalConnections
			}).Should(Equal(int64(1)))
		})

		It("should process EventNoBackend", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventNoBackend})

			Eventually(func() int64 {
				return collector.Snapshot().Rejected
			}).Should(Equal(int64(1)))
		})

		It("should process a full relay lifecycle", func() {
			collector.Start(ctx)

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventBackendSelected,
				Backend: "127.0.0.1:8081",
			})
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventRelayCompleted,
				Backend:  "127.0.0.1:8081",
				Duration: 50 * time.Millisecond,
				BytesIn:  18,
				BytesOut: 64,
			})

			Eventually(func() metrics.BackendMetrics {
				return collector.Snapshot().Backends["127.0.0.1:8081"]
			}).Should(And(
				HaveField("Selections", int64(1)),
				HaveField("Completed", int64(1)),
				HaveField("BytesOut", int64(64)),
				HaveField("AvgRelay", 50*time.Millisecond),
			))
		})

		It("should process EventRelayFailed", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventRelayFailed,
				Backend: "127.0.0.1:8082",
			})

			Eventually(func() int64 {
				return collector.Snapshot().Backends["127.0.0.1:8082"].Failures
			}).Should(Equal(int64(1)))
		})

		It("should process EventHealthChanged", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{
				Type:      metrics.EventHealthChanged,
				Backend:   "127.0.0.1:8081",
				Available: true,
			})

			Eventually(func() bool {
				return collector.Snapshot().Backends["127.0.0.1:8081"].Available
			}).Should(BeTrue())
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventConnectionAccepted})
			}

			cancel()
			collector.Start(ctx)

			Eventually(func() int64 {
				return collector.Snapshot().TotalConnections
			}).Should(Equal(int64(5)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventConnectionAccepted})
			Eventually(func() int64 {
				return collector.Snapshot().TotalConnections
			}).Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			collector.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalConnections).To(Equal(int64(1)))
		})
	})
})
