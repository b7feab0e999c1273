package backend_test

import (
	"sync"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/tcp-load-balancer/internal/backend"
)

func TestBackend(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Backend Suite")
}

var _ = Describe("Backend", func() {
	var b *backend.Backend

	BeforeEach(func() {
		b = backend.New("127.0.0.1:8081")
	})

	Describe("New", func() {
		It("should keep the address verbatim", func() {
			Expect(b.Address()).To(Equal("127.0.0.1:8081"))
		})

		It("should initialize as unavailable", func() {
			Expect(b.State()).To(Equal(backend.StateUnavailable))
			Expect(b.IsAvailable()).To(BeFalse())
		})

		It("should have zero active relays", func() {
			Expect(b.ActiveRelays()).To(Equal(0))
		})
	})

	Describe("State Management", func() {
		Context("SetState", func() {
			It("should mark the backend available", func() {
				changed := b.SetState(backend.StateAvailable)
				Expect(changed).To(BeTrue())
				Expect(b.IsAvailable()).To(BeTrue())
			})

			It("should mark the backend unavailable again", func() {
				b.SetState(backend.StateAvailable)
				changed := b.SetState(backend.StateUnavailable)
				Expect(changed).To(BeTrue())
				Expect(b.IsAvailable()).To(BeFalse())
			})

			It("should report no change for a repeated state", func() {
				b.SetState(backend.StateAvailable)
				Expect(b.SetState(backend.StateAvailable)).To(BeFalse())
				Expect(b.State()).To(Equal(backend.StateAvailable))
			})

			It("should treat a repeated unavailable as idempotent", func() {
				Expect(b.SetState(backend.StateUnavailable)).To(BeFalse())
			})
		})

		It("should be thread-safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(available bool) {
					defer wg.Done()
					if available {
						b.SetState(backend.StateAvailable)
					} else {
						b.SetState(backend.StateUnavailable)
					}
					_ = b.IsAvailable()
				}(i%2 == 0)
			}
			wg.Wait()
		})
	})

	Describe("Relay Tracking", func() {
		It("should count relays up and down", func() {
			b.IncrementRelays()
			b.IncrementRelays()
			Expect(b.ActiveRelays()).To(Equal(2))

			b.DecrementRelays()
			Expect(b.ActiveRelays()).To(Equal(1))
		})

		It("should not go below zero", func() {
			b.DecrementRelays()
			Expect(b.ActiveRelays()).To(Equal(0))
		})

		It("should be thread-safe", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					b.IncrementRelays()
				}()
			}
			wg.Wait()
			Expect(b.ActiveRelays()).To(Equal(100))
		})
	})

	DescribeTable("State.String",
		func(s backend.State, expected string) {
			Expect(s.String()).To(Equal(expected))
		},
		Entry("available", backend.StateAvailable, "AVAILABLE"),
		Entry("unavailable", backend.StateUnavailable, "UNAVAILABLE"),
		Entry("unknown", backend.State(42), "UNKNOWN"),
	)
})
