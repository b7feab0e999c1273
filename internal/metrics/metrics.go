package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex       sync.RWMutex
	connections int64
	rejected    int64
	selections  map[string]int64
	completed   map[string]int64
	failures    map[string]int64
	bytesIn     map[string]int64
	bytesOut    map[string]int64
	durations   map[string][]time.Duration
	available   map[string]bool
	startTime   time.Time
}

type Snapshot struct {
	TotalConnections int64                     `json:"total_connections"`
	Rejected         int64                     `json:"rejected"`
	Uptime           time.Duration             `json:"uptime"`
	Backends         map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	Selections int64         `json:"selections"`
	Completed  int64         `json:"completed"`
	Failures   int64         `json:"failures"`
	BytesIn    int64         `json:"bytes_in"`
	BytesOut   int64         `json:"bytes_out"`
	Available  bool          `json:"available"`
	AvgRelay   time.Duration `json:"avg_relay"`
	P50Relay   time.Duration `json:"p50_relay"`
	P95Relay   time.Duration `json:"p95_relay"`
	P99Relay   time.Duration `json:"p99_relay"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		selections: make(map[string]int64),
		completed:  make(map[string]int64),
		failures:   make(map[string]int64),
		bytesIn:    make(map[string]int64),
		bytesOut:   make(map[string]int64),
		durations:  make(map[string][]time.Duration),
		available:  make(map[string]bool),
		startTime:  time.Now(),
	}
}

func (m *Metrics) IncrementConnections() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.connections++
}

func (m *Metrics) IncrementRejected() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected++
}

func (m *Metrics) RecordBackendSelection(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[backend]++
}

// RecordRelay records a completed relay. bytesIn is what the client sent,
// bytesOut is what the backend returned.
func (m *Metrics) RecordRelay(backend string, duration time.Duration, bytesIn, bytesOut int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.completed[backend]++
	m.bytesIn[backend] += bytesIn
	m.bytesOut[backend] += bytesOut

	m.durations[backend] = append(m.durations[backend], duration)
	if len(m.durations[backend]) > maxSamples {
		m.durations[backend] = m.durations[backend][1:]
	}
}

func (m *Metrics) RecordFailure(backend string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failures[backend]++
}

func (m *Metrics) UpdateAvailability(backend string, available bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.available[backend] = available
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalConnections: m.connections,
		Rejected:         m.rejected,
		Uptime:           time.Since(m.startTime),
		Backends:         make(map[string]BackendMetrics),
	}

	allBackends := make(map[string]bool)
	for _, byBackend := range []map[string]int64{m.selections, m.completed, m.failures} {
		for backend := range byBackend {
			allBackends[backend] = true
		}
	}
	for backend := range m.available {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		bm := BackendMetrics{
			Selections: m.selections[backend],
			Completed:  m.completed[backend],
			Failures:   m.failures[backend],
			BytesIn:    m.bytesIn[backend],
			BytesOut:   m.bytesOut[backend],
			Available:  m.available[backend],
		}

		durations := m.durations[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgRelay = average(sorted)
			bm.P50Relay = percentile(sorted, 0.50)
			bm.P95Relay = percentile(sorted, 0.95)
			bm.P99Relay = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
