package main

import (
	"encoding/json"
	"net/http"

	"github.com/angeloszaimis/tcp-load-balancer/internal/metrics"
	"github.com/angeloszaimis/tcp-load-balancer/internal/pool"
)

type backendStatus struct {
	Address      string `json:"address"`
	State        string `json:"state"`
	ActiveRelays int    `json:"active_relays"`
}

func setupRouter(metricsCollector *metrics.Collector, backendPool *pool.Pool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /metrics", metricsCollector.Handler())
	mux.HandleFunc("GET /backends", backendsHandler(backendPool))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return mux
}

func backendsHandler(backendPool *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backends := backendPool.Backends()
		statuses := make([]backendStatus, 0, len(backends))

		for _, b := range backends {
			statuses = append(statuses, backendStatus{
				Address:      b.Address(),
				State:        b.State().String(),
				ActiveRelays: b.ActiveRelays(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statuses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
