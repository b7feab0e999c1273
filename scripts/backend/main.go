// Backend is a small HTTP server used to exercise the load balancer by hand.
// Every path answers with the URL the server is reachable at, so responses
// show which backend served them.
//
// Usage:
//
//	go run ./scripts/backend --port 8081
//	go run ./scripts/backend --port 8082 --fail-after 20
//
// Responses carry "Connection: close" because the balancer relays until the
// backend closes its side.
package main

import (
	"fmt"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/spf13/pflag"
)

func main() {
	port := pflag.Int("port", 8081, "port to listen on")
	failAfter := pflag.Int64("fail-after", 0, "answer 503 after this many requests (0 never fails)")
	pflag.Parse()

	var served atomic.Int64
	self := fmt.Sprintf("http://localhost:%d/", *port)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		log.Printf("request: method=%s path=%s from=%s n=%d", r.Method, r.URL.Path, r.RemoteAddr, n)

		w.Header().Set("Connection", "close")
		w.Header().Set("Content-Type", "text/plain")

		if *failAfter > 0 && n > *failAfter {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		fmt.Fprintf(w, "Hello from %s", self)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting backend on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
