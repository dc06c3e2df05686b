package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults. The only inbound surface is
// the letter callback, health, and metrics, so timeouts can be tight.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
