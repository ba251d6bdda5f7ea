package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server. WriteTimeout leaves room for a register call that
// waits out the row lock and transaction timeout.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
