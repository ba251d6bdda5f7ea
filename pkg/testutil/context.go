package testutil

import (
	"net/http"
	"time"

	"gridreg/pkg/requestcontext"
)

// WithRequestTime pins the request clock the way the RequestTime middleware would.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithRequestID sets the request ID the way the RequestID middleware would.
func WithRequestID(req *http.Request, id string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), id))
}
