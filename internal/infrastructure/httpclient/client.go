// Package httpclient builds the shared *http.Client used by the CDSE
// catalog, checksum, and download adapters, in the style of the teacher's
// shared/infrastructure/http/client.go reduced to what those adapters
// need: a bounded timeout, no custom retry/header plumbing.
package httpclient

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 60 * time.Second

// New builds an *http.Client with timeout, defaulting to DefaultTimeout
// when zero.
func New(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
