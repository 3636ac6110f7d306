// Package txlog holds the transaction record model, the sink contract and
// the asynchronous persistence dispatcher.
package txlog

import (
	"sync/atomic"
	"time"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
)

// ErrorDetail is populated only when Status is fail.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Record is one logged unit of work for a single inbound request. It is
// owned by the middleware invocation that created it, filled incrementally
// during the request, and dispatched exactly once at response finish.
type Record struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`
	Name          string `json:"name"`
	Service       string `json:"service,omitempty"`
	Status        Status `json:"status"`
	DurationMs    int64  `json:"duration_ms"`

	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	Route     string `json:"route,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Host      string `json:"host,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Proto     string `json:"proto,omitempty"`

	// Sanitized capture of the request surface.
	Headers  map[string]string `json:"headers,omitempty"`
	Query    interface{}       `json:"query,omitempty"`
	Params   interface{}       `json:"params,omitempty"`
	Body     interface{}       `json:"body,omitempty"`
	BodyText string            `json:"body_text,omitempty"`

	StatusCode   int   `json:"status_code,omitempty"`
	ResponseSize int64 `json:"response_size,omitempty"`

	// Context carries sanitized business fields attached by handlers.
	Context map[string]interface{} `json:"context"`

	Error *ErrorDetail `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	dispatched atomic.Bool
}

// markDispatched flips the one-shot flag; it returns true only for the first
// caller, which guards against duplicate finish events.
func (r *Record) markDispatched() bool {
	return r.dispatched.CompareAndSwap(false, true)
}

// Fail stamps the record with a failure outcome.
func (r *Record) Fail(message, code, stack string) {
	r.Status = StatusFail
	r.Error = &ErrorDetail{Message: message, Code: code, Stack: stack}
}
