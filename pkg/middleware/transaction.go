package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opscribe/opscribe/pkg/apperrors"
	"github.com/opscribe/opscribe/pkg/payload"
	"github.com/opscribe/opscribe/pkg/redact"
	"github.com/opscribe/opscribe/pkg/txlog"
)

// ContextTransaction is the gin context key holding the in-flight record.
const ContextTransaction = "opscribe_transaction"

// defaultHeaderAllowlist is the set of request headers worth keeping on a
// transaction record. Authorization is captured but always masked.
var defaultHeaderAllowlist = []string{
	"x-user-id",
	"x-tenant-id",
	"x-correlation-id",
	"x-trace-id",
	"x-platform",
	"content-type",
	"accept",
	"authorization",
}

type options struct {
	service      string
	keys         *redact.KeySet
	depthLimit   int
	arrayLimit   int
	maxBodyBytes int
	headers      []string
}

type Option func(*options)

// WithService stamps every record with the owning service name.
func WithService(name string) Option {
	return func(o *options) { o.service = name }
}

// WithKeySet overrides the sensitive-key set used for sanitization.
func WithKeySet(keys *redact.KeySet) Option {
	return func(o *options) { o.keys = keys }
}

// WithLimits overrides the redaction recursion bounds.
func WithLimits(depthLimit, arrayLimit int) Option {
	return func(o *options) {
		o.depthLimit = depthLimit
		o.arrayLimit = arrayLimit
	}
}

// WithMaxBodyBytes overrides the captured-body budget.
func WithMaxBodyBytes(n int) Option {
	return func(o *options) { o.maxBodyBytes = n }
}

// WithHeaderAllowlist overrides the captured request headers.
func WithHeaderAllowlist(headers ...string) Option {
	return func(o *options) { o.headers = headers }
}

// Transaction captures one sanitized transaction record per request and
// hands it to the dispatcher at response finish. The response is never gated
// on persistence; the record is dispatched exactly once.
func Transaction(d *txlog.Dispatcher, opts ...Option) gin.HandlerFunc {
	o := &options{
		keys:         redact.NewKeySet(),
		depthLimit:   redact.DefaultDepthLimit,
		arrayLimit:   redact.DefaultArrayLimit,
		maxBodyBytes: payload.DefaultMaxBytes,
		headers:      defaultHeaderAllowlist,
	}
	for _, opt := range opts {
		opt(o)
	}
	ropts := redact.Options{DepthLimit: o.depthLimit, ArrayLimit: o.arrayLimit, Keys: o.keys}

	return func(c *gin.Context) {
		start := time.Now()
		txid := ResolveTransactionID(c)

		// Read the body and write it back so binding still works downstream.
		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBody))
		}

		rec := &txlog.Record{
			ID:            uuid.New().String(),
			TransactionID: txid,
			Service:       o.service,
			Status:        txlog.StatusSuccess,
			Method:        c.Request.Method,
			Path:          c.Request.URL.Path,
			IP:            c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
			Host:          c.Request.Host,
			Referrer:      c.Request.Referer(),
			Proto:         c.Request.Proto,
			Context:       make(map[string]interface{}),
			CreatedAt:     start,
		}
		c.Set(ContextTransaction, rec)

		c.Next()

		finalize(c, rec, reqBody, ropts, o)
		d.Dispatch(rec)
	}
}

// finalize fills the response-side fields and sanitizes everything captured.
// Fields that cannot be determined are left empty rather than failing.
func finalize(c *gin.Context, rec *txlog.Record, reqBody []byte, ropts redact.Options, o *options) {
	rec.Route = c.FullPath()
	if rec.Name == "" {
		route := rec.Route
		if route == "" {
			route = rec.Path
		}
		rec.Name = rec.Method + " " + route
	}

	if ms := time.Since(rec.CreatedAt).Milliseconds(); ms > 0 {
		rec.DurationMs = ms
	}

	rec.StatusCode = c.Writer.Status()
	rec.ResponseSize = responseSize(c)
	rec.Headers = captureHeaders(c, o.headers, ropts.Keys)

	if q := c.Request.URL.Query(); len(q) > 0 {
		rec.Query = redact.Value(flattenValues(q), ropts)
	}
	if len(c.Params) > 0 {
		params := make(map[string]interface{}, len(c.Params))
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}
		rec.Params = redact.Value(params, ropts)
	}
	if len(reqBody) > 0 {
		captureBody(rec, reqBody, ropts, o.maxBodyBytes)
	}
	if len(rec.Context) > 0 {
		if ctx, ok := redact.Value(rec.Context, ropts).(map[string]interface{}); ok {
			rec.Context = ctx
		}
	}

	switch {
	case len(c.Errors) > 0:
		err := c.Errors.Last().Err
		code := ""
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			code = string(appErr.Type)
		}
		rec.Fail(err.Error(), code, string(debug.Stack()))
	case rec.StatusCode >= http.StatusBadRequest:
		rec.Fail(http.StatusText(rec.StatusCode), strconv.Itoa(rec.StatusCode), "")
	}
}

func captureBody(rec *txlog.Record, reqBody []byte, ropts redact.Options, maxBytes int) {
	var parsed interface{}
	if err := json.Unmarshal(reqBody, &parsed); err != nil {
		// Not JSON: keep only the size-bounded raw form.
		rec.BodyText = payload.LimitBytes(reqBody, maxBytes)
		return
	}
	sanitized := redact.Value(parsed, ropts)
	rec.Body = sanitized
	rec.BodyText = payload.Limit(sanitized, maxBytes)
}

func captureHeaders(c *gin.Context, allowlist []string, keys *redact.KeySet) map[string]string {
	out := make(map[string]string)
	for _, name := range allowlist {
		v := c.GetHeader(name)
		if v == "" {
			continue
		}
		// Authorization never leaves here in clear text, regardless of the
		// configured key set.
		if http.CanonicalHeaderKey(name) == "Authorization" || keys.Contains(name) {
			v = redact.Mask
		}
		out[name] = v
	}
	return out
}

func responseSize(c *gin.Context) int64 {
	if cl := c.Writer.Header().Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}
	if n := c.Writer.Size(); n > 0 {
		return int64(n)
	}
	return 0
}

func flattenValues(values map[string][]string) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = v
	}
	return out
}

// TransactionFromContext returns the in-flight record, if any.
func TransactionFromContext(c *gin.Context) (*txlog.Record, bool) {
	if v, ok := c.Get(ContextTransaction); ok {
		if rec, ok := v.(*txlog.Record); ok {
			return rec, true
		}
	}
	return nil, false
}

// SetOperation names the transaction from a handler; the default is the
// method plus matched route.
func SetOperation(c *gin.Context, name string) {
	if rec, ok := TransactionFromContext(c); ok {
		rec.Name = name
	}
}

// AddContext attaches a business field to the transaction record. Values are
// sanitized at finalize time.
func AddContext(c *gin.Context, key string, value interface{}) {
	if rec, ok := TransactionFromContext(c); ok {
		rec.Context[key] = value
	}
}
