package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscribe/opscribe/pkg/apperrors"
	"github.com/opscribe/opscribe/pkg/logger"
	"github.com/opscribe/opscribe/pkg/redact"
	"github.com/opscribe/opscribe/pkg/txlog"
)

type captureSink struct {
	mu       sync.Mutex
	records  []*txlog.Record
	err      error
	delay    time.Duration
	received chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{received: make(chan struct{}, 16)}
}

func (s *captureSink) LogTransaction(ctx context.Context, rec *txlog.Record) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	s.received <- struct{}{}
	return s.err
}

func (s *captureSink) Log(ctx context.Context, level, message string, meta map[string]interface{}) error {
	return nil
}

func (s *captureSink) HealthCheck(ctx context.Context) error { return nil }

func (s *captureSink) last(t *testing.T) *txlog.Record {
	t.Helper()
	select {
	case <-s.received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[len(s.records)-1]
}

func setupRouter(t *testing.T, sink *captureSink, opts ...Option) *gin.Engine {
	t.Helper()
	d, err := txlog.NewDispatcher(sink, logger.Nop(), txlog.DispatcherConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	r := gin.New()
	r.Use(Transaction(d, opts...))
	return r
}

func TestTransactionEndToEnd(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink, WithService("checkout"))
	r.POST("/v1/users", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/users?page=2", strings.NewReader(`{"name":"x","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-transaction-id", "tid1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tid1", w.Header().Get(HeaderTransactionID))

	rec := sink.last(t)
	assert.Equal(t, "tid1", rec.TransactionID)
	assert.Equal(t, "checkout", rec.Service)
	assert.Equal(t, txlog.StatusSuccess, rec.Status)
	assert.Equal(t, "POST", rec.Method)
	assert.Equal(t, "/v1/users", rec.Path)
	assert.Equal(t, "/v1/users", rec.Route)
	assert.Equal(t, "POST /v1/users", rec.Name)
	assert.GreaterOrEqual(t, rec.DurationMs, int64(0))
	assert.Equal(t, http.StatusCreated, rec.StatusCode)

	body := rec.Body.(map[string]interface{})
	assert.Equal(t, "x", body["name"])
	assert.Equal(t, redact.Mask, body["password"])
	assert.NotContains(t, rec.BodyText, "secret123")

	query := rec.Query.(map[string]interface{})
	assert.Equal(t, "2", query["page"])
}

func TestTransactionFailStatusOnErrorResponse(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.GET("/boom", func(c *gin.Context) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

	rec := sink.last(t)
	assert.Equal(t, txlog.StatusFail, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), rec.Error.Message)
}

func TestTransactionCapturesGinErrors(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.Use(ErrorHandler(logger.Nop()))
	r.GET("/bad", func(c *gin.Context) {
		_ = c.Error(apperrors.NewInvalidRequest("missing field"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/bad", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderTransactionID))

	rec := sink.last(t)
	assert.Equal(t, txlog.StatusFail, rec.Status)
	require.NotNil(t, rec.Error)
	assert.Equal(t, string(apperrors.ErrInvalidRequest), rec.Error.Code)
	assert.Contains(t, rec.Error.Message, "missing field")
	assert.Contains(t, rec.Error.Stack, "goroutine")
}

func TestTransactionResponseNotGatedOnSlowSink(t *testing.T) {
	sink := newCaptureSink()
	sink.delay = 300 * time.Millisecond
	r := setupRouter(t, sink)
	r.GET("/fast", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	start := time.Now()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/fast", nil))
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Less(t, elapsed, 100*time.Millisecond)

	// The record still arrives, just later.
	rec := sink.last(t)
	assert.Equal(t, txlog.StatusSuccess, rec.Status)
}

func TestTransactionSinkFailureDoesNotAffectResponse(t *testing.T) {
	sink := newCaptureSink()
	sink.err = context.DeadlineExceeded
	r := setupRouter(t, sink)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())
	_ = sink.last(t)
}

func TestTransactionHeaderAllowlist(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.GET("/h", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("GET", "/h", nil)
	req.Header.Set("x-user-id", "u1")
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("X-Secret-Internal", "nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	rec := sink.last(t)
	assert.Equal(t, "u1", rec.Headers["x-user-id"])
	assert.Equal(t, redact.Mask, rec.Headers["authorization"])
	assert.NotContains(t, rec.Headers, "X-Secret-Internal")
	assert.NotContains(t, rec.Headers, "x-secret-internal")
}

func TestTransactionQueryRedaction(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.GET("/q", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/q?token=abc&page=1", nil))

	rec := sink.last(t)
	query := rec.Query.(map[string]interface{})
	assert.Equal(t, redact.Mask, query["token"])
	assert.Equal(t, "1", query["page"])
}

func TestTransactionRouteParams(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.GET("/users/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users/42", nil))

	rec := sink.last(t)
	params := rec.Params.(map[string]interface{})
	assert.Equal(t, "42", params["id"])
	assert.Equal(t, "/users/:id", rec.Route)
}

func TestTransactionNonJSONBody(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.POST("/raw", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/raw", strings.NewReader("plain text payload")))

	rec := sink.last(t)
	assert.Nil(t, rec.Body)
	assert.Equal(t, "plain text payload", rec.BodyText)
}

func TestTransactionBodyStillReadableByHandler(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)

	var bound struct {
		Name string `json:"name"`
	}
	r.POST("/bind", func(c *gin.Context) {
		require.NoError(t, c.ShouldBindJSON(&bound))
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/bind", strings.NewReader(`{"name":"alice"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	_ = sink.last(t)
	assert.Equal(t, "alice", bound.Name)
}

func TestAddContextAndSetOperation(t *testing.T) {
	sink := newCaptureSink()
	r := setupRouter(t, sink)
	r.POST("/orders", func(c *gin.Context) {
		SetOperation(c, "place_order")
		AddContext(c, "order_id", "o-77")
		AddContext(c, "api_key", "should-hide")
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/orders", nil))

	rec := sink.last(t)
	assert.Equal(t, "place_order", rec.Name)
	assert.Equal(t, "o-77", rec.Context["order_id"])
	assert.Equal(t, redact.Mask, rec.Context["api_key"])
}
