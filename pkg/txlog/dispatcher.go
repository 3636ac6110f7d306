package txlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/opscribe/opscribe/pkg/logger"
	"github.com/opscribe/opscribe/pkg/metrics"
)

// DispatcherConfig bounds the queue and the per-write timeout.
type DispatcherConfig struct {
	BufferSize  int
	Workers     int
	SinkTimeout time.Duration
	RecentMax   int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = 5 * time.Second
	}
	if c.RecentMax <= 0 {
		c.RecentMax = 1000
	}
	return c
}

// Dispatcher ships records to the sink off the request path. Dispatch never
// blocks: when the queue is full the record is dropped and counted. Sink
// failures are written to the local log channel only; a record is never
// retried and an error never reaches the request that produced it.
type Dispatcher struct {
	sink     Sink
	sinkName string
	log      *logger.Logger
	ch       chan *Record
	recent   *ringBuffer
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	wg       sync.WaitGroup
	once     sync.Once

	// mu serializes enqueue against close so a late Dispatch during
	// Shutdown drops the record instead of sending on a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher validates its collaborators and starts the consumer workers.
func NewDispatcher(sink Sink, log *logger.Logger, cfg DispatcherConfig) (*Dispatcher, error) {
	if sink == nil {
		return nil, fmt.Errorf("txlog: dispatcher requires a sink")
	}
	if log == nil {
		return nil, fmt.Errorf("txlog: dispatcher requires a fallback logger")
	}
	cfg = cfg.withDefaults()

	name := sinkName(sink)
	d := &Dispatcher{
		sink:     sink,
		sinkName: name,
		log:      log,
		ch:       make(chan *Record, cfg.BufferSize),
		recent:   newRingBuffer(cfg.RecentMax),
		timeout:  cfg.SinkTimeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "txlog-" + name,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d, nil
}

// Dispatch enqueues a finalized record. Duplicate dispatches of the same
// record are suppressed by the record's one-shot flag.
func (d *Dispatcher) Dispatch(rec *Record) {
	if d == nil || rec == nil {
		return
	}
	if !rec.markDispatched() {
		metrics.TransactionsDuplicate.Inc()
		return
	}
	d.recent.add(rec)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.TransactionsDropped.Inc()
		d.log.Warn("dispatcher stopped, dropping record",
			zap.String("transaction_id", rec.TransactionID),
			zap.String("name", rec.Name),
		)
		return
	}
	select {
	case d.ch <- rec:
	default:
		metrics.TransactionsDropped.Inc()
		d.log.Warn("transaction queue full, dropping record",
			zap.String("transaction_id", rec.TransactionID),
			zap.String("name", rec.Name),
		)
	}
}

// Recent returns up to limit of the most recently dispatched records, newest
// first. Backed by an in-memory ring, independent of sink health.
func (d *Dispatcher) Recent(limit int) []*Record {
	return d.recent.list(limit)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for rec := range d.ch {
		d.deliver(rec)
	}
}

func (d *Dispatcher) deliver(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sink.LogTransaction(ctx, rec)
	})
	metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.SinkErrors.WithLabelValues(d.sinkName).Inc()
		d.log.LogError(err, "transaction persist failed",
			zap.String("sink", d.sinkName),
			zap.String("transaction_id", rec.TransactionID),
			zap.String("name", rec.Name),
		)
		return
	}
	metrics.TransactionsDispatched.WithLabelValues(string(rec.Status)).Inc()
}

// Shutdown stops accepting work and waits for queued records to drain, up to
// the context deadline.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close is Shutdown without a deadline.
func (d *Dispatcher) Close() error {
	return d.Shutdown(context.Background())
}

// ringBuffer keeps the most recent records for the inspection API.
type ringBuffer struct {
	mu      sync.Mutex
	maxSize int
	records []*Record
	next    int
}

func newRingBuffer(maxSize int) *ringBuffer {
	return &ringBuffer{
		maxSize: maxSize,
		records: make([]*Record, 0, maxSize),
	}
}

func (b *ringBuffer) add(rec *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, rec)
		return
	}
	b.records[b.next] = rec
	b.next = (b.next + 1) % b.maxSize
}

func (b *ringBuffer) list(limit int) []*Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	total := len(b.records)
	results := make([]*Record, 0, limit)
	for i := 0; i < total && len(results) < limit; i++ {
		idx := (b.next + total - 1 - i) % total
		if rec := b.records[idx]; rec != nil {
			results = append(results, rec)
		}
	}
	return results
}
