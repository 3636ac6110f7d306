package txlog

import "context"

// Sink receives finalized records. Implementations live in pkg/sink; the
// dispatcher depends only on this contract.
type Sink interface {
	// LogTransaction persists one transaction record.
	LogTransaction(ctx context.Context, rec *Record) error
	// Log persists a free-form application log entry.
	Log(ctx context.Context, level, message string, meta map[string]interface{}) error
	// HealthCheck reports whether the sink can accept writes.
	HealthCheck(ctx context.Context) error
}

// Named is implemented by sinks that want a stable name in metrics and logs.
type Named interface {
	Name() string
}

func sinkName(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "sink"
}
