package sink

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/opscribe/opscribe/pkg/txlog"
)

// File appends JSONL records to a rotated local file. It is the fallback
// when no remote sink is configured and is always considered healthy.
type File struct {
	mu  sync.Mutex
	out *lumberjack.Logger
	enc *json.Encoder
}

func NewFile(path string) *File {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxAge:     14,  // days
		MaxBackups: 5,
		Compress:   true,
	}
	return &File{out: out, enc: json.NewEncoder(out)}
}

func (s *File) Name() string { return "file" }

func (s *File) LogTransaction(ctx context.Context, rec *txlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

func (s *File) Log(ctx context.Context, level, message string, meta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(map[string]interface{}{
		"level":     level,
		"message":   message,
		"meta":      meta,
		"timestamp": time.Now().UTC(),
	})
}

func (s *File) HealthCheck(ctx context.Context) error { return nil }

func (s *File) Close() error { return s.out.Close() }
