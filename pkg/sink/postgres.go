package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"

	"github.com/opscribe/opscribe/pkg/txlog"
)

// Postgres persists transactions to a relational table, suitable when the
// deployment already runs a database and no search cluster is available.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sink: postgres requires a dsn")
	}
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sink: connect postgres: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	s := &Postgres{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("sink: ensure schema: %w", err)
	}
	return s, nil
}

func (s *Postgres) Name() string { return "postgres" }

func (s *Postgres) LogTransaction(ctx context.Context, rec *txlog.Record) error {
	if rec == nil {
		return nil
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, transaction_id, name, service, status,
			method, path, ip, status_code, duration_ms,
			record, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.TransactionID, rec.Name, rec.Service, string(rec.Status),
		rec.Method, rec.Path, rec.IP, rec.StatusCode, rec.DurationMs,
		doc, rec.CreatedAt)
	return err
}

func (s *Postgres) Log(ctx context.Context, level, message string, meta map[string]interface{}) error {
	metaJSON, _ := json.Marshal(meta)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_logs (level, message, meta, created_at)
		VALUES ($1,$2,$3,$4)
	`, level, message, metaJSON, time.Now().UTC())
	return err
}

// ListFilter narrows a List query. Zero values mean no constraint.
type ListFilter struct {
	Service string
	Status  string
	From    *time.Time
	To      *time.Time
	Limit   int
}

// List returns persisted transactions, newest first.
func (s *Postgres) List(ctx context.Context, f ListFilter) ([]*txlog.Record, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `SELECT record FROM transactions`
	clauses := []string{}
	args := []interface{}{}
	idx := 1

	if f.Service != "" {
		clauses = append(clauses, fmt.Sprintf("service = $%d", idx))
		args = append(args, f.Service)
		idx++
	}
	if f.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", idx))
		args = append(args, *f.To)
		idx++
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*txlog.Record, 0, limit)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec txlog.Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Cleanup deletes transactions older than the retention window.
func (s *Postgres) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE created_at < $1`, cutoff)
	return err
}

func (s *Postgres) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) Close() error { return s.db.Close() }

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			transaction_id TEXT,
			name TEXT,
			service TEXT,
			status TEXT,
			method TEXT,
			path TEXT,
			ip TEXT,
			status_code INTEGER,
			duration_ms BIGINT,
			record JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS app_logs (
			id BIGSERIAL PRIMARY KEY,
			level TEXT,
			message TEXT,
			meta JSONB,
			created_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return err
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_transactions_service ON transactions(service, created_at DESC)`)
	return nil
}
