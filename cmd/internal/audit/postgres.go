package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"workfolio/cmd/internal/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSchema = "portal"

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresSink writes entries to <schema>.audit_log.
//
// The pool is owned by the caller; the sink never closes it.
type PostgresSink struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the sink.
type PostgresOption func(*PostgresSink) error

// WithSchema sets the schema holding audit_log (default "portal").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresSink) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("audit: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("audit: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresSink returns a sink over pool.
func NewPostgresSink(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresSink, error) {
	s := &PostgresSink{pool: pool, schema: defaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, fmt.Errorf("audit: nil pool")
	}
	return s, nil
}

// CreateTableSQL returns the DDL for the audit table in schema.
func CreateTableSQL(schema string) string {
	table := pgx.Identifier{schema, "audit_log"}.Sanitize()
	idx := pgx.Identifier{"audit_log_created_at_idx"}.Sanitize()
	ipIdx := pgx.Identifier{"audit_log_ip_created_at_idx"}.Sanitize()
	return fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  namespace TEXT NOT NULL,
  refresh_hash TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  ip INET NULL,
  user_agent TEXT NULL,
  meta JSONB NULL
);
CREATE INDEX IF NOT EXISTS %s ON %s (created_at);
CREATE INDEX IF NOT EXISTS %s ON %s (ip, created_at);
`, pgx.Identifier{schema}.Sanitize(), table, idx, table, ipIdx, table)
}

// EnsureSchema creates the audit table when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, CreateTableSQL(s.schema)); err != nil {
		return fmt.Errorf("audit: ensure schema: %w", err)
	}
	return nil
}

// Record inserts e. Missing ID and timestamp are filled in.
func (s *PostgresSink) Record(ctx context.Context, e Entry) error {
	const op = "audit.Record"

	if s == nil || s.pool == nil {
		return fmt.Errorf("%s: nil sink", op)
	}
	action := strings.TrimSpace(e.Action)
	if action == "" {
		return fmt.Errorf("%s: empty action", op)
	}

	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	id := e.ID
	if id == "" {
		var err error
		if id, err = ids.New(at); err != nil {
			return fmt.Errorf("%s: id: %w", op, err)
		}
	}

	var ipVal any
	if e.IP != nil {
		ipVal = e.IP.String()
	}

	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			m := string(b)
			metaVal = &m
		}
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, action, namespace, refresh_hash, created_at, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, pgx.Identifier{s.schema, "audit_log"}.Sanitize()),
		id, action, e.Namespace, trimOrNil(e.RefreshHash), at, ipVal, trimOrNil(e.UserAgent), metaVal)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}

// CountByIP counts entries with one of actions recorded for ip at or after since.
func (s *PostgresSink) CountByIP(ctx context.Context, actions []string, ip net.IP, since time.Time) (int, error) {
	if s == nil || s.pool == nil || ip == nil || len(actions) == 0 {
		return 0, nil
	}
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(*)
		FROM %s
		WHERE action = ANY($1)
		  AND ip = $2::inet
		  AND created_at >= $3
	`, pgx.Identifier{s.schema, "audit_log"}.Sanitize()), actions, ip.String(), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit.CountByIP: %w", err)
	}
	return n, nil
}
