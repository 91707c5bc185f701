// Package postgres provides a PostgreSQL implementation of
// transport.AnalysisStore. It uses pgx/v5 connection pooling. The intent,
// final table and error are stored as JSONB; the chart is stored as JSON so
// its key order survives.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/table"
	"github.com/rhuss/tabula/pkg/transport"
)

// Store is a PostgreSQL-backed AnalysisStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.AnalysisStore = (*Store)(nil)

const selectColumns = `id, status, question, tool, intent, answer, chart, table_data,
	rounds, error, created_at, completed_at`

// New connects to the database described by cfg. With MigrateOnStart the
// schema migrations are applied before New returns.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// SaveAnalysis inserts a finished analysis under the tenant in ctx.
func (s *Store) SaveAnalysis(ctx context.Context, a *api.Analysis) error {
	intentJSON, err := marshalNullable(a.Intent, a.Intent == nil)
	if err != nil {
		return fmt.Errorf("marshaling intent: %w", err)
	}
	chartJSON, err := marshalNullable(a.Chart, a.Chart == nil)
	if err != nil {
		return fmt.Errorf("marshaling chart: %w", err)
	}
	tableJSON, err := marshalNullable(a.Table, a.Table == nil)
	if err != nil {
		return fmt.Errorf("marshaling table: %w", err)
	}
	errorJSON, err := marshalNullable(a.Error, a.Error == nil)
	if err != nil {
		return fmt.Errorf("marshaling error: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO analyses (
			id, tenant_id, status, question, tool, intent, answer, chart,
			table_data, rounds, error, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		a.ID, storage.GetTenant(ctx), string(a.Status), a.Question, a.Tool,
		intentJSON, a.Answer, chartJSON, tableJSON, a.Rounds, errorJSON,
		a.CreatedAt, a.CompletedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// GetAnalysis retrieves a live analysis by ID.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*api.Analysis, error) {
	query := "SELECT " + selectColumns + " FROM analyses WHERE id = $1 AND deleted_at IS NULL"
	args := []any{id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	a, err := scanAnalysis(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying analysis: %w", err)
	}
	return a, nil
}

// DeleteAnalysis soft-deletes an analysis by setting deleted_at.
func (s *Store) DeleteAnalysis(ctx context.Context, id string) error {
	query := "UPDATE analyses SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL"
	args := []any{time.Now(), id}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting analysis: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListAnalyses pages through live analyses ordered by (created_at, id).
// Cursors are analysis IDs; an unknown cursor yields an empty page.
func (s *Store) ListAnalyses(ctx context.Context, opts transport.ListOptions) (*transport.AnalysisList, error) {
	var (
		where = []string{"deleted_at IS NULL"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		where = append(where, "tenant_id = "+arg(tenantID))
	}
	if opts.Tool != "" {
		where = append(where, "tool = "+arg(opts.Tool))
	}

	asc := opts.Order == "asc"
	if cursor, after := cursorOf(opts); cursor != "" {
		// Rows after the cursor in listing order compare greater when
		// ascending and smaller when descending.
		op := "<"
		if asc == after {
			op = ">"
		}
		where = append(where, fmt.Sprintf(
			"(created_at, id) %s (SELECT created_at, id FROM analyses WHERE id = %s)", op, arg(cursor)))
	}

	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	limit := storage.ListLimit(opts.Limit)
	query := fmt.Sprintf("SELECT %s FROM analyses WHERE %s ORDER BY created_at %s, id %s LIMIT %s",
		selectColumns, strings.Join(where, " AND "), dir, dir, arg(limit+1))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	defer rows.Close()

	data := []*api.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis: %w", err)
		}
		data = append(data, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}

	result := &transport.AnalysisList{Object: "list", Data: data}
	if len(data) > limit {
		result.Data = data[:limit]
		result.HasMore = true
	}
	if n := len(result.Data); n > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[n-1].ID
	}
	return result, nil
}

func cursorOf(opts transport.ListOptions) (id string, after bool) {
	if opts.After != "" {
		return opts.After, true
	}
	return opts.Before, false
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanAnalysis(row pgx.Row) (*api.Analysis, error) {
	var (
		a                                      api.Analysis
		status                                 string
		intentJSON, chartJSON, tableJSON, errJ []byte
	)
	err := row.Scan(
		&a.ID, &status, &a.Question, &a.Tool, &intentJSON, &a.Answer, &chartJSON, &tableJSON,
		&a.Rounds, &errJ, &a.CreatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Object = "analysis"
	a.Status = api.AnalysisStatus(status)
	if intentJSON != nil {
		a.Intent = &api.Intent{}
		if err := json.Unmarshal(intentJSON, a.Intent); err != nil {
			return nil, fmt.Errorf("unmarshaling intent: %w", err)
		}
	}
	if chartJSON != nil {
		a.Chart = json.RawMessage(chartJSON)
	}
	if tableJSON != nil {
		a.Table = &table.Table{}
		if err := json.Unmarshal(tableJSON, a.Table); err != nil {
			return nil, fmt.Errorf("unmarshaling table: %w", err)
		}
	}
	if errJ != nil {
		a.Error = &api.APIError{}
		if err := json.Unmarshal(errJ, a.Error); err != nil {
			return nil, fmt.Errorf("unmarshaling error: %w", err)
		}
	}
	return &a, nil
}

// marshalNullable returns an untyped nil for absent values so the column
// stays NULL.
func marshalNullable(v any, absent bool) (any, error) {
	if absent {
		return nil, nil
	}
	return json.Marshal(v)
}

// isDuplicateKey reports a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
