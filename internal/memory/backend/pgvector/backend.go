// Package pgvector stores memory vectors in PostgreSQL with the pgvector
// extension, ranking in the database (cosine distance, BM25 full-text, or
// a reciprocal-rank-fusion hybrid of both).
package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq" // PostgreSQL driver
	"github.com/sagerun/sage/internal/memory/backend"
	"github.com/sagerun/sage/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config configures the pgvector backend. Exactly one of DSN or DB is
// required; a provided DB is never closed by the backend.
type Config struct {
	DSN           string
	DB            *sql.DB
	Dimension     int
	RunMigrations bool
}

// Backend implements backend.Backend over PostgreSQL + pgvector.
type Backend struct {
	db        *sql.DB
	dimension int
	ownsDB    bool
}

// New connects (or adopts a connection) and optionally migrates the schema.
func New(cfg Config) (*Backend, error) {
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	b := &Backend{dimension: cfg.Dimension}
	switch {
	case cfg.DB != nil:
		b.db = cfg.DB
	case cfg.DSN != "":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		b.db = db
		b.ownsDB = true
	default:
		return nil, fmt.Errorf("either DSN or DB must be provided")
	}

	if cfg.RunMigrations {
		if err := b.migrate(context.Background()); err != nil {
			if b.ownsDB {
				b.db.Close()
			}
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return b, nil
}

// migrate applies unapplied embedded migrations in lexical order, each in
// its own transaction alongside its bookkeeping row.
func (b *Backend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS memory_schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := b.db.QueryContext(ctx, `SELECT id FROM memory_schema_migrations`)
	if err != nil {
		return fmt.Errorf("query schema_migrations: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		applied[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.id] {
			continue
		}
		if err := b.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) applyMigration(ctx context.Context, m migration) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.id, err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			_ = rbErr
		}
	}()

	if _, err := tx.ExecContext(ctx, m.upSQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.id, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO memory_schema_migrations (id) VALUES ($1)`, m.id); err != nil {
		return fmt.Errorf("record migration %s: %w", m.id, err)
	}
	return tx.Commit()
}

// Index upserts entries in one transaction.
func (b *Backend) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			_ = rbErr
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO memories (id, session_id, workspace_id, agent_id, content, metadata, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			workspace_id = EXCLUDED.workspace_id,
			agent_id = EXCLUDED.agent_id,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		entry.UpdatedAt = now

		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			entry.ID,
			nullable(entry.SessionID),
			nullable(entry.WorkspaceID),
			nullable(entry.AgentID),
			entry.Content,
			string(metadata),
			encodeVector(entry.Embedding),
			entry.CreatedAt,
			entry.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	return tx.Commit()
}

// Search dispatches by mode: plain vector similarity (default), BM25
// full-text, or the RRF hybrid of both.
func (b *Backend) Search(ctx context.Context, queryEmbedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts == nil {
		opts = &backend.SearchOptions{}
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	switch opts.SearchMode {
	case backend.SearchModeBM25:
		return b.searchBM25(ctx, opts)
	case backend.SearchModeHybrid:
		return b.searchHybrid(ctx, queryEmbedding, opts)
	default:
		return b.searchVector(ctx, queryEmbedding, opts)
	}
}

// queryBuilder accumulates a SQL string with numbered args.
type queryBuilder struct {
	sql  strings.Builder
	args []any
}

func (q *queryBuilder) write(s string) { q.sql.WriteString(s) }

// writeArg appends an arg and writes fragment with the arg's placeholder
// substituted for %d.
func (q *queryBuilder) writeArg(fragment string, arg any) {
	q.args = append(q.args, arg)
	fmt.Fprintf(&q.sql, fragment, len(q.args))
}

// writeScope adds the scope filter; global scope means "no narrower scope
// set", and ScopeAll matches everything.
func (q *queryBuilder) writeScope(scope models.MemoryScope, scopeID string) {
	switch scope {
	case models.ScopeSession:
		q.writeArg(" AND session_id = $%d", scopeID)
	case models.ScopeWorkspace:
		q.writeArg(" AND workspace_id = $%d", scopeID)
	case models.ScopeAgent:
		q.writeArg(" AND agent_id = $%d", scopeID)
	case models.ScopeGlobal:
		q.write(" AND (session_id IS NULL OR session_id = '') AND (workspace_id IS NULL OR workspace_id = '') AND (agent_id IS NULL OR agent_id = '')")
	}
}

const entryColumns = "id, session_id, workspace_id, agent_id, content, metadata, embedding, created_at, updated_at"

func (b *Backend) searchVector(ctx context.Context, queryEmbedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	var q queryBuilder
	q.writeArg("SELECT "+entryColumns+", 1 - (embedding <=> $%d::vector) AS similarity FROM memories WHERE embedding IS NOT NULL", encodeVector(queryEmbedding))
	q.writeScope(opts.Scope, opts.ScopeID)
	if opts.Threshold > 0 {
		q.writeArg(" AND (1 - (embedding <=> $1::vector)) >= $%d", opts.Threshold)
	}
	q.write(" ORDER BY embedding <=> $1::vector ASC")
	q.writeArg(" LIMIT $%d", opts.Limit)

	return b.runSearch(ctx, q.sql.String(), q.args)
}

func (b *Backend) searchBM25(ctx context.Context, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts.Query == "" {
		return nil, fmt.Errorf("query text is required for BM25 search")
	}

	var q queryBuilder
	q.writeArg("SELECT "+entryColumns+", ts_rank_cd(content_tsv, plainto_tsquery('english', $%d)) AS similarity FROM memories WHERE content_tsv @@ plainto_tsquery('english', $1)", opts.Query)
	q.writeScope(opts.Scope, opts.ScopeID)
	if opts.Threshold > 0 {
		q.writeArg(" AND ts_rank_cd(content_tsv, plainto_tsquery('english', $1)) >= $%d", opts.Threshold)
	}
	q.write(" ORDER BY similarity DESC")
	q.writeArg(" LIMIT $%d", opts.Limit)

	return b.runSearch(ctx, q.sql.String(), q.args)
}

// searchHybrid fuses both rankings with reciprocal rank fusion:
// score = alpha/(60+vec_rank) + (1-alpha)/(60+bm25_rank).
func (b *Backend) searchHybrid(ctx context.Context, queryEmbedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts.Query == "" {
		return b.searchVector(ctx, queryEmbedding, opts)
	}
	alpha := opts.HybridAlpha
	if alpha <= 0 {
		alpha = 0.7
	}

	var q queryBuilder
	q.args = append(q.args, encodeVector(queryEmbedding), opts.Query, alpha)
	q.write(`
		WITH vector_results AS (
			SELECT ` + entryColumns + `,
				ROW_NUMBER() OVER (ORDER BY embedding <=> $1::vector ASC) AS vec_rank
			FROM memories
			WHERE embedding IS NOT NULL
		),
		bm25_results AS (
			SELECT id,
				ROW_NUMBER() OVER (ORDER BY ts_rank_cd(content_tsv, plainto_tsquery('english', $2)) DESC) AS bm25_rank
			FROM memories
			WHERE content_tsv @@ plainto_tsquery('english', $2)
		)
		SELECT v.id, v.session_id, v.workspace_id, v.agent_id, v.content, v.metadata,
			v.embedding, v.created_at, v.updated_at,
			($3 * (1.0 / (60 + v.vec_rank))) + ((1 - $3) * COALESCE(1.0 / (60 + b.bm25_rank), 0)) AS similarity
		FROM vector_results v
		LEFT JOIN bm25_results b ON v.id = b.id
		WHERE 1=1`)
	q.writeScope(opts.Scope, opts.ScopeID)
	q.write(" ORDER BY similarity DESC")
	q.writeArg(" LIMIT $%d", opts.Limit)

	return b.runSearch(ctx, q.sql.String(), q.args)
}

func (b *Backend) runSearch(ctx context.Context, query string, args []any) ([]*models.SearchResult, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		entry, score, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, &models.SearchResult{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return results, nil
}

// Delete removes entries by id.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := b.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ANY($1::uuid[])", pq.Array(ids))
	return err
}

// Count reports how many entries the scope holds.
func (b *Backend) Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error) {
	var q queryBuilder
	q.write("SELECT COUNT(*) FROM memories WHERE 1=1")
	q.writeScope(scope, scopeID)

	var count int64
	err := b.db.QueryRowContext(ctx, q.sql.String(), q.args...).Scan(&count)
	return count, err
}

// Compact vacuums and re-analyzes the memories table.
func (b *Backend) Compact(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "VACUUM ANALYZE memories")
	return err
}

// Close releases the connection when the backend owns it.
func (b *Backend) Close() error {
	if b.ownsDB && b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, float32, error) {
	var entry models.MemoryEntry
	var sessionID, workspaceID, agentID, embedding sql.NullString
	var metadataJSON string
	var similarity float64

	err := rows.Scan(
		&entry.ID, &sessionID, &workspaceID, &agentID,
		&entry.Content, &metadataJSON, &embedding,
		&entry.CreatedAt, &entry.UpdatedAt, &similarity,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("scan row: %w", err)
	}
	entry.SessionID = sessionID.String
	entry.WorkspaceID = workspaceID.String
	entry.AgentID = agentID.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, 0, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if embedding.Valid {
		entry.Embedding = decodeVector(embedding.String)
	}
	return &entry, float32(similarity), nil
}

// encodeVector renders pgvector's literal form: [0.1,0.2,...].
func encodeVector(v []float32) sql.NullString {
	if len(v) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return sql.NullString{String: "[" + strings.Join(parts, ",") + "]", Valid: true}
}

// decodeVector parses pgvector's literal form back into float32s.
func decodeVector(s string) []float32 {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil
		}
		v[i] = float32(f)
	}
	return v
}

// migration is one embedded schema step.
type migration struct {
	id    string
	upSQL string
}

// loadMigrations reads migrations/NNN_name.up.sql files in lexical order.
func loadMigrations() ([]migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(paths)

	out := make([]migration, 0, len(paths))
	for _, path := range paths {
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", path, err)
		}
		id := strings.TrimSuffix(strings.TrimPrefix(path, "migrations/"), ".up.sql")
		if strings.TrimSpace(string(data)) == "" {
			return nil, fmt.Errorf("empty migration %s", path)
		}
		out = append(out, migration{id: id, upSQL: string(data)})
	}
	return out, nil
}
