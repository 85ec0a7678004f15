// Package sqlitevec stores memory vectors in a plain SQLite database
// (pure-Go driver) and ranks matches by cosine similarity in process.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagerun/sage/internal/memory/backend"
	"github.com/sagerun/sage/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Config locates the database and fixes the embedding dimension.
type Config struct {
	Path      string
	Dimension int
}

// Backend implements backend.Backend over SQLite.
type Backend struct {
	db        *sql.DB
	dimension int
}

// New opens (or creates) the database and its schema. An empty path keeps
// everything in memory.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &Backend{db: db, dimension: cfg.Dimension}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			session_id TEXT,
			workspace_id TEXT,
			agent_id TEXT,
			content TEXT NOT NULL,
			metadata TEXT,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		"CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id)",
		"CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id)",
		"CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id)",
		"CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at)",
	}
	for _, stmt := range statements {
		if _, err := b.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Index upserts entries in one transaction, assigning ids and timestamps
// where absent.
func (b *Backend) Index(ctx context.Context, entries []*models.MemoryEntry) error {
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
		INSERT OR REPLACE INTO memories (id, session_id, workspace_id, agent_id, content, metadata, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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

// Search loads the scope's entries and ranks them by cosine similarity
// against the query embedding, applying the threshold and limit.
func (b *Backend) Search(ctx context.Context, queryEmbedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts == nil {
		opts = &backend.SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := "SELECT id, session_id, workspace_id, agent_id, content, metadata, embedding, created_at, updated_at FROM memories"
	clause, args := scopeClause(opts.Scope, opts.ScopeID)
	query += clause

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		entry, vector, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		score := cosineSimilarity(queryEmbedding, vector)
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		results = append(results, &models.SearchResult{Entry: entry, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes entries by id in one statement.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := b.db.ExecContext(ctx, "DELETE FROM memories WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("delete memories: %w", err)
	}
	return nil
}

// Count reports how many entries the scope holds.
func (b *Backend) Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error) {
	clause, args := scopeClause(scope, scopeID)
	var count int64
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories"+clause, args...).Scan(&count)
	return count, err
}

// Compact vacuums the database.
func (b *Backend) Compact(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// scopeClause builds the WHERE fragment for a scope filter; global/all
// scopes match everything.
func scopeClause(scope models.MemoryScope, scopeID string) (string, []any) {
	switch scope {
	case models.ScopeSession:
		return " WHERE session_id = ?", []any{scopeID}
	case models.ScopeWorkspace:
		return " WHERE workspace_id = ?", []any{scopeID}
	case models.ScopeAgent:
		return " WHERE agent_id = ?", []any{scopeID}
	default:
		return "", nil
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanEntry(rows *sql.Rows) (*models.MemoryEntry, []float32, error) {
	var entry models.MemoryEntry
	var sessionID, workspaceID, agentID sql.NullString
	var metadataJSON string
	var blob []byte

	err := rows.Scan(
		&entry.ID, &sessionID, &workspaceID, &agentID,
		&entry.Content, &metadataJSON, &blob,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("scan row: %w", err)
	}
	entry.SessionID = sessionID.String
	entry.WorkspaceID = workspaceID.String
	entry.AgentID = agentID.String
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
			return nil, nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &entry, decodeVector(blob), nil
}

// encodeVector packs float32s little-endian, 4 bytes each.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	data := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}
	return data
}

func decodeVector(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}

// cosineSimilarity is zero for mismatched or zero vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
