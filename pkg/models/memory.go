package models

import "time"

// MemoryScope selects which partition of the memory store a search or
// write applies to.
type MemoryScope string

const (
	ScopeSession   MemoryScope = "session"
	ScopeWorkspace MemoryScope = "workspace"
	ScopeAgent     MemoryScope = "agent"
	// ScopeGlobal matches memories stored without a narrower scope.
	ScopeGlobal MemoryScope = "global"
	// ScopeAll searches across every scope.
	ScopeAll MemoryScope = "all"
)

// MemoryEntry is one item in the vector store. The embedding never
// serializes; it lives only in the backend.
type MemoryEntry struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`

	Content  string         `json:"content"`
	Metadata MemoryMetadata `json:"metadata"`

	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryMetadata annotates an entry with where it came from.
type MemoryMetadata struct {
	Source string         `json:"source"` // "message", "document", "note"
	Role   string         `json:"role"`   // "user", "assistant"
	Tags   []string       `json:"tags"`
	Extra  map[string]any `json:"extra"`
}

// SearchRequest parameterizes a semantic search. Threshold is the
// minimum similarity in [0,1]; zero keeps everything.
type SearchRequest struct {
	Query     string         `json:"query"`
	Scope     MemoryScope    `json:"scope"`
	ScopeID   string         `json:"scope_id"`
	Limit     int            `json:"limit"`
	Threshold float32        `json:"threshold"`
	Filters   map[string]any `json:"filters"`
}

// SearchResult pairs an entry with its similarity score and any
// matched snippets.
type SearchResult struct {
	Entry      *MemoryEntry `json:"entry"`
	Score      float32      `json:"score"`
	Highlights []string     `json:"highlights"`
}

// SearchResponse is the full result set of one search.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"total_count"`
	QueryTime  time.Duration   `json:"query_time"`
}
