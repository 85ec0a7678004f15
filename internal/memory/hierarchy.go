package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sagerun/sage/internal/memory/backend"
	"github.com/sagerun/sage/pkg/models"
)

// HierarchyRequest parameterizes a scope-cascading search: the same query
// runs against each configured scope and the results merge by weighted
// score, so a session-local memory can outrank a global one.
type HierarchyRequest struct {
	Query     string
	Limit     int
	Threshold float32
	Filters   map[string]any

	SessionID   string
	WorkspaceID string
	AgentID     string
}

// scopeID picks the request identifier a scope narrows by; ok is false for
// scopes the request cannot serve (e.g. agent scope without an agent id).
func (r *HierarchyRequest) scopeID(scope models.MemoryScope) (string, bool) {
	switch scope {
	case models.ScopeSession:
		return r.SessionID, r.SessionID != ""
	case models.ScopeWorkspace:
		return r.WorkspaceID, r.WorkspaceID != ""
	case models.ScopeAgent:
		return r.AgentID, r.AgentID != ""
	case models.ScopeGlobal, models.ScopeAll:
		return "", true
	default:
		return "", false
	}
}

// SearchHierarchical runs the query across every configured scope and
// merges by weighted score, keeping each entry's best score.
func (m *Manager) SearchHierarchical(ctx context.Context, req *HierarchyRequest) (*models.SearchResponse, error) {
	if m == nil || m.backend == nil {
		return nil, fmt.Errorf("memory manager not initialized (set vector_memory.enabled)")
	}
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = m.config.Search.Hierarchy.MaxResults
	}
	if limit <= 0 {
		limit = m.config.Search.DefaultLimit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = m.config.Search.DefaultThreshold
	}

	queryEmbed, err := m.embedQuery(ctx, "hierarchy:"+req.Query, req.Query)
	if err != nil {
		return nil, err
	}

	scopes := m.config.Search.Hierarchy.Scopes
	if len(scopes) == 0 {
		scopes = []string{"session", "agent", "workspace", "global"}
	}

	best := make(map[string]*models.SearchResult)
	for _, scopeName := range scopes {
		scope := models.MemoryScope(strings.ToLower(strings.TrimSpace(scopeName)))
		scopeID, ok := req.scopeID(scope)
		if !ok {
			continue
		}

		found, err := m.backend.Search(ctx, queryEmbed, &backend.SearchOptions{
			Scope:     scope,
			ScopeID:   scopeID,
			Limit:     limit,
			Threshold: threshold,
			Filters:   req.Filters,
		})
		if err != nil {
			return nil, fmt.Errorf("search failed for scope %s: %w", scope, err)
		}

		weight := float32(1.0)
		if w, ok := m.config.Search.Hierarchy.Weights[string(scope)]; ok {
			weight = w
		}
		for _, res := range found {
			if res == nil || res.Entry == nil {
				continue
			}
			score := res.Score * weight
			if existing, ok := best[res.Entry.ID]; !ok || score > existing.Score {
				best[res.Entry.ID] = &models.SearchResult{Entry: res.Entry, Score: score}
			}
		}
	}

	merged := make([]*models.SearchResult, 0, len(best))
	for _, res := range best {
		merged = append(merged, res)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return &models.SearchResponse{
		Results:    merged,
		TotalCount: len(merged),
		QueryTime:  time.Since(start),
	}, nil
}
