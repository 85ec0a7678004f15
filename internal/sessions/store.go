package sessions

import (
	"context"

	"github.com/sagerun/sage/pkg/models"
)

// Store is the interface for session persistence. Sessions are keyed by
// their random id; message history is an append-only log per session.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error

	// List returns sessions sorted by updated_at descending.
	List(ctx context.Context, opts ListOptions) ([]*models.Session, error)

	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	// State restricts the listing to sessions in the given lifecycle
	// state; empty means all states.
	State  models.SessionState
	Limit  int
	Offset int
}
