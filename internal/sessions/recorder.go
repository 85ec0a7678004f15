package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sagerun/sage/pkg/models"
)

// RecordStore is the storage surface Recorder needs: append a message to a
// session's log and persist the session's own metadata. FileStore satisfies
// it directly; any Store (MemoryStore, CockroachStore) satisfies it through
// StoreRecordAdapter.
type RecordStore interface {
	CreateSession(ctx context.Context, session models.Session) error
	SaveSession(ctx context.Context, session models.Session) error
	AppendRecorded(ctx context.Context, sessionID string, msg models.Message) error
}

// Recorder implements the session recorder contract: every record method returns
// the assigned message (with its uuid) so callers can link children, and
// lineage (parent_uuid/last_uuid) is tracked per session rather than left to
// the caller.
type Recorder struct {
	store RecordStore

	mu       sync.Mutex
	lastUUID map[string]string
	sessions map[string]models.Session
}

// NewRecorder builds a Recorder writing through to store.
func NewRecorder(store RecordStore) *Recorder {
	return &Recorder{
		store:    store,
		lastUUID: make(map[string]string),
		sessions: make(map[string]models.Session),
	}
}

// SessionMeta seeds a new session's identifying fields.
type SessionMeta struct {
	WorkingDirectory string
	GitBranch        string
	Model            string
	Name             string
}

// StartSession allocates a session id, persists the initial Active session,
// and returns the id.
func (r *Recorder) StartSession(ctx context.Context, meta SessionMeta) (string, error) {
	id := uuid.NewString()
	now := time.Now()
	session := models.Session{
		ID:               id,
		WorkingDirectory: meta.WorkingDirectory,
		GitBranch:        meta.GitBranch,
		Model:            meta.Model,
		Name:             meta.Name,
		CreatedAt:        now,
		UpdatedAt:        now,
		State:            models.SessionActive,
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()
	return id, nil
}

// nextMessage builds a Message stamped with a fresh UUID and this session's
// current last_uuid as its parent, unless overrideParent is non-empty (the
// sidechain path).
func (r *Recorder) nextMessage(sessionID string, overrideParent, branchID string) models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent := r.lastUUID[sessionID]
	isSidechain := overrideParent != "" || branchID != ""
	if overrideParent != "" {
		parent = overrideParent
	}

	msg := models.Message{
		UUID:        uuid.NewString(),
		ParentUUID:  parent,
		Timestamp:   time.Now(),
		SessionID:   sessionID,
		IsSidechain: isSidechain,
	}
	if isSidechain {
		msg.BranchID = branchID
		msg.BranchParentUUID = parent
	}

	if !isSidechain {
		r.lastUUID[sessionID] = msg.UUID
	}
	return msg
}

func (r *Recorder) touchSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if ok {
		session.MessageCount++
		session.UpdatedAt = time.Now()
		r.sessions[sessionID] = session
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.store.SaveSession(ctx, session)
}

// RecordUser records a user-authored turn.
func (r *Recorder) RecordUser(ctx context.Context, sessionID, content string) (models.Message, error) {
	msg := r.nextMessage(sessionID, "", "")
	msg.Type = models.MessageTypeUser
	msg.Role = models.RoleUser
	msg.Content = content

	if err := r.store.AppendRecorded(ctx, sessionID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, r.touchSession(ctx, sessionID)
}

// RecordAssistant records an assistant turn, optionally carrying tool calls
// the model requested and token usage for the turn.
func (r *Recorder) RecordAssistant(ctx context.Context, sessionID, content string, toolCalls []models.ToolCall, usage *models.Usage) (models.Message, error) {
	msg := r.nextMessage(sessionID, "", "")
	msg.Type = models.MessageTypeAssistant
	msg.Role = models.RoleAssistant
	msg.Content = content
	msg.ToolCalls = toolCalls
	msg.Usage = usage

	if err := r.store.AppendRecorded(ctx, sessionID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, r.touchSession(ctx, sessionID)
}

// RecordToolResult records the outcome of one dispatched tool call.
func (r *Recorder) RecordToolResult(ctx context.Context, sessionID string, result models.ToolResult) (models.Message, error) {
	msg := r.nextMessage(sessionID, "", "")
	msg.Type = models.MessageTypeToolResult
	msg.Role = models.RoleTool
	msg.ToolResults = []models.ToolResult{result}

	if err := r.store.AppendRecorded(ctx, sessionID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, r.touchSession(ctx, sessionID)
}

// RecordError records a classified error as its own session entry.
func (r *Recorder) RecordError(ctx context.Context, sessionID, kind, message string) (models.Message, error) {
	msg := r.nextMessage(sessionID, "", "")
	msg.Type = models.MessageTypeError
	msg.Content = message
	msg.Metadata = map[string]any{"kind": kind}

	if err := r.store.AppendRecorded(ctx, sessionID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, r.touchSession(ctx, sessionID)
}

// RecordFileSnapshot records a system-typed entry referencing an earlier
// message's uuid, marking the point a file's contents were captured for
// potential rollback.
func (r *Recorder) RecordFileSnapshot(ctx context.Context, sessionID, messageUUID string) (models.Message, error) {
	msg := r.nextMessage(sessionID, "", "")
	msg.Type = models.MessageTypeSystem
	msg.Metadata = map[string]any{"file_snapshot_of": messageUUID}

	if err := r.store.AppendRecorded(ctx, sessionID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, r.touchSession(ctx, sessionID)
}

// RecordSidechain records a message on a branch rooted at parentUUID rather
// than the session's main lineage, used for sub-agent/what-if exploration
// that should not perturb last_uuid.
func (r *Recorder) RecordSidechain(ctx context.Context, sessionID, branchID, parentUUID, content string) (models.Message, error) {
	msg := r.nextMessage(sessionID, parentUUID, branchID)
	msg.Type = models.MessageTypeAssistant
	msg.Role = models.RoleAssistant
	msg.Content = content

	if err := r.store.AppendRecorded(ctx, sessionID, msg); err != nil {
		return models.Message{}, err
	}
	return msg, r.touchSession(ctx, sessionID)
}

// EndSession transitions the session out of Active to Completed or Failed.
func (r *Recorder) EndSession(ctx context.Context, sessionID string, success bool) error {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("end session: unknown session %s", sessionID)
	}
	next := models.SessionCompleted
	if !success {
		next = models.SessionFailed
	}
	if !session.CanTransitionTo(next) {
		r.mu.Unlock()
		return nil
	}
	session.State = next
	session.UpdatedAt = time.Now()
	r.sessions[sessionID] = session
	r.mu.Unlock()

	return r.store.SaveSession(ctx, session)
}
