package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sagerun/sage/pkg/models"
)

const (
	sessionColumnsSQL = "id, working_directory, git_branch, model, name, state, message_count, metadata, created_at, updated_at"
	messageColumnsSQL = "uuid, session_id, parent_uuid, branch_id, branch_parent_uuid, type, role, content, tool_calls, tool_results, usage, metadata, is_sidechain, timestamp"
)

var sessionColumns = strings.Split(strings.ReplaceAll(sessionColumnsSQL, " ", ""), ",")

var messageColumns = strings.Split(strings.ReplaceAll(messageColumnsSQL, " ", ""), ",")

// setupMockStore creates a mock database and a store with the statements the
// test under exercise needs prepared against it.
func setupMockStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *CockroachStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	return db, mock, &CockroachStore{db: db}
}

func prepare(t *testing.T, db *sql.DB, query string) *sql.Stmt {
	t.Helper()
	stmt, err := db.Prepare(query)
	if err != nil {
		t.Fatalf("failed to prepare statement: %v", err)
	}
	return stmt
}

// TestCockroachStore_Create tests the Create method.
func TestCockroachStore_Create(t *testing.T) {
	tests := []struct {
		name        string
		session     *models.Session
		setupMock   func(sqlmock.Sqlmock)
		wantErr     bool
		errContains string
	}{
		{
			name: "successful create",
			session: &models.Session{
				ID:               "session-1",
				WorkingDirectory: "/tmp/project",
				GitBranch:        "main",
				Model:            "claude-sonnet-4.5",
				Name:             "Test Session",
				State:            models.SessionActive,
				Metadata:         map[string]any{"foo": "bar"},
				CreatedAt:        time.Now(),
				UpdatedAt:        time.Now(),
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO sessions")
				mock.ExpectExec("INSERT INTO sessions").
					WithArgs(
						"session-1",
						"/tmp/project",
						"main",
						"claude-sonnet-4.5",
						"Test Session",
						models.SessionActive,
						0,
						sqlmock.AnyArg(), // metadata JSON
						sqlmock.AnyArg(), // created_at
						sqlmock.AnyArg(), // updated_at
					).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			wantErr: false,
		},
		{
			name: "database error",
			session: &models.Session{
				ID:        "session-1",
				State:     models.SessionActive,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO sessions")
				mock.ExpectExec("INSERT INTO sessions").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:     true,
			errContains: "failed to create session",
		},
		{
			name: "session with nil metadata",
			session: &models.Session{
				ID:        "session-2",
				State:     models.SessionActive,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO sessions")
				mock.ExpectExec("INSERT INTO sessions").
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockStore(t)
			defer db.Close()

			tt.setupMock(mock)
			store.stmtCreateSession = prepare(t, db, "INSERT INTO sessions ("+sessionColumnsSQL+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)")

			err := store.Create(context.Background(), tt.session)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if tt.errContains != "" && err != nil && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

// TestCockroachStore_CreateAssignsDefaults verifies id/state/timestamp defaults.
func TestCockroachStore_CreateAssignsDefaults(t *testing.T) {
	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectPrepare("INSERT INTO sessions")
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	store.stmtCreateSession = prepare(t, db, "INSERT INTO sessions ("+sessionColumnsSQL+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)")

	session := &models.Session{}
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.ID == "" {
		t.Error("expected id to be assigned")
	}
	if session.State != models.SessionActive {
		t.Errorf("expected state active, got %q", session.State)
	}
	if session.CreatedAt.IsZero() {
		t.Error("expected created_at to be stamped")
	}
}

// TestCockroachStore_Get tests the Get method.
func TestCockroachStore_Get(t *testing.T) {
	now := time.Now()
	metadata := map[string]any{"key": "value"}
	metadataJSON, _ := json.Marshal(metadata)

	tests := []struct {
		name      string
		id        string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
		wantName  string
		wantState models.SessionState
	}{
		{
			name: "existing session",
			id:   "session-1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("SELECT (.+) FROM sessions")
				rows := sqlmock.NewRows(sessionColumns).
					AddRow("session-1", "/tmp/project", "main", "claude-sonnet-4.5", "My Session", "active", 3, metadataJSON, now, now)
				mock.ExpectQuery("SELECT (.+) FROM sessions").
					WithArgs("session-1").
					WillReturnRows(rows)
			},
			wantErr:   false,
			wantName:  "My Session",
			wantState: models.SessionActive,
		},
		{
			name: "non-existent session",
			id:   "missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("SELECT (.+) FROM sessions")
				mock.ExpectQuery("SELECT (.+) FROM sessions").
					WithArgs("missing").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockStore(t)
			defer db.Close()

			tt.setupMock(mock)
			store.stmtGetSession = prepare(t, db, "SELECT "+sessionColumnsSQL+" FROM sessions WHERE id = $1")

			got, err := store.Get(context.Background(), tt.id)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != tt.wantName {
				t.Errorf("name = %q, want %q", got.Name, tt.wantName)
			}
			if got.State != tt.wantState {
				t.Errorf("state = %q, want %q", got.State, tt.wantState)
			}
			if got.Metadata["key"] != "value" {
				t.Errorf("metadata not unmarshaled: %v", got.Metadata)
			}
		})
	}
}

// TestCockroachStore_Update tests the Update method.
func TestCockroachStore_Update(t *testing.T) {
	tests := []struct {
		name      string
		session   *models.Session
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "successful update",
			session: &models.Session{
				ID:           "session-1",
				Name:         "Renamed",
				State:        models.SessionCompleted,
				MessageCount: 7,
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("UPDATE sessions")
				mock.ExpectExec("UPDATE sessions").
					WithArgs("Renamed", models.SessionCompleted, 7, sqlmock.AnyArg(), sqlmock.AnyArg(), "session-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "non-existent session",
			session: &models.Session{
				ID:    "missing",
				State: models.SessionActive,
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("UPDATE sessions")
				mock.ExpectExec("UPDATE sessions").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockStore(t)
			defer db.Close()

			tt.setupMock(mock)
			store.stmtUpdateSession = prepare(t, db, "UPDATE sessions SET name = $1, state = $2, message_count = $3, metadata = $4, updated_at = $5 WHERE id = $6")

			err := store.Update(context.Background(), tt.session)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

// TestCockroachStore_Delete tests the Delete method.
func TestCockroachStore_Delete(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		setupMock func(sqlmock.Sqlmock)
		wantErr   bool
	}{
		{
			name: "successful delete",
			id:   "session-1",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("DELETE FROM sessions")
				mock.ExpectExec("DELETE FROM sessions").
					WithArgs("session-1").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantErr: false,
		},
		{
			name: "non-existent session",
			id:   "missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("DELETE FROM sessions")
				mock.ExpectExec("DELETE FROM sessions").
					WithArgs("missing").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockStore(t)
			defer db.Close()

			tt.setupMock(mock)
			store.stmtDeleteSession = prepare(t, db, "DELETE FROM sessions WHERE id = $1")

			err := store.Delete(context.Background(), tt.id)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// TestCockroachStore_List tests the List method.
func TestCockroachStore_List(t *testing.T) {
	now := time.Now()

	t.Run("all sessions sorted newest first", func(t *testing.T) {
		db, mock, store := setupMockStore(t)
		defer db.Close()

		rows := sqlmock.NewRows(sessionColumns).
			AddRow("s2", "", "", "", "", "active", 1, []byte(`{}`), now, now).
			AddRow("s1", "", "", "", "", "completed", 5, []byte(`{}`), now.Add(-time.Hour), now.Add(-time.Hour))
		mock.ExpectQuery("SELECT (.+) FROM sessions ORDER BY updated_at DESC").
			WillReturnRows(rows)

		got, err := store.List(context.Background(), ListOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(got))
		}
		if got[0].ID != "s2" || got[1].ID != "s1" {
			t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
		}
	})

	t.Run("state filter and pagination", func(t *testing.T) {
		db, mock, store := setupMockStore(t)
		defer db.Close()

		rows := sqlmock.NewRows(sessionColumns).
			AddRow("s3", "", "", "", "", "active", 0, []byte(`{}`), now, now)
		mock.ExpectQuery("SELECT (.+) FROM sessions WHERE state = (.+) ORDER BY updated_at DESC LIMIT (.+) OFFSET (.+)").
			WithArgs("active", 1, 2).
			WillReturnRows(rows)

		got, err := store.List(context.Background(), ListOptions{State: models.SessionActive, Limit: 1, Offset: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].ID != "s3" {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("query error", func(t *testing.T) {
		db, mock, store := setupMockStore(t)
		defer db.Close()

		mock.ExpectQuery("SELECT (.+) FROM sessions").
			WillReturnError(errors.New("connection refused"))

		if _, err := store.List(context.Background(), ListOptions{}); err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestCockroachStore_AppendMessage tests the AppendMessage method.
func TestCockroachStore_AppendMessage(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		message     *models.Message
		setupMock   func(sqlmock.Sqlmock)
		wantErr     bool
		errContains string
	}{
		{
			name: "successful append",
			message: &models.Message{
				UUID:      "msg-1",
				Type:      models.MessageTypeUser,
				Role:      models.RoleUser,
				Content:   "hello",
				Timestamp: now,
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO messages")
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO messages").
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec("UPDATE sessions SET message_count").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			wantErr: false,
		},
		{
			name: "missing uuid",
			message: &models.Message{
				Role:    models.RoleUser,
				Content: "hello",
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO messages")
			},
			wantErr:     true,
			errContains: "uuid is required",
		},
		{
			name: "insert error rolls back",
			message: &models.Message{
				UUID:      "msg-2",
				Role:      models.RoleUser,
				Content:   "hello",
				Timestamp: now,
			},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectPrepare("INSERT INTO messages")
				mock.ExpectBegin()
				mock.ExpectExec("INSERT INTO messages").
					WillReturnError(errors.New("constraint violation"))
				mock.ExpectRollback()
			},
			wantErr:     true,
			errContains: "failed to append message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, store := setupMockStore(t)
			defer db.Close()

			tt.setupMock(mock)
			store.stmtAppendMessage = prepare(t, db, "INSERT INTO messages ("+messageColumnsSQL+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)")

			err := store.AppendMessage(context.Background(), "session-1", tt.message)

			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if tt.errContains != "" && err != nil && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

// TestCockroachStore_GetHistory tests the GetHistory method.
func TestCockroachStore_GetHistory(t *testing.T) {
	now := time.Now()
	toolCalls, _ := json.Marshal([]models.ToolCall{{ID: "tc-1", Name: "ls", Input: json.RawMessage(`{"path":"."}`)}})

	db, mock, store := setupMockStore(t)
	defer db.Close()

	mock.ExpectPrepare("SELECT (.+) FROM messages")
	// Rows arrive newest-first from the query; GetHistory reverses them.
	rows := sqlmock.NewRows(messageColumns).
		AddRow("msg-2", "session-1", "msg-1", "", "", "assistant", "assistant", "done", toolCalls, []byte(`null`), []byte(`null`), []byte(`null`), false, now).
		AddRow("msg-1", "session-1", "", "", "", "user", "user", "hello", []byte(`null`), []byte(`null`), []byte(`null`), []byte(`null`), false, now.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("session-1", 10).
		WillReturnRows(rows)

	store.stmtGetHistory = prepare(t, db, "SELECT "+messageColumnsSQL+" FROM messages WHERE session_id = $1 ORDER BY timestamp DESC LIMIT $2")

	history, err := store.GetHistory(context.Background(), "session-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].UUID != "msg-1" || history[1].UUID != "msg-2" {
		t.Errorf("history not in chronological order: %s, %s", history[0].UUID, history[1].UUID)
	}
	if history[1].ParentUUID != "msg-1" {
		t.Errorf("parent uuid = %q, want msg-1", history[1].ParentUUID)
	}
	if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Name != "ls" {
		t.Errorf("tool calls not unmarshaled: %+v", history[1].ToolCalls)
	}
}

// TestCockroachStore_Close tests the Close method.
func TestCockroachStore_Close(t *testing.T) {
	db, mock, store := setupMockStore(t)

	mock.ExpectClose()
	if err := store.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	_ = db
}

// TestCockroachConfig tests default configuration.
func TestCockroachConfig(t *testing.T) {
	cfg := DefaultCockroachConfig()
	if cfg.Port != 26257 {
		t.Errorf("port = %d, want 26257", cfg.Port)
	}
	if cfg.Database != "sage" {
		t.Errorf("database = %q, want sage", cfg.Database)
	}
	if cfg.MaxOpenConns <= 0 {
		t.Error("expected a positive MaxOpenConns default")
	}
	if cfg.ConnectTimeout <= 0 {
		t.Error("expected a positive ConnectTimeout default")
	}
}

// TestNewCockroachStoreFromDSN_EmptyDSN tests DSN validation.
func TestNewCockroachStoreFromDSN_EmptyDSN(t *testing.T) {
	if _, err := NewCockroachStoreFromDSN("", nil); err == nil {
		t.Error("expected error for empty dsn")
	}
}
