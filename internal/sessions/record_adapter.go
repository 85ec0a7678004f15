package sessions

import (
	"context"

	"github.com/sagerun/sage/pkg/models"
)

// StoreRecordAdapter lifts a Store (e.g. the SQL-backed CockroachStore)
// into the RecordStore interface the Recorder writes through, so a
// deployment can point the recorder at a database instead of the file
// store without a second recorder implementation.
type StoreRecordAdapter struct {
	S Store
}

// CreateSession implements RecordStore.
func (a StoreRecordAdapter) CreateSession(ctx context.Context, session models.Session) error {
	return a.S.Create(ctx, &session)
}

// SaveSession implements RecordStore.
func (a StoreRecordAdapter) SaveSession(ctx context.Context, session models.Session) error {
	return a.S.Update(ctx, &session)
}

// AppendRecorded implements RecordStore.
func (a StoreRecordAdapter) AppendRecorded(ctx context.Context, sessionID string, msg models.Message) error {
	return a.S.AppendMessage(ctx, sessionID, &msg)
}
