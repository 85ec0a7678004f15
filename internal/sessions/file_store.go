package sessions

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sagerun/sage/pkg/models"
)

// FileStore persists one JSON file per session under Dir, named
// "<session-id>.json". Writes go to a temp sibling first and are renamed
// into place, so a crash mid-write never leaves a half-written session file
// for the next load to choke on.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore builds a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes into.
func (fs *FileStore) Dir() string {
	return fs.dir
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".json")
}

func (fs *FileStore) writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (fs *FileStore) load(id string) (models.SessionFile, error) {
	path := fs.path(id)
	gzPath := path + ".gz"

	var raw []byte
	var err error
	if _, statErr := os.Stat(gzPath); statErr == nil {
		raw, err = readGzip(gzPath)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return models.SessionFile{}, err
	}

	var sf models.SessionFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return models.SessionFile{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return sf, nil
}

func readGzip(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// CreateSession writes a brand-new session file with no messages.
func (fs *FileStore) CreateSession(ctx context.Context, session models.Session) error {
	return fs.saveFile(models.SessionFile{Session: session, Messages: nil})
}

func (fs *FileStore) saveFile(sf models.SessionFile) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sf.ID, err)
	}
	return fs.writeAtomic(fs.path(sf.ID), data)
}

// SaveSession rewrites the session's metadata, preserving whatever messages
// are already on disk.
func (fs *FileStore) SaveSession(ctx context.Context, session models.Session) error {
	existing, err := fs.load(session.ID)
	if err != nil {
		existing = models.SessionFile{}
	}
	existing.Session = session
	return fs.saveFile(existing)
}

// AppendRecorded appends msg to the session's message log and rewrites the
// file (atomically - there is no append-in-place for a JSON document).
func (fs *FileStore) AppendRecorded(ctx context.Context, sessionID string, msg models.Message) error {
	existing, err := fs.load(sessionID)
	if err != nil {
		existing = models.SessionFile{Session: models.Session{ID: sessionID}}
	}
	existing.Messages = append(existing.Messages, &msg)
	existing.MessageCount = len(existing.Messages)
	return fs.saveFile(existing)
}

// Load reads a full session (metadata + messages) by id, transparently
// handling either the plain or gzip-compressed on-disk form.
func (fs *FileStore) Load(id string) (models.SessionFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.load(id)
}

// Exists reports whether a session file (plain or gzip) exists for id.
func (fs *FileStore) Exists(id string) bool {
	if _, err := os.Stat(fs.path(id)); err == nil {
		return true
	}
	_, err := os.Stat(fs.path(id) + ".gz")
	return err == nil
}

// Delete removes both the plain and gzip forms of a session file, if
// present.
func (fs *FileStore) Delete(id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_ = os.Remove(fs.path(id))
	_ = os.Remove(fs.path(id) + ".gz")
	return nil
}

// ArchiveTrajectory writes t as a gzip-compressed archival record alongside
// the live session files, under "<id>.trajectory.json.gz".
func (fs *FileStore) ArchiveTrajectory(t models.Trajectory) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal trajectory %s: %w", t.ID, err)
	}

	path := filepath.Join(fs.dir, t.ID+".trajectory.json.gz")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		f.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadTrajectory reads an archived trajectory by id, regardless of whether
// it was written gzip-compressed.
func (fs *FileStore) LoadTrajectory(id string) (models.Trajectory, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	gzPath := filepath.Join(fs.dir, id+".trajectory.json.gz")
	plainPath := filepath.Join(fs.dir, id+".trajectory.json")

	var raw []byte
	var err error
	if _, statErr := os.Stat(gzPath); statErr == nil {
		raw, err = readGzip(gzPath)
	} else {
		raw, err = os.ReadFile(plainPath)
	}
	if err != nil {
		return models.Trajectory{}, err
	}

	var t models.Trajectory
	if err := json.Unmarshal(raw, &t); err != nil {
		return models.Trajectory{}, fmt.Errorf("load trajectory %s: %w", id, err)
	}
	return t, nil
}

// SessionSummary is the listing shape List returns: metadata without the
// full message log, so scanning a large session directory stays cheap.
type SessionSummary struct {
	models.Session
}

// List scans Dir for session files (plain and gzip) and returns summaries
// sorted by UpdatedAt descending, merging and de-duplicating by id - a
// session written once as plain and later re-archived as gzip (or vice
// versa) still appears exactly once.
func (fs *FileStore) List() ([]SessionSummary, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	seen := make(map[string]SessionSummary)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".json.gz") {
			continue
		}
		if strings.Contains(name, ".trajectory.") {
			continue
		}
		if strings.HasSuffix(name, ".tmp") {
			continue
		}

		id := strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".json")
		if _, ok := seen[id]; ok {
			continue
		}

		sf, err := fs.load(id)
		if err != nil {
			continue
		}
		seen[id] = SessionSummary{Session: sf.Session}
	}

	out := make([]SessionSummary, 0, len(seen))
	for _, s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
