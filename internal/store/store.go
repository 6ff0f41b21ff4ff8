// Package store persists the session list as a single JSON file.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/export"
)

// FileStore reads and writes the session list file. It never keeps a live
// reference to a session; callers hand it snapshots.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the session file path
func (fs *FileStore) Path() string {
	return fs.path
}

// LoadAll returns the stored sessions, most recently updated first. A missing
// or malformed file yields an empty list.
func (fs *FileStore) LoadAll() []*internal.Session {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sessions, err := fs.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			internal.LogWarn("Failed to load sessions, starting empty: %v", err)
		}
		return []*internal.Session{}
	}
	return sessions
}

// Validate strictly reads the file, reporting what LoadAll would swallow
func (fs *FileStore) Validate() (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sessions, err := fs.read()
	if err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func (fs *FileStore) read() ([]*internal.Session, error) {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return nil, &internal.PersistenceError{Path: fs.path, Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []*internal.Session{}, nil
	}

	var decoded []*internal.Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &internal.PersistenceError{Path: fs.path, Op: "decode", Err: err}
	}

	normalizer := internal.NewNormalizer()
	sessions := make([]*internal.Session, 0, len(decoded))
	for i, s := range decoded {
		normalized, err := normalizer.NormalizeSession(s)
		if err != nil {
			internal.LogWarn("Skipping stored session %d: %v", i, err)
			continue
		}
		sessions = append(sessions, normalized)
	}

	sessions = internal.NewDeduplicator().Deduplicate(sessions)
	sortByRecency(sessions)
	return sessions, nil
}

// SaveAll overwrites the file with sessions. It writes a temp file next to
// the target and renames it over, so a failed write leaves the old file intact.
func (fs *FileStore) SaveAll(sessions []*internal.Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ordered := make([]*internal.Session, 0, len(sessions))
	for _, s := range sessions {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sortByRecency(ordered)

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return &internal.PersistenceError{Path: fs.path, Op: "encode", Err: err}
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return &internal.PersistenceError{Path: dir, Op: "write", Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.json.tmp")
	if err != nil {
		return &internal.PersistenceError{Path: fs.path, Op: "write", Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return &internal.PersistenceError{Path: tmpPath, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return &internal.PersistenceError{Path: tmpPath, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &internal.PersistenceError{Path: tmpPath, Op: "write", Err: err}
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		cleanup()
		return &internal.PersistenceError{Path: fs.path, Op: "rename", Err: err}
	}

	internal.LogDebug("Saved %d session(s) to %s", len(ordered), fs.path)
	return nil
}

// ImportOne decodes a single exported session
func (fs *FileStore) ImportOne(data []byte) (*internal.Session, error) {
	return ImportOne(data)
}

// ExportOne encodes a single session in the interchange format
func (fs *FileStore) ExportOne(session *internal.Session) ([]byte, error) {
	return ExportOne(session)
}

// ImportOne decodes a single session in the interchange format
func ImportOne(data []byte) (*internal.Session, error) {
	var session internal.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, &internal.PersistenceError{Path: "<import>", Op: "decode", Err: err}
	}
	normalized, err := internal.NewNormalizer().NormalizeSession(&session)
	if err != nil {
		return nil, &internal.PersistenceError{Path: "<import>", Op: "decode", Err: err}
	}
	return normalized, nil
}

// ExportOne encodes session with the same schema the session file uses
func ExportOne(session *internal.Session) ([]byte, error) {
	if session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	var buf bytes.Buffer
	if err := (&export.JSONExporter{}).Export(session, &buf); err != nil {
		return nil, &internal.PersistenceError{Path: "<export>", Op: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

func sortByRecency(sessions []*internal.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}
