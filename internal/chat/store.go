package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"krusty/internal/fileutil"
	"krusty/internal/logging"
)

// Store persists sessions. A turn is either fully persisted or not at all;
// writes for the same session are serialized, writes for different
// sessions proceed independently.
type Store interface {
	AppendTurn(s *Session, t *Turn) error
	Save(s *Session) error
	Load(id string) (*Session, error)
	List() ([]SessionInfo, error)
	Delete(id string) error
}

// SessionInfo summarizes a persisted session for listings.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	WorkDir   string    `json:"work_dir"`
	TurnCount int       `json:"turn_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore stores each session as a JSON file under a data directory,
// using atomic tmp+rename writes and a per-session lock.
type FileStore struct {
	dir   string
	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// lockFor returns the write lock for a session ID.
func (fs *FileStore) lockFor(id string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	l, ok := fs.locks[id]
	if !ok {
		l = &sync.Mutex{}
		fs.locks[id] = l
	}
	return l
}

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.dir, id+".json")
}

// AppendTurn appends a turn to the session and persists the session
// atomically. If the write fails, the in-memory append is rolled back so
// memory and disk stay consistent.
func (fs *FileStore) AppendTurn(s *Session, t *Turn) error {
	l := fs.lockFor(s.ID)
	l.Lock()
	defer l.Unlock()

	s.Append(t)
	if err := fs.writeLocked(s); err != nil {
		s.mu.Lock()
		s.Turns = s.Turns[:len(s.Turns)-1]
		s.mu.Unlock()
		return fmt.Errorf("failed to persist turn %d: %w", t.Seq, err)
	}
	return nil
}

// Save persists the full session state atomically.
func (fs *FileStore) Save(s *Session) error {
	l := fs.lockFor(s.ID)
	l.Lock()
	defer l.Unlock()
	return fs.writeLocked(s)
}

func (fs *FileStore) writeLocked(s *Session) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return fileutil.AtomicWrite(fs.path(s.ID), data, 0644)
}

// Load reads a session back from disk.
func (fs *FileStore) Load(id string) (*Session, error) {
	data, err := os.ReadFile(fs.path(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("corrupted session file %s: %w", id, err)
	}
	s.restoreSeq()
	return s, nil
}

// List returns summaries of all persisted sessions, newest first.
func (fs *FileStore) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}

	var infos []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		s, err := fs.Load(id)
		if err != nil {
			logging.Warn("skipping unreadable session file", "file", e.Name(), "error", err)
			continue
		}
		fi, err := e.Info()
		updated := time.Time{}
		if err == nil {
			updated = fi.ModTime()
		}
		infos = append(infos, SessionInfo{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			WorkDir:   s.WorkDir,
			TurnCount: len(s.Turns),
			UpdatedAt: updated,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

// Delete removes a persisted session.
func (fs *FileStore) Delete(id string) error {
	l := fs.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return os.Remove(fs.path(id))
}

// Prune removes sessions older than maxAge and, if the remainder still
// exceeds maxCount, the oldest beyond that count. Returns how many were
// removed.
func (fs *FileStore) Prune(maxAge time.Duration, maxCount int) int {
	infos, err := fs.List()
	if err != nil {
		logging.Warn("session prune failed", "error", err)
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	var kept []SessionInfo
	for _, info := range infos {
		if maxAge > 0 && info.UpdatedAt.Before(cutoff) {
			if err := fs.Delete(info.ID); err == nil {
				removed++
				continue
			}
		}
		kept = append(kept, info)
	}

	if maxCount > 0 && len(kept) > maxCount {
		// kept is newest-first; drop the tail
		for _, info := range kept[maxCount:] {
			if err := fs.Delete(info.ID); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logging.Debug("pruned old sessions", "removed", removed)
	}
	return removed
}
