// Package workspace allocates isolated scratch directories for clip
// requests. The shared root may be reused across invocations and may hold
// other requests' directories; the uniquely named subdirectory is the unit
// of isolation.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/clipforge/clipgen/internal/logging"
)

const (
	dirPrefix = "clip-"

	imageFile  = "chat.png"
	audioFile  = "audio.m4a"
	outputFile = "output.mp4"
)

// Workspace is a directory exclusively owned by one in-flight request.
type Workspace struct {
	id   string
	dir  string
	once sync.Once
}

func (w *Workspace) ID() string         { return w.id }
func (w *Workspace) Dir() string        { return w.dir }
func (w *Workspace) ImagePath() string  { return filepath.Join(w.dir, imageFile) }
func (w *Workspace) AudioPath() string  { return filepath.Join(w.dir, audioFile) }
func (w *Workspace) OutputPath() string { return filepath.Join(w.dir, outputFile) }

// Manager creates and removes workspaces under a root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{root: root, logger: logging.OrDiscard(logger)}
}

func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh, uniquely named directory under the root.
func (m *Manager) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(m.root, dirPrefix+id)
	// Mkdir, not MkdirAll: an existing directory with this name means the
	// name is not ours and must not be shared.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	m.logger.Debug("workspace acquired", "workspace_id", id)
	return &Workspace{id: id, dir: dir}, nil
}

// Release removes the workspace tree. Errors are logged and swallowed so
// cleanup never replaces the request's primary result. Calling Release more
// than once on the same workspace is a no-op.
func (m *Manager) Release(w *Workspace) {
	if w == nil {
		return
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			m.logger.Warn("failed to remove workspace", "workspace_id", w.id, "error", err)
			return
		}
		m.logger.Debug("workspace released", "workspace_id", w.id)
	})
}

// With acquires a workspace, runs fn, and releases the workspace on every
// exit path, including a panic inside fn (which is re-raised after cleanup).
func (m *Manager) With(fn func(*Workspace) error) error {
	w, err := m.Acquire()
	if err != nil {
		return err
	}
	defer m.Release(w)
	return fn(w)
}
