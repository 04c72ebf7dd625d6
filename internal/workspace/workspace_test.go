package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquire_CreatesUniqueDirectories(t *testing.T) {
	m := NewManager(t.TempDir(), nil)

	a, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	b, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if a.Dir() == b.Dir() {
		t.Fatalf("two workspaces share %q", a.Dir())
	}
	for _, w := range []*Workspace{a, b} {
		info, err := os.Stat(w.Dir())
		if err != nil || !info.IsDir() {
			t.Fatalf("workspace dir %q missing: %v", w.Dir(), err)
		}
		if !strings.HasPrefix(filepath.Base(w.Dir()), dirPrefix) {
			t.Errorf("workspace dir %q lacks prefix %q", w.Dir(), dirPrefix)
		}
	}
}

func TestAcquire_DerivedPathsStayInside(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	w, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer m.Release(w)

	for _, p := range []string{w.ImagePath(), w.AudioPath(), w.OutputPath()} {
		if filepath.Dir(p) != w.Dir() {
			t.Errorf("path %q is not directly inside %q", p, w.Dir())
		}
	}
}

func TestAcquire_RootNotExclusive(t *testing.T) {
	root := t.TempDir()
	// Leftovers from a previous invocation in a reused environment.
	stale := filepath.Join(root, "clip-stale")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	m := NewManager(root, nil)
	w, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	m.Release(w)

	if _, err := os.Stat(stale); err != nil {
		t.Fatalf("release touched a foreign directory: %v", err)
	}
}

func TestAcquire_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")
	m := NewManager(root, nil)
	w, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	m.Release(w)
}

func TestRelease_RemovesTreeAndIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	w, err := m.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := os.WriteFile(w.OutputPath(), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	m.Release(w)
	m.Release(w)
	m.Release(nil)

	if _, err := os.Stat(w.Dir()); !os.IsNotExist(err) {
		t.Fatalf("workspace still exists after release: %v", err)
	}
}

func TestWith_ReleasesOnError(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	sentinel := errors.New("boom")
	var dir string

	err := m.With(func(w *Workspace) error {
		dir = w.Dir()
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("With() error = %v, want sentinel", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace leaked after error: %v", err)
	}
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	var dir string

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = m.With(func(w *Workspace) error {
			dir = w.Dir()
			panic("stage exploded")
		})
	}()

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workspace leaked after panic: %v", err)
	}
}

func TestAcquire_UnwritableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(file, nil)
	if _, err := m.Acquire(); err == nil {
		t.Fatal("expected error when root is a file")
	}
}
