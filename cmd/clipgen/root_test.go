package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clipforge/clipgen/internal/api"
	"github.com/clipforge/clipgen/internal/config"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "probe", "clips", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "clipgen "+config.Version) {
		t.Errorf("output = %q", out.String())
	}
}

func TestProbeCommand_MissingBinary(t *testing.T) {
	t.Setenv(config.EnvFFmpegPath, filepath.Join(t.TempDir(), "no-ffmpeg"))
	t.Setenv(config.EnvSupabaseURL, "https://project.supabase.example")
	t.Setenv(config.EnvSupabaseServiceKey, "service-key-0123456789")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"probe"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected probe to fail without ffmpeg")
	}
	if !strings.Contains(out.String(), "ffmpeg unavailable") {
		t.Errorf("output = %q", out.String())
	}
	if strings.Contains(out.String(), "service-key-0123456789") {
		t.Error("probe output leaked the service key")
	}
}

func TestShutdownTimeout(t *testing.T) {
	t.Setenv(config.EnvStageTimeout, "10s")
	t.Setenv(config.EnvUploadTimeout, "20s")
	t.Setenv(config.EnvSupabaseURL, "https://project.supabase.example")
	t.Setenv(config.EnvSupabaseServiceKey, "key")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := shutdownTimeout(cfg); got != 45*time.Second {
		t.Errorf("shutdownTimeout() = %v, want 45s", got)
	}
}

func TestClipsCommand_RendersTable(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clips" {
			t.Errorf("path = %q, want /clips", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.ClipsResponse{Clips: []api.ClipRecordResponse{
			{
				ID: "0f1e2d3c-aaaa-bbbb-cccc-000000000001", CallID: "call-7", ExchangeIndex: 2,
				StartSeconds: 10.5, EndSeconds: 25.3, Status: "succeeded",
				StorageKey: "call-7_2_deadbeef.mp4", SizeBytes: 2048, DurationMS: 1500,
				CreatedAt: "2026-01-02T03:04:05Z",
			},
			{
				ID: "0f1e2d3c-aaaa-bbbb-cccc-000000000002", CallID: "call-7", ExchangeIndex: 3,
				StartSeconds: 1, EndSeconds: 2, Status: "failed", FailedStage: "slice",
				Error: "FFmpeg slice failed: 404 Not Found", CreatedAt: "2026-01-02T03:05:05Z",
			},
		}})
	}))
	defer srv.Close()

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"clips", "--server", srv.URL, "--call-id", "call-7", "--limit", "5"})

	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotQuery != "call_id=call-7&limit=5" {
		t.Errorf("query = %q", gotQuery)
	}
	for _, want := range []string{"call-7_2_deadbeef.mp4", "0f1e2d3c", "slice: FFmpeg slice failed", "1.5s", "10.5s-25.3s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestClipsCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"clip history is disabled","code":"HISTORY_DISABLED"}`))
	}))
	defer srv.Close()

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"clips", "--server", srv.URL})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "clip history is disabled") {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestLockDataDir_SingleHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := lockDataDir(dir)
	if err != nil {
		t.Fatalf("lockDataDir() error = %v", err)
	}

	if _, err := lockDataDir(dir); err == nil || !strings.Contains(err.Error(), "another clipgen server") {
		t.Fatalf("second lockDataDir() error = %v, want lock conflict", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	second, err := lockDataDir(dir)
	if err != nil {
		t.Fatalf("lockDataDir() after unlock error = %v", err)
	}
	second.Unlock()
}
