// Package config provides configuration management for clipgen.
// Configuration is read from an optional TOML file, then overridden by
// environment variables, with sensible defaults for everything except the
// storage credentials.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort       = 8080
	DefaultBindAddr   = "0.0.0.0"
	DefaultLogLevel   = "info"
	DefaultDataDir    = ".clipgen"
	DefaultFFmpegPath = "/opt/bin/ffmpeg"
	DefaultBucket     = "clips"
	DefaultBackend    = BackendSupabase

	DefaultStageTimeout  = 120 * time.Second
	DefaultProbeTimeout  = 10 * time.Second
	DefaultUploadTimeout = 60 * time.Second

	DefaultMaxConcurrentClips = 4
	DefaultMaxQueuedClips     = 32

	// Storage backends
	BackendSupabase = "supabase"
	BackendS3       = "s3"

	// Environment variable names
	EnvConfigFile         = "CLIPGEN_CONFIG"
	EnvPort               = "CLIPGEN_PORT"
	EnvBindAddr           = "CLIPGEN_BIND_ADDR"
	EnvLogLevel           = "CLIPGEN_LOG_LEVEL"
	EnvDataDir            = "CLIPGEN_DATA_DIR"
	EnvFFmpegPath         = "CLIPGEN_FFMPEG_PATH"
	EnvWorkRoot           = "CLIPGEN_WORK_ROOT"
	EnvStageTimeout       = "CLIPGEN_STAGE_TIMEOUT"
	EnvProbeTimeout       = "CLIPGEN_PROBE_TIMEOUT"
	EnvUploadTimeout      = "CLIPGEN_UPLOAD_TIMEOUT"
	EnvMaxConcurrentClips = "CLIPGEN_MAX_CONCURRENT_CLIPS"
	EnvMaxQueuedClips     = "CLIPGEN_MAX_QUEUED_CLIPS"
	EnvHistoryEnabled     = "CLIPGEN_HISTORY_ENABLED"

	EnvStorageBackend     = "CLIPGEN_STORAGE_BACKEND"
	EnvStorageBucket      = "CLIPGEN_STORAGE_BUCKET"
	EnvStorageRegion      = "CLIPGEN_STORAGE_REGION"
	EnvStorageEndpoint    = "CLIPGEN_STORAGE_ENDPOINT"
	EnvStoragePublicBase  = "CLIPGEN_STORAGE_PUBLIC_BASE_URL"
	EnvStorageAccessKeyID = "CLIPGEN_STORAGE_ACCESS_KEY_ID"
	EnvStorageSecretKey   = "CLIPGEN_STORAGE_SECRET_ACCESS_KEY"

	// The hosting platform injects these for the Supabase backend.
	EnvSupabaseURL        = "SUPABASE_URL"
	EnvSupabaseServiceKey = "SUPABASE_SERVICE_KEY"

	// Database filename
	DBFilename = "clipgen.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	Addr() string
	LogLevel() string
	DataDir() string
	DBPath() string
	FFmpegPath() string
	WorkRoot() string
	StageTimeout() time.Duration
	ProbeTimeout() time.Duration
	UploadTimeout() time.Duration
	MaxConcurrentClips() int
	MaxQueuedClips() int
	HistoryEnabled() bool
	Storage() Storage
}

// Storage holds object-store settings. Fields unused by the selected
// backend are ignored.
type Storage struct {
	Backend         string `toml:"backend"`
	BaseURL         string `toml:"base_url"`
	ServiceKey      string `toml:"service_key"`
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	PublicBaseURL   string `toml:"public_base_url"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
}

// fileConfig mirrors the TOML layout. Durations are strings such as "90s".
type fileConfig struct {
	Port               int    `toml:"port"`
	BindAddr           string `toml:"bind_addr"`
	LogLevel           string `toml:"log_level"`
	DataDir            string `toml:"data_dir"`
	FFmpegPath         string `toml:"ffmpeg_path"`
	WorkRoot           string `toml:"work_root"`
	StageTimeout       string `toml:"stage_timeout"`
	ProbeTimeout       string `toml:"probe_timeout"`
	UploadTimeout      string `toml:"upload_timeout"`
	MaxConcurrentClips int    `toml:"max_concurrent_clips"`
	MaxQueuedClips     int    `toml:"max_queued_clips"`
	History            struct {
		Enabled *bool `toml:"enabled"`
	} `toml:"history"`
	Storage Storage `toml:"storage"`
}

// EnvConfig is the resolved configuration.
type EnvConfig struct {
	port               int
	bindAddr           string
	logLevel           string
	dataDir            string
	ffmpegPath         string
	workRoot           string
	stageTimeout       time.Duration
	probeTimeout       time.Duration
	uploadTimeout      time.Duration
	maxConcurrentClips int
	maxQueuedClips     int
	historyEnabled     bool
	storage            Storage
}

// New loads configuration using the file named by CLIPGEN_CONFIG, if any.
func New() (*EnvConfig, error) {
	return Load(os.Getenv(EnvConfigFile))
}

// Load creates an EnvConfig from defaults, the TOML file at path (skipped
// when path is empty or the file does not exist) and environment variable
// overrides, then validates it.
func Load(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:               DefaultPort,
		bindAddr:           DefaultBindAddr,
		logLevel:           DefaultLogLevel,
		dataDir:            defaultDataDir(),
		ffmpegPath:         DefaultFFmpegPath,
		workRoot:           os.TempDir(),
		stageTimeout:       DefaultStageTimeout,
		probeTimeout:       DefaultProbeTimeout,
		uploadTimeout:      DefaultUploadTimeout,
		maxConcurrentClips: DefaultMaxConcurrentClips,
		maxQueuedClips:     DefaultMaxQueuedClips,
		historyEnabled:     true,
		storage: Storage{
			Backend: DefaultBackend,
			Bucket:  DefaultBucket,
		},
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fc fileConfig
	if err := toml.NewDecoder(file).Decode(&fc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	setString(&c.bindAddr, fc.BindAddr)
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.ffmpegPath, fc.FFmpegPath)
	setString(&c.workRoot, fc.WorkRoot)

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"stage_timeout", fc.StageTimeout, &c.stageTimeout},
		{"probe_timeout", fc.ProbeTimeout, &c.probeTimeout},
		{"upload_timeout", fc.UploadTimeout, &c.uploadTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if fc.MaxConcurrentClips != 0 {
		c.maxConcurrentClips = fc.MaxConcurrentClips
	}
	if fc.MaxQueuedClips != 0 {
		c.maxQueuedClips = fc.MaxQueuedClips
	}
	if fc.History.Enabled != nil {
		c.historyEnabled = *fc.History.Enabled
	}

	setString(&c.storage.Backend, fc.Storage.Backend)
	setString(&c.storage.BaseURL, fc.Storage.BaseURL)
	setString(&c.storage.ServiceKey, fc.Storage.ServiceKey)
	setString(&c.storage.Bucket, fc.Storage.Bucket)
	setString(&c.storage.Region, fc.Storage.Region)
	setString(&c.storage.Endpoint, fc.Storage.Endpoint)
	setString(&c.storage.PublicBaseURL, fc.Storage.PublicBaseURL)
	setString(&c.storage.AccessKeyID, fc.Storage.AccessKeyID)
	setString(&c.storage.SecretAccessKey, fc.Storage.SecretAccessKey)

	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.bindAddr, os.Getenv(EnvBindAddr))
	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.ffmpegPath, os.Getenv(EnvFFmpegPath))
	setString(&c.workRoot, os.Getenv(EnvWorkRoot))

	for env, dst := range map[string]*time.Duration{
		EnvStageTimeout:  &c.stageTimeout,
		EnvProbeTimeout:  &c.probeTimeout,
		EnvUploadTimeout: &c.uploadTimeout,
	} {
		raw := os.Getenv(env)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = v
	}

	for env, dst := range map[string]*int{
		EnvMaxConcurrentClips: &c.maxConcurrentClips,
		EnvMaxQueuedClips:     &c.maxQueuedClips,
	} {
		raw := os.Getenv(env)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = v
	}

	if raw := os.Getenv(EnvHistoryEnabled); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHistoryEnabled, err)
		}
		c.historyEnabled = v
	}

	setString(&c.storage.Backend, os.Getenv(EnvStorageBackend))
	setString(&c.storage.BaseURL, os.Getenv(EnvSupabaseURL))
	setString(&c.storage.ServiceKey, os.Getenv(EnvSupabaseServiceKey))
	setString(&c.storage.Bucket, os.Getenv(EnvStorageBucket))
	setString(&c.storage.Region, os.Getenv(EnvStorageRegion))
	setString(&c.storage.Endpoint, os.Getenv(EnvStorageEndpoint))
	setString(&c.storage.PublicBaseURL, os.Getenv(EnvStoragePublicBase))
	setString(&c.storage.AccessKeyID, os.Getenv(EnvStorageAccessKeyID))
	setString(&c.storage.SecretAccessKey, os.Getenv(EnvStorageSecretKey))

	c.storage.Backend = strings.ToLower(strings.TrimSpace(c.storage.Backend))
	c.storage.BaseURL = strings.TrimRight(c.storage.BaseURL, "/")
	c.storage.PublicBaseURL = strings.TrimRight(c.storage.PublicBaseURL, "/")
	return nil
}

// Validate checks ranges and backend requirements. Missing storage
// credentials are not an error here: the server still starts (the liveness
// probe must answer) and uploads fail at request time.
func (c *EnvConfig) Validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.port)
	}
	if c.ffmpegPath == "" {
		return errors.New("ffmpeg_path must not be empty")
	}
	if c.workRoot == "" {
		return errors.New("work_root must not be empty")
	}
	if c.stageTimeout <= 0 || c.probeTimeout <= 0 || c.uploadTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.maxConcurrentClips < 1 {
		return fmt.Errorf("max_concurrent_clips must be at least 1, got %d", c.maxConcurrentClips)
	}
	if c.maxQueuedClips < 0 {
		return fmt.Errorf("max_queued_clips must not be negative, got %d", c.maxQueuedClips)
	}
	switch c.storage.Backend {
	case BackendSupabase, BackendS3:
	default:
		return fmt.Errorf("unknown storage backend %q (want %s or %s)", c.storage.Backend, BackendSupabase, BackendS3)
	}
	if c.storage.Bucket == "" {
		return errors.New("storage bucket must not be empty")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// Addr returns the host:port the HTTP server binds to.
func (c *EnvConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.bindAddr, c.port)
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

// WorkRoot is the shared ephemeral directory under which per-request
// workspaces are created.
func (c *EnvConfig) WorkRoot() string {
	return c.workRoot
}

func (c *EnvConfig) StageTimeout() time.Duration {
	return c.stageTimeout
}

func (c *EnvConfig) ProbeTimeout() time.Duration {
	return c.probeTimeout
}

func (c *EnvConfig) UploadTimeout() time.Duration {
	return c.uploadTimeout
}

func (c *EnvConfig) MaxConcurrentClips() int {
	return c.maxConcurrentClips
}

func (c *EnvConfig) MaxQueuedClips() int {
	return c.maxQueuedClips
}

func (c *EnvConfig) HistoryEnabled() bool {
	return c.historyEnabled
}

// Storage returns a copy of the object-store settings.
func (c *EnvConfig) Storage() Storage {
	return c.storage
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
