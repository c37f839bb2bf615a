// ABOUTME: Configuration loading and parsing for the triage chat client
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreNone     = "none"
	StoreSQLite   = "sqlite"
	StoreSQLite3  = "sqlite3"
	StoreHTTP     = "http"
	StoreSupabase = "supabase"
)

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the complete client configuration
type Config struct {
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Reconcile ReconcileConfig `yaml:"reconcile" toml:"reconcile"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Knowledge KnowledgeConfig `yaml:"knowledge" toml:"knowledge"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// BackendConfig locates the agent backend
type BackendConfig struct {
	URL         string        `yaml:"url" toml:"url"`
	DialTimeout time.Duration `yaml:"-" toml:"-"`

	DialTimeoutRaw string `yaml:"dial_timeout" toml:"dial_timeout"`
}

// SessionConfig holds the identity the client connects as
type SessionConfig struct {
	UserID    string `yaml:"user_id" toml:"user_id"`
	SessionID string `yaml:"session_id" toml:"session_id"` // generated when empty
	RoomID    string `yaml:"room_id" toml:"room_id"`       // empty: no durable history
}

// ReconcileConfig tunes how streamed frames become messages
type ReconcileConfig struct {
	Continuation    string   `yaml:"continuation" toml:"continuation"` // "author" or "lenient"
	TerminalAuthors []string `yaml:"terminal_authors" toml:"terminal_authors"`
	ThoughtAuthors  []string `yaml:"thought_authors" toml:"thought_authors"`
	ReplayCapacity  int      `yaml:"replay_capacity" toml:"replay_capacity"`

	ContinuationGap time.Duration `yaml:"-" toml:"-"`
	ReconnectDelay  time.Duration `yaml:"-" toml:"-"`
	HintTTL         time.Duration `yaml:"-" toml:"-"`
	ReplayWindow    time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ContinuationGapRaw string `yaml:"continuation_gap" toml:"continuation_gap"`
	ReconnectDelayRaw  string `yaml:"reconnect_delay" toml:"reconnect_delay"`
	HintTTLRaw         string `yaml:"hint_ttl" toml:"hint_ttl"`
	ReplayWindowRaw    string `yaml:"replay_window" toml:"replay_window"`
}

// CacheConfig selects the local snapshot cache
type CacheConfig struct {
	Driver        string        `yaml:"driver" toml:"driver"`
	RedisAddr     string        `yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" toml:"redis_db"`
	TTL           time.Duration `yaml:"-" toml:"-"`

	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// StoreConfig selects the durable history store
type StoreConfig struct {
	Driver       string        `yaml:"driver" toml:"driver"`
	Path         string        `yaml:"path" toml:"path"`
	URL          string        `yaml:"url" toml:"url"`
	APIKey       string        `yaml:"api_key" toml:"api_key"`
	Table        string        `yaml:"table" toml:"table"`
	Debounce     time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	DebounceRaw     string `yaml:"debounce" toml:"debounce"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// KnowledgeConfig points at the vector store holding cited documents
type KnowledgeConfig struct {
	QdrantURL    string `yaml:"qdrant_url" toml:"qdrant_url"`
	QdrantAPIKey string `yaml:"qdrant_api_key" toml:"qdrant_api_key"`
	Collection   string `yaml:"collection" toml:"collection"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes raw configuration bytes, applies defaults and validates.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults(time.Now())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file.
// The backend URL still has to be set before use.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(time.Now())
	return &cfg
}

// DefaultPath returns the config file location: $TRIAGE_CONFIG, else
// $XDG_CONFIG_HOME/triage/client.yaml, else ~/.config/triage/client.yaml.
func DefaultPath() string {
	if p := os.Getenv("TRIAGE_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "triage", "client.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "triage", "client.yaml")
	}
	return filepath.Join(home, ".config", "triage", "client.yaml")
}

// NewSessionID returns an id in the backend's "session_<unix-ms>" form.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d", now.UnixMilli())
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults(now time.Time) {
	if c.Backend.DialTimeout == 0 {
		c.Backend.DialTimeout = 10 * time.Second
	}
	if c.Session.UserID == "" {
		c.Session.UserID = "patient"
	}
	if c.Session.SessionID == "" {
		c.Session.SessionID = NewSessionID(now)
	}

	r := &c.Reconcile
	if r.Continuation == "" {
		r.Continuation = "author"
	}
	if r.TerminalAuthors == nil {
		r.TerminalAuthors = []string{"execution_agent"}
	}
	if r.ThoughtAuthors == nil {
		r.ThoughtAuthors = []string{"reasoning_agent"}
	}
	if r.ReconnectDelay == 0 {
		r.ReconnectDelay = 3 * time.Second
	}
	if r.HintTTL == 0 {
		r.HintTTL = 5 * time.Second
	}
	if r.ReplayWindow == 0 {
		r.ReplayWindow = 10 * time.Minute
	}
	if r.ReplayCapacity == 0 {
		r.ReplayCapacity = 4096
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = CacheMemory
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreNone
	}
	if c.Store.Debounce == 0 {
		c.Store.Debounce = time.Second
	}
	if c.Store.WriteTimeout == 0 {
		c.Store.WriteTimeout = 10 * time.Second
	}
	if c.Store.Driver == StoreHTTP && c.Store.URL == "" {
		c.Store.URL = c.Backend.URL
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("backend.url must use ws, wss, http or https, got %q", u.Scheme)
	}

	switch c.Reconcile.Continuation {
	case "author", "lenient":
	default:
		return fmt.Errorf("reconcile.continuation must be author or lenient, got %q", c.Reconcile.Continuation)
	}
	if c.Reconcile.ContinuationGap < 0 {
		return fmt.Errorf("reconcile.continuation_gap must not be negative")
	}
	if c.Reconcile.ReplayCapacity < 0 {
		return fmt.Errorf("reconcile.replay_capacity must not be negative")
	}

	switch c.Cache.Driver {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown cache.driver %q", c.Cache.Driver)
	}

	switch c.Store.Driver {
	case StoreNone:
	case StoreSQLite, StoreSQLite3:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s driver", c.Store.Driver)
		}
	case StoreHTTP:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the http driver")
		}
	case StoreSupabase:
		if c.Store.URL == "" || c.Store.APIKey == "" {
			return fmt.Errorf("store.url and store.api_key are required for the supabase driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	if c.Knowledge.QdrantURL != "" && c.Knowledge.Collection == "" {
		return fmt.Errorf("knowledge.collection is required when knowledge.qdrant_url is set")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"backend.dial_timeout", cfg.Backend.DialTimeoutRaw, &cfg.Backend.DialTimeout},
		{"reconcile.continuation_gap", cfg.Reconcile.ContinuationGapRaw, &cfg.Reconcile.ContinuationGap},
		{"reconcile.reconnect_delay", cfg.Reconcile.ReconnectDelayRaw, &cfg.Reconcile.ReconnectDelay},
		{"reconcile.hint_ttl", cfg.Reconcile.HintTTLRaw, &cfg.Reconcile.HintTTL},
		{"reconcile.replay_window", cfg.Reconcile.ReplayWindowRaw, &cfg.Reconcile.ReplayWindow},
		{"cache.ttl", cfg.Cache.TTLRaw, &cfg.Cache.TTL},
		{"store.debounce", cfg.Store.DebounceRaw, &cfg.Store.Debounce},
		{"store.write_timeout", cfg.Store.WriteTimeoutRaw, &cfg.Store.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
