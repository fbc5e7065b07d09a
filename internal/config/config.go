// Package config loads and hot-reloads the DSN/credentials/pool-tuning
// settings a Database needs to start (§4.9 SPEC_FULL addition): YAML with
// ${VAR} environment substitution, validation, defaulting, and an optional
// fsnotify file watcher. One flat document for one address, one credential
// set, and one pool (§3: "exactly one [pool] per Database handle") rather
// than a multi-tenant Listen/Tenants map.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/skymond-software/mariadb-client/internal/handshake"
)

// Config is the top-level document Load parses.
type Config struct {
	// Address is the §6 host syntax: "[scheme://]host[:port]". Parsed by
	// ParseAddress into a dial address plus a TLS-upgrade hint.
	Address string `yaml:"address"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// HashKind is "plaintext" (default) or "sha1_hex" (§6 Credentials).
	HashKind string `yaml:"hash_kind"`
	Database string `yaml:"database"`

	// InstanceSuffix is appended to every database name the façade
	// touches, for multi-tenant isolation within one server (§3 Glossary
	// "Instance suffix").
	InstanceSuffix string `yaml:"instance_suffix"`

	Pool  PoolConfig  `yaml:"pool"`
	Admin AdminConfig `yaml:"admin"`
}

// PoolConfig is the §4.3 connection pool's sizing and timeout knobs.
type PoolConfig struct {
	MinSessions    int           `yaml:"min_sessions"`
	MaxSessions    int           `yaml:"max_sessions"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// AdminConfig configures the read-only operator HTTP surface (§4.10).
type AdminConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Enabled reports whether an admin HTTP surface should be started.
func (a AdminConfig) Enabled() bool { return a.Port != 0 }

// ResolvedHashKind converts the YAML string into a handshake.HashKind,
// defaulting to Plaintext for an empty or unrecognized value.
func (c Config) ResolvedHashKind() handshake.HashKind {
	if c.HashKind == "sha1_hex" {
		return handshake.SHA1Hex
	}
	return handshake.Plaintext
}

// Redacted returns a copy of c with the password masked, safe to log or
// serve over the admin surface.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// sha1HexPattern matches the §6 Credentials sha1_hex password shape: 40
// lowercase hex characters representing a 20-byte SHA-1 digest.
var sha1HexPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values, leaving the placeholder untouched when the variable is unset.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with ${VAR} environment
// substitution, validates it, and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Username == "" {
		cfg.Username = "root"
	}
	if cfg.Pool.MaxSessions == 0 {
		cfg.Pool.MaxSessions = 10
	}
	if cfg.Pool.DialTimeout == 0 {
		cfg.Pool.DialTimeout = 10 * time.Second
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = 5 * time.Minute
	}
	if cfg.Pool.MaxLifetime == 0 {
		cfg.Pool.MaxLifetime = 30 * time.Minute
	}
	if cfg.Pool.AcquireTimeout == 0 {
		cfg.Pool.AcquireTimeout = 60 * time.Second // §5 default capacity-wait deadline
	}
	if cfg.Admin.Bind == "" && cfg.Admin.Port != 0 {
		cfg.Admin.Bind = "127.0.0.1"
	}
}

func validate(cfg *Config) error {
	if cfg.Address == "" {
		return fmt.Errorf("address is required")
	}
	if cfg.HashKind != "" && cfg.HashKind != "plaintext" && cfg.HashKind != "sha1_hex" {
		return fmt.Errorf("hash_kind must be %q or %q, got %q", "plaintext", "sha1_hex", cfg.HashKind)
	}
	if cfg.HashKind == "sha1_hex" && cfg.Password != "" && !sha1HexPattern.MatchString(cfg.Password) {
		return fmt.Errorf("password must be 40 lowercase hex characters when hash_kind is %q", "sha1_hex")
	}
	if cfg.Pool.MinSessions < 0 || cfg.Pool.MaxSessions < 0 {
		return fmt.Errorf("pool session counts must not be negative")
	}
	if cfg.Pool.MaxSessions != 0 && cfg.Pool.MinSessions > cfg.Pool.MaxSessions {
		return fmt.Errorf("pool.min_sessions (%d) exceeds pool.max_sessions (%d)", cfg.Pool.MinSessions, cfg.Pool.MaxSessions)
	}
	return nil
}

// Watcher watches a config file for changes and invokes callback with the
// newly reloaded Config, debounced against editors that emit several write
// events per save (§4.9).
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher starts watching path and returns a Watcher the caller must
// Stop when done.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}
	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}
	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the watcher and closes its underlying fsnotify.Watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
