// Package config handles application configuration: a YAML file, environment
// overrides and defaults.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "PP_ENV_CONFIG"

// DefaultConfigPath is used when neither a flag nor PP_ENV_CONFIG is set.
const DefaultConfigPath = "config.yaml"

// PluginsConfig controls plugin discovery.
type PluginsConfig struct {
	Dir            string `yaml:"dir"`
	FollowSymlinks bool   `yaml:"follow_symlinks"`
	EntryPoint     string `yaml:"entry_point"`
	MaxSteps       uint64 `yaml:"max_steps"` // Starlark execution step budget per call, 0 = unlimited
}

// StorageConfig maps the three storage roots to directories.
type StorageConfig struct {
	Local        string `yaml:"local"`
	Shared       string `yaml:"shared"`
	InterProcess string `yaml:"interproc"`
}

// SystemConfig holds the fixed names the system units and storage layout use.
type SystemConfig struct {
	DataFileName          string `yaml:"data_file_name"`
	SchemaFileName        string `yaml:"schema_file_name"`
	ReadInterProcName     string `yaml:"sys_read_interproc_name"`
	WriteInterProcName    string `yaml:"sys_write_interproc_name"`
	WriteResultName       string `yaml:"sys_write_result_name"`
	LocalStorageAlias     string `yaml:"local_storage_alias"`
	SharedStorageAlias    string `yaml:"shared_storage_alias"`
	InterProcStorageAlias string `yaml:"interproc_storage_alias"`
}

// RuntimeConfig bounds pipeline execution resources.
type RuntimeConfig struct {
	Threads int `yaml:"threads"` // GOMAXPROCS during a pipeline run, 0 = unchanged
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	ListenAddr         string   `yaml:"listen_addr"`
	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// Schedule runs a pipeline file on a cron expression.
type Schedule struct {
	Name     string `yaml:"name"`
	Cron     string `yaml:"cron"`
	Pipeline string `yaml:"pipeline"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel  string        `yaml:"log_level"`  // debug, info, warn, error (default "info")
	LogFormat string        `yaml:"log_format"` // text, json or auto (default "auto")
	Plugins   PluginsConfig `yaml:"plugins"`
	Storage   StorageConfig `yaml:"storage"`
	System    SystemConfig  `yaml:"system_commands"`
	Runtime   RuntimeConfig `yaml:"runtime"`
	Journal   JournalConfig `yaml:"journal"`
	Server    ServerConfig  `yaml:"server"`
	Schedules []Schedule    `yaml:"schedules"`

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "auto",
		Plugins: PluginsConfig{
			FollowSymlinks: true,
			EntryPoint:     "__init__.star",
		},
		Storage: StorageConfig{
			Local:        "data/local",
			Shared:       "data/shared",
			InterProcess: "data/interproc",
		},
		System: SystemConfig{
			DataFileName:          "data",
			SchemaFileName:        "_SCHEMA",
			ReadInterProcName:     "sys_read_interproc",
			WriteInterProcName:    "sys_write_interproc",
			WriteResultName:       "sys_write_result",
			LocalStorageAlias:     "LOCAL_POST_PROCESSING",
			SharedStorageAlias:    "SHARED_POST_PROCESSING",
			InterProcStorageAlias: "INTERPROCESSING",
		},
		Journal: JournalConfig{Path: "ppexec_runs.sqlite"},
		Server: ServerConfig{
			ListenAddr:         ":8080",
			RateLimitRPS:       100,
			RateLimitBurst:     200,
			CORSAllowedOrigins: []string{"*"},
		},
	}
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolvePath picks the config file path: the explicit path if given, else
// PP_ENV_CONFIG, else config.yaml.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error; the
// defaults are used and a warning is recorded.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("config file %s not found, using defaults", path))
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close() //nolint:errcheck
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.LogLevel, "PP_LOG_LEVEL")
	setString(&c.LogFormat, "PP_LOG_FORMAT")
	setString(&c.Plugins.Dir, "PP_PLUGINS_DIR")
	c.Plugins.FollowSymlinks = parseBoolEnvDefault("PP_FOLLOW_SYMLINKS", c.Plugins.FollowSymlinks)
	setString(&c.Storage.Local, "PP_LOCAL_ROOT")
	setString(&c.Storage.Shared, "PP_SHARED_ROOT")
	setString(&c.Storage.InterProcess, "PP_INTERPROC_ROOT")
	if v := os.Getenv("PP_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Runtime.Threads = n
		} else {
			c.Warnings = append(c.Warnings, fmt.Sprintf("ignoring PP_THREADS=%q: not an integer", v))
		}
	}
	if v := os.Getenv("PP_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
		c.Journal.Enabled = true
	}
	setString(&c.Server.ListenAddr, "PP_LISTEN_ADDR")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Runtime.Threads < 0 {
		return fmt.Errorf("runtime.threads must be >= 0, got %d", c.Runtime.Threads)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("log_format must be auto, text or json, got %q", c.LogFormat)
	}
	names := map[string]string{}
	for field, name := range map[string]string{
		"sys_read_interproc_name":  c.System.ReadInterProcName,
		"sys_write_interproc_name": c.System.WriteInterProcName,
		"sys_write_result_name":    c.System.WriteResultName,
	} {
		if name == "" {
			return fmt.Errorf("system_commands.%s must not be empty", field)
		}
		if other, dup := names[name]; dup {
			return fmt.Errorf("system_commands.%s and %s share the name %q", field, other, name)
		}
		names[name] = field
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	for i, s := range c.Schedules {
		if s.Cron == "" || s.Pipeline == "" {
			return fmt.Errorf("schedules[%d]: cron and pipeline are required", i)
		}
	}
	return nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
