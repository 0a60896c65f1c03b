package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
// DRIFTGUARD_VERIFY_TIMEOUT overrides verify.timeout.
const EnvPrefix = "DRIFTGUARD"

// LocalConfigFile is the project-level config file name, read from the
// working directory when no user config exists.
const LocalConfigFile = ".driftguard.yaml"

// Config represents the complete driftguard configuration
type Config struct {
	State   StateConfig   `mapstructure:"state" yaml:"state"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Tasks   TasksConfig   `mapstructure:"tasks" yaml:"tasks"`
	Verify  VerifyConfig  `mapstructure:"verify" yaml:"verify"`
	Risk    RiskConfig    `mapstructure:"risk" yaml:"risk"`
	Scope   ScopeConfig   `mapstructure:"scope" yaml:"scope"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
}

// StateConfig controls where the session snapshot lives
type StateConfig struct {
	// Dir is the state directory, relative to the project root unless absolute.
	// It holds state.json, PLAN.md and logs/.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is written to {state.dir}/logs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the size at which debug.log rotates
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// TasksConfig controls task defaults
type TasksConfig struct {
	// DefaultStrictness applies when a task is proposed without one (1-5)
	DefaultStrictness int `mapstructure:"default_strictness" yaml:"default_strictness"`
}

// VerifyConfig controls the verification command runner
type VerifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// MaxOutputBytes caps captured stdout+stderr
	MaxOutputBytes int `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
	// DefaultCommand runs when the active task has no command of its own.
	// Empty means verification is a placeholder that always succeeds.
	DefaultCommand string `mapstructure:"default_command" yaml:"default_command"`
}

// RiskConfig controls the churn heuristic window
type RiskConfig struct {
	WindowDays int `mapstructure:"window_days" yaml:"window_days"`
	MaxCommits int `mapstructure:"max_commits" yaml:"max_commits"`
}

// ScopeConfig controls claim conflict policy
type ScopeConfig struct {
	// SymmetricExclusivity makes an exclusive request conflict with
	// overlapping shared claims, not only the reverse.
	SymmetricExclusivity bool `mapstructure:"symmetric_exclusivity" yaml:"symmetric_exclusivity"`
}

// AuditConfig controls checkpoint notes
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// NotesRef is the short name under refs/notes/
	NotesRef string `mapstructure:"notes_ref" yaml:"notes_ref"`
}

// ServerConfig controls the local HTTP surface
type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr" yaml:"http_addr"`
}

// WatchConfig controls the live integrity watcher
type WatchConfig struct {
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// Debounce returns the watcher debounce as a time.Duration
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Window returns the risk window as a time.Duration
func (c *RiskConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// ResolveStateDir returns the state directory for a project root
func (s *StateConfig) ResolveStateDir(projectDir string) string {
	if s.Dir == "" {
		return filepath.Join(projectDir, ".driftguard")
	}
	if filepath.IsAbs(s.Dir) {
		return s.Dir
	}
	return filepath.Join(projectDir, s.Dir)
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		State: StateConfig{
			Dir: ".driftguard",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Tasks: TasksConfig{
			DefaultStrictness: 2,
		},
		Verify: VerifyConfig{
			Timeout:        120 * time.Second,
			MaxOutputBytes: 64 * 1024,
			DefaultCommand: "",
		},
		Risk: RiskConfig{
			WindowDays: 30,
			MaxCommits: 100,
		},
		Scope: ScopeConfig{
			SymmetricExclusivity: false,
		},
		Audit: AuditConfig{
			Enabled:  true,
			NotesRef: "driftguard",
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:7733",
		},
		Watch: WatchConfig{
			DebounceMs: 250,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values on a specific viper instance
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("state.dir", defaults.State.Dir)

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)

	v.SetDefault("tasks.default_strictness", defaults.Tasks.DefaultStrictness)

	v.SetDefault("verify.timeout", defaults.Verify.Timeout)
	v.SetDefault("verify.max_output_bytes", defaults.Verify.MaxOutputBytes)
	v.SetDefault("verify.default_command", defaults.Verify.DefaultCommand)

	v.SetDefault("risk.window_days", defaults.Risk.WindowDays)
	v.SetDefault("risk.max_commits", defaults.Risk.MaxCommits)

	v.SetDefault("scope.symmetric_exclusivity", defaults.Scope.SymmetricExclusivity)

	v.SetDefault("audit.enabled", defaults.Audit.Enabled)
	v.SetDefault("audit.notes_ref", defaults.Audit.NotesRef)

	v.SetDefault("server.http_addr", defaults.Server.HTTPAddr)

	v.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
}

// BindEnv configures environment overrides on v: DRIFTGUARD_ prefix with
// dots mapped to underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when the
// loaded configuration is invalid
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "driftguard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".driftguard"
	}
	return filepath.Join(home, ".config", "driftguard")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
