package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "verify.timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Strictness bounds for tasks.
const (
	MinStrictness = 1
	MaxStrictness = 5
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateTasks()...)
	errors = append(errors, c.validateVerify()...)
	errors = append(errors, c.validateRisk()...)
	errors = append(errors, c.validateAudit()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateWatch()...)

	return errors
}

func (c *Config) validateState() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.State.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Value:   c.State.Dir,
			Message: "must not be empty",
		})
	}
	if strings.ContainsRune(c.State.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Value:   c.State.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateTasks() []ValidationError {
	if c.Tasks.DefaultStrictness < MinStrictness || c.Tasks.DefaultStrictness > MaxStrictness {
		return []ValidationError{{
			Field:   "tasks.default_strictness",
			Value:   c.Tasks.DefaultStrictness,
			Message: fmt.Sprintf("must be between %d and %d", MinStrictness, MaxStrictness),
		}}
	}
	return nil
}

func (c *Config) validateVerify() []ValidationError {
	var errors []ValidationError

	if c.Verify.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "verify.timeout",
			Value:   c.Verify.Timeout,
			Message: "must be positive",
		})
	}
	const maxTimeout = 2 * time.Hour
	if c.Verify.Timeout > maxTimeout {
		errors = append(errors, ValidationError{
			Field:   "verify.timeout",
			Value:   c.Verify.Timeout,
			Message: fmt.Sprintf("exceeds maximum of %s", maxTimeout),
		})
	}

	if c.Verify.MaxOutputBytes < 1024 {
		errors = append(errors, ValidationError{
			Field:   "verify.max_output_bytes",
			Value:   c.Verify.MaxOutputBytes,
			Message: "must be at least 1024",
		})
	}

	return errors
}

func (c *Config) validateRisk() []ValidationError {
	var errors []ValidationError

	if c.Risk.WindowDays <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.window_days",
			Value:   c.Risk.WindowDays,
			Message: "must be positive",
		})
	}
	if c.Risk.MaxCommits <= 0 {
		errors = append(errors, ValidationError{
			Field:   "risk.max_commits",
			Value:   c.Risk.MaxCommits,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateAudit() []ValidationError {
	ref := c.Audit.NotesRef
	if !c.Audit.Enabled {
		return nil
	}
	if ref == "" || strings.ContainsAny(ref, " ~^:?*[\\") || strings.HasPrefix(ref, "/") || strings.Contains(ref, "..") {
		return []ValidationError{{
			Field:   "audit.notes_ref",
			Value:   ref,
			Message: "must be a valid git ref name",
		}}
	}
	return nil
}

func (c *Config) validateServer() []ValidationError {
	if _, _, err := net.SplitHostPort(c.Server.HTTPAddr); err != nil {
		return []ValidationError{{
			Field:   "server.http_addr",
			Value:   c.Server.HTTPAddr,
			Message: "must be host:port",
		}}
	}
	return nil
}

func (c *Config) validateWatch() []ValidationError {
	if c.Watch.DebounceMs < 0 || c.Watch.DebounceMs > 60000 {
		return []ValidationError{{
			Field:   "watch.debounce_ms",
			Value:   c.Watch.DebounceMs,
			Message: "must be between 0 and 60000",
		}}
	}
	return nil
}
