// Package logging provides structured logging for driftguard.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Logs are written to {stateDir}/logs/debug.log and
// are the operator-facing record of what the engine did; the bounded
// in-snapshot activity log kept by the engine is a separate, agent-facing
// history.
//
// # Basic Usage
//
//	logger, err := logging.NewLoggerWithRotation(logDir, "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("scope claimed", "pattern", "src/**", "exclusive", true)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	taskLogger := logger.WithSession(sessionID).WithTask(taskID)
//	taskLogger.WithState("EXECUTING").Info("intent filed", "files", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"intent filed","session_id":"...","task_id":"...","state":"EXECUTING","files":3}
//
// # Log Rotation
//
// [RotatingWriter] rotates debug.log once it exceeds MaxSizeMB, keeping
// MaxBackups numbered backups (debug.log.1 is the newest). Backups are
// gzip-compressed when Compress is set.
//
// # Testing
//
// Use [NopLogger] to discard all output.
package logging
