package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Logger handles chat session logging
type Logger struct {
	sessionDir     string
	sessionFile    *os.File
	transcriptFile *os.File
	debugEnabled   bool
	keepLogs       bool
}

// NewLogger creates a new logger for a chat session
func NewLogger(sessionID string, debugEnabled bool, keepLogs bool) (*Logger, error) {
	// Create session directory in /tmp
	sessionDir := filepath.Join("/tmp", "parley-sessions", sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	sessionFile, err := os.Create(filepath.Join(sessionDir, "session.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create session log: %w", err)
	}

	// The transcript log records the exact prompt submitted each turn.
	// It regrows the whole conversation every turn, so it is debug only.
	var transcriptFile *os.File
	if debugEnabled {
		transcriptFile, err = os.Create(filepath.Join(sessionDir, "transcript.log"))
		if err != nil {
			sessionFile.Close()
			return nil, fmt.Errorf("failed to create transcript log: %w", err)
		}
	}

	logger := &Logger{
		sessionDir:     sessionDir,
		sessionFile:    sessionFile,
		transcriptFile: transcriptFile,
		debugEnabled:   debugEnabled,
		keepLogs:       keepLogs,
	}

	// Write header
	logger.logSession("Session started: %s\n", sessionID)
	logger.logSession("Debug mode: %v\n", debugEnabled)
	logger.logSession("Keep logs: %v\n", keepLogs)
	logger.logSession("Log directory: %s\n\n", sessionDir)

	return logger, nil
}

// GetSessionDir returns the session log directory path
func (l *Logger) GetSessionDir() string {
	return l.sessionDir
}

// LogInput logs user input
func (l *Logger) LogInput(input string) {
	l.logWithTimestamp(l.sessionFile, ">>> %s\n", input)
}

// LogReply logs the model reply committed to the transcript
func (l *Logger) LogReply(reply string) {
	l.logWithTimestamp(l.sessionFile, "<<< %s\n", reply)
}

// LogNotice logs a recoverable backend condition
func (l *Logger) LogNotice(msg string) {
	l.logWithTimestamp(l.sessionFile, "INFO: %s\n", msg)
}

// LogError logs a backend error
func (l *Logger) LogError(msg string) {
	l.logWithTimestamp(l.sessionFile, "ERROR: %s\n", msg)
}

// LogPrompt records the full prompt submitted for one turn (debug only)
func (l *Logger) LogPrompt(turn int, prompt []byte) {
	if l.transcriptFile == nil {
		return
	}
	l.logWithTimestamp(l.transcriptFile, "--- turn %d (%d bytes) ---\n%s\n\n", turn, len(prompt), prompt)
}

// logWithTimestamp writes a timestamped log entry
func (l *Logger) logWithTimestamp(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(w, "[%s] %s", timestamp, message)
}

// logSession logs without timestamp (internal helper)
func (l *Logger) logSession(format string, args ...interface{}) {
	if l.sessionFile != nil {
		fmt.Fprintf(l.sessionFile, format, args...)
	}
}

// Flush flushes all log files
func (l *Logger) Flush() error {
	var errs []error

	if l.sessionFile != nil {
		if err := l.sessionFile.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	if l.transcriptFile != nil {
		if err := l.transcriptFile.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to flush logs: %v", errs)
	}

	return nil
}

// Close closes all log files and optionally cleans up
func (l *Logger) Close() error {
	// Close all files
	if l.sessionFile != nil {
		l.sessionFile.Close()
	}
	if l.transcriptFile != nil {
		l.transcriptFile.Close()
	}

	// Clean up if not keeping logs
	if !l.keepLogs {
		if err := os.RemoveAll(l.sessionDir); err != nil {
			return fmt.Errorf("failed to clean up logs: %w", err)
		}
	}

	return nil
}

// CleanupOldSessions removes old session directories (older than 24 hours)
func CleanupOldSessions() error {
	sessionsDir := filepath.Join("/tmp", "parley-sessions")

	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No sessions directory yet
		}
		return err
	}

	cutoff := time.Now().Add(-24 * time.Hour)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		// Remove if older than 24 hours
		if info.ModTime().Before(cutoff) {
			dirPath := filepath.Join(sessionsDir, entry.Name())
			os.RemoveAll(dirPath)
		}
	}

	return nil
}
