package repl

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/pkg/config"
)

// Session represents one interactive chat session's state
type Session struct {
	mu sync.RWMutex

	ID         string         // Unique session ID
	Config     *config.Config // Application config
	Model      string         // Model path or identifier
	EngineType string         // Engine type serving this session
	Turns      int            // Completed turns
	StartTime  time.Time      // Session start time
	Logger     *Logger        // Session logger
	DebugMode  bool           // Debug mode enabled (also keeps logs)
}

// NewSessionID generates a unique session identifier.
func NewSessionID() string {
	return fmt.Sprintf("chat-%s-%s", uuid.New().String()[:8], time.Now().Format("20060102-150405"))
}

// NewSession creates a new chat session
func NewSession(id string, cfg *config.Config, model string, debugMode bool) (*Session, error) {
	// Create logger (debug mode also keeps logs)
	logger, err := NewLogger(id, debugMode, debugMode || cfg.REPL.KeepLogs)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:         id,
		Config:     cfg,
		Model:      model,
		EngineType: cfg.Engine.Type,
		StartTime:  time.Now(),
		Logger:     logger,
		DebugMode:  debugMode,
	}, nil
}

// Close closes the session and cleans up resources
func (s *Session) Close() error {
	if s.Logger != nil {
		return s.Logger.Close()
	}
	return nil
}

// BumpTurns records one completed turn
func (s *Session) BumpTurns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns++
}

// TurnCount returns the number of completed turns
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Turns
}
