package repl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
)

// InputHandler manages user input with readline support
type InputHandler struct {
	rl *readline.Instance
}

// NewInputHandler creates a new input handler. The readline prompt stays
// empty: the chat surface prints its own Question:/Answer: labels.
func NewInputHandler(historyFile string) (*InputHandler, error) {
	if historyFile == "" {
		historyFile = getHistoryFilePath()
	}

	// Configure readline
	config := &readline.Config{
		Prompt:                 "",
		HistoryFile:            historyFile,
		HistoryLimit:           1000,
		DisableAutoSaveHistory: false,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
	}

	// Create readline instance
	rl, err := readline.NewEx(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &InputHandler{rl: rl}, nil
}

// ReadLine reads a single line of input
func (h *InputHandler) ReadLine() (string, error) {
	return h.rl.Readline()
}

// Close closes the input handler
func (h *InputHandler) Close() error {
	return h.rl.Close()
}

// getHistoryFilePath returns the path to the history file
func getHistoryFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/parley_history"
	}

	return filepath.Join(homeDir, ".parley_history")
}
