package repl

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/parleyhq/parley/pkg/chat"
	"github.com/parleyhq/parley/pkg/engine"
	"github.com/parleyhq/parley/pkg/transcript"
)

// lineReader reads user input lines. Satisfied by InputHandler; tests
// substitute a scripted reader.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

// REPL is the interactive chat loop: it reads questions, grows the
// transcript, runs one generation per turn, and applies the
// reset-or-extend transcript policy the backend outcome calls for.
type REPL struct {
	session    *Session
	input      lineReader
	printer    *Printer
	runner     *chat.Runner
	transcript *transcript.Transcript
}

// NewREPL creates the chat loop over a loaded engine graph.
func NewREPL(session *Session, graph engine.Graph, tpl transcript.Template) (*REPL, error) {
	// Create input handler
	input, err := NewInputHandler(session.Config.REPL.HistoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create input handler: %w", err)
	}

	printer := NewPrinter(session.Logger)

	return &REPL{
		session:    session,
		input:      input,
		printer:    printer,
		runner:     chat.NewRunner(graph, printer, session.EngineType),
		transcript: transcript.New(tpl),
	}, nil
}

// Run starts the chat loop. It returns nil when stdin closes, or the
// fatal error that stopped the conversation.
func (r *REPL) Run() error {
	defer r.Close()

	// Suppress native engine noise unless it was asked for.
	cleanup := ConditionalStderr(r.session.DebugMode || r.session.Config.Engine.EnableLog)
	defer cleanup()

	if r.session.DebugMode {
		r.printDebugHeader()
	}

	// Main chat loop
	for {
		line, err := r.readQuestion()
		if err != nil {
			if err == io.EOF {
				// Ctrl+D or closed stdin - exit gracefully
				r.printer.Message("\nGoodbye!\n")
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		r.session.Logger.LogInput(line)
		r.transcript.AppendUserTurn(line)

		r.printer.Label("Answer:")
		r.session.Logger.LogPrompt(r.session.TurnCount()+1, r.transcript.Bytes())

		res, err := r.runner.Generate(r.transcript.Bytes())
		if err != nil {
			// The engine rejected the session or the input itself;
			// the conversation cannot continue.
			return err
		}
		r.printer.EndAnswer()
		r.session.BumpTurns()

		// Update the transcript. Overflow throws the whole
		// conversation away; every other outcome extends it with
		// whatever the model said.
		if res.Overflow {
			r.transcript.Reset()
			continue
		}

		r.transcript.AppendReply(res.Reply)
		r.session.Logger.LogReply(res.Reply)
	}
}

// readQuestion prints the turn label and reads one line, retrying
// silently on blank input and Ctrl+C.
func (r *REPL) readQuestion() (string, error) {
	r.printer.Label("Question:")

	for {
		line, err := r.input.ReadLine()
		if err != nil {
			if err == readline.ErrInterrupt {
				// Ctrl+C - ask again
				continue
			}
			return "", err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return line, nil
	}
}

// printDebugHeader shows where this session writes its logs.
func (r *REPL) printDebugHeader() {
	r.printer.Message("Session: %s\n", r.session.ID)
	r.printer.Message("Engine: %s (%s)\n", r.session.EngineType, r.session.Model)
	r.printer.Message("Logs: %s\n", r.session.Logger.GetSessionDir())
	r.printer.Message("\n")
}

// Close closes the REPL and cleans up resources
func (r *REPL) Close() error {
	// Flush logs before closing
	if r.session.Logger != nil {
		r.session.Logger.Flush()
	}

	// Close session (cleans up logs unless they are kept)
	if err := r.session.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close session: %v\n", err)
	}

	if r.input != nil {
		return r.input.Close()
	}

	return nil
}
