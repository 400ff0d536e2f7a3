// Package enginetest provides scripted engine fakes for testing the
// generation loop and REPL without a real backend.
package enginetest

import (
	"fmt"

	"github.com/parleyhq/parley/pkg/engine"
)

// Step is one scripted compute-step outcome. A step with Err set returns
// that signal; otherwise the step yields Token.
type Step struct {
	Token string
	Err   error
}

// Token scripts a step that yields one token.
func Token(text string) Step {
	return Step{Token: text}
}

// Signal scripts a terminal step returning the given backend signal or
// error.
func Signal(err error) Step {
	return Step{Err: err}
}

// Graph is a scripted engine graph. Each NewSession call hands out the
// next scripted session in order.
type Graph struct {
	// Sessions is the queue of sessions to hand out, one per turn.
	Sessions []*Session

	// SessionsCreated counts NewSession calls.
	SessionsCreated int

	// NewSessionErr, when set, fails every NewSession call.
	NewSessionErr error

	// CloseCalls counts Close calls.
	CloseCalls int
}

// NewGraph creates a scripted graph handing out the given sessions in
// order.
func NewGraph(sessions ...*Session) *Graph {
	return &Graph{Sessions: sessions}
}

func (g *Graph) NewSession() (engine.Session, error) {
	if g.NewSessionErr != nil {
		return nil, g.NewSessionErr
	}
	if g.SessionsCreated >= len(g.Sessions) {
		return nil, fmt.Errorf("no scripted session for turn %d", g.SessionsCreated+1)
	}

	s := g.Sessions[g.SessionsCreated]
	g.SessionsCreated++
	return s, nil
}

func (g *Graph) Close() error {
	g.CloseCalls++
	return nil
}

// Session is a scripted engine session. It records every SetInput payload
// and counts Release calls for resource-discipline assertions.
type Session struct {
	// Steps is the ordered script of compute-step outcomes. When the
	// script runs out, further steps report end of sequence.
	Steps []Step

	// Inputs records SetInput payloads by tensor index.
	Inputs map[int][]byte

	// SetInputErr, when set, fails every SetInput call (exercises the
	// fatal input-rejection path).
	SetInputErr error

	// ReleaseCalls counts Release calls.
	ReleaseCalls int

	// ReadCalls counts ReadOutputToken calls.
	ReadCalls int

	pos     int
	pending []byte
}

// NewSession creates a scripted session from the given steps.
func NewSession(steps ...Step) *Session {
	return &Session{
		Steps:  steps,
		Inputs: make(map[int][]byte),
	}
}

func (s *Session) SetInput(index int, data []byte) error {
	if s.SetInputErr != nil {
		return s.SetInputErr
	}
	s.Inputs[index] = append([]byte(nil), data...)
	return nil
}

func (s *Session) ComputeStep() error {
	if s.pos >= len(s.Steps) {
		return engine.ErrEndOfSequence
	}

	step := s.Steps[s.pos]
	s.pos++

	if step.Err != nil {
		return step.Err
	}
	s.pending = []byte(step.Token)
	return nil
}

func (s *Session) ReadOutputToken(buf []byte) (int, error) {
	s.ReadCalls++
	if s.pending == nil {
		return 0, fmt.Errorf("no token pending")
	}
	return copy(buf, s.pending), nil
}

func (s *Session) Release() error {
	s.ReleaseCalls++
	return nil
}

// Prompt returns the recorded prompt payload, the transcript bytes the
// loop submitted for this turn.
func (s *Session) Prompt() string {
	return string(s.Inputs[engine.InputPrompt])
}
