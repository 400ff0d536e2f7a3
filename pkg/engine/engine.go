// Package engine defines the narrow capability interface to an inference
// backend: load a graph, create a per-turn session, set input tensors, step
// the computation one token at a time, read the token bytes back, release
// the session. Concrete adapters drive a local llama.cpp-style binary, a
// WebSocket token daemon, or an HTTP streaming server.
package engine

import "errors"

// Input tensor indices. Index 0 carries the prompt bytes; index 1 is an
// alternate channel for passing the engine options as JSON metadata.
const (
	InputPrompt   = 0
	InputMetadata = 1
)

// Backend signals form a closed set: the generation loop branches
// exhaustively over these plus the generic-failure case. Compare with
// errors.Is.
var (
	// ErrEndOfSequence reports that the model finished its reply.
	ErrEndOfSequence = errors.New("end of sequence")

	// ErrContextFull reports that the transcript no longer fits the
	// model's context window.
	ErrContextFull = errors.New("context full")

	// ErrPromptTooLong reports that the submitted prompt alone exceeds
	// the context window.
	ErrPromptTooLong = errors.New("prompt too long")
)

// Graph is a loaded model ready to create execution sessions.
type Graph interface {
	// NewSession creates one execution session. Exactly one session is
	// live at a time; the caller releases it at the end of the turn.
	NewSession() (Session, error)

	// Close releases resources held by the graph itself.
	Close() error
}

// Session is one engine execution context, owned for the span of a single
// user turn.
type Session interface {
	// SetInput submits an input tensor. Index 0 is the prompt; index 1
	// accepts the options object as JSON metadata.
	SetInput(index int, data []byte) error

	// ComputeStep advances generation by one token. A nil return means a
	// token is ready to read; otherwise it returns one of the backend
	// signals or a generic step error.
	ComputeStep() error

	// ReadOutputToken copies the pending token's bytes into buf and
	// returns the count, capped at len(buf). A token longer than the
	// buffer is truncated.
	ReadOutputToken(buf []byte) (int, error)

	// Release finalizes the session. It is invoked exactly once per turn
	// and is idempotent once it has succeeded.
	Release() error
}
