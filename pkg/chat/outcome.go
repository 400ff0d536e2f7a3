package chat

import (
	"errors"

	"github.com/parleyhq/parley/pkg/engine"
)

// Outcome classifies one compute-step result. The set is closed: the
// generation loop branches exhaustively over exactly these cases.
type Outcome int

const (
	// OutcomeToken means one token is ready to read and stream.
	OutcomeToken Outcome = iota

	// OutcomeEndOfSequence means the model finished its reply.
	OutcomeEndOfSequence

	// OutcomeOverflow means the transcript no longer fits the context
	// window.
	OutcomeOverflow

	// OutcomePromptTooLong means the submitted prompt alone exceeds the
	// context window.
	OutcomePromptTooLong

	// OutcomeFailure covers every other step error.
	OutcomeFailure
)

// String returns the outcome name used for metrics labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeToken:
		return "token"
	case OutcomeEndOfSequence:
		return "end_of_sequence"
	case OutcomeOverflow:
		return "overflow"
	case OutcomePromptTooLong:
		return "prompt_too_long"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome stops the step loop for this turn.
func (o Outcome) Terminal() bool {
	return o != OutcomeToken
}

// Classify maps one compute-step result onto the outcome set.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeToken
	case errors.Is(err, engine.ErrEndOfSequence):
		return OutcomeEndOfSequence
	case errors.Is(err, engine.ErrContextFull):
		return OutcomeOverflow
	case errors.Is(err, engine.ErrPromptTooLong):
		return OutcomePromptTooLong
	default:
		return OutcomeFailure
	}
}
