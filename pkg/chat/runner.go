package chat

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/pkg/engine"
	"github.com/parleyhq/parley/pkg/logging"
	"github.com/parleyhq/parley/pkg/metrics"
)

// maxOutputBufferSize bounds a single read from the engine: room for 4096
// tokens at roughly 6 bytes each. A token longer than this is truncated,
// not retried.
const maxOutputBufferSize = 4096 * 6

// Output receives streamed tokens and user-facing notices. Token must
// flush before returning so partial replies appear as they are decoded.
type Output interface {
	Token(text string)
	Notice(msg string)
	Error(msg string)
}

// Result summarizes one generation turn.
type Result struct {
	// Reply is the accumulated model output with surrounding
	// whitespace trimmed. On overflow it is empty; on failure it
	// holds whatever streamed before the error.
	Reply string

	// Overflow is set when the context window was exhausted, either
	// mid-generation or by the prompt itself. The caller is expected
	// to reset its transcript and carry on.
	Overflow bool

	// Tokens counts the tokens streamed this turn.
	Tokens int

	// Outcome is the terminal outcome of the step loop.
	Outcome Outcome
}

// Runner drives one engine session per user turn.
type Runner struct {
	graph      engine.Graph
	out        Output
	engineType string
	log        *zap.Logger
}

// NewRunner returns a Runner that generates against graph and streams
// to out. engineType labels error metrics.
func NewRunner(graph engine.Graph, out Output, engineType string) *Runner {
	return &Runner{
		graph:      graph,
		out:        out,
		engineType: engineType,
		log:        logging.With(zap.String("component", "chat")),
	}
}

// Generate runs one turn: it opens a fresh session, submits the prompt,
// then steps until a terminal outcome, streaming each token as it
// arrives. The session is released before returning on every path.
//
// A non-nil error is fatal to the conversation (the engine rejected the
// session or the input shape). Engine-side generation problems are not
// errors here; they land in Result.Outcome so the caller can decide
// what survives into the transcript.
func (r *Runner) Generate(prompt []byte) (Result, error) {
	start := time.Now()

	sess, err := r.graph.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		_ = sess.Release()
	}()

	if err := sess.SetInput(engine.InputPrompt, prompt); err != nil {
		return Result{}, fmt.Errorf("failed to set input: %w", err)
	}

	var (
		reply strings.Builder
		buf   = make([]byte, maxOutputBufferSize)
		res   Result
	)

	// Step until the engine reports a terminal outcome. There is no
	// step cap; the engine signals its own end.
	for {
		stepErr := sess.ComputeStep()
		res.Outcome = Classify(stepErr)
		if res.Outcome.Terminal() {
			switch res.Outcome {
			case OutcomeEndOfSequence:
				// Normal completion.
			case OutcomeOverflow:
				r.out.Notice("Context full, we'll reset the context and continue.")
				res.Overflow = true
			case OutcomePromptTooLong:
				r.out.Notice("Prompt too long, we'll reset the context and continue.")
				res.Overflow = true
			case OutcomeFailure:
				r.out.Error(stepErr.Error())
				metrics.EngineErrorsTotal.WithLabelValues(r.engineType).Inc()
			}
			break
		}

		n, readErr := sess.ReadOutputToken(buf)
		if readErr != nil {
			res.Outcome = OutcomeFailure
			r.out.Error(readErr.Error())
			metrics.EngineErrorsTotal.WithLabelValues(r.engineType).Inc()
			break
		}
		token := strings.ToValidUTF8(string(buf[:n]), "�")
		r.out.Token(token)
		reply.WriteString(token)
		res.Tokens++
		metrics.TokensTotal.Inc()
	}

	res.Reply = strings.TrimSpace(reply.String())
	if res.Overflow {
		// The partial output cannot be reconciled with a transcript
		// that is about to be cleared.
		res.Reply = ""
	}

	metrics.TurnsTotal.WithLabelValues(res.Outcome.String()).Inc()
	metrics.TurnDuration.Observe(time.Since(start).Seconds())
	r.log.Debug("turn complete",
		zap.String("outcome", res.Outcome.String()),
		zap.Int("tokens", res.Tokens),
		zap.Duration("duration", time.Since(start)))

	return res, nil
}
