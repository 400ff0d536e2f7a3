package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/engine"
	"github.com/parleyhq/parley/pkg/engine/enginetest"
)

// recordingOutput captures everything the runner streams.
type recordingOutput struct {
	TokenTexts []string
	Notices    []string
	Errors     []string
}

func (r *recordingOutput) Token(text string) { r.TokenTexts = append(r.TokenTexts, text) }
func (r *recordingOutput) Notice(msg string) { r.Notices = append(r.Notices, msg) }
func (r *recordingOutput) Error(msg string)  { r.Errors = append(r.Errors, msg) }

func TestGenerateStreamsTokensInOrder(t *testing.T) {
	sess := enginetest.NewSession(
		enginetest.Token("Hel"),
		enginetest.Token("lo"),
		enginetest.Token("!"),
		enginetest.Signal(engine.ErrEndOfSequence),
	)
	graph := enginetest.NewGraph(sess)
	out := &recordingOutput{}
	runner := NewRunner(graph, out, "fake")

	res, err := runner.Generate([]byte("[INST] Hi [/INST]"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", "!"}, out.TokenTexts)
	assert.Equal(t, "Hello!", res.Reply)
	assert.Equal(t, 3, res.Tokens)
	assert.Equal(t, OutcomeEndOfSequence, res.Outcome)
	assert.False(t, res.Overflow)
	assert.Empty(t, out.Notices)
	assert.Empty(t, out.Errors)
}

func TestGenerateSubmitsPromptUnchanged(t *testing.T) {
	sess := enginetest.NewSession(enginetest.Signal(engine.ErrEndOfSequence))
	graph := enginetest.NewGraph(sess)
	runner := NewRunner(graph, &recordingOutput{}, "fake")

	prompt := "<<SYS>> be brief <</SYS>> [INST] Hi [/INST]"
	_, err := runner.Generate([]byte(prompt))
	require.NoError(t, err)

	assert.Equal(t, prompt, sess.Prompt())
}

func TestGenerateReleasesSessionOncePerOutcome(t *testing.T) {
	tests := []struct {
		name  string
		steps []enginetest.Step
	}{
		{
			name: "end of sequence",
			steps: []enginetest.Step{
				enginetest.Token("hi"),
				enginetest.Signal(engine.ErrEndOfSequence),
			},
		},
		{
			name: "context full",
			steps: []enginetest.Step{
				enginetest.Token("hi"),
				enginetest.Signal(engine.ErrContextFull),
			},
		},
		{
			name:  "prompt too long",
			steps: []enginetest.Step{enginetest.Signal(engine.ErrPromptTooLong)},
		},
		{
			name:  "backend failure",
			steps: []enginetest.Step{enginetest.Signal(errors.New("backend exploded"))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := enginetest.NewSession(tt.steps...)
			graph := enginetest.NewGraph(sess)
			runner := NewRunner(graph, &recordingOutput{}, "fake")

			_, err := runner.Generate([]byte("prompt"))
			require.NoError(t, err)
			assert.Equal(t, 1, sess.ReleaseCalls)
		})
	}
}

func TestGenerateOverflowDiscardsPartialReply(t *testing.T) {
	sess := enginetest.NewSession(
		enginetest.Token("par"),
		enginetest.Token("tial"),
		enginetest.Signal(engine.ErrContextFull),
	)
	graph := enginetest.NewGraph(sess)
	out := &recordingOutput{}
	runner := NewRunner(graph, out, "fake")

	res, err := runner.Generate([]byte("prompt"))
	require.NoError(t, err)

	// The partial output still streamed, but the result drops it.
	assert.Equal(t, []string{"par", "tial"}, out.TokenTexts)
	assert.True(t, res.Overflow)
	assert.Empty(t, res.Reply)
	assert.Equal(t, OutcomeOverflow, res.Outcome)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, "Context full, we'll reset the context and continue.", out.Notices[0])
}

func TestGeneratePromptTooLong(t *testing.T) {
	sess := enginetest.NewSession(enginetest.Signal(engine.ErrPromptTooLong))
	graph := enginetest.NewGraph(sess)
	out := &recordingOutput{}
	runner := NewRunner(graph, out, "fake")

	res, err := runner.Generate([]byte("an enormous prompt"))
	require.NoError(t, err)

	assert.True(t, res.Overflow)
	assert.Empty(t, res.Reply)
	assert.Equal(t, OutcomePromptTooLong, res.Outcome)
	require.Len(t, out.Notices, 1)
	assert.Equal(t, "Prompt too long, we'll reset the context and continue.", out.Notices[0])
}

func TestGenerateFailureKeepsPartialReply(t *testing.T) {
	sess := enginetest.NewSession(
		enginetest.Token("Hel"),
		enginetest.Signal(errors.New("backend exploded")),
	)
	graph := enginetest.NewGraph(sess)
	out := &recordingOutput{}
	runner := NewRunner(graph, out, "fake")

	res, err := runner.Generate([]byte("prompt"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.False(t, res.Overflow)
	assert.Equal(t, "Hel", res.Reply)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "backend exploded")
	assert.Equal(t, 1, sess.ReleaseCalls)
}

func TestGenerateTrimsReplyWhitespace(t *testing.T) {
	sess := enginetest.NewSession(
		enginetest.Token(" Hi"),
		enginetest.Token(" there "),
		enginetest.Signal(engine.ErrEndOfSequence),
	)
	graph := enginetest.NewGraph(sess)
	runner := NewRunner(graph, &recordingOutput{}, "fake")

	res, err := runner.Generate([]byte("prompt"))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Reply)
}

func TestGenerateSanitizesInvalidUTF8(t *testing.T) {
	sess := enginetest.NewSession(
		enginetest.Token("ok \xff\xfe"),
		enginetest.Signal(engine.ErrEndOfSequence),
	)
	graph := enginetest.NewGraph(sess)
	out := &recordingOutput{}
	runner := NewRunner(graph, out, "fake")

	res, err := runner.Generate([]byte("prompt"))
	require.NoError(t, err)

	assert.Equal(t, "ok ��", res.Reply)
	require.Len(t, out.TokenTexts, 1)
	assert.Equal(t, "ok ��", out.TokenTexts[0])
}

func TestGenerateFatalWhenSessionUnavailable(t *testing.T) {
	graph := enginetest.NewGraph()
	graph.NewSessionErr = errors.New("engine gone")
	runner := NewRunner(graph, &recordingOutput{}, "fake")

	_, err := runner.Generate([]byte("prompt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session")
}

func TestGenerateFatalWhenInputRejected(t *testing.T) {
	sess := enginetest.NewSession(enginetest.Signal(engine.ErrEndOfSequence))
	sess.SetInputErr = errors.New("tensor shape mismatch")
	graph := enginetest.NewGraph(sess)
	runner := NewRunner(graph, &recordingOutput{}, "fake")

	_, err := runner.Generate([]byte("prompt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to set input")

	// Even the fatal path must hand the session back.
	assert.Equal(t, 1, sess.ReleaseCalls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil means token ready", nil, OutcomeToken},
		{"end of sequence", engine.ErrEndOfSequence, OutcomeEndOfSequence},
		{"wrapped end of sequence", errors.Join(engine.ErrEndOfSequence), OutcomeEndOfSequence},
		{"context full", engine.ErrContextFull, OutcomeOverflow},
		{"prompt too long", engine.ErrPromptTooLong, OutcomePromptTooLong},
		{"anything else", errors.New("boom"), OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
