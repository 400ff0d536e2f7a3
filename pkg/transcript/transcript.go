// Package transcript owns the accumulated conversation text submitted to
// the inference engine on every turn.
//
// The transcript is a single append-only buffer: the system preamble is
// written once with the first user turn, every later turn and reply extends
// it, and the only other mutation is a full clear when the backend reports
// that the conversation no longer fits its context window. There is no
// partial pruning.
package transcript

import "strings"

// Transcript is the mutable conversation buffer. It has a single owner and
// is not safe for concurrent use; the chat loop is single-threaded.
type Transcript struct {
	tpl Template
	buf strings.Builder
}

// New creates an empty transcript using the given template.
func New(tpl Template) *Transcript {
	return &Transcript{tpl: tpl}
}

// AppendUserTurn appends one user turn wrapped in instruction tags. The
// first turn also emits the system preamble.
func (t *Transcript) AppendUserTurn(text string) {
	if t.buf.Len() == 0 {
		t.buf.WriteString(t.tpl.Preamble)
	} else {
		t.buf.WriteString(" ")
	}
	t.buf.WriteString(t.tpl.Open)
	t.buf.WriteString(text)
	t.buf.WriteString(t.tpl.Close)
}

// AppendReply appends the assistant reply as free text. The next user
// turn's tags keep the transcript well formed.
func (t *Transcript) AppendReply(text string) {
	t.buf.WriteString(" ")
	t.buf.WriteString(text)
}

// Reset clears the transcript to empty, discarding the entire conversation
// history. Called when the backend signals overflow.
func (t *Transcript) Reset() {
	t.buf.Reset()
}

// Bytes returns a copy of the transcript for submission to the engine. The
// returned slice never aliases the internal buffer.
func (t *Transcript) Bytes() []byte {
	return []byte(t.buf.String())
}

// String returns the transcript text.
func (t *Transcript) String() string {
	return t.buf.String()
}

// Empty reports whether the transcript holds no turns, which also means
// the system preamble has not been emitted yet.
func (t *Transcript) Empty() bool {
	return t.buf.Len() == 0
}

// Len returns the transcript length in bytes.
func (t *Transcript) Len() int {
	return t.buf.Len()
}
