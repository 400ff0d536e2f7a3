package transcript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstTurnLaysDownPreamble(t *testing.T) {
	tr := New(DefaultTemplate())
	tr.AppendUserTurn("Hi")

	want := "<<SYS>> You are a helpful, respectful and honest assistant. " +
		"Always answer as short as possible, while being safe. <</SYS>> " +
		"[INST] Hi [/INST]"
	assert.Equal(t, want, tr.String())
}

func TestConversationAccumulatesAppendOnly(t *testing.T) {
	tpl := Template{Preamble: "<<SYS>> be brief <</SYS>> ", Open: "[INST] ", Close: " [/INST]"}
	tr := New(tpl)

	tr.AppendUserTurn("Hi")
	tr.AppendReply("Hello!")
	tr.AppendUserTurn("How are you?")
	tr.AppendReply("Fine.")

	want := "<<SYS>> be brief <</SYS>> [INST] Hi [/INST] Hello! [INST] How are you? [/INST] Fine."
	assert.Equal(t, want, tr.String())

	// Later turns never rewrite earlier bytes.
	assert.True(t, strings.HasPrefix(tr.String(), "<<SYS>> be brief <</SYS>> [INST] Hi [/INST] Hello!"))
}

func TestSubsequentTurnsOmitPreamble(t *testing.T) {
	tpl := Template{Preamble: "SYS ", Open: "[INST] ", Close: " [/INST]"}
	tr := New(tpl)

	tr.AppendUserTurn("one")
	tr.AppendReply("1")
	tr.AppendUserTurn("two")

	assert.Equal(t, "SYS [INST] one [/INST] 1 [INST] two [/INST]", tr.String())
	assert.Equal(t, 1, strings.Count(tr.String(), "SYS "))
}

func TestEmptyReplyStillAppends(t *testing.T) {
	tpl := Template{Preamble: "P ", Open: "[INST] ", Close: " [/INST]"}
	tr := New(tpl)

	tr.AppendUserTurn("Hi")
	tr.AppendReply("")
	tr.AppendUserTurn("Still there?")

	// An empty reply leaves a lone separator behind, matching how the
	// prompt would read if the model said nothing.
	assert.Equal(t, "P [INST] Hi [/INST]  [INST] Still there? [/INST]", tr.String())
}

func TestResetClearsEverything(t *testing.T) {
	tr := New(DefaultTemplate())
	tr.AppendUserTurn("Hi")
	tr.AppendReply("Hello!")
	require.False(t, tr.Empty())

	tr.Reset()

	assert.True(t, tr.Empty())
	assert.Zero(t, tr.Len())
	assert.Equal(t, "", tr.String())

	// The next turn behaves exactly like a first turn again.
	tr.AppendUserTurn("Hi")
	fresh := New(DefaultTemplate())
	fresh.AppendUserTurn("Hi")
	assert.Equal(t, fresh.String(), tr.String())
}

func TestBytesReturnsACopy(t *testing.T) {
	tr := New(DefaultTemplate())
	tr.AppendUserTurn("Hi")

	b := tr.Bytes()
	before := tr.String()
	for i := range b {
		b[i] = 'x'
	}

	assert.Equal(t, before, tr.String())
}

func TestLenTracksBytes(t *testing.T) {
	tr := New(Template{Preamble: "P", Open: "<", Close: ">"})
	tr.AppendUserTurn("ab")
	assert.Equal(t, len("P<ab>"), tr.Len())
	tr.AppendReply("cd")
	assert.Equal(t, len("P<ab> cd"), tr.Len())
}
