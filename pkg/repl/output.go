package repl

import (
	"fmt"
	"io"
	"os"
)

// flusher is the subset of buffered writers the printer can flush.
type flusher interface {
	Flush() error
}

// Printer writes the chat surface: turn labels, streamed tokens, and
// backend notices. It is the generation loop's output sink, and mirrors
// notices and errors into the session log.
type Printer struct {
	writer io.Writer
	logger *Logger
}

// NewPrinter creates a printer writing to stdout
func NewPrinter(logger *Logger) *Printer {
	return &Printer{
		writer: os.Stdout,
		logger: logger,
	}
}

// SetWriter sets the output writer
func (p *Printer) SetWriter(w io.Writer) {
	p.writer = w
}

// Token writes one streamed token and flushes, so partial replies appear
// as they are decoded rather than when the line completes.
func (p *Printer) Token(text string) {
	fmt.Fprint(p.writer, text)
	if f, ok := p.writer.(flusher); ok {
		_ = f.Flush()
	}
}

// Notice reports a recoverable backend condition. The leading newline
// closes the token stream mid-line.
func (p *Printer) Notice(msg string) {
	fmt.Fprintf(p.writer, "\n[INFO] %s\n", msg)
	if p.logger != nil {
		p.logger.LogNotice(msg)
	}
}

// Error reports a backend step error.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.writer, "\n[ERROR] %s\n", msg)
	if p.logger != nil {
		p.logger.LogError(msg)
	}
}

// Label prints a turn label on its own line.
func (p *Printer) Label(name string) {
	fmt.Fprintf(p.writer, "%s\n", name)
}

// EndAnswer terminates the streamed answer line and leaves a blank line
// before the next turn.
func (p *Printer) EndAnswer() {
	fmt.Fprint(p.writer, "\n\n")
}

// Message prints a plain message to the chat surface.
func (p *Printer) Message(format string, args ...interface{}) {
	fmt.Fprintf(p.writer, format, args...)
}
