package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/pkg/logging"
)

// processGraph drives a local llama.cpp-style CLI binary. Each session
// launches one process with the transcript as the prompt and streams its
// stdout; one compute step yields one UTF-8 rune from the stream.
type processGraph struct {
	binary string
	model  string
	opts   Options
	log    *zap.Logger
}

// LoadProcessGraph resolves the binary and model path up front so that a
// misconfiguration fails at load time, not mid-conversation.
func LoadProcessGraph(binary, model string, opts Options) (Graph, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("engine binary not found: %s: %w", binary, err)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("model not found: %s: %w", model, err)
	}

	return &processGraph{
		binary: path,
		model:  model,
		opts:   opts,
		log:    logging.With(zap.String("engine", "process")),
	}, nil
}

// NewSession creates an idle session; the process starts on the first
// compute step, once the prompt has been submitted.
func (g *processGraph) NewSession() (Session, error) {
	return &processSession{
		graph: g,
		opts:  g.opts,
		log:   g.log,
	}, nil
}

// Close releases resources held by the graph. Process graphs hold none.
func (g *processGraph) Close() error {
	return nil
}

type processSession struct {
	graph *processGraph
	opts  Options
	log   *zap.Logger

	prompt []byte
	cmd    *exec.Cmd
	stdout *bufio.Reader
	stderr *tailBuffer

	pending  []byte
	terminal error
	released bool
}

func (s *processSession) SetInput(index int, data []byte) error {
	if s.cmd != nil {
		return fmt.Errorf("input rejected: generation already started")
	}

	switch index {
	case InputPrompt:
		s.prompt = append([]byte(nil), data...)
		return nil
	case InputMetadata:
		opts, err := ParseOptions(data)
		if err != nil {
			return err
		}
		s.opts = opts
		return nil
	default:
		return fmt.Errorf("input rejected: unsupported tensor index %d", index)
	}
}

func (s *processSession) ComputeStep() error {
	if s.released {
		return fmt.Errorf("compute step on released session")
	}
	if s.terminal != nil {
		return s.terminal
	}

	if s.cmd == nil {
		if err := s.start(); err != nil {
			s.terminal = err
			return err
		}
	}

	r, _, err := s.stdout.ReadRune()
	if err == io.EOF {
		s.terminal = s.finish()
		return s.terminal
	}
	if err != nil {
		s.terminal = fmt.Errorf("failed to read engine output: %w", err)
		return s.terminal
	}

	// ReadRune already substitutes U+FFFD for invalid sequences, so the
	// pending bytes are always valid UTF-8.
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	s.pending = buf[:n]
	return nil
}

func (s *processSession) ReadOutputToken(buf []byte) (int, error) {
	if s.pending == nil {
		return 0, fmt.Errorf("no token pending")
	}
	return copy(buf, s.pending), nil
}

func (s *processSession) Release() error {
	if s.released {
		return nil
	}

	// Kill a process still mid-generation; a finished one has been waited
	// on already.
	if s.cmd != nil && s.cmd.ProcessState == nil {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	}

	s.released = true
	return nil
}

// start launches the engine process with the submitted prompt.
func (s *processSession) start() error {
	if len(s.prompt) == 0 {
		return fmt.Errorf("no prompt submitted")
	}

	args := buildProcessArgs(s.graph.model, s.opts, s.prompt)
	cmd := exec.Command(s.graph.binary, args...)

	s.stderr = &tailBuffer{max: 4096}
	if s.opts.EnableLog {
		cmd.Stderr = io.MultiWriter(s.stderr, os.Stderr)
	} else {
		cmd.Stderr = s.stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start engine process: %w", err)
	}

	s.cmd = cmd
	s.stdout = bufio.NewReader(stdout)
	s.log.Debug("engine process started",
		zap.String("binary", s.graph.binary),
		zap.Int("prompt_bytes", len(s.prompt)))
	return nil
}

// finish reaps the exited process and classifies its outcome.
func (s *processSession) finish() error {
	err := s.cmd.Wait()
	tail := s.stderr.String()
	s.log.Debug("engine process finished", zap.Error(err))

	if err == nil {
		return ErrEndOfSequence
	}
	return classifyProcessFailure(err, tail)
}

// classifyProcessFailure maps a non-zero exit to a backend signal by
// scanning the stderr tail for the messages llama.cpp-style binaries print.
func classifyProcessFailure(waitErr error, stderrTail string) error {
	lower := strings.ToLower(stderrTail)

	if strings.Contains(lower, "prompt is too long") || strings.Contains(lower, "prompt too long") {
		return ErrPromptTooLong
	}
	if strings.Contains(lower, "context full") || strings.Contains(lower, "exceeds the available context") {
		return ErrContextFull
	}

	if stderrTail != "" {
		return fmt.Errorf("engine process failed: %w (stderr: %s)", waitErr, strings.TrimSpace(stderrTail))
	}
	return fmt.Errorf("engine process failed: %w", waitErr)
}

// buildProcessArgs builds the llama.cpp CLI arguments for one generation.
func buildProcessArgs(model string, opts Options, prompt []byte) []string {
	args := []string{
		"-m", model,
		"-c", fmt.Sprintf("%d", opts.ContextSize),
		"-ngl", fmt.Sprintf("%d", opts.GPULayers),
		"-p", string(prompt),
		"--no-display-prompt", // Don't echo the prompt
		"--simple-io",
	}
	if !opts.EnableLog {
		args = append(args, "--log-disable")
	}
	return args
}

// tailBuffer keeps the last max bytes written to it. The engine process
// writes from its own goroutine, so writes are locked.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
