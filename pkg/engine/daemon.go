package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/pkg/logging"
)

// DaemonConfig configures the WebSocket daemon engine.
type DaemonConfig struct {
	Endpoint       string
	Model          string
	ConnectTimeout time.Duration
}

// daemonGraph talks to a long-running token daemon over WebSocket. Each
// session is one connection: the client sends a single generate request and
// the daemon answers with a typed frame per token, then a terminal frame.
type daemonGraph struct {
	endpoint string
	model    string
	opts     Options
	timeout  time.Duration
	log      *zap.Logger
}

// Daemon protocol frames. The request goes out once per session; reply
// frames arrive one per compute step.
type daemonRequest struct {
	Type    string  `json:"type"` // "generate"
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Options Options `json:"options"`
}

type daemonFrame struct {
	Type string `json:"type"` // "token", "done", "context_full", "prompt_too_long", "error"
	Data string `json:"data,omitempty"`
}

// LoadDaemonGraph validates and normalizes the endpoint. http(s) schemes
// are rewritten to ws(s) so config can name either form.
func LoadDaemonGraph(cfg DaemonConfig, opts Options) (Graph, error) {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if strings.HasPrefix(endpoint, "http") {
		endpoint = strings.Replace(endpoint, "http", "ws", 1)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid daemon endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid daemon endpoint scheme: %s", u.Scheme)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &daemonGraph{
		endpoint: endpoint,
		model:    cfg.Model,
		opts:     opts,
		timeout:  timeout,
		log:      logging.With(zap.String("engine", "daemon")),
	}, nil
}

// NewSession dials one connection to the daemon.
func (g *daemonGraph) NewSession() (Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine daemon: %w", err)
	}

	g.log.Debug("daemon session opened", zap.String("endpoint", g.endpoint))
	return &daemonSession{
		conn:  conn,
		model: g.model,
		opts:  g.opts,
		log:   g.log,
	}, nil
}

// Close releases resources held by the graph. Connections are per session.
func (g *daemonGraph) Close() error {
	return nil
}

type daemonSession struct {
	conn  *websocket.Conn
	model string
	opts  Options
	log   *zap.Logger

	prompt []byte
	sent   bool

	pending  []byte
	terminal error
	released bool
}

func (s *daemonSession) SetInput(index int, data []byte) error {
	if s.sent {
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

func (s *daemonSession) ComputeStep() error {
	if s.released {
		return fmt.Errorf("compute step on released session")
	}
	if s.terminal != nil {
		return s.terminal
	}

	if !s.sent {
		if len(s.prompt) == 0 {
			s.terminal = fmt.Errorf("no prompt submitted")
			return s.terminal
		}
		req := daemonRequest{
			Type:    "generate",
			Model:   s.model,
			Prompt:  string(s.prompt),
			Options: s.opts,
		}
		if err := s.conn.WriteJSON(req); err != nil {
			s.terminal = fmt.Errorf("failed to send generate request: %w", err)
			return s.terminal
		}
		s.sent = true
	}

	// Skip frame types this client does not know; the daemon may add
	// informational frames.
	for {
		var frame daemonFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			s.terminal = fmt.Errorf("daemon read error: %w", err)
			return s.terminal
		}

		switch frame.Type {
		case "token":
			s.pending = []byte(frame.Data)
			return nil
		case "done":
			s.terminal = ErrEndOfSequence
			return s.terminal
		case "context_full":
			s.terminal = ErrContextFull
			return s.terminal
		case "prompt_too_long":
			s.terminal = ErrPromptTooLong
			return s.terminal
		case "error":
			s.terminal = fmt.Errorf("engine error: %s", frame.Data)
			return s.terminal
		}
	}
}

func (s *daemonSession) ReadOutputToken(buf []byte) (int, error) {
	if s.pending == nil {
		return 0, fmt.Errorf("no token pending")
	}
	return copy(buf, s.pending), nil
}

func (s *daemonSession) Release() error {
	if s.released {
		return nil
	}

	// Best-effort close handshake; the connection drops either way.
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if err := s.conn.Close(); err != nil {
		return err
	}

	s.released = true
	return nil
}
