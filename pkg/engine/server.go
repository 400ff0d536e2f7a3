package engine

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parleyhq/parley/pkg/logging"
)

// ServerConfig configures the HTTP streaming-server engine.
type ServerConfig struct {
	BaseURL        string
	Model          string
	ConnectTimeout time.Duration
	MaxRetries     int
}

// serverGraph talks to a llama.cpp-compatible HTTP server. Each session is
// one streaming /completion request; one compute step consumes one SSE
// data event from the response.
type serverGraph struct {
	baseURL    string
	model      string
	opts       Options
	maxRetries int
	httpClient *http.Client
	log        *zap.Logger
}

// LoadServerGraph validates the endpoint and builds the HTTP client. The
// client has no overall timeout: a streaming response lives as long as the
// generation does. Only connection establishment is bounded.
func LoadServerGraph(cfg ServerConfig, opts Options) (Graph, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server endpoint scheme: %s", u.Scheme)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}

	return &serverGraph{
		baseURL:    baseURL,
		model:      cfg.Model,
		opts:       opts,
		maxRetries: maxRetries,
		httpClient: &http.Client{Transport: transport},
		log:        logging.With(zap.String("engine", "server")),
	}, nil
}

func (g *serverGraph) NewSession() (Session, error) {
	return &serverSession{
		graph: g,
		opts:  g.opts,
		log:   g.log,
	}, nil
}

// Close closes the HTTP client
func (g *serverGraph) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

type serverSession struct {
	graph *serverGraph
	opts  Options
	log   *zap.Logger

	prompt []byte
	resp   *http.Response
	reader *bufio.Reader

	pending  []byte
	terminal error
	released bool
}

// completionChunk is one streamed SSE data event from /completion.
type completionChunk struct {
	Content   string `json:"content"`
	Stop      bool   `json:"stop"`
	Truncated bool   `json:"truncated"`
}

func (s *serverSession) SetInput(index int, data []byte) error {
	if s.resp != nil {
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

func (s *serverSession) ComputeStep() error {
	if s.released {
		return fmt.Errorf("compute step on released session")
	}
	if s.terminal != nil {
		return s.terminal
	}

	if s.resp == nil {
		if err := s.begin(); err != nil {
			s.terminal = err
			return s.terminal
		}
	}

	data, err := s.readSSEData()
	if err != nil {
		s.terminal = fmt.Errorf("stream read error: %w", err)
		return s.terminal
	}

	var chunk completionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		s.terminal = fmt.Errorf("malformed stream event: %w", err)
		return s.terminal
	}

	if chunk.Stop {
		if chunk.Truncated {
			s.terminal = ErrContextFull
		} else {
			s.terminal = ErrEndOfSequence
		}
		return s.terminal
	}

	s.pending = []byte(chunk.Content)
	return nil
}

func (s *serverSession) ReadOutputToken(buf []byte) (int, error) {
	if s.pending == nil {
		return 0, fmt.Errorf("no token pending")
	}
	return copy(buf, s.pending), nil
}

func (s *serverSession) Release() error {
	if s.released {
		return nil
	}

	if s.resp != nil {
		if err := s.resp.Body.Close(); err != nil {
			return err
		}
	}

	s.released = true
	return nil
}

// begin sends the streaming completion request. Network errors and 5xx
// responses are retried with exponential backoff; this is the only point a
// retry is possible, since a broken stream mid-generation cannot be
// resumed.
func (s *serverSession) begin() error {
	if len(s.prompt) == 0 {
		return fmt.Errorf("no prompt submitted")
	}

	reqBody := map[string]interface{}{
		"prompt":       string(s.prompt),
		"stream":       true,
		"n_predict":    -1,
		"cache_prompt": true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.graph.maxRetries; attempt++ {
		// Recreate the request on each retry since the body is consumed
		httpReq, err := http.NewRequest("POST", s.graph.baseURL+"/completion", bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := s.graph.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if attempt < s.graph.maxRetries && isRetryableError(err) {
				backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s, 4s
				s.log.Debug("completion request failed, retrying",
					zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("completion request failed: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			s.resp = resp
			s.reader = bufio.NewReader(resp.Body)
			return nil
		}

		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		// 5xx errors are retryable, 4xx are not
		if resp.StatusCode >= 500 && attempt < s.graph.maxRetries {
			lastErr = fmt.Errorf("server returned %d: %s", resp.StatusCode, string(errorBody))
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			s.log.Debug("server error, retrying",
				zap.Int("status", resp.StatusCode), zap.Duration("backoff", backoff))
			time.Sleep(backoff)
			continue
		}

		return classifyServerError(resp.StatusCode, errorBody)
	}

	return fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// classifyServerError maps an HTTP error response to a backend signal. A
// 400 whose message names the context window means the prompt alone does
// not fit.
func classifyServerError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	if status == http.StatusBadRequest {
		lower := strings.ToLower(message)
		if strings.Contains(lower, "context") && (strings.Contains(lower, "exceed") || strings.Contains(lower, "too long")) {
			return ErrPromptTooLong
		}
	}

	return fmt.Errorf("server returned %d: %s", status, message)
}

// readSSEData returns the payload of the next `data:` event, skipping
// blank keep-alive lines and comments.
func (s *serverSession) readSSEData() (string, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "data:")), nil
		}
	}
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableMessages := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
	}
	for _, msg := range retryableMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}
