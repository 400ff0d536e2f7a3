// mock-engine is a stand-in token daemon for developing and demoing parley
// without a real model. It speaks the daemon WebSocket protocol: one
// generate request per connection, one frame per token, then a terminal
// frame.
//
// Run it, then point parley at it:
//
//	go run ./scripts/mock-engine -addr :8765
//	parley --engine daemon --endpoint ws://localhost:8765/generate any-model
//
// The mock enforces the advertised context window by estimating four bytes
// per token, so overflow and prompt-too-long handling can be exercised by
// talking to it long enough.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/pkg/engine"
)

// bytesPerToken is the usual llama rule of thumb for English text.
const bytesPerToken = 4

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

type request struct {
	Type    string         `json:"type"`
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Options engine.Options `json:"options"`
}

type frame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

func main() {
	addr := flag.String("addr", ":8765", "Listen address")
	delay := flag.Duration("delay", 30*time.Millisecond, "Delay between tokens")
	flag.Parse()

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	mux := http.NewServeMux()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()
		serve(conn, *delay, log)
	})

	log.Info("mock engine listening", zap.String("addr", *addr))
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serve handles one session: a single generate request answered with a
// stream of token frames and one terminal frame.
func serve(conn *websocket.Conn, delay time.Duration, log *zap.Logger) {
	var req request
	if err := conn.ReadJSON(&req); err != nil {
		log.Debug("session closed before request", zap.Error(err))
		return
	}
	if req.Type != "generate" {
		write(conn, frame{Type: "error", Data: fmt.Sprintf("unknown request type %q", req.Type)}, log)
		return
	}

	ctxSize := req.Options.ContextSize
	if ctxSize <= 0 {
		ctxSize = 512
	}
	promptTokens := len(req.Prompt) / bytesPerToken
	log.Info("generate",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("ctx_size", ctxSize))

	// A prompt that alone exceeds the window can never be answered.
	if promptTokens >= ctxSize {
		write(conn, frame{Type: "prompt_too_long"}, log)
		return
	}

	budget := ctxSize - promptTokens
	for i, tok := range tokenize(reply(req.Prompt)) {
		if i >= budget {
			write(conn, frame{Type: "context_full"}, log)
			return
		}
		if !write(conn, frame{Type: "token", Data: tok}, log) {
			return
		}
		time.Sleep(delay)
	}
	write(conn, frame{Type: "done"}, log)
}

func write(conn *websocket.Conn, f frame, log *zap.Logger) bool {
	if err := conn.WriteJSON(f); err != nil {
		log.Debug("write failed", zap.Error(err))
		return false
	}
	return true
}

// reply fabricates a deterministic answer. It quotes the newest question
// back so a human can see the prompt assembly working, and pads the text so
// long conversations eventually hit the context window.
func reply(prompt string) string {
	q := prompt
	if i := strings.LastIndex(q, "[INST]"); i >= 0 {
		q = q[i+len("[INST]"):]
	}
	if i := strings.Index(q, "[/INST]"); i >= 0 {
		q = q[:i]
	}
	q = strings.TrimSpace(q)

	return fmt.Sprintf("You asked: %q. This canned answer comes from the mock engine, "+
		"which streams plausible-looking tokens without loading a model.", q)
}

// tokenize splits text into word-sized chunks, each carrying its leading
// space, the way real engines emit subword pieces.
func tokenize(text string) []string {
	words := strings.Fields(text)
	toks := make([]string, 0, len(words))
	for i, w := range words {
		if i == 0 {
			toks = append(toks, w)
			continue
		}
		toks = append(toks, " "+w)
	}
	return toks
}
