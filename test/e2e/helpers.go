package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/pkg/engine"
)

// SkipUnlessE2E skips the test unless the RUN_E2E_TESTS environment variable
// is set. E2E tests build the real binary and drive it over pipes, so they
// only run when explicitly enabled, such as:
// - When a PR is marked ready for review
// - When manually triggered in CI
// - During local development with: RUN_E2E_TESTS=1 go test ./test/e2e
func SkipUnlessE2E(t *testing.T) {
	if os.Getenv("RUN_E2E_TESTS") == "" {
		t.Skip("Skipping E2E test - set RUN_E2E_TESTS=1 to run")
	}
}

// buildCLI builds the parley binary into a temp location and returns its
// path.
func buildCLI(t *testing.T) string {
	tmpDir := t.TempDir()
	cliPath := filepath.Join(tmpDir, "parley")

	cmd := exec.Command("go", "build", "-o", cliPath, "../../cmd/parley")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Failed to build CLI: %v\nOutput: %s", err, string(output))
	}
	return cliPath
}

// mockReply is what the in-process daemon streams back, one word per token.
// It is long enough that small context windows overflow partway through.
const mockReply = "Mock engine reporting in. " +
	"This canned answer streams token by token without loading a model. " +
	"This canned answer streams token by token without loading a model. " +
	"This canned answer streams token by token without loading a model."

var upgrader = websocket.Upgrader{}

// startMockEngine runs an in-process token daemon speaking the WebSocket
// generate protocol and returns its endpoint. It estimates four bytes per
// token to decide when the advertised context window is exhausted, so tests
// can force overflow with a small --ctx-size.
func startMockEngine(t *testing.T) string {
	type frame struct {
		Type string `json:"type"`
		Data string `json:"data,omitempty"`
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			Type    string         `json:"type"`
			Prompt  string         `json:"prompt"`
			Options engine.Options `json:"options"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		ctxSize := req.Options.ContextSize
		if ctxSize <= 0 {
			ctxSize = 512
		}
		promptTokens := len(req.Prompt) / 4
		if promptTokens >= ctxSize {
			conn.WriteJSON(frame{Type: "prompt_too_long"})
			return
		}

		budget := ctxSize - promptTokens
		for i, word := range strings.Fields(mockReply) {
			if i >= budget {
				conn.WriteJSON(frame{Type: "context_full"})
				return
			}
			tok := word
			if i > 0 {
				tok = " " + word
			}
			if err := conn.WriteJSON(frame{Type: "token", Data: tok}); err != nil {
				return
			}
		}
		conn.WriteJSON(frame{Type: "done"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/generate"
}

// runParley executes the built binary with the given stdin script and
// returns the combined output. HOME points at a temp dir and PARLEY_*
// overrides are scrubbed so no real config, .env or history leaks in.
func runParley(t *testing.T, cliPath, stdin string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, cliPath, args...)
	cmd.Dir = t.TempDir()
	cmd.Env = []string{
		"HOME=" + cmd.Dir,
		"PATH=" + os.Getenv("PATH"),
		"TERM=" + os.Getenv("TERM"),
	}
	cmd.Stdin = strings.NewReader(stdin)

	output, err := cmd.CombinedOutput()
	return string(output), err
}
