package e2e

import (
	"strings"
	"testing"
)

func TestChat_SingleTurn(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)
	endpoint := startMockEngine(t)

	out, err := runParley(t, cliPath, "Hi\n",
		"--engine", "daemon", "--endpoint", endpoint, "mock-model")
	if err != nil {
		t.Fatalf("parley failed: %v\nOutput: %s", err, out)
	}

	for _, want := range []string{"Question:", "Answer:", "Mock engine reporting in.", "Goodbye!"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q\nOutput: %s", want, out)
		}
	}
}

func TestChat_MultiTurn(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)
	endpoint := startMockEngine(t)

	out, err := runParley(t, cliPath, "Hello\nAnd again\n",
		"--engine", "daemon", "--endpoint", endpoint, "mock-model")
	if err != nil {
		t.Fatalf("parley failed: %v\nOutput: %s", err, out)
	}

	// One answer per input line.
	if got := strings.Count(out, "Mock engine reporting in."); got != 2 {
		t.Errorf("Answer count = %d, want 2\nOutput: %s", got, out)
	}
	// The question label reappears after each turn, plus once before EOF.
	if got := strings.Count(out, "Question:"); got != 3 {
		t.Errorf("Question label count = %d, want 3\nOutput: %s", got, out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("Output missing goodbye\nOutput: %s", out)
	}
}

func TestChat_ContextOverflowRecovers(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)
	endpoint := startMockEngine(t)

	// 48 tokens: the first prompt fits, the canned answer does not.
	out, err := runParley(t, cliPath, "Hi\nStill here?\n",
		"--engine", "daemon", "--endpoint", endpoint, "--ctx-size", "48", "mock-model")
	if err != nil {
		t.Fatalf("parley failed: %v\nOutput: %s", err, out)
	}

	if !strings.Contains(out, "[INFO] Context full, we'll reset the context and continue.") {
		t.Errorf("Output missing context-full notice\nOutput: %s", out)
	}
	// The chat survives the overflow and keeps taking questions.
	if got := strings.Count(out, "Question:"); got != 3 {
		t.Errorf("Question label count = %d, want 3\nOutput: %s", got, out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("Output missing goodbye\nOutput: %s", out)
	}
}

func TestChat_PromptTooLongRecovers(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)
	endpoint := startMockEngine(t)

	// 8 tokens: even the first prompt exceeds the window.
	out, err := runParley(t, cliPath, "Hi\n",
		"--engine", "daemon", "--endpoint", endpoint, "--ctx-size", "8", "mock-model")
	if err != nil {
		t.Fatalf("parley failed: %v\nOutput: %s", err, out)
	}

	if !strings.Contains(out, "[INFO] Prompt too long, we'll reset the context and continue.") {
		t.Errorf("Output missing prompt-too-long notice\nOutput: %s", out)
	}
	if !strings.Contains(out, "Goodbye!") {
		t.Errorf("Output missing goodbye\nOutput: %s", out)
	}
}

func TestChat_Help(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)

	out, err := runParley(t, cliPath, "", "--help")
	if err != nil {
		t.Fatalf("Help command failed: %v\nOutput: %s", err, out)
	}

	for _, want := range []string{"parley <model>", "--engine", "--ctx-size", "--template", "--metrics-addr"} {
		if !strings.Contains(out, want) {
			t.Errorf("Help output missing %q\nOutput: %s", want, out)
		}
	}
}

func TestChat_Version(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)

	out, err := runParley(t, cliPath, "", "--version")
	if err != nil {
		t.Fatalf("Version command failed: %v\nOutput: %s", err, out)
	}
	if !strings.Contains(out, "parley") {
		t.Errorf("Version output unexpected: %s", out)
	}
}

func TestChat_InvalidEngineType(t *testing.T) {
	SkipUnlessE2E(t)

	cliPath := buildCLI(t)

	out, err := runParley(t, cliPath, "", "--engine", "banana", "mock-model")
	if err == nil {
		t.Fatalf("Expected failure for invalid engine type\nOutput: %s", out)
	}
	if !strings.Contains(out, "invalid engine type") {
		t.Errorf("Output missing engine type error\nOutput: %s", out)
	}
}
