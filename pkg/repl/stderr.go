package repl

import (
	"log"
	"os"
)

// SuppressStderr redirects stderr to /dev/null. Native engine backends
// write their own logging there, which would tear up the chat surface.
func SuppressStderr() func() {
	// Save original stderr
	originalStderr := os.Stderr

	// Open /dev/null
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		// If we can't open /dev/null, just return a no-op
		return func() {}
	}

	// Redirect stderr to /dev/null
	os.Stderr = devNull

	// Also redirect Go's log package
	log.SetOutput(devNull)

	// Return cleanup function
	return func() {
		os.Stderr = originalStderr
		log.SetOutput(originalStderr)
		devNull.Close()
	}
}

// ConditionalStderr suppresses stderr unless backend logging was asked
// for (debug mode or enable_log).
func ConditionalStderr(keepStderr bool) func() {
	if keepStderr {
		return func() {}
	}

	return SuppressStderr()
}
