package cli

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// uiModeDecision says whether the live view owns stdout, with a note for
// stderr when a requested live view cannot start.
type uiModeDecision struct {
	useLive bool
	warning string
}

// isTerminal is swapped out by tests.
var isTerminal = writerIsTerminal

// resolveUIMode picks the presentation for a run from the --ui flag or ui.mode.
func resolveUIMode(mode string, stdout io.Writer) (uiModeDecision, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return uiModeDecision{useLive: isTerminal(stdout)}, nil
	case "plain":
		return uiModeDecision{}, nil
	case "live":
		if isTerminal(stdout) {
			return uiModeDecision{useLive: true}, nil
		}
		return uiModeDecision{warning: "stdout is not a terminal; using plain progress output instead of the live view"}, nil
	}
	return uiModeDecision{}, usagef("invalid ui mode %q (expected auto|live|plain)", mode)
}

// writerIsTerminal reports whether w is backed by a terminal file descriptor.
func writerIsTerminal(w io.Writer) bool {
	fd, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(fd.Fd()))
}

// noColorRequested honors the config flag and the NO_COLOR convention.
func noColorRequested(configured bool) bool {
	if configured {
		return true
	}
	_, set := os.LookupEnv("NO_COLOR")
	return set
}
