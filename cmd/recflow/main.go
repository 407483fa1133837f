package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"recflow/internal/state"
)

// Exit codes: 1 for ordinary failures, 2 when another instance holds the
// state lock, 130 after an interrupt.
const (
	exitFailure     = 1
	exitLocked      = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(exitCode(newRootCommand().Execute()))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	}
	fmt.Fprintln(os.Stderr, "recflow:", err)
	if errors.Is(err, state.ErrLocked) {
		return exitLocked
	}
	return exitFailure
}
