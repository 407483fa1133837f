package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"recflow/internal/state"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"interrupted", fmt.Errorf("run: %w", context.Canceled), exitInterrupted},
		{"locked", fmt.Errorf("%w; stop `recflow run` first", state.ErrLocked), exitLocked},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}
