package testsupport

import (
	"testing"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/state"
)

// MustOpenState opens the state store for tests and registers cleanup.
func MustOpenState(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.Paths.StateFile, logging.NewNop())
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
