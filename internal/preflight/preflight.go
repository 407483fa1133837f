package preflight

import (
	"context"

	"recflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Options selects the checks that need network access.
type Options struct {
	// Remote enables the Telegram and LLM probes.
	Remote bool
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result

	results = append(results, CheckDirectoryAccess("Source directory", cfg.Paths.SourceDir, false))
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir, true))
	results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, minFreeBytes(cfg)))

	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Command
			if status.Version != "" {
				result.Detail = status.Version
			}
		}
		results = append(results, result)
	}

	if opts.Remote {
		results = append(results, CheckTelegram(ctx, cfg))
		if cfg.AI.Enabled {
			results = append(results, CheckLLM(ctx, "Summary LLM", cfg.GetLLM()))
		}
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// minFreeBytes is the scratch space a split delivery needs: the parts of one
// recording at the delivery budget, plus a preview clip.
func minFreeBytes(cfg *config.Config) uint64 {
	target := cfg.TargetBytes()
	if target <= 0 {
		return 0
	}
	return uint64(target) * 2
}
