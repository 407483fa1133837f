package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"recflow/internal/config"
	"recflow/internal/deps"
	"recflow/internal/logging"
	"recflow/internal/services/llm"
	"recflow/internal/services/telegram"
)

const remoteCheckTimeout = 30 * time.Second

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckTelegram verifies the bot token with getMe.
func CheckTelegram(ctx context.Context, cfg *config.Config) Result {
	const name = "Telegram"
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return Result{Name: name, Detail: "bot token missing"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, remoteCheckTimeout)
	defer cancel()

	client := telegram.FromConfig(cfg, logging.NewNop())
	me, err := client.Me(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeRemoteError(err)}
	}
	detail := "@" + me.Username
	if cfg.Telegram.ChatID == "" {
		detail += " (chat learned from first message)"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable,
// and writable when requested.
func CheckDirectoryAccess(name, path string, writable bool) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	mode := uint32(unix.R_OK | unix.X_OK)
	label := "read ok"
	if writable {
		mode |= unix.W_OK
		label = "read/write ok"
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, label)}
}

// CheckFreeSpace reports the space available under path and fails below
// minBytes.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s free", formatBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s, need %s", detail, formatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the binaries the workflow shells out to. uvx is
// only required when transcription is enabled.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for preview clips and split delivery",
			VersionArg:  "-version",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for duration probing",
			VersionArg:  "-version",
		},
	}
	if cfg.AI.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "uvx",
			Command:     "uvx",
			Description: "Required for WhisperX-driven transcription",
			VersionArg:  "--version",
		})
	}
	return deps.CheckBinaries(ctx, requirements)
}

// summarizeRemoteError produces a human-readable summary for probe failures.
func summarizeRemoteError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
