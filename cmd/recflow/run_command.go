package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"recflow/internal/ai"
	"recflow/internal/config"
	"recflow/internal/history"
	"recflow/internal/logging"
	"recflow/internal/media"
	"recflow/internal/notifications"
	"recflow/internal/preflight"
	"recflow/internal/services/telegram"
	"recflow/internal/state"
	"recflow/internal/watcher"
	"recflow/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the workflow in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowProcess(cmd.Context(), ctx)
		},
	}
}

func runWorkflowProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rotated, rotateErr := logging.RotateIfLarge(cfg.Paths.LogDir, int64(cfg.Logging.MaxFileMB)*1024*1024)
	if rotateErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to rotate log file: %v\n", rotateErr)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if rotated != "" {
		logger.Info("log file rotated", logging.String("rotated_to", rotated))
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, time.Duration(cfg.Logging.RetentionDays)*24*time.Hour)

	store, err := state.Open(cfg.Paths.StateFile, logger)
	if err != nil {
		if errors.Is(err, state.ErrLocked) {
			return fmt.Errorf("%w (state file %s)", err, cfg.Paths.StateFile)
		}
		logger.Error("open state store", logging.Error(err))
		return err
	}
	defer store.Close()

	logPreflight(signalCtx, cfg, logger)

	deps := workflow.Deps{
		Store:    store,
		Gateway:  telegram.FromConfig(cfg, logger),
		Media:    media.NewFFmpeg(cfg.FFmpegBinary(), cfg.FFprobeBinary()),
		AI:       ai.FromConfig(cfg, logger),
		Notifier: notifications.NewService(cfg),
	}
	if journal := openJournal(cfg, logger); journal != nil {
		defer journal.Close()
		deps.Journal = journal
	}
	if cfg.Discovery.Watch {
		w, err := watcher.New(cfg.Paths.SourceDir, logger)
		if err != nil {
			logging.WarnWithContext(logger, "directory watch unavailable; relying on periodic scans", "watch_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "new recordings are noticed on the scan interval only"),
				logging.String(logging.FieldErrorHint, "check inotify limits (fs.inotify.max_user_watches)"),
			)
		} else {
			defer w.Close()
			go w.Run(signalCtx)
			deps.Changes = w
		}
	}

	mgr, err := workflow.NewManager(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}

	runErr := mgr.Run(signalCtx)
	summary := mgr.Status()
	logger.Info("recflow shutting down",
		logging.String(logging.FieldEventType, "shutdown"),
		logging.Int64("ticks", summary.Ticks),
		logging.Int("completed", summary.Completed),
		logging.Bool("pending", summary.Pending != nil),
	)
	return runErr
}

// openJournal opens the history database. The journal is an audit trail
// only, so a failure is logged and the workflow runs without it.
func openJournal(cfg *config.Config, logger *slog.Logger) *history.Store {
	if cfg.Paths.HistoryDB == "" {
		return nil
	}
	journal, err := history.Open(cfg.Paths.HistoryDB)
	if err != nil {
		logging.WarnWithContext(logger, "history journal unavailable", "history_unavailable",
			logging.Error(err),
			logging.String("path", cfg.Paths.HistoryDB),
			logging.String(logging.FieldImpact, "`recflow history` will not show this run"),
			logging.String(logging.FieldErrorHint, "check permissions of paths.history_db"),
		)
		return nil
	}
	return journal
}

func logPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, preflight.Options{})) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "related workflow steps will fail and be retried"),
			logging.String(logging.FieldErrorHint, "run `recflow doctor` for details"),
		)
	}
}
