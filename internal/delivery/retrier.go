package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"recflow/internal/config"
	"recflow/internal/logging"
	"recflow/internal/media"
	"recflow/internal/messaging"
	"recflow/internal/services"
)

const (
	// budgetHeadroom is applied to the ideal segment length.
	budgetHeadroom = 0.98
	// absoluteMinSegment bounds shrinking after the first attempt.
	absoluteMinSegment = 10.0
)

// ErrExhausted is returned when no split fit the budget within MaxAttempts.
var ErrExhausted = errors.New("delivery: split attempts exhausted")

// Settings configures a Retrier.
type Settings struct {
	TargetBytes       int64
	MinSegmentSeconds float64
	MaxAttempts       int
	ShrinkFactor      float64
	SizeTolerance     float64
	MIMEType          string
	WorkDir           string
}

// SettingsFromConfig maps the delivery section of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		TargetBytes:       cfg.TargetBytes(),
		MinSegmentSeconds: float64(cfg.Delivery.MinSegmentSeconds),
		MaxAttempts:       cfg.Delivery.MaxAttempts,
		ShrinkFactor:      cfg.Delivery.ShrinkFactor,
		SizeTolerance:     cfg.Delivery.SizeTolerance,
		MIMEType:          cfg.Delivery.SendAsDocumentMIME,
		WorkDir:           cfg.Paths.WorkDir,
	}
}

// Request describes one artifact to deliver in parts.
type Request struct {
	Destination     string
	Path            string
	Caption         string
	DurationSeconds float64
	SizeBytes       int64
}

// Result summarises a successful split delivery.
type Result struct {
	Parts          int
	Attempts       int
	SegmentSeconds float64
}

// Retrier splits and uploads oversized recordings.
type Retrier struct {
	tool     media.Tool
	gateway  messaging.Gateway
	settings Settings
	logger   *slog.Logger
}

// New builds a Retrier, filling unset tuning values with defaults.
func New(tool media.Tool, gateway messaging.Gateway, settings Settings, logger *slog.Logger) *Retrier {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 6
	}
	if settings.ShrinkFactor <= 0 || settings.ShrinkFactor >= 1 {
		settings.ShrinkFactor = 0.85
	}
	if settings.MinSegmentSeconds <= 0 {
		settings.MinSegmentSeconds = 90
	}
	if settings.WorkDir == "" {
		settings.WorkDir = os.TempDir()
	}
	return &Retrier{
		tool:     tool,
		gateway:  gateway,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "delivery"),
	}
}

// InitialSegmentSeconds estimates the part length that fills the budget:
// duration * target/size * 0.98, floored at minSegment and capped at the
// whole duration.
func InitialSegmentSeconds(duration float64, size, target int64, minSegment float64) float64 {
	if duration <= 0 {
		return minSegment
	}
	if size <= 0 || target <= 0 {
		return duration
	}
	ideal := duration * (float64(target) / float64(size)) * budgetHeadroom
	return math.Min(math.Max(ideal, minSegment), duration)
}

// Oversized reports whether size exceeds the budget by more than the
// tolerance.
func (r *Retrier) Oversized(size int64) bool {
	return float64(size) > float64(r.settings.TargetBytes)*(1+r.settings.SizeTolerance)
}

// Deliver splits req.Path and uploads every part. Attempts are bounded by
// MaxAttempts; each attempt uses its own scratch directory, removed when the
// attempt ends.
func (r *Retrier) Deliver(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	segment := InitialSegmentSeconds(req.DurationSeconds, req.SizeBytes, r.settings.TargetBytes, r.settings.MinSegmentSeconds)

	for attempt := 1; attempt <= r.settings.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		logger.Info("splitting recording",
			logging.String(logging.FieldEventType, "split_attempt"),
			logging.Int("attempt", attempt),
			logging.Float64("segment_seconds", segment),
		)
		parts, retry, err := r.attempt(ctx, req, segment)
		if err != nil {
			return Result{}, err
		}
		if !retry {
			return Result{Parts: parts, Attempts: attempt, SegmentSeconds: segment}, nil
		}
		segment = math.Max(segment*r.settings.ShrinkFactor, absoluteMinSegment)
	}
	return Result{}, fmt.Errorf("%w after %d attempts", ErrExhausted, r.settings.MaxAttempts)
}

// attempt runs one split+upload round. retry is true when the round should
// be repeated with shorter parts.
func (r *Retrier) attempt(ctx context.Context, req Request, segment float64) (parts int, retry bool, err error) {
	dir, err := os.MkdirTemp(r.settings.WorkDir, "split-*")
	if err != nil {
		return 0, false, fmt.Errorf("create split dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			r.logger.Debug("split dir not removed", logging.String("dir", dir), logging.Error(rmErr))
		}
	}()

	prefix := strings.TrimSuffix(filepath.Base(req.Path), filepath.Ext(req.Path)) + "_part"
	paths, err := r.tool.SplitIntoSegments(ctx, req.Path, dir, prefix, segment)
	if err != nil {
		return 0, false, err
	}
	if len(paths) == 0 {
		return 0, false, services.Wrap(services.ErrExternalTool, "delivery", "split", "no segments produced", nil)
	}

	largest, err := largestFile(paths)
	if err != nil {
		return 0, false, err
	}
	if r.Oversized(largest) {
		r.logger.Info("split parts over budget; shrinking",
			logging.String(logging.FieldEventType, "split_oversized"),
			logging.Int64("largest_bytes", largest),
			logging.Int64("target_bytes", r.settings.TargetBytes),
		)
		return 0, true, nil
	}

	start := time.Now()
	for i, path := range paths {
		caption := PartCaption(req.Caption, i+1, len(paths))
		if _, err := r.gateway.SendFile(ctx, req.Destination, path, caption, r.settings.MIMEType); err != nil {
			if errors.Is(err, messaging.ErrTooLarge) {
				r.logger.Info("part rejected as too large; shrinking",
					logging.String(logging.FieldEventType, "part_too_large"),
					logging.Int("part", i+1),
					logging.Int("parts", len(paths)),
				)
				return 0, true, nil
			}
			return 0, false, services.Wrap(services.ErrTransient, "delivery", "upload part", fmt.Sprintf("%d/%d", i+1, len(paths)), err)
		}
	}
	r.logger.Info("parts delivered",
		logging.String(logging.FieldEventType, "split_delivered"),
		logging.Int("parts", len(paths)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return len(paths), false, nil
}

// PartCaption prefixes caption with the running part index.
func PartCaption(caption string, index, total int) string {
	label := fmt.Sprintf("[%d/%d]", index, total)
	if caption = strings.TrimSpace(caption); caption == "" {
		return label
	}
	return label + " " + caption
}

func largestFile(paths []string) (int64, error) {
	var largest int64
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("stat segment: %w", err)
		}
		largest = max(largest, info.Size())
	}
	return largest, nil
}
