package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/lexandro/assetref-mcp/changelog"
)

// drainer is the part of the change-log processor the periodic sync needs.
type drainer interface {
	Drain(done func(changelog.DrainResult, error))
}

// runPeriodicSync drains the change log at the given interval until stop is
// closed. A tick that finds a drain still running is skipped.
func runPeriodicSync(interval time.Duration, processor drainer, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("periodic sync started", "interval", interval)

	for {
		select {
		case <-stop:
			logger.Info("periodic sync stopped")
			return
		case <-ticker.C:
			processor.Drain(func(result changelog.DrainResult, err error) {
				logDrain(logger, result, err)
			})
		}
	}
}

func logDrain(logger *slog.Logger, result changelog.DrainResult, err error) {
	switch {
	case errors.Is(err, changelog.ErrDrainInProgress):
		logger.Debug("sync skipped, drain in progress")
	case err != nil:
		logger.Warn("sync failed", "error", err)
	case result.Lines == 0:
		logger.Debug("sync complete, change log is empty")
	case result.Failed > 0:
		logger.Warn("sync complete with failures",
			"updated", result.Updated,
			"removed", result.Removed,
			"failed", result.Failed,
		)
	}
}
