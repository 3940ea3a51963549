package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskdeck/internal/store"
)

// TrialPeriod is the fixed length of the trial window. The window is
// inclusive: a request at exactly base + 30 days is still in trial.
const TrialPeriod = 30 * 24 * time.Hour

// TrialClock decides whether the installation is still inside its
// trial window. The window is anchored to a timestamp created lazily
// on first read and global to the installation, not per-user.
type TrialClock struct {
	store  *store.Store
	clock  Clock
	logger *slog.Logger
}

// NewTrialClock creates a trial clock backed by the given store
func NewTrialClock(st *store.Store, clock Clock, logger *slog.Logger) *TrialClock {
	return &TrialClock{
		store:  st,
		clock:  clock,
		logger: logger.With(slog.String("component", "trial_clock")),
	}
}

// BaseTime returns the trial anchor, creating it with the current time
// on first call. Concurrent first calls converge on a single stored
// value through the storage layer's insert-if-absent.
func (tc *TrialClock) BaseTime(ctx context.Context) (time.Time, error) {
	proposed := tc.clock.Now().UTC().Format(time.RFC3339)
	stored, err := tc.store.EnsureConfig(ctx, store.TrialBaseTimeKey, proposed)
	if err != nil {
		return time.Time{}, err
	}

	base, err := time.Parse(time.RFC3339, stored)
	if err != nil {
		return time.Time{}, fmt.Errorf("license: corrupt trial base time %q: %w", stored, err)
	}

	if stored == proposed {
		tc.logger.InfoContext(ctx, "trial window anchored",
			slog.String("base_time", stored))
	}
	return base, nil
}

// InTrialPeriod reports whether the current time is within the trial
// window, lazily anchoring it on first use.
func (tc *TrialClock) InTrialPeriod(ctx context.Context) (bool, error) {
	base, err := tc.BaseTime(ctx)
	if err != nil {
		return false, err
	}
	return !tc.clock.Now().After(base.Add(TrialPeriod)), nil
}

// RemainingDays returns the whole days left in the trial window
// anchored at base, rounded up and floored at zero. Pure function of
// its inputs.
func RemainingDays(base, now time.Time) int {
	remaining := base.Add(TrialPeriod).Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
