package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/worldbroker/internal/telemetry"
)

const lockTTL = 5 * time.Minute

// Resetter is the storage-side operation the reset job drives. Satisfied by
// *store.SQLiteStore.
type Resetter interface {
	ResetDailyCounters(ctx context.Context) (usersReset int64, err error)
}

// StartResetJob runs a background ticker loop that, once at start and then
// on every tick, races to acquire today's distributed lock and, if it wins,
// performs the reset and releases the lock. The lock keeps two instances
// from resetting at the same time. Completion is not recorded, so a later
// tick on the same day (on this or another instance) acquires the lock and
// runs the reset again; ResetDailyCounters then only touches keys not yet
// rolled over today.
func StartResetJob(ctx context.Context, locker Locker, resetter Resetter, sink telemetry.Sink) {
	const checkInterval = 10 * time.Minute
	ticker := time.NewTicker(checkInterval)
	go func() {
		defer ticker.Stop()
		runResetOnce(ctx, locker, resetter, sink)
		for {
			select {
			case <-ticker.C:
				runResetOnce(ctx, locker, resetter, sink)
			case <-ctx.Done():
				if sink != nil {
					sink.Info("quota reset job shutting down", "reason", ctx.Err())
				}
				return
			}
		}
	}()
}

func runResetOnce(ctx context.Context, locker Locker, resetter Resetter, sink telemetry.Sink) {
	key := lockKeyForToday()
	acquired, owner, err := locker.TryAcquire(ctx, key, lockTTL)
	if err != nil {
		if sink != nil {
			sink.Warn("quota reset lock acquisition failed", "error", err)
		}
		return
	}
	if !acquired {
		return // another process is running today's reset right now
	}
	defer func() {
		if err := locker.Release(ctx, key, owner); err != nil && sink != nil {
			sink.Debug("quota reset lock release failed", "error", err)
		}
	}()

	count, err := resetter.ResetDailyCounters(ctx)
	if err != nil {
		if sink != nil {
			sink.Error("daily quota counter reset failed", "error", err)
		}
		return
	}
	if sink != nil {
		sink.Info("daily quota counters reset", "count", count)
	}
}

func lockKeyForToday() string {
	return fmt.Sprintf("worldbroker:daily-reset:%s", time.Now().UTC().Format("2006-01-02"))
}
