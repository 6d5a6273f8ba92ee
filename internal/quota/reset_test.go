package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeLocker struct {
	mu     sync.Mutex
	holder string
}

func (l *fakeLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return false, "", nil
	}
	owner := uuid.NewString()
	l.holder = owner
	return true, owner, nil
}

func (l *fakeLocker) Release(ctx context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder == owner {
		l.holder = ""
	}
	return nil
}

type fakeResetter struct {
	mu    sync.Mutex
	calls int
}

func (r *fakeResetter) ResetDailyCounters(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 3, nil
}

func (r *fakeResetter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRunResetOnce_AcquiresRunsAndReleases(t *testing.T) {
	locker := &fakeLocker{}
	resetter := &fakeResetter{}

	runResetOnce(context.Background(), locker, resetter, nil)

	if resetter.callCount() != 1 {
		t.Fatalf("expected exactly one reset call, got %d", resetter.callCount())
	}
	locker.mu.Lock()
	held := locker.holder
	locker.mu.Unlock()
	if held != "" {
		t.Fatal("expected lock to be released after a successful reset")
	}
}

func TestRunResetOnce_SkipsWhenLockHeld(t *testing.T) {
	locker := &fakeLocker{holder: "someone-else"}
	resetter := &fakeResetter{}

	runResetOnce(context.Background(), locker, resetter, nil)

	if resetter.callCount() != 0 {
		t.Fatal("expected reset to be skipped when another process holds the lock")
	}
}

func TestRunResetOnce_ConcurrentProcessesOnlyOneWins(t *testing.T) {
	locker := &fakeLocker{}
	resetter := &fakeResetter{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runResetOnce(context.Background(), locker, resetter, nil)
		}()
	}
	wg.Wait()

	if resetter.callCount() != 1 {
		t.Fatalf("expected exactly one winner across concurrent attempts, got %d calls", resetter.callCount())
	}
}

func TestLockKeyForToday_IsDateScoped(t *testing.T) {
	key := lockKeyForToday()
	want := "worldbroker:daily-reset:" + time.Now().UTC().Format("2006-01-02")
	if key != want {
		t.Fatalf("expected key %q, got %q", want, key)
	}
}
