package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tmc-schedule/internal/config"
	"tmc-schedule/internal/logging"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "tmc-schedule:import", time.Minute), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	t.Parallel()
	l, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "run-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got, _ := mr.Get("tmc-schedule:import"); got != "run-a" {
		t.Fatalf("holder = %q", got)
	}

	if _, err := l.Acquire(ctx, "run-b"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("tmc-schedule:import") {
		t.Fatalf("lock key should be removed")
	}

	release, err = l.Acquire(ctx, "run-b")
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	_ = release(ctx)
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	t.Parallel()
	l, mr := newTestLocker(t)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "run-a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// 锁过期后被其他运行取得
	mr.FastForward(2 * time.Minute)
	if _, err := l.Acquire(ctx, "run-b"); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, _ := mr.Get("tmc-schedule:import"); got != "run-b" {
		t.Fatalf("stale release removed foreign lock, holder = %q", got)
	}
}

func TestNew_WithoutAddrFallsBackToNop(t *testing.T) {
	t.Parallel()

	l, closeFn := New(context.Background(), config.RedisConfig{}, logging.Discard())
	defer closeFn()
	if _, ok := l.(NopLocker); !ok {
		t.Fatalf("expected NopLocker, got %T", l)
	}
}

func TestNew_WithMiniredis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	l, closeFn := New(context.Background(), config.RedisConfig{
		Addr:    mr.Addr(),
		LockKey: "k",
		LockTTL: config.Duration(time.Minute),
	}, logging.Discard())
	defer closeFn()

	release, err := l.Acquire(context.Background(), "owner")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !mr.Exists("k") {
		t.Fatalf("lock key missing")
	}
	_ = release(context.Background())
}
