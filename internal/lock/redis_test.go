package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{Address: mr.Addr()})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	l := NewRedisLocker(client, ttl)
	l.poll = 2 * time.Millisecond
	return l, mr
}

func TestRedisLockerMutualExclusion(t *testing.T) {
	l, _ := newTestLocker(t, 5*time.Second)
	var inside, maxInside, total int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				unlock, err := l.Lock(context.Background(), "attempt:att-1")
				if err != nil {
					t.Errorf("lock: %v", err)
					return
				}
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&total, 1)
				atomic.AddInt32(&inside, -1)
				unlock()
			}
		}()
	}
	wg.Wait()
	if maxInside != 1 || total != 40 {
		t.Fatalf("max holders = %d, sections = %d", maxInside, total)
	}
}

func TestRedisLockerKeysAreIndependent(t *testing.T) {
	l, _ := newTestLocker(t, 5*time.Second)
	u1, err := l.Lock(context.Background(), "attempt:a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer u1()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	u2, err := l.Lock(ctx, "attempt:b")
	if err != nil {
		t.Fatalf("lock b while a is held: %v", err)
	}
	u2()
}

func TestRedisLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	l, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	staleUnlock, err := l.Lock(ctx, "attempt:att-1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	mr.FastForward(2 * time.Second) // first holder's lease runs out

	freshUnlock, err := l.Lock(ctx, "attempt:att-1")
	if err != nil {
		t.Fatalf("lock after expiry: %v", err)
	}
	staleUnlock()
	if !mr.Exists("assess:lock:attempt:att-1") {
		t.Fatalf("stale release removed the new holder's lock")
	}

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(short, "attempt:att-1"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("third lock err = %v, want ErrNotAcquired", err)
	}

	freshUnlock()
	if mr.Exists("assess:lock:attempt:att-1") {
		t.Fatalf("release left the key behind")
	}
}

func TestRedisLockerContextCancel(t *testing.T) {
	l, _ := newTestLocker(t, 5*time.Second)
	unlock, err := l.Lock(context.Background(), "begin:quiz:ana")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Lock(ctx, "begin:quiz:ana")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrNotAcquired) {
			t.Fatalf("err = %v, want ErrNotAcquired", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Lock ignored cancellation")
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if _, err := l.Lock(cancelled, "begin:quiz:ana"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("pre-cancelled ctx err = %v, want ErrNotAcquired", err)
	}
}

func TestNewRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisClient(ctx, RedisConfig{Address: addr}); err == nil {
		t.Fatalf("expected connect error")
	}
}
