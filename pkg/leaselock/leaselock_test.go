package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type keyRow struct {
	key string
	err error
}

func (r keyRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

// memLocks emulates the app_locks table without expiry.
type memLocks struct {
	mu     sync.Mutex
	holder map[string]string
}

func newMemLocks() *memLocks {
	return &memLocks{holder: make(map[string]string)}
}

func (m *memLocks) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if sql == releaseSQL && m.holder[key] == token {
		delete(m.holder, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (m *memLocks) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	held, ok := m.holder[key]
	switch sql {
	case tryAcquireSQL:
		if ok && held != token {
			return keyRow{err: pgx.ErrNoRows}
		}
		m.holder[key] = token
		return keyRow{key: key}
	case renewSQL:
		if held != token {
			return keyRow{err: pgx.ErrNoRows}
		}
		return keyRow{key: key}
	}
	return keyRow{err: errors.New("unexpected query")}
}

func TestMindMapKey(t *testing.T) {
	if got := MindMapKey(" course-42 "); got != "mindmap:course-42" {
		t.Fatalf("MindMapKey() = %q", got)
	}
}

func TestWithLeaseExclusive(t *testing.T) {
	db := newMemLocks()
	c := New(db)
	ctx := context.Background()

	err := c.WithLease(ctx, "k", Options{TokenPrefix: "a-"}, func(ctx context.Context) error {
		if _, err := c.Acquire(ctx, "k", Options{}); !errors.Is(err, ErrBusy) {
			t.Fatalf("second Acquire() error = %v, want ErrBusy", err)
		}
		if tok := db.holder["k"]; !strings.HasPrefix(tok, "a-") {
			t.Fatalf("holder token = %q, want prefix a-", tok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLease() error = %v", err)
	}
	if len(db.holder) != 0 {
		t.Fatalf("lock not released: %v", db.holder)
	}
}

func TestWithLeaseReturnsCallbackError(t *testing.T) {
	c := New(newMemLocks())
	boom := errors.New("boom")

	err := c.WithLease(context.Background(), "k", Options{}, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("WithLease() error = %v, want %v", err, boom)
	}
}

func TestAcquireWaitsForRelease(t *testing.T) {
	c := New(newMemLocks())
	ctx := context.Background()

	first, err := c.Acquire(ctx, "k", Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = first.Release(context.Background())
	}()

	second, err := c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("waiting Acquire() error = %v", err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if first.Context.Err() == nil {
		t.Fatalf("released lease context still live")
	}
}

func TestAcquireWaitHonoursContext(t *testing.T) {
	c := New(newMemLocks())
	held, err := c.Acquire(context.Background(), "k", Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer held.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want deadline exceeded", err)
	}
}

func TestAcquireEmptyKey(t *testing.T) {
	if _, err := New(newMemLocks()).Acquire(context.Background(), "", Options{}); err == nil {
		t.Fatalf("Acquire(\"\") succeeded")
	}
}

func TestOptionsDefaults(t *testing.T) {
	tests := []struct {
		name      string
		in        Options
		wantTTL   time.Duration
		wantRenew time.Duration
	}{
		{name: "zero", in: Options{}, wantTTL: 5 * time.Minute, wantRenew: 150 * time.Second},
		{name: "renew beyond ttl", in: Options{TTL: 10 * time.Second, RenewEvery: time.Minute}, wantTTL: 10 * time.Second, wantRenew: 5 * time.Second},
		{name: "tiny ttl", in: Options{TTL: time.Second}, wantTTL: time.Second, wantRenew: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			if got.TTL != tt.wantTTL || got.RenewEvery != tt.wantRenew {
				t.Fatalf("withDefaults() = ttl %v renew %v, want %v %v", got.TTL, got.RenewEvery, tt.wantTTL, tt.wantRenew)
			}
		})
	}
}
