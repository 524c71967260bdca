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

type fakeRow struct {
	val string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.val
	return nil
}

// fakeDB keeps one holder per session and ignores expiry unless expired is
// set for the session.
type fakeDB struct {
	mu      sync.Mutex
	holders map[string]string
	expired map[string]bool
	renewFn func() error
	renews  int
}

func newFakeDB() *fakeDB {
	return &fakeDB{holders: map[string]string{}, expired: map[string]bool{}}
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, holder := args[0].(string), args[1].(string)

	switch {
	case strings.Contains(sql, "INSERT INTO session_leases"):
		cur, ok := f.holders[id]
		if ok && cur != holder && !f.expired[id] {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.holders[id] = holder
		delete(f.expired, id)
		return fakeRow{val: id}
	case strings.Contains(sql, "UPDATE session_leases"):
		f.renews++
		if f.renewFn != nil {
			if err := f.renewFn(); err != nil {
				return fakeRow{err: err}
			}
		}
		if f.holders[id] != holder {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{val: id}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, holder := args[0].(string), args[1].(string)
	if f.holders[id] == holder {
		delete(f.holders, id)
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func newClient(t *testing.T, db *fakeDB, name string) *Client {
	t.Helper()
	c, err := New(db, name, WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestAcquireRelease(t *testing.T) {
	db := newFakeDB()
	a := newClient(t, db, "worker-a")
	b := newClient(t, db, "worker-b")
	ctx := context.Background()

	lease, err := a.Acquire(ctx, "standup")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := b.Acquire(ctx, "standup"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire() error = %v, want ErrHeld", err)
	}
	if _, err := a.Acquire(ctx, "standup"); err != nil {
		t.Errorf("re-Acquire by the holder error = %v, want nil", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	select {
	case <-lease.Done():
	default:
		t.Fatal("Done() not closed after Release")
	}
	if !errors.Is(lease.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", lease.Err())
	}
	if _, err := b.Acquire(ctx, "standup"); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestAcquireTakesOverExpired(t *testing.T) {
	db := newFakeDB()
	a := newClient(t, db, "worker-a")
	b := newClient(t, db, "worker-b")
	ctx := context.Background()

	if _, err := a.Acquire(ctx, "retro"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	db.mu.Lock()
	db.expired["retro"] = true
	db.mu.Unlock()

	if _, err := b.Acquire(ctx, "retro"); err != nil {
		t.Fatalf("Acquire() of expired lease error = %v", err)
	}
	if _, err := a.Acquire(ctx, ""); err == nil {
		t.Error("Acquire() with empty id error = nil")
	}
}

func TestRenewLoss(t *testing.T) {
	db := newFakeDB()
	c := newClient(t, db, "worker-a")
	c.renewEvery = 10 * time.Millisecond

	lease, err := c.Acquire(context.Background(), "planning")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lease.Release(context.Background())

	db.mu.Lock()
	db.holders["planning"] = "someone-else"
	db.mu.Unlock()

	select {
	case <-lease.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("lease not lost after the row changed holder")
	}
	if !errors.Is(lease.Err(), ErrLost) {
		t.Errorf("Err() = %v, want ErrLost", lease.Err())
	}
}
