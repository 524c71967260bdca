// Package leaselock hands out expiring per-session ownership leases stored
// in the session_leases table, so only one process hosts a session at a time.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/kiwi-live/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrHeld = errors.New("session is leased by another holder")
	ErrLost = errors.New("session lease lost")
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Client struct {
	db         dbConn
	holder     string
	ttl        time.Duration
	renewEvery time.Duration
	log        logger.ComponentLogger
}

type Option func(*Client)

// WithTTL sets how long a lease survives without renewal. Leases are renewed
// at half that interval.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates a lease client. holder names this process in the table; a
// random suffix keeps restarts of the same process apart.
func New(db dbConn, holder string, opts ...Option) (*Client, error) {
	suffix, err := gonanoid.New(8)
	if err != nil {
		return nil, err
	}
	if holder == "" {
		holder = "worker"
	}
	c := &Client{
		db:     db,
		holder: holder + "-" + suffix,
		ttl:    30 * time.Second,
		log:    logger.Component("Leases"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.renewEvery = max(c.ttl/2, time.Second)
	return c, nil
}

func (c *Client) Holder() string {
	return c.holder
}

type Lease struct {
	SessionID string

	client *Client
	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
	stopCh chan struct{}
}

// Acquire claims sessionID, taking over expired leases and leases this
// holder already owns. It does not wait: a live lease of another holder
// yields ErrHeld.
func (c *Client) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	if sessionID == "" {
		return nil, errors.New("lease session id is empty")
	}

	var got string
	err := c.db.QueryRow(ctx, tryAcquireSQL, sessionID, c.holder, c.ttl.Milliseconds()).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrHeld
	}
	if err != nil {
		return nil, err
	}

	// The lease outlives the acquiring request.
	leaseCtx, cancel := context.WithCancelCause(context.Background())
	l := &Lease{
		SessionID: sessionID,
		client:    c,
		ctx:       leaseCtx,
		cancel:    cancel,
		stopCh:    make(chan struct{}),
	}
	go l.renewLoop()
	return l, nil
}

// Done is closed once the lease is released or lost.
func (l *Lease) Done() <-chan struct{} {
	return l.ctx.Done()
}

// Err returns ErrLost after a failed renewal, context.Canceled after
// Release and nil while the lease is held.
func (l *Lease) Err() error {
	if l.ctx.Err() == nil {
		return nil
	}
	return context.Cause(l.ctx)
}

func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		close(l.stopCh)
		l.cancel(context.Canceled)
	})
	_, err := l.client.db.Exec(ctx, releaseSQL, l.SessionID, l.client.holder)
	return err
}

func (l *Lease) renewLoop() {
	t := time.NewTicker(l.client.renewEvery)
	defer t.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-t.C:
			if err := l.renew(); err != nil {
				l.client.log.Warn("lease lost", "session", l.SessionID, "err", err)
				l.cancel(ErrLost)
				return
			}
		}
	}
}

func (l *Lease) renew() error {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			if err := sleepWithJitter(l.ctx, 200*time.Millisecond, 100*time.Millisecond); err != nil {
				return err
			}
		}
		ctx, cancel := context.WithTimeout(l.ctx, 5*time.Second)
		var got string
		err := l.client.db.QueryRow(ctx, renewSQL, l.SessionID, l.client.holder, l.client.ttl.Milliseconds()).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		lastErr = err
	}
	return lastErr
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const tryAcquireSQL = `
INSERT INTO session_leases (session_id, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (session_id) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE session_leases.expires_at < now()
   OR session_leases.holder = EXCLUDED.holder
RETURNING session_id;
`

const renewSQL = `
UPDATE session_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE session_id = $1 AND holder = $2
RETURNING session_id;
`

const releaseSQL = `
DELETE FROM session_leases
WHERE session_id = $1 AND holder = $2;
`
