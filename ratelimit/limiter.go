// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool

	// Count is the number of requests seen in the current window, including
	// this one.
	Count int

	Limit   int
	ResetAt time.Time

	// RetryAfter is the number of whole seconds until the window resets. It
	// is only set when Allowed is false and is never less than one.
	RetryAfter int
}

// Remaining returns how many more requests fit in the current window.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}

// Limiter counts requests per client in fixed windows. Each client has one
// active window; the first request after it elapses starts a new one.
type Limiter struct {
	store         Store
	limit         int
	window        time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        hclog.Logger

	doneMu              sync.Mutex
	backgroundCtx       context.Context
	backgroundCtxCancel context.CancelFunc
	sweeperDone         chan struct{}
}

// NewLimiter creates a Limiter backed by store. Unless the sweep interval is
// zero, a background goroutine sweeps elapsed entries; call Done to stop it.
// Supported options:
//   - WithLimit
//   - WithWindow
//   - WithSweepInterval
//   - WithNow
//   - WithLogger
func NewLimiter(store Store, opt ...Option) (*Limiter, error) {
	const op = "ratelimit.NewLimiter"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, ErrNilParameter)
	}
	opts := getLimiterOpts(opt...)
	if opts.withLimit <= 0 {
		return nil, fmt.Errorf("%s: limit must be positive: %w", op, ErrInvalidParameter)
	}
	if opts.withWindow <= 0 {
		return nil, fmt.Errorf("%s: window must be positive: %w", op, ErrInvalidParameter)
	}
	if opts.withSweepInterval < 0 {
		return nil, fmt.Errorf("%s: sweep interval is negative: %w", op, ErrInvalidParameter)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Limiter{
		store:               store,
		limit:               opts.withLimit,
		window:              opts.withWindow,
		sweepInterval:       opts.withSweepInterval,
		now:                 opts.withNowFunc,
		logger:              opts.withLogger,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}
	if l.sweepInterval > 0 {
		l.sweeperDone = make(chan struct{})
		go l.sweepLoop()
	}
	return l, nil
}

// Check records a request from clientID and reports whether it is allowed.
// An empty clientID is counted against UnknownClient.
func (l *Limiter) Check(ctx context.Context, clientID string) (Decision, error) {
	const op = "Limiter.Check"
	if clientID == "" {
		clientID = UnknownClient
	}

	now := l.now()
	e, err := l.store.Incr(ctx, clientID, now, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: unable to count request: %w", op, err)
	}

	d := Decision{Allowed: true, Count: e.Count, Limit: l.limit, ResetAt: e.ResetAt}
	if e.Count > l.limit {
		d.Allowed = false
		d.RetryAfter = retryAfterSeconds(e.ResetAt.Sub(now))
	}
	return d, nil
}

// Sweep removes elapsed entries from the store now.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	const op = "Limiter.Sweep"
	n, err := l.store.Sweep(ctx, l.now())
	if err != nil {
		return n, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Done stops the background sweep. It must be called for every Limiter
// created and is safe to call more than once.
func (l *Limiter) Done() {
	if l == nil {
		return
	}
	l.doneMu.Lock()
	defer l.doneMu.Unlock()
	if l.backgroundCtxCancel == nil {
		return
	}
	l.backgroundCtxCancel()
	l.backgroundCtxCancel = nil
	if l.sweeperDone != nil {
		<-l.sweeperDone
	}
}

func (l *Limiter) sweepLoop() {
	defer close(l.sweeperDone)
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.backgroundCtx.Done():
			return
		case <-ticker.C:
			n, err := l.Sweep(l.backgroundCtx)
			if err != nil {
				l.logger.Warn("rate limit sweep failed", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Trace("swept rate limit entries", "count", n)
			}
		}
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
