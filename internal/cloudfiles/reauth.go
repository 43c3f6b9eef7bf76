package cloudfiles

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Renewal timing.
const (
	ReauthRetryInterval  = 1 * time.Minute
	ReauthAttemptTimeout = 3 * time.Minute
)

// timerHandle is the part of *time.Timer the coordinator needs.
type timerHandle interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timerHandle {
	return time.AfterFunc(d, f)
}

// reauthenticator renews the session in the background after a request is
// rejected with 401. The pending flag guarantees at most one renewal is in
// flight per connection; callers that lose the race return immediately.
//
// A failed attempt is retried once straight away. If the retry fails too,
// the flag is released and a one-shot timer schedules the next retry.
// Arming the timer again replaces any pending fire.
type reauthenticator struct {
	pending atomic.Bool

	exchange func(ctx context.Context, timeout time.Duration) (Session, authResult, error)
	store    func(*Session)
	logger   *slog.Logger

	interval  time.Duration
	timeout   time.Duration
	afterFunc func(time.Duration, func()) timerHandle

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	timer    timerHandle
	timerGen uint64
	closed   bool
	wg       sync.WaitGroup
}

func newReauthenticator(
	exchange func(context.Context, time.Duration) (Session, authResult, error),
	store func(*Session),
	logger *slog.Logger,
) *reauthenticator {
	ctx, cancel := context.WithCancel(context.Background())

	return &reauthenticator{
		exchange:  exchange,
		store:     store,
		logger:    logger,
		interval:  ReauthRetryInterval,
		timeout:   ReauthAttemptTimeout,
		afterFunc: realAfterFunc,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// trigger starts a renewal unless one is already pending. It never blocks
// on the network.
func (r *reauthenticator) trigger() {
	if !r.pending.CompareAndSwap(false, true) {
		r.logger.Debug("renewal already pending, skipping")
		return
	}

	r.spawn(false)
}

// spawn runs one attempt on a background goroutine. The caller owns the
// pending flag.
func (r *reauthenticator) spawn(isRetry bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.pending.Store(false)

		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		r.attempt(isRetry)
	}()
}

func (r *reauthenticator) attempt(isRetry bool) {
	sess, result, err := r.exchange(r.ctx, r.timeout)
	if result == authOK {
		r.store(&sess)
		r.stopTimer()
		r.pending.Store(false)
		r.logger.Info("session renewed", slog.Bool("retry", isRetry))

		return
	}

	if !isRetry {
		r.logger.Warn("session renewal failed, retrying",
			slog.String("result", result.String()),
			slog.String("error", err.Error()),
		)

		// The retry inherits the pending flag.
		r.spawn(true)

		return
	}

	r.pending.Store(false)
	r.logger.Warn("session renewal retry failed, scheduling another",
		slog.String("result", result.String()),
		slog.String("error", err.Error()),
		slog.Duration("interval", r.interval),
	)
	r.arm()
}

// arm schedules fire after the retry interval, replacing any earlier timer.
func (r *reauthenticator) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.timer != nil {
		r.timer.Stop()
	}

	r.timerGen++
	gen := r.timerGen
	r.timer = r.afterFunc(r.interval, func() { r.fire(gen) })
}

// fire is the timer callback. A fire from a replaced timer is ignored. It
// competes for the flag like any trigger so a renewal started in the
// meantime is not duplicated.
func (r *reauthenticator) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.timerGen || r.closed {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	if !r.pending.CompareAndSwap(false, true) {
		return
	}

	r.spawn(true)
}

func (r *reauthenticator) stopTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
		r.timerGen++
	}
}

// armed reports whether a retry timer is pending.
func (r *reauthenticator) armed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.timer != nil
}

// close stops the timer, cancels in-flight attempts and waits for them.
func (r *reauthenticator) close() {
	r.mu.Lock()
	r.closed = true

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
