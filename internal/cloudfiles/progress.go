package cloudfiles

import (
	"sync"
	"time"
)

// ProgressFilter throttles progress callbacks.
//
// MaxCallbackFreq is the minimum interval between callbacks. While that
// interval has not elapsed, a callback still fires once
// MaxBytesTxDeltaFreq bytes have moved since the previous one. Outside the
// interval a callback fires once MinBytesTxDeltaFreq bytes have moved.
// Without a time filter MaxBytesTxDeltaFreq acts as a byte threshold too,
// and the larger of the two thresholds applies. Zero disables a setting.
type ProgressFilter struct {
	MaxCallbackFreq     time.Duration
	MaxBytesTxDeltaFreq int64
	MinBytesTxDeltaFreq int64
}

// ProgressEvent is the snapshot handed to a progress callback.
type ProgressEvent struct {
	Size        int64 // 0 when the total is unknown
	Transferred int64
	Complete    bool
}

// Remaining returns the bytes still to move, or 0 when the size is unknown.
func (e ProgressEvent) Remaining() int64 {
	if e.Size <= e.Transferred {
		return 0
	}

	return e.Size - e.Transferred
}

// ProgressFunc receives filtered progress events. Callbacks run on their own
// goroutine and never overlap for a single transfer.
type ProgressFunc func(ProgressEvent)

// Progress tracks one transfer and decides which chunk updates reach the
// callback. The completion event is always delivered exactly once, even if
// the transfer finishes while an earlier callback is still running.
type Progress struct {
	filter   ProgressFilter
	callback ProgressFunc

	// now and dispatch are replaced in tests.
	now      func() time.Time
	dispatch func(func())

	mu             sync.Mutex
	size           int64
	transferred    int64
	prevPos        int64
	lastCallback   time.Time
	complete       bool
	pending        bool
	completionSent bool
}

// NewProgress returns a tracker for a transfer of size bytes. Pass 0 when
// the size is not known up front; the transfer then completes at EOF.
func NewProgress(size int64, filter ProgressFilter, callback ProgressFunc) *Progress {
	return &Progress{
		filter:   filter,
		callback: callback,
		size:     size,
		now:      time.Now,
		dispatch: func(f func()) { go f() },
	}
}

// Add records n more bytes transferred.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	p.transferred += int64(n)

	if p.size > 0 && p.transferred >= p.size {
		p.complete = true
	}

	p.maybeFireLocked()
}

// Finish marks the transfer complete regardless of the declared size.
func (p *Progress) Finish() {
	p.mu.Lock()

	if !p.complete {
		p.complete = true
		if p.size < p.transferred || p.size == 0 {
			p.size = p.transferred
		}
	}

	p.maybeFireLocked()
}

// Snapshot returns the current state without firing a callback.
func (p *Progress) Snapshot() ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.eventLocked()
}

func (p *Progress) setSize(n int64) {
	p.mu.Lock()
	if p.size == 0 {
		p.size = n
	}
	p.mu.Unlock()
}

// maybeFireLocked must be called with mu held and releases it.
func (p *Progress) maybeFireLocked() {
	if !p.shouldTriggerLocked() || p.callback == nil {
		p.mu.Unlock()
		return
	}

	ev := p.beginLocked()
	p.mu.Unlock()

	p.dispatch(func() { p.run(ev) })
}

func (p *Progress) shouldTriggerLocked() bool {
	if p.pending || p.completionSent {
		return false
	}

	if p.complete {
		return true
	}

	delta := p.transferred - p.prevPos
	if delta <= 0 {
		return false
	}

	f := p.filter
	if f.MaxCallbackFreq > 0 && p.now().Before(p.lastCallback.Add(f.MaxCallbackFreq)) {
		return f.MaxBytesTxDeltaFreq > 0 && delta >= f.MaxBytesTxDeltaFreq
	}

	threshold := f.MinBytesTxDeltaFreq
	if f.MaxCallbackFreq == 0 && f.MaxBytesTxDeltaFreq > threshold {
		threshold = f.MaxBytesTxDeltaFreq
	}

	return delta >= threshold
}

func (p *Progress) beginLocked() ProgressEvent {
	p.pending = true
	p.lastCallback = p.now()
	p.prevPos = p.transferred

	if p.complete {
		p.completionSent = true
	}

	return p.eventLocked()
}

func (p *Progress) eventLocked() ProgressEvent {
	return ProgressEvent{
		Size:        p.size,
		Transferred: p.transferred,
		Complete:    p.complete,
	}
}

// run delivers ev and then sends the completion event if the transfer
// finished while ev was in flight.
func (p *Progress) run(ev ProgressEvent) {
	p.callback(ev)

	p.mu.Lock()
	p.pending = false

	if !p.complete || p.completionSent {
		p.mu.Unlock()
		return
	}

	final := p.beginLocked()
	p.mu.Unlock()

	p.dispatch(func() { p.run(final) })
}

// watcherList fans raw chunk sizes out to the connection-wide progress
// watchers. Watchers see every chunk, unfiltered.
type watcherList struct {
	mu  sync.RWMutex
	fns []func(n int)
}

func (w *watcherList) add(fn func(n int)) {
	w.mu.Lock()
	w.fns = append(w.fns, fn)
	w.mu.Unlock()
}

func (w *watcherList) notify(n int) {
	if w == nil {
		return
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, fn := range w.fns {
		fn(n)
	}
}
