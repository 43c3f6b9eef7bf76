package cloudfiles

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventLog collects progress events delivered synchronously.
type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) record(ev ProgressEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]ProgressEvent(nil), l.events...)
}

// syncProgress returns a tracker that runs callbacks inline.
func syncProgress(size int64, filter ProgressFilter, log *eventLog) *Progress {
	p := NewProgress(size, filter, log.record)
	p.dispatch = func(f func()) { f() }

	return p
}

func feed(p *Progress, total, chunk int) {
	for sent := 0; sent < total; sent += chunk {
		n := chunk
		if total-sent < n {
			n = total - sent
		}

		p.Add(n)
	}
}

func TestProgress_MinByteDelta(t *testing.T) {
	log := &eventLog{}
	p := syncProgress(5000, ProgressFilter{MinBytesTxDeltaFreq: 1000}, log)

	feed(p, 5000, 300)

	events := log.snapshot()
	require.NotEmpty(t, events)

	var prev int64

	completions := 0

	for _, ev := range events {
		if ev.Complete {
			completions++
			continue
		}

		assert.GreaterOrEqual(t, ev.Transferred-prev, int64(1000))
		prev = ev.Transferred
	}

	assert.Equal(t, 1, completions)
	assert.True(t, events[len(events)-1].Complete)
	assert.Equal(t, int64(5000), events[len(events)-1].Transferred)
	assert.Equal(t, []int64{1200, 2400, 3600, 4800, 5000}, transferred(events))
}

func TestProgress_MaxByteDeltaWithoutTimeFilter(t *testing.T) {
	log := &eventLog{}
	p := syncProgress(10000, ProgressFilter{MaxBytesTxDeltaFreq: 2000}, log)

	feed(p, 10000, 500)

	events := log.snapshot()
	assert.Equal(t, []int64{2000, 4000, 6000, 8000, 10000}, transferred(events))
	assert.True(t, events[len(events)-1].Complete)
	assert.Equal(t, int64(0), events[len(events)-1].Remaining())
}

func TestProgress_NoFilterFiresEveryChunk(t *testing.T) {
	log := &eventLog{}
	p := syncProgress(1000, ProgressFilter{}, log)

	feed(p, 1000, 250)

	assert.Equal(t, []int64{250, 500, 750, 1000}, transferred(log.snapshot()))
}

func TestProgress_TimeFilter(t *testing.T) {
	clock := newFakeClock()
	log := &eventLog{}
	p := syncProgress(10000, ProgressFilter{MaxCallbackFreq: time.Second, MaxBytesTxDeltaFreq: 3000}, log)
	p.now = clock.now

	p.Add(100) // first callback: no previous one to throttle against
	p.Add(100) // inside the interval, below the byte override
	p.Add(3000)
	clock.advance(2 * time.Second)
	p.Add(1)

	assert.Equal(t, []int64{100, 3200, 3201}, transferred(log.snapshot()))
}

func TestProgress_CompletionAlwaysFiresOnce(t *testing.T) {
	log := &eventLog{}
	p := syncProgress(100, ProgressFilter{MinBytesTxDeltaFreq: 1 << 20}, log)

	p.Add(100)
	p.Add(0)
	p.Finish()

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.True(t, events[0].Complete)
}

func TestProgress_FinishWithUnknownSize(t *testing.T) {
	log := &eventLog{}
	p := syncProgress(0, ProgressFilter{MinBytesTxDeltaFreq: 1 << 20}, log)

	p.Add(700)
	p.Finish()

	events := log.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, ProgressEvent{Size: 700, Transferred: 700, Complete: true}, events[0])
}

func TestProgress_CompletionWhileCallbackPending(t *testing.T) {
	log := &eventLog{}

	var pendingRun func()

	p := NewProgress(200, ProgressFilter{}, log.record)
	p.dispatch = func(f func()) {
		if pendingRun == nil {
			pendingRun = f
			return
		}

		f()
	}

	p.Add(100) // callback dispatched but held
	p.Add(100) // completes while the first callback is pending
	assert.Empty(t, log.snapshot())

	pendingRun()

	events := log.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, int64(100), events[0].Transferred)
	assert.False(t, events[0].Complete)
	assert.True(t, events[1].Complete)
	assert.Equal(t, int64(200), events[1].Transferred)
}

func TestProgress_AsyncDispatch(t *testing.T) {
	log := &eventLog{}
	p := NewProgress(4096, ProgressFilter{}, log.record)

	feed(p, 4096, 1024)

	require.Eventually(t, func() bool {
		events := log.snapshot()
		return len(events) > 0 && events[len(events)-1].Complete
	}, eventually, time.Millisecond)

	completions := 0

	for _, ev := range log.snapshot() {
		if ev.Complete {
			completions++
		}
	}

	assert.Equal(t, 1, completions)
}

func transferred(events []ProgressEvent) []int64 {
	out := make([]int64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Transferred)
	}

	return out
}
