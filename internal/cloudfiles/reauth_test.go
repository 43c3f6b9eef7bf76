package cloudfiles

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 2 * time.Second

func TestReauth_SuccessClearsFlag(t *testing.T) {
	fs := newFakeService(t)
	c := newTestConnection(t, fs)

	c.reauth.trigger()

	require.Eventually(t, func() bool { return c.IsAuthenticated() }, eventually, time.Millisecond)
	require.Eventually(t, func() bool { return !c.reauth.pending.Load() }, eventually, time.Millisecond)
	assert.Equal(t, int32(1), fs.authCalls.Load())
	assert.False(t, c.reauth.armed())
}

func TestReauth_ConcurrentTriggersIssueOneExchange(t *testing.T) {
	fs := newFakeService(t)
	c := newTestConnection(t, fs)

	gate := make(chan struct{})
	fs.mu.Lock()
	fs.authGate = gate
	fs.mu.Unlock()

	const n = 10

	var (
		start sync.WaitGroup
		done  sync.WaitGroup
	)

	start.Add(1)

	for range n {
		done.Add(1)

		go func() {
			defer done.Done()
			start.Wait()
			c.reauth.trigger()
		}()
	}

	start.Done()
	done.Wait()

	require.Eventually(t, func() bool { return fs.authCalls.Load() == 1 }, eventually, time.Millisecond)
	assert.True(t, c.reauth.pending.Load(), "renewal still in flight")

	close(gate)

	require.Eventually(t, func() bool { return !c.reauth.pending.Load() }, eventually, time.Millisecond)
	assert.Equal(t, int32(1), fs.authCalls.Load())
	assert.True(t, c.IsAuthenticated())
}

func TestReauth_FirstFailureRetriesImmediately(t *testing.T) {
	fs := newFakeService(t)
	fs.setAuthStatuses(http.StatusInternalServerError, http.StatusNoContent)
	c := newTestConnection(t, fs)

	rec := &timerRecorder{}
	c.reauth.afterFunc = rec.afterFunc

	c.reauth.trigger()

	require.Eventually(t, func() bool { return c.IsAuthenticated() }, eventually, time.Millisecond)
	require.Eventually(t, func() bool { return !c.reauth.pending.Load() }, eventually, time.Millisecond)
	assert.Equal(t, int32(2), fs.authCalls.Load())
	assert.Equal(t, 0, rec.count(), "no timer after a successful retry")
}

func TestReauth_DoubleUnauthorizedArmsTimer(t *testing.T) {
	fs := newFakeService(t)
	fs.setAuthStatuses(http.StatusUnauthorized, http.StatusUnauthorized)
	c := newTestConnection(t, fs)

	rec := &timerRecorder{}
	c.reauth.afterFunc = rec.afterFunc

	c.reauth.trigger()

	require.Eventually(t, func() bool { return rec.count() == 1 }, eventually, time.Millisecond)
	assert.Equal(t, time.Minute, rec.last().d)
	assert.Equal(t, int32(2), fs.authCalls.Load())
	assert.False(t, c.reauth.pending.Load(), "flag released while waiting for the timer")
	assert.False(t, c.IsAuthenticated())

	// Nothing happens until the timer fires.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), fs.authCalls.Load())

	rec.last().f()

	require.Eventually(t, func() bool { return c.IsAuthenticated() }, eventually, time.Millisecond)
	require.Eventually(t, func() bool { return !c.reauth.pending.Load() }, eventually, time.Millisecond)
	assert.Equal(t, int32(3), fs.authCalls.Load(), "exactly one exchange after the timer fires")
	assert.Equal(t, 1, rec.count())
}

func TestReauth_OtherFailureAfterRetryArmsTimer(t *testing.T) {
	fs := newFakeService(t)
	fs.setAuthStatuses(http.StatusUnauthorized, http.StatusBadGateway)
	c := newTestConnection(t, fs)

	rec := &timerRecorder{}
	c.reauth.afterFunc = rec.afterFunc

	c.reauth.trigger()

	require.Eventually(t, func() bool { return rec.count() == 1 }, eventually, time.Millisecond)
	assert.False(t, c.reauth.pending.Load())
}

func TestReauth_TimerFiresAfterInterval(t *testing.T) {
	fs := newFakeService(t)
	fs.setAuthStatuses(http.StatusUnauthorized, http.StatusUnauthorized)
	c := newTestConnection(t, fs)
	c.reauth.interval = 30 * time.Millisecond

	c.reauth.trigger()

	require.Eventually(t, func() bool { return fs.authCalls.Load() == 3 }, eventually, time.Millisecond)
	require.Eventually(t, func() bool { return c.IsAuthenticated() }, eventually, time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), fs.authCalls.Load(), "timer is single-shot")
}

func TestReauth_RearmReplacesPendingFire(t *testing.T) {
	fs := newFakeService(t)
	c := newTestConnection(t, fs)

	rec := &timerRecorder{}
	c.reauth.afterFunc = rec.afterFunc

	c.reauth.arm()
	first := rec.last()
	c.reauth.arm()
	second := rec.last()

	assert.True(t, first.stopped.Load())
	assert.False(t, second.stopped.Load())

	first.f()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fs.authCalls.Load(), "replaced timer does nothing")

	second.f()
	require.Eventually(t, func() bool { return fs.authCalls.Load() == 1 }, eventually, time.Millisecond)
}

func TestReauth_TimerFireYieldsToPendingRenewal(t *testing.T) {
	fs := newFakeService(t)
	c := newTestConnection(t, fs)

	rec := &timerRecorder{}
	c.reauth.afterFunc = rec.afterFunc

	c.reauth.arm()
	c.reauth.pending.Store(true)

	rec.last().f()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fs.authCalls.Load())
}

func TestReauth_TriggerAfterCloseIsNoop(t *testing.T) {
	fs := newFakeService(t)
	c := newTestConnection(t, fs)

	require.NoError(t, c.Close())

	c.reauth.trigger()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fs.authCalls.Load())
	assert.False(t, c.reauth.pending.Load())
}
