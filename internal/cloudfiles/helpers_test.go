package cloudfiles

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testUser        = "jdoe"
	testKey         = "a86850deb2742ec3cb41518e26aa2d89"
	testAccountPath = "/v1/MossoCloudFS_test"
	testCDNPath     = "/cdn"
)

// fakeService is an in-process Cloud Files endpoint. The auth handler
// issues "token-<n>" on the n-th login; storage and CDN handlers are
// pluggable per test.
type fakeService struct {
	srv *httptest.Server

	authCalls    atomic.Int32
	storageCalls atomic.Int32

	mu           sync.Mutex
	authStatuses []int
	authGate     chan struct{}
	noCDN        bool
	storage      http.HandlerFunc
	cdn          http.HandlerFunc
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	fs := &fakeService{}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.route))
	t.Cleanup(fs.srv.Close)

	return fs
}

func (fs *fakeService) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, "/auth"):
		fs.handleAuth(w, r)
	case strings.HasPrefix(r.URL.Path, testAccountPath):
		fs.storageCalls.Add(1)

		fs.mu.Lock()
		h := fs.storage
		fs.mu.Unlock()

		if r.Header.Get(headerAuthToken) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if h == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h(w, r)
	case strings.HasPrefix(r.URL.Path, testCDNPath):
		fs.mu.Lock()
		h := fs.cdn
		fs.mu.Unlock()

		if h == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fs *fakeService) handleAuth(w http.ResponseWriter, r *http.Request) {
	n := fs.authCalls.Add(1)

	fs.mu.Lock()
	gate := fs.authGate
	noCDN := fs.noCDN
	status := http.StatusNoContent

	if int(n) <= len(fs.authStatuses) {
		status = fs.authStatuses[n-1]
	}
	fs.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if r.Header.Get(headerAuthUser) != testUser || r.Header.Get(headerAuthKey) != testKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if isSuccess(status) {
		w.Header().Set(headerAuthToken, "token-"+strconv.Itoa(int(n)))
		w.Header().Set(headerStorageURL, fs.srv.URL+testAccountPath)

		if !noCDN {
			w.Header().Set(headerCDNManagementURL, fs.srv.URL+testCDNPath)
		}
	}

	w.WriteHeader(status)
}

func (fs *fakeService) setAuthStatuses(statuses ...int) {
	fs.mu.Lock()
	fs.authStatuses = statuses
	fs.mu.Unlock()
}

func (fs *fakeService) setStorage(h http.HandlerFunc) {
	fs.mu.Lock()
	fs.storage = h
	fs.mu.Unlock()
}

func (fs *fakeService) setCDN(h http.HandlerFunc) {
	fs.mu.Lock()
	fs.cdn = h
	fs.mu.Unlock()
}

func (fs *fakeService) credentials() Credentials {
	return Credentials{
		Username: testUser,
		APIKey:   testKey,
		AuthURL:  fs.srv.URL + "/auth",
	}
}

// newTestConnection returns a connection to fs that is closed when the
// test ends.
func newTestConnection(t *testing.T, fs *fakeService) *Connection {
	t.Helper()

	return newTestConnectionWith(t, fs.credentials(), Options{})
}

func newTestConnectionWith(t *testing.T, creds Credentials, opts Options) *Connection {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c, err := NewConnection(creds, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeTimer records an armed retry and fires only when the test says so.
type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped atomic.Bool
}

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true)
}

// timerRecorder replaces time.AfterFunc in the renewal coordinator.
type timerRecorder struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (r *timerRecorder) afterFunc(d time.Duration, f func()) timerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	ft := &fakeTimer{d: d, f: f}
	r.timers = append(r.timers, ft)

	return ft
}

func (r *timerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.timers)
}

func (r *timerRecorder) last() *fakeTimer {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.timers) == 0 {
		return nil
	}

	return r.timers[len(r.timers)-1]
}
