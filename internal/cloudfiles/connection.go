package cloudfiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultUserAgent         = "cloudfiles-go/0.1"
	defaultDeleteConcurrency = 4

	// sharedLoginTimeout bounds a login started on behalf of every waiting
	// caller, both attempts included.
	sharedLoginTimeout = 2 * ReauthAttemptTimeout
)

// Options configure a Connection. The zero value is usable.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string

	// ServiceNet rewrites the storage endpoint to the provider's internal
	// network after every login.
	ServiceNet bool

	// Progress holds the default filter for per-call progress trackers.
	Progress ProgressFilter

	// DeleteConcurrency bounds parallel deletes when emptying a container.
	DeleteConcurrency int
}

// Connection is a session-aware client for one Cloud Files account. It is
// safe for concurrent use. Every operation authenticates first when the
// session is missing or expired; a 401 mid-session schedules a background
// renewal and fails the current call.
type Connection struct {
	creds    Credentials
	dispatch *dispatcher
	logger   *slog.Logger

	session   atomic.Pointer[Session]
	authGroup singleflight.Group
	reauth    *reauthenticator

	// rejected holds the last token the service answered with 401.
	rejected atomic.Pointer[string]

	serviceNet        bool
	progressFilter    ProgressFilter
	deleteConcurrency int
	watchers          *watcherList
	listeners         *completionListeners
	closed            atomic.Bool

	// now is replaced in tests.
	now func() time.Time
}

// NewConnection validates creds and returns an unauthenticated connection.
// No network call is made until the first operation.
func NewConnection(creds Credentials, opts Options) (*Connection, error) {
	creds.applyDefaults()
	if err := creds.validate(); err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	if opts.DeleteConcurrency <= 0 {
		opts.DeleteConcurrency = defaultDeleteConcurrency
	}

	watchers := &watcherList{}

	c := &Connection{
		creds:             creds,
		dispatch:          newDispatcher(opts.HTTPClient, opts.UserAgent, opts.Logger, watchers),
		logger:            opts.Logger,
		serviceNet:        opts.ServiceNet,
		progressFilter:    opts.Progress,
		deleteConcurrency: opts.DeleteConcurrency,
		watchers:          watchers,
		listeners:         &completionListeners{},
		now:               time.Now,
	}

	c.reauth = newReauthenticator(c.exchange, c.session.Store, opts.Logger)

	return c, nil
}

// Authenticate runs the login sequence now, replacing any current session.
func (c *Connection) Authenticate(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	return c.authenticate(ctx, false)
}

// IsAuthenticated reports whether the current session is still valid.
func (c *Connection) IsAuthenticated() bool {
	s := c.session.Load()
	return s != nil && s.IsValid(c.now())
}

// Session returns the current session, if any.
func (c *Connection) Session() (Session, bool) {
	s := c.session.Load()
	if s == nil {
		return Session{}, false
	}

	return *s, true
}

// Restore installs a previously persisted session. Expired sessions are
// refused so the next operation logs in again.
func (c *Connection) Restore(s Session) error {
	if !s.IsValid(c.now()) {
		return fmt.Errorf("%w: session expired or incomplete", ErrInvalidArgument)
	}

	c.session.Store(&s)

	return nil
}

// TokenRejected reports whether a request sent with token was refused
// with 401 on this connection. Callers that persist sessions use it to
// avoid caching a token the service no longer accepts.
func (c *Connection) TokenRejected(token string) bool {
	r := c.rejected.Load()
	return r != nil && token != "" && *r == token
}

// HasCDN reports whether the current session includes a CDN management
// endpoint.
func (c *Connection) HasCDN() bool {
	s := c.session.Load()
	return s != nil && s.CDNManagementURL != ""
}

// AddProgressWatcher registers fn to receive the size of every chunk read
// or written by any transfer on this connection.
func (c *Connection) AddProgressWatcher(fn func(n int)) {
	c.watchers.add(fn)
}

// Close stops background renewal. Operations after Close fail with
// ErrClosed.
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.reauth.close()

	return nil
}

// ensureAuthenticated returns a valid session, logging in synchronously
// when there is none. Concurrent callers share one login exchange. The
// shared login is detached from any single caller's cancellation and
// bounded by sharedLoginTimeout; each caller stops waiting when its own
// ctx is done.
func (c *Connection) ensureAuthenticated(ctx context.Context) (Session, error) {
	if s := c.session.Load(); s != nil && s.IsValid(c.now()) {
		return *s, nil
	}

	loginCtx := context.WithoutCancel(ctx)

	ch := c.authGroup.DoChan("authenticate", func() (any, error) {
		if s := c.session.Load(); s != nil && s.IsValid(c.now()) {
			return nil, nil
		}

		authCtx, cancel := context.WithTimeout(loginCtx, sharedLoginTimeout)
		defer cancel()

		return nil, c.authenticate(authCtx, false)
	})

	var err error

	select {
	case res := <-ch:
		err = res.Err
	case <-ctx.Done():
		return Session{}, fmt.Errorf("cloudfiles: authenticating: %w", ctx.Err())
	}

	if err != nil {
		return Session{}, err
	}

	s := c.session.Load()
	if s == nil {
		return Session{}, ErrAuthenticationFailed
	}

	return *s, nil
}

// Do authenticates if needed, sends req and classifies failures. Any
// status outside 200-206 is returned as an *Error.
func (c *Connection) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	sess, err := c.ensureAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.dispatch.submit(ctx, req, sess.endpoints(), sess.AuthToken, c.creds.Proxy)
	if err != nil {
		if errors.Is(err, ErrCDNUnavailable) || errors.Is(err, ErrInvalidArgument) {
			return nil, err
		}

		return nil, fmt.Errorf("cloudfiles: %s: %w", req.Method, err)
	}

	if isSuccess(resp.StatusCode) {
		return resp, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.rejected.Store(&sess.AuthToken)
	}

	return nil, c.classify(resp, req.scope)
}

// classify turns a failed response into exactly one error. A 401 also
// schedules a background renewal so the next call gets a fresh token.
func (c *Connection) classify(resp *Response, s scope) error {
	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("token rejected, scheduling renewal",
			slog.String("trans_id", resp.Header.Get(headerTransID)),
		)
		c.reauth.trigger()
	}

	return &Error{
		StatusCode: resp.StatusCode,
		TransID:    resp.Header.Get(headerTransID),
		Message:    strings.TrimSpace(resp.Text()),
		Err:        classifyStatus(resp.StatusCode, s),
	}
}

// newProgress builds a per-call tracker with the connection's filter, or
// returns nil when fn is nil.
func (c *Connection) newProgress(size int64, fn ProgressFunc) *Progress {
	if fn == nil {
		return nil
	}

	return NewProgress(size, c.progressFilter, fn)
}
