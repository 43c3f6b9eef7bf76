package cloudfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// authResult classifies one login exchange.
type authResult int

const (
	authOK authResult = iota
	authUnauthorized
	authRejected     // any other response, including a 2xx missing session headers
	authNetworkError // transient transport fault, eligible for one retry
	authFatal        // anything else; propagated without retry
)

func (r authResult) String() string {
	switch r {
	case authOK:
		return "ok"
	case authUnauthorized:
		return "unauthorized"
	case authRejected:
		return "rejected"
	case authNetworkError:
		return "network error"
	default:
		return "fatal"
	}
}

func (c *Connection) authRequest(timeout time.Duration) *Request {
	h := make(http.Header)
	h.Set(headerAuthUser, url.QueryEscape(c.creds.Username))
	h.Set(headerAuthKey, url.QueryEscape(c.creds.APIKey))

	return &Request{
		Method:  http.MethodGet,
		Target:  fixedTarget(c.creds.authTarget()),
		Header:  h,
		Timeout: timeout,
	}
}

// exchange performs a single login call and classifies the outcome. It
// never touches the stored session.
func (c *Connection) exchange(ctx context.Context, timeout time.Duration) (Session, authResult, error) {
	resp, err := c.dispatch.submit(ctx, c.authRequest(timeout), Endpoints{}, "", c.creds.Proxy)
	if err != nil {
		if isTransient(ctx, err) {
			return Session{}, authNetworkError, err
		}

		return Session{}, authFatal, err
	}

	transID := resp.Header.Get(headerTransID)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Session{}, authUnauthorized, &Error{
			StatusCode: resp.StatusCode,
			TransID:    transID,
			Err:        ErrUnauthorizedAccess,
		}
	case !isSuccess(resp.StatusCode):
		return Session{}, authRejected, &Error{
			StatusCode: resp.StatusCode,
			TransID:    transID,
			Message:    resp.Text(),
			Err:        ErrAuthenticationFailed,
		}
	}

	sess := Session{
		AuthToken:        resp.Header.Get(headerAuthToken),
		StorageURL:       resp.Header.Get(headerStorageURL),
		CDNManagementURL: resp.Header.Get(headerCDNManagementURL),
		AuthenticatedAt:  c.now(),
	}

	if sess.AuthToken == "" || sess.StorageURL == "" {
		return Session{}, authRejected, &Error{
			StatusCode: resp.StatusCode,
			TransID:    transID,
			Message:    "response is missing " + headerAuthToken + " or " + headerStorageURL,
			Err:        ErrAuthenticationFailed,
		}
	}

	if c.serviceNet {
		snet, err := serviceNetURL(sess.StorageURL)
		if err != nil {
			return Session{}, authFatal, err
		}

		sess.StorageURL = snet
	}

	return sess, authOK, nil
}

// authenticate is the synchronous login sequence. A first attempt that
// receives any non-success response, or fails with a transient network
// error, is retried exactly once. The retry's failure is final: 401 becomes
// ErrUnauthorizedAccess, other statuses ErrAuthenticationFailed, and network
// errors are returned as they are. The stored session changes only on
// success.
func (c *Connection) authenticate(ctx context.Context, isRetry bool) error {
	sess, result, err := c.exchange(ctx, 0)

	switch result {
	case authOK:
		c.session.Store(&sess)
		c.logger.Info("authenticated",
			slog.String("storage_url", sess.StorageURL),
			slog.Bool("cdn", sess.CDNManagementURL != ""),
			slog.Bool("retry", isRetry),
		)

		return nil
	case authFatal:
		return fmt.Errorf("cloudfiles: authenticating: %w", err)
	}

	if !isRetry {
		c.logger.Warn("authentication attempt failed, retrying once",
			slog.String("result", result.String()),
			slog.String("error", err.Error()),
		)

		return c.authenticate(ctx, true)
	}

	c.logger.Warn("authentication failed",
		slog.String("result", result.String()),
		slog.String("error", err.Error()),
	)

	if result == authNetworkError {
		return fmt.Errorf("cloudfiles: authenticating: %w", err)
	}

	return err
}

// isTransient reports whether err is a connectivity fault worth one more
// login attempt: refused or reset connections, timeouts, and connections
// dropped mid-exchange. A canceled caller context is never transient.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	// *url.Error satisfies net.Error itself, so look at what it wraps.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
