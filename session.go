package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
	"github.com/tonimelisma/cloudfiles-go/internal/config"
	"github.com/tonimelisma/cloudfiles-go/internal/tokenfile"
)

// errUsage marks errors caused by how the command was invoked.
var errUsage = errors.New("usage error")

// errNoAPIKey is returned when no API key is configured and none can be
// prompted for.
var errNoAPIKey = fmt.Errorf("no API key: set %s or run interactively", config.EnvAPIKey)

// newHTTPClient builds the transport for one CLI invocation. The connect
// timeout applies to dialing only; the request timeout bounds a whole
// exchange and is disabled when zero.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
	}
}

// resolveAPIKey returns the configured API key, prompting on a terminal
// when none is set.
func resolveAPIKey(cc *CLIContext) (string, error) {
	if cc.Cfg.APIKey != "" {
		return cc.Cfg.APIKey, nil
	}

	f, ok := cc.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errNoAPIKey
	}

	fmt.Fprintf(cc.Stderr, "API key for %s: ", cc.Cfg.Auth.Username)

	key, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cc.Stderr)

	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}

	return strings.TrimSpace(string(key)), nil
}

// newConnection builds an unauthenticated connection from the resolved
// configuration.
func newConnection(cc *CLIContext) (*cloudfiles.Connection, error) {
	if cc.Cfg.Auth.Username == "" {
		return nil, fmt.Errorf("%w: no username configured (set %s, --username, or auth.username)",
			errUsage, config.EnvUsername)
	}

	key, err := resolveAPIKey(cc)
	if err != nil {
		return nil, err
	}

	creds := cc.Cfg.Credentials()
	creds.APIKey = key

	return cloudfiles.NewConnection(creds, cloudfiles.Options{
		HTTPClient:        newHTTPClient(cc.Cfg),
		Logger:            cc.Logger,
		UserAgent:         cc.Cfg.Network.UserAgent,
		ServiceNet:        cc.Cfg.Network.ServiceNet,
		Progress:          cc.Cfg.Progress,
		DeleteConcurrency: cc.Cfg.Transfers.ParallelDeletes,
	})
}

// withConnection runs fn against a connection primed from the session
// cache. A session renewed during fn is written back so the next command
// skips the login exchange, unless the service has already refused it.
func withConnection(ctx context.Context, cc *CLIContext, fn func(*cloudfiles.Connection) error) error {
	conn, err := newConnection(cc)
	if err != nil {
		return err
	}
	defer conn.Close()

	username := cc.Cfg.Auth.Username
	tokenPath := cc.Cfg.TokenPath

	cached, ok, err := tokenfile.LoadSession(tokenPath, username, time.Now())
	if err != nil {
		// A corrupt cache only costs a login round trip.
		cc.Logger.Warn("ignoring unreadable session cache",
			"path", tokenPath, "error", err)
	}

	if ok {
		if rerr := conn.Restore(cached); rerr != nil {
			cc.Logger.Debug("cached session not restored", "error", rerr)
		} else {
			cc.Logger.Debug("using cached session", "path", tokenPath,
				"expires", cached.Expiry())
		}
	}

	fnErr := fn(conn)

	sess, live := conn.Session()

	switch {
	case live && sess.AuthToken != cached.AuthToken && !conn.TokenRejected(sess.AuthToken):
		if serr := tokenfile.SaveSession(tokenPath, username, sess); serr != nil {
			cc.Logger.Warn("failed to cache session", "path", tokenPath, "error", serr)
		} else {
			cc.Logger.Debug("session cached", "path", tokenPath)
		}
	case ok && isTokenRejected(fnErr):
		// The service revoked the cached token and renewal did not land
		// before we finished. Drop it so the next run logs in afresh.
		if rerr := tokenfile.Remove(tokenPath); rerr != nil {
			cc.Logger.Warn("failed to discard rejected session", "path", tokenPath, "error", rerr)
		}

		return fmt.Errorf("cached session was rejected, run the command again: %w", fnErr)
	}

	return fnErr
}

// isTokenRejected reports whether err is the service refusing the session
// token on a storage or CDN call.
func isTokenRejected(err error) bool {
	var apiErr *cloudfiles.Error

	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
