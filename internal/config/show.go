package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated
// summary to w. This powers "config show". Secrets are reported as set or
// unset, never printed.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)

	ew.printf("[auth]\n")
	ew.printf("  username      = %q\n", r.Auth.Username)
	ew.printf("  auth_url      = %q\n", r.AuthEndpoint())

	if r.Auth.Account != "" {
		ew.printf("  account       = %q\n", r.Auth.Account)
		ew.printf("  cloud_version = %q\n", r.Auth.CloudVersion)
	}

	ew.printf("  token_path    = %q\n", r.TokenPath)
	ew.printf("  api_key       = %s\n", setOrUnset(r.APIKey))
	ew.printf("\n")

	ew.printf("[network]\n")
	ew.printf("  servicenet      = %t\n", r.Network.ServiceNet)
	ew.printf("  connect_timeout = %q\n", r.Network.ConnectTimeout)
	ew.printf("  request_timeout = %q\n", r.Network.RequestTimeout)

	if r.Network.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", r.Network.UserAgent)
	}

	if r.Network.ProxyURL != "" {
		ew.printf("  proxy_url       = %q\n", r.Network.ProxyURL)
		ew.printf("  proxy_username  = %q\n", r.Network.ProxyUsername)
		ew.printf("  proxy_domain    = %q\n", r.Network.ProxyDomain)
		ew.printf("  proxy_password  = %s\n", setOrUnset(r.ProxyPassword))
	}

	ew.printf("\n")

	ew.printf("[transfers]\n")
	ew.printf("  max_callback_interval       = %q\n", r.Transfers.MaxCallbackInterval)
	ew.printf("  max_bytes_between_callbacks = %q\n", r.Transfers.MaxBytesBetweenCallbacks)
	ew.printf("  min_bytes_between_callbacks = %q\n", r.Transfers.MinBytesBetweenCallbacks)
	ew.printf("  parallel_deletes            = %d\n", r.Transfers.ParallelDeletes)
	ew.printf("\n")

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)

	return ew.err
}

func setOrUnset(secret string) string {
	if secret == "" {
		return "# unset"
	}

	return "# set"
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
