package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minParallelDeletes = 1
	maxParallelDeletes = 64
	minConnectTimeout  = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found,
// so users can fix every problem in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

var validRegions = map[string]bool{
	RegionUS: true,
	RegionUK: true,
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if !validRegions[a.Region] {
		errs = append(errs, fmt.Errorf("region: must be one of us, uk; got %q", a.Region))
	}

	if a.AuthURL != "" {
		errs = append(errs, validateURL("auth_url", a.AuthURL)...)
	}

	if a.Account != "" && a.CloudVersion == "" {
		errs = append(errs, errors.New("cloud_version: must not be empty when account is set"))
	}

	return errs
}

// validateURL requires an absolute http(s) URL with a host.
func validateURL(field, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: %w", field, err)}
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an http(s) URL, got %q", field, raw)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationNonNeg("request_timeout", n.RequestTimeout)...)

	if n.ProxyURL != "" {
		errs = append(errs, validateURL("proxy_url", n.ProxyURL)...)
	} else if n.ProxyUsername != "" || n.ProxyDomain != "" {
		errs = append(errs, errors.New("proxy_username: requires proxy_url"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	errs = append(errs, validateDurationNonNeg("max_callback_interval", t.MaxCallbackInterval)...)

	if _, err := ParseSize(t.MaxBytesBetweenCallbacks); err != nil {
		errs = append(errs, fmt.Errorf("max_bytes_between_callbacks: %w", err))
	}

	if _, err := ParseSize(t.MinBytesBetweenCallbacks); err != nil {
		errs = append(errs, fmt.Errorf("min_bytes_between_callbacks: %w", err))
	}

	if t.ParallelDeletes < minParallelDeletes || t.ParallelDeletes > maxParallelDeletes {
		errs = append(errs, fmt.Errorf("parallel_deletes: must be between %d and %d, got %d",
			minParallelDeletes, maxParallelDeletes, t.ParallelDeletes))
	}

	return errs
}

// parseOptionalDuration treats "" and "0" as zero.
func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}

	return time.ParseDuration(value)
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := parseOptionalDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}
