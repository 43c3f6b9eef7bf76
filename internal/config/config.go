// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudfiles-go. Values resolve
// through a layered chain: defaults -> config file -> environment -> CLI
// flags. The API key is only ever read from the environment or a prompt,
// never from the file.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth      AuthConfig      `toml:"auth" json:"auth"`
	Network   NetworkConfig   `toml:"network" json:"network"`
	Transfers TransfersConfig `toml:"transfers" json:"transfers"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
}

// AuthConfig identifies the account and the authentication endpoint.
// AuthURL wins over Region when both are set.
type AuthConfig struct {
	Username     string `toml:"username" json:"username"`
	Region       string `toml:"region" json:"region"`
	AuthURL      string `toml:"auth_url" json:"auth_url"`
	Account      string `toml:"account" json:"account"`
	CloudVersion string `toml:"cloud_version" json:"cloud_version"`
	TokenPath    string `toml:"token_path" json:"token_path"`
}

// NetworkConfig controls the HTTP client: timeouts, user agent, the
// internal ServiceNet endpoint, and an optional authenticating proxy.
// The proxy password comes from CLOUDFILES_PROXY_PASSWORD.
type NetworkConfig struct {
	ServiceNet     bool   `toml:"servicenet" json:"servicenet"`
	UserAgent      string `toml:"user_agent" json:"user_agent"`
	ConnectTimeout string `toml:"connect_timeout" json:"connect_timeout"`
	RequestTimeout string `toml:"request_timeout" json:"request_timeout"`
	ProxyURL       string `toml:"proxy_url" json:"proxy_url"`
	ProxyUsername  string `toml:"proxy_username" json:"proxy_username"`
	ProxyDomain    string `toml:"proxy_domain" json:"proxy_domain"`
}

// TransfersConfig holds the connection-wide progress filter defaults and
// the fan-out used when a container is emptied before deletion. Byte
// thresholds accept size suffixes ("1MiB").
type TransfersConfig struct {
	MaxCallbackInterval      string `toml:"max_callback_interval" json:"max_callback_interval"`
	MaxBytesBetweenCallbacks string `toml:"max_bytes_between_callbacks" json:"max_bytes_between_callbacks"`
	MinBytesBetweenCallbacks string `toml:"min_bytes_between_callbacks" json:"min_bytes_between_callbacks"`
	ParallelDeletes          int    `toml:"parallel_deletes" json:"parallel_deletes"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Username   *string // --username flag
	AuthURL    *string // --auth-url flag
	ServiceNet *bool   // --servicenet flag
}
