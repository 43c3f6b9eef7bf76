package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is the effective configuration after every override layer,
// with durations and sizes already parsed.
type Resolved struct {
	ConfigPath string
	TokenPath  string

	Auth      AuthConfig
	Network   NetworkConfig
	Transfers TransfersConfig
	Logging   LoggingConfig

	APIKey        string
	ProxyPassword string

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Progress       cloudfiles.ProgressFilter
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Config file (defaults if absent)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	r := &Resolved{
		ConfigPath:    cfgPath,
		Auth:          cfg.Auth,
		Network:       cfg.Network,
		Transfers:     cfg.Transfers,
		Logging:       cfg.Logging,
		APIKey:        env.APIKey,
		ProxyPassword: env.ProxyPassword,
	}

	// 3. Environment
	if env.Username != "" {
		r.Auth.Username = env.Username
	}

	if env.AuthURL != "" {
		r.Auth.AuthURL = env.AuthURL
	}

	// 4. CLI flags
	if cli.Username != nil {
		r.Auth.Username = *cli.Username
	}

	if cli.AuthURL != nil {
		r.Auth.AuthURL = *cli.AuthURL
	}

	if cli.ServiceNet != nil {
		r.Network.ServiceNet = *cli.ServiceNet
	}

	r.TokenPath = r.Auth.TokenPath
	if r.TokenPath == "" {
		r.TokenPath = DefaultTokenPath()
	}

	if err := r.parse(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}

// parse fills the typed fields. Validate has already vetted the file
// values; env and CLI values are checked here.
func (r *Resolved) parse() error {
	var errs []error

	if r.Auth.AuthURL != "" {
		errs = append(errs, validateURL("auth_url", r.Auth.AuthURL)...)
	}

	r.ConnectTimeout, _ = time.ParseDuration(r.Network.ConnectTimeout)
	r.RequestTimeout, _ = parseOptionalDuration(r.Network.RequestTimeout)
	r.Progress.MaxCallbackFreq, _ = parseOptionalDuration(r.Transfers.MaxCallbackInterval)
	r.Progress.MaxBytesTxDeltaFreq, _ = ParseSize(r.Transfers.MaxBytesBetweenCallbacks)
	r.Progress.MinBytesTxDeltaFreq, _ = ParseSize(r.Transfers.MinBytesBetweenCallbacks)

	if r.TokenPath != "" && !filepath.IsAbs(r.TokenPath) {
		errs = append(errs, fmt.Errorf("token_path: must be absolute, got %q", r.TokenPath))
	}

	return errors.Join(errs...)
}

// AuthEndpoint returns the login endpoint: auth_url when set, otherwise
// the region's public endpoint.
func (r *Resolved) AuthEndpoint() string {
	if r.Auth.AuthURL != "" {
		return r.Auth.AuthURL
	}

	if r.Auth.Region == RegionUK {
		return cloudfiles.AuthURLUK
	}

	return cloudfiles.AuthURLUS
}

// Credentials builds the connection credentials. The API key comes from
// the environment (or a prompt the caller stores in APIKey).
func (r *Resolved) Credentials() cloudfiles.Credentials {
	creds := cloudfiles.Credentials{
		Username:     r.Auth.Username,
		APIKey:       r.APIKey,
		AccountName:  r.Auth.Account,
		CloudVersion: r.Auth.CloudVersion,
		AuthURL:      r.AuthEndpoint(),
	}

	if r.Network.ProxyURL != "" {
		creds.Proxy = &cloudfiles.ProxyCredentials{
			URL:      r.Network.ProxyURL,
			Username: r.Network.ProxyUsername,
			Password: r.ProxyPassword,
			Domain:   r.Network.ProxyDomain,
		}
	}

	return creds
}
