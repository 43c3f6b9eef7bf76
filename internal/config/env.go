package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig        = "CLOUDFILES_CONFIG"
	EnvUsername      = "CLOUDFILES_USERNAME"
	EnvAPIKey        = "CLOUDFILES_API_KEY"
	EnvAuthURL       = "CLOUDFILES_AUTH_URL"
	EnvProxyPassword = "CLOUDFILES_PROXY_PASSWORD"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath    string // CLOUDFILES_CONFIG: override config file path
	Username      string // CLOUDFILES_USERNAME
	APIKey        string // CLOUDFILES_API_KEY: never written anywhere
	AuthURL       string // CLOUDFILES_AUTH_URL
	ProxyPassword string // CLOUDFILES_PROXY_PASSWORD
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify a Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:    os.Getenv(EnvConfig),
		Username:      os.Getenv(EnvUsername),
		APIKey:        os.Getenv(EnvAPIKey),
		AuthURL:       os.Getenv(EnvAuthURL),
		ProxyPassword: os.Getenv(EnvProxyPassword),
	}
}
