package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
)

// writeTestConfig writes content to a temp config.toml and returns its path.
func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
[auth]
username = "jdoe"
region = "uk"
account = "acme"
cloud_version = "v1.0"
token_path = "/var/lib/cf/session.json"

[network]
servicenet = true
user_agent = "backup-job/2"
connect_timeout = "5s"
request_timeout = "2m"
proxy_url = "http://proxy.corp:3128"
proxy_username = "alice"
proxy_domain = "CORP"

[transfers]
max_callback_interval = "500ms"
max_bytes_between_callbacks = "4MiB"
min_bytes_between_callbacks = "64KiB"
parallel_deletes = 8

[logging]
log_level = "debug"
log_format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, AuthConfig{
		Username:     "jdoe",
		Region:       RegionUK,
		Account:      "acme",
		CloudVersion: "v1.0",
		TokenPath:    "/var/lib/cf/session.json",
	}, cfg.Auth)
	assert.True(t, cfg.Network.ServiceNet)
	assert.Equal(t, "backup-job/2", cfg.Network.UserAgent)
	assert.Equal(t, "CORP", cfg.Network.ProxyDomain)
	assert.Equal(t, 8, cfg.Transfers.ParallelDeletes)
	assert.Equal(t, "json", cfg.Logging.LogFormat)
}

func TestLoad_PartialConfigKeepsDefaults(t *testing.T) {
	path := writeTestConfig(t, "[auth]\nusername = \"jdoe\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Auth.Username = "jdoe"
	assert.Equal(t, want, cfg)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "[auth\nusername=")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
[auth]
region = "mars"

[logging]
log_level = "chatty"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_Layering(t *testing.T) {
	path := writeTestConfig(t, `
[auth]
username = "file-user"

[network]
servicenet = true

[transfers]
max_callback_interval = "1s"
max_bytes_between_callbacks = "2000"
min_bytes_between_callbacks = "1KB"
`)

	env := EnvOverrides{
		ConfigPath:    path,
		Username:      "env-user",
		APIKey:        "secret",
		ProxyPassword: "pw",
	}

	flagUser := "flag-user"
	off := false

	r, err := Resolve(env, CLIOverrides{Username: &flagUser, ServiceNet: &off})
	require.NoError(t, err)

	assert.Equal(t, path, r.ConfigPath)
	assert.Equal(t, "flag-user", r.Auth.Username)
	assert.False(t, r.Network.ServiceNet)
	assert.Equal(t, "secret", r.APIKey)
	assert.Equal(t, 10*time.Second, r.ConnectTimeout)
	assert.Equal(t, time.Duration(0), r.RequestTimeout)
	assert.Equal(t, cloudfiles.ProgressFilter{
		MaxCallbackFreq:     time.Second,
		MaxBytesTxDeltaFreq: 2000,
		MinBytesTxDeltaFreq: 1000,
	}, r.Progress)
	assert.Equal(t, DefaultTokenPath(), r.TokenPath)
}

func TestResolve_EnvBeatsFile(t *testing.T) {
	path := writeTestConfig(t, "[auth]\nusername = \"file-user\"\nauth_url = \"https://auth.file.example/v1.0\"\n")

	r, err := Resolve(EnvOverrides{ConfigPath: path, Username: "env-user", AuthURL: "https://auth.env.example/v1.0"}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "env-user", r.Auth.Username)
	assert.Equal(t, "https://auth.env.example/v1.0", r.AuthEndpoint())
}

func TestResolve_CLIConfigPathWins(t *testing.T) {
	envPath := writeTestConfig(t, "[auth]\nusername = \"from-env-path\"\n")
	cliPath := writeTestConfig(t, "[auth]\nusername = \"from-cli-path\"\n")

	r, err := Resolve(EnvOverrides{ConfigPath: envPath}, CLIOverrides{ConfigPath: cliPath})
	require.NoError(t, err)
	assert.Equal(t, "from-cli-path", r.Auth.Username)
}

func TestResolve_BadEnvAuthURL(t *testing.T) {
	_, err := Resolve(EnvOverrides{
		ConfigPath: filepath.Join(t.TempDir(), "none.toml"),
		AuthURL:    "ftp://auth.example",
	}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth_url")
}

func TestResolve_RelativeTokenPath(t *testing.T) {
	path := writeTestConfig(t, "[auth]\ntoken_path = \"session.json\"\n")

	_, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_path")
}

func TestResolved_Credentials(t *testing.T) {
	r := &Resolved{
		Auth: AuthConfig{
			Username:     "jdoe",
			Region:       RegionUK,
			Account:      "acme",
			CloudVersion: "v1.0",
		},
		Network: NetworkConfig{
			ProxyURL:      "http://proxy.corp:3128",
			ProxyUsername: "alice",
			ProxyDomain:   "CORP",
		},
		APIKey:        "key",
		ProxyPassword: "pw",
	}

	creds := r.Credentials()
	assert.Equal(t, cloudfiles.AuthURLUK, creds.AuthURL)
	assert.Equal(t, "jdoe", creds.Username)
	assert.Equal(t, "key", creds.APIKey)
	assert.Equal(t, "acme", creds.AccountName)
	require.NotNil(t, creds.Proxy)
	assert.Equal(t, cloudfiles.ProxyCredentials{
		URL:      "http://proxy.corp:3128",
		Username: "alice",
		Password: "pw",
		Domain:   "CORP",
	}, *creds.Proxy)

	r.Auth.Region = RegionUS
	r.Network.ProxyURL = ""
	creds = r.Credentials()
	assert.Equal(t, cloudfiles.AuthURLUS, creds.AuthURL)
	assert.Nil(t, creds.Proxy)
}
