package cloudfiles

import (
	"fmt"
	"net/url"
	"strings"
)

// Well-known authentication endpoints.
const (
	AuthURLUS           = "https://auth.api.rackspacecloud.com/v1.0"
	AuthURLUK           = "https://lon.auth.api.rackspacecloud.com/v1.0"
	DefaultCloudVersion = "v1.0"
)

// ProxyCredentials routes every request through an HTTP proxy. Username and
// Password are optional; Domain is prepended as DOMAIN\user when set.
type ProxyCredentials struct {
	URL      string
	Username string
	Password string
	Domain   string
}

// proxyURL returns the proxy address with credentials embedded as user info,
// which net/http turns into a Proxy-Authorization header.
func (p *ProxyCredentials) proxyURL() (*url.URL, error) {
	u, err := url.Parse(p.URL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: proxy url %q", ErrInvalidArgument, p.URL)
	}

	if p.Username != "" {
		user := p.Username
		if p.Domain != "" {
			user = p.Domain + `\` + user
		}

		u.User = url.UserPassword(user, p.Password)
	}

	return u, nil
}

// Credentials identify the account. They are supplied once when the
// connection is built and never change afterwards.
type Credentials struct {
	Username     string
	APIKey       string
	AccountName  string
	CloudVersion string
	AuthURL      string
	Proxy        *ProxyCredentials
}

func (c *Credentials) applyDefaults() {
	if c.AuthURL == "" {
		c.AuthURL = AuthURLUS
	}

	if c.CloudVersion == "" {
		c.CloudVersion = DefaultCloudVersion
	}

	c.AuthURL = strings.TrimRight(c.AuthURL, "/")
}

func (c Credentials) validate() error {
	if c.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidArgument)
	}

	u, err := url.Parse(c.AuthURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: auth url %q", ErrInvalidArgument, c.AuthURL)
	}

	if c.Proxy != nil && c.Proxy.URL != "" {
		if _, err := c.Proxy.proxyURL(); err != nil {
			return err
		}
	}

	return nil
}

// authTarget is the login URL: the bare auth endpoint, or the
// account-scoped form <auth>/<version>/<account>/auth.
func (c Credentials) authTarget() string {
	if c.AccountName == "" {
		return c.AuthURL
	}

	target, _ := buildURL(c.AuthURL, []string{c.CloudVersion, c.AccountName, "auth"}, nil)

	return target
}

// serviceNetURL rewrites a public storage endpoint to its internal
// ServiceNet twin. Only https endpoints can be rewritten.
func serviceNetURL(storageURL string) (string, error) {
	const scheme = "https://"
	if !strings.HasPrefix(storageURL, scheme) {
		return "", fmt.Errorf("%w: %s is not https, cannot use ServiceNet", ErrInsecureURL, storageURL)
	}

	return scheme + "snet-" + strings.TrimPrefix(storageURL, scheme), nil
}
