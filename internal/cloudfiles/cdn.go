package cloudfiles

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	headerCDNURI          = "X-CDN-URI"
	headerCDNSSLURI       = "X-CDN-SSL-URI"
	headerCDNStreamingURI = "X-CDN-Streaming-URI"
	headerCDNEnabled      = "X-CDN-Enabled"
	headerTTL             = "X-TTL"
	headerLogRetention    = "X-Log-Retention"
	headerPurgeEmail      = "X-Purge-Email"
)

// PublicContainer is a container's CDN publication state.
type PublicContainer struct {
	Name            string
	CDNEnabled      bool
	CDNURI          string
	CDNSSLURI       string
	CDNStreamingURI string
	TTL             int
	LogRetention    bool
}

func capitalized(b bool) string {
	if b {
		return "True"
	}

	return "False"
}

func enabledOnly() url.Values {
	return url.Values{"enabled_only": {"true"}}
}

// GetPublicContainers lists the containers currently published on the CDN.
func (c *Connection) GetPublicContainers(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Target: cdnTarget(enabledOnly()),
	})
	if err != nil {
		return nil, err
	}

	return resp.Lines(), nil
}

// GetPublicAccountInformationJSON returns the CDN container listing
// serialized as JSON by the service.
func (c *Connection) GetPublicAccountInformationJSON(ctx context.Context) (string, error) {
	return c.serializedListing(ctx, cdnTarget(url.Values{"format": {"json"}}), scopePublicContainer)
}

// GetPublicAccountInformationXML returns the CDN container listing
// serialized as XML by the service.
func (c *Connection) GetPublicAccountInformationXML(ctx context.Context) (string, error) {
	return c.serializedListing(ctx, cdnTarget(url.Values{"format": {"xml"}}), scopePublicContainer)
}

// MarkContainerAsPublic publishes a container on the CDN and returns its
// CDN URI. A negative ttl leaves the service default in place.
func (c *Connection) MarkContainerAsPublic(ctx context.Context, name string, ttl int) (string, error) {
	name, err := validateContainerName(name)
	if err != nil {
		return "", err
	}

	h := make(http.Header)
	h.Set(headerCDNEnabled, capitalized(true))

	if ttl > -1 {
		h.Set(headerTTL, strconv.Itoa(ttl))
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPut,
		Target: cdnTarget(nil, name),
		Header: h,
		scope:  scopePublicContainer,
	})
	if err != nil {
		return "", err
	}

	return resp.Header.Get(headerCDNURI), nil
}

// MarkContainerAsPrivate withdraws a container from the CDN.
func (c *Connection) MarkContainerAsPrivate(ctx context.Context, name string) error {
	name, err := validateContainerName(name)
	if err != nil {
		return err
	}

	h := make(http.Header)
	h.Set(headerCDNEnabled, capitalized(false))

	_, err = c.Do(ctx, &Request{
		Method: http.MethodPost,
		Target: cdnTarget(nil, name),
		Header: h,
		scope:  scopePublicContainer,
	})

	return err
}

// GetPublicContainerInformation returns a published container's CDN
// details.
func (c *Connection) GetPublicContainerInformation(ctx context.Context, name string) (PublicContainer, error) {
	name, err := validateContainerName(name)
	if err != nil {
		return PublicContainer{}, err
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodHead,
		Target: cdnTarget(enabledOnly(), name),
		scope:  scopePublicContainer,
	})
	if err != nil {
		return PublicContainer{}, err
	}

	ttl, err := resp.headerInt(headerTTL)
	if err != nil {
		return PublicContainer{}, err
	}

	return PublicContainer{
		Name:            name,
		CDNEnabled:      resp.headerBool(headerCDNEnabled),
		CDNURI:          resp.Header.Get(headerCDNURI),
		CDNSSLURI:       resp.Header.Get(headerCDNSSLURI),
		CDNStreamingURI: resp.Header.Get(headerCDNStreamingURI),
		TTL:             int(ttl),
		LogRetention:    resp.headerBool(headerLogRetention),
	}, nil
}

// SetDetailsOnPublicContainer updates log retention and TTL on a published
// container. A negative ttl leaves the TTL unchanged.
func (c *Connection) SetDetailsOnPublicContainer(ctx context.Context, name string, loggingEnabled bool, ttl int) error {
	name, err := validateContainerName(name)
	if err != nil {
		return err
	}

	h := make(http.Header)
	h.Set(headerCDNEnabled, capitalized(true))
	h.Set(headerLogRetention, capitalized(loggingEnabled))

	if ttl > -1 {
		h.Set(headerTTL, strconv.Itoa(ttl))
	}

	_, err = c.Do(ctx, &Request{
		Method: http.MethodPost,
		Target: cdnTarget(nil, name),
		Header: h,
		scope:  scopePublicContainer,
	})

	return err
}

// PurgePublicContainer evicts a container from the CDN edge caches. The
// service mails each address in emails when the purge completes.
func (c *Connection) PurgePublicContainer(ctx context.Context, name string, emails []string) error {
	name, err := validateContainerName(name)
	if err != nil {
		return err
	}

	return c.purge(ctx, emails, name)
}

// PurgePublicStorageItem evicts one object from the CDN edge caches.
func (c *Connection) PurgePublicStorageItem(ctx context.Context, container, name string, emails []string) error {
	container, err := validateContainerName(container)
	if err != nil {
		return err
	}

	name, err = validateObjectName(name)
	if err != nil {
		return err
	}

	return c.purge(ctx, emails, container, name)
}

func (c *Connection) purge(ctx context.Context, emails []string, segments ...string) error {
	h := make(http.Header)

	for _, e := range emails {
		if strings.TrimSpace(e) == "" {
			return fmt.Errorf("%w: empty purge email address", ErrInvalidArgument)
		}
	}

	if len(emails) > 0 {
		h.Set(headerPurgeEmail, strings.Join(emails, ","))
	}

	_, err := c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Target: cdnTarget(nil, segments...),
		Header: h,
		scope:  scopePublicContainer,
	})

	return err
}
