package cloudfiles

import (
	"context"
	"net/http"
	"net/url"
)

const (
	headerAccountContainerCount = "X-Account-Container-Count"
	headerAccountBytesUsed      = "X-Account-Bytes-Used"
)

// AccountInformation summarizes storage use for the whole account.
type AccountInformation struct {
	ContainerCount int64
	BytesUsed      int64
}

// GetAccountInformation returns the account's container count and bytes
// used.
func (c *Connection) GetAccountInformation(ctx context.Context) (AccountInformation, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodHead, Target: storageTarget(nil)})
	if err != nil {
		return AccountInformation{}, err
	}

	count, err := resp.headerInt(headerAccountContainerCount)
	if err != nil {
		return AccountInformation{}, err
	}

	used, err := resp.headerInt(headerAccountBytesUsed)
	if err != nil {
		return AccountInformation{}, err
	}

	return AccountInformation{ContainerCount: count, BytesUsed: used}, nil
}

// GetAccountInformationJSON returns the container listing serialized as
// JSON by the service.
func (c *Connection) GetAccountInformationJSON(ctx context.Context) (string, error) {
	return c.serializedListing(ctx, storageTarget(url.Values{"format": {"json"}}), scopeAccount)
}

// GetAccountInformationXML returns the container listing serialized as XML
// by the service.
func (c *Connection) GetAccountInformationXML(ctx context.Context) (string, error) {
	return c.serializedListing(ctx, storageTarget(url.Values{"format": {"xml"}}), scopeAccount)
}

func (c *Connection) serializedListing(ctx context.Context, target func(Endpoints) (string, error), s scope) (string, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Target: target, scope: s})
	if err != nil {
		return "", err
	}

	return string(resp.Bytes()), nil
}
