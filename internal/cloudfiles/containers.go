package cloudfiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	headerContainerObjectCount = "X-Container-Object-Count"
	headerContainerBytesUsed   = "X-Container-Bytes-Used"
	directoryContentType       = "application/directory"
)

// ListParams filter and page listings. Zero fields are omitted.
type ListParams struct {
	Limit     int
	Marker    string
	Prefix    string
	Path      string
	Delimiter string
}

func (p ListParams) query() url.Values {
	q := url.Values{}

	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}

	if p.Marker != "" {
		q.Set("marker", p.Marker)
	}

	if p.Prefix != "" {
		q.Set("prefix", p.Prefix)
	}

	if p.Path != "" {
		q.Set("path", p.Path)
	}

	if p.Delimiter != "" {
		q.Set("delimiter", p.Delimiter)
	}

	return q
}

// ContainerInformation describes one container.
type ContainerInformation struct {
	Name        string
	ObjectCount int64
	BytesUsed   int64
	Metadata    map[string]string
}

// CreateContainer creates a container. The service answers 202 instead of
// 201 when the container already exists, which is reported as
// ErrContainerAlreadyExists.
func (c *Connection) CreateContainer(ctx context.Context, name string, metadata map[string]string) error {
	name, err := validateContainerName(name)
	if err != nil {
		return err
	}

	h := make(http.Header)
	if err := metadataHeaders(h, containerMetaPrefix, metadata); err != nil {
		return err
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodPut,
		Target: storageTarget(nil, name),
		Header: h,
		scope:  scopeContainer,
	})
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusAccepted {
		return &Error{
			StatusCode: resp.StatusCode,
			TransID:    resp.Header.Get(headerTransID),
			Err:        ErrContainerAlreadyExists,
		}
	}

	return nil
}

// DeleteContainer removes a container. With emptyFirst, every object in it
// is deleted first; otherwise a non-empty container fails with
// ErrContainerNotEmpty.
func (c *Connection) DeleteContainer(ctx context.Context, name string, emptyFirst bool) error {
	name, err := validateContainerName(name)
	if err != nil {
		return err
	}

	if emptyFirst {
		if err := c.emptyContainer(ctx, name); err != nil {
			return err
		}
	}

	_, err = c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Target: storageTarget(nil, name),
		scope:  scopeContainer,
	})

	return err
}

// emptyContainer deletes every object in the container, a bounded number
// at a time. Objects that vanish in the meantime are not an error.
func (c *Connection) emptyContainer(ctx context.Context, name string) error {
	items, err := c.listAll(ctx, name)
	if err != nil {
		return err
	}

	c.logger.Info("emptying container",
		slog.String("container", name),
		slog.Int("objects", len(items)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.deleteConcurrency)

	for _, item := range items {
		g.Go(func() error {
			err := c.DeleteStorageItem(gctx, name, item)
			if errors.Is(err, ErrStorageItemNotFound) {
				return nil
			}

			return err
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("cloudfiles: emptying container %s: %w", name, err)
	}

	return nil
}

// listAll pages through a container listing until the service returns an
// empty page.
func (c *Connection) listAll(ctx context.Context, name string) ([]string, error) {
	var all []string

	params := ListParams{}

	for {
		page, err := c.GetContainerItemList(ctx, name, params, true)
		if err != nil {
			return nil, err
		}

		if len(page) == 0 {
			return all, nil
		}

		all = append(all, page...)
		params.Marker = page[len(page)-1]
	}
}

// GetContainers lists container names in the account.
func (c *Connection) GetContainers(ctx context.Context, params ListParams) ([]string, error) {
	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Target: storageTarget(params.query()),
	})
	if err != nil {
		return nil, err
	}

	return resp.Lines(), nil
}

// GetContainerInformation returns a container's object count, bytes used
// and metadata.
func (c *Connection) GetContainerInformation(ctx context.Context, name string) (ContainerInformation, error) {
	name, err := validateContainerName(name)
	if err != nil {
		return ContainerInformation{}, err
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodHead,
		Target: storageTarget(nil, name),
		scope:  scopeContainer,
	})
	if err != nil {
		return ContainerInformation{}, err
	}

	count, err := resp.headerInt(headerContainerObjectCount)
	if err != nil {
		return ContainerInformation{}, err
	}

	used, err := resp.headerInt(headerContainerBytesUsed)
	if err != nil {
		return ContainerInformation{}, err
	}

	return ContainerInformation{
		Name:        name,
		ObjectCount: count,
		BytesUsed:   used,
		Metadata:    resp.Metadata(containerMetaPrefix),
	}, nil
}

// GetContainerInformationJSON returns the container's object listing
// serialized as JSON by the service.
func (c *Connection) GetContainerInformationJSON(ctx context.Context, name string) (string, error) {
	return c.serializedContainerInfo(ctx, name, "json")
}

// GetContainerInformationXML returns the container's object listing
// serialized as XML by the service.
func (c *Connection) GetContainerInformationXML(ctx context.Context, name string) (string, error) {
	return c.serializedContainerInfo(ctx, name, "xml")
}

func (c *Connection) serializedContainerInfo(ctx context.Context, name, format string) (string, error) {
	name, err := validateContainerName(name)
	if err != nil {
		return "", err
	}

	return c.serializedListing(ctx, storageTarget(url.Values{"format": {format}}, name), scopeContainer)
}

// GetContainerItemList lists object names in a container. Unless
// includeFolders is set, names without a file extension are treated as
// folders and dropped.
func (c *Connection) GetContainerItemList(
	ctx context.Context, name string, params ListParams, includeFolders bool,
) ([]string, error) {
	name, err := validateContainerName(name)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodGet,
		Target: storageTarget(params.query(), name),
		scope:  scopeContainer,
	})
	if err != nil {
		return nil, err
	}

	items := resp.Lines()
	if includeFolders {
		return items, nil
	}

	files := items[:0]

	for _, item := range items {
		if path.Ext(item) != "" {
			files = append(files, item)
		}
	}

	return files, nil
}

// SetContainerMetadata replaces the container's user metadata.
func (c *Connection) SetContainerMetadata(ctx context.Context, name string, metadata map[string]string) error {
	name, err := validateContainerName(name)
	if err != nil {
		return err
	}

	h := make(http.Header)
	if err := metadataHeaders(h, containerMetaPrefix, metadata); err != nil {
		return err
	}

	_, err = c.Do(ctx, &Request{
		Method: http.MethodPost,
		Target: storageTarget(nil, name),
		Header: h,
		scope:  scopeContainer,
	})

	return err
}

// MakePath creates directory marker objects for every prefix of p, so
// "a/b/c" yields markers "a", "a/b" and "a/b/c".
func (c *Connection) MakePath(ctx context.Context, container, p string) error {
	container, err := validateContainerName(container)
	if err != nil {
		return err
	}

	var parts []string

	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}

	if len(parts) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidArgument)
	}

	for i := range parts {
		dir, err := validateObjectName(strings.Join(parts[:i+1], "/"))
		if err != nil {
			return err
		}

		h := make(http.Header)
		h.Set("Content-Type", directoryContentType)

		if _, err := c.Do(ctx, &Request{
			Method: http.MethodPut,
			Target: storageTarget(nil, container, dir),
			Header: h,
			scope:  scopeContainer,
		}); err != nil {
			return err
		}
	}

	return nil
}
