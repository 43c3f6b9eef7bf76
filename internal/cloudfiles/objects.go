package cloudfiles

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
)

const defaultContentType = "application/octet-stream"

// PutOptions tune an upload.
type PutOptions struct {
	// ContentType defaults to a guess from the name's extension.
	ContentType string
	Metadata    map[string]string

	// Size is the payload length when known. It enables Content-Length and
	// exact completion reporting.
	Size int64

	// Progress receives filtered progress for this upload only.
	Progress ProgressFunc
}

// GetOptions tune a download.
type GetOptions struct {
	Headers  map[RequestHeader]string
	Progress ProgressFunc
}

// StorageItem is a stored object's metadata and, for downloads, its
// content.
type StorageItem struct {
	Name          string
	ContentType   string
	ContentLength int64
	ETag          string
	LastModified  time.Time
	Metadata      map[string]string
	Header        http.Header

	// Content is positioned at the start and independent of the network
	// connection. It is nil for information-only requests.
	Content io.ReadSeeker
}

func newStorageItem(name string, resp *Response) *StorageItem {
	item := &StorageItem{
		Name:          name,
		ContentType:   resp.ContentType,
		ContentLength: resp.ContentLength,
		ETag:          resp.Header.Get("ETag"),
		Metadata:      resp.Metadata(objectMetaPrefix),
		Header:        resp.Header,
	}

	if cl, err := resp.headerInt("Content-Length"); err == nil && cl > 0 {
		item.ContentLength = cl
	}

	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		item.LastModified = lm
	}

	return item
}

func contentTypeFor(name, explicit string) string {
	if explicit != "" {
		return explicit
	}

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}

	return defaultContentType
}

// PutStorageItem uploads r as container/name.
func (c *Connection) PutStorageItem(ctx context.Context, container, name string, r io.Reader, opts PutOptions) error {
	container, err := validateContainerName(container)
	if err != nil {
		return err
	}

	name, err = validateObjectName(name)
	if err != nil {
		return err
	}

	if r == nil {
		return fmt.Errorf("%w: nil reader", ErrInvalidArgument)
	}

	h := make(http.Header)
	if err := metadataHeaders(h, objectMetaPrefix, opts.Metadata); err != nil {
		return err
	}

	h.Set("Content-Type", contentTypeFor(name, opts.ContentType))

	_, err = c.Do(ctx, &Request{
		Method:        http.MethodPut,
		Target:        storageTarget(nil, container, name),
		Header:        h,
		Body:          r,
		ContentLength: opts.Size,
		Progress:      c.newProgress(opts.Size, opts.Progress),
		scope:         scopeContainer,
	})

	return err
}

// PutStorageItemFile uploads a local file. remoteName defaults to the
// file's base name.
func (c *Connection) PutStorageItemFile(ctx context.Context, container, localPath, remoteName string, opts PutOptions) error {
	if remoteName == "" {
		remoteName = filepath.Base(localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("cloudfiles: opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cloudfiles: stat %s: %w", localPath, err)
	}

	opts.Size = info.Size()
	if opts.ContentType == "" {
		opts.ContentType = contentTypeFor(localPath, "")
	}

	return c.PutStorageItem(ctx, container, remoteName, f, opts)
}

// PutStorageItemAsync runs PutStorageItem on its own goroutine.
func (c *Connection) PutStorageItemAsync(
	ctx context.Context, container, name string, r io.Reader, opts PutOptions,
) *Operation {
	return c.start(ctx, "put", func(ctx context.Context) error {
		return c.PutStorageItem(ctx, container, name, r, opts)
	})
}

// GetStorageItem downloads container/name into memory.
func (c *Connection) GetStorageItem(ctx context.Context, container, name string, opts GetOptions) (*StorageItem, error) {
	container, err := validateContainerName(container)
	if err != nil {
		return nil, err
	}

	name, err = validateObjectName(name)
	if err != nil {
		return nil, err
	}

	h, err := requestHeaders(opts.Headers)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, &Request{
		Method:   http.MethodGet,
		Target:   storageTarget(nil, container, name),
		Header:   h,
		Progress: c.newProgress(0, opts.Progress),
		scope:    scopeStorageItem,
	})
	if err != nil {
		return nil, err
	}

	item := newStorageItem(name, resp)
	item.ContentLength = int64(len(resp.Bytes()))
	item.Content = resp.Body()

	return item, nil
}

// GetStorageItemToFile downloads container/name to localPath. The file is
// written next to its destination and renamed into place, so a failed
// download never leaves a partial file behind.
func (c *Connection) GetStorageItemToFile(ctx context.Context, container, name, localPath string, opts GetOptions) error {
	item, err := c.GetStorageItem(ctx, container, name, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(localPath)

	tmp, err := os.CreateTemp(dir, ".cloudfiles-*.partial")
	if err != nil {
		return fmt.Errorf("cloudfiles: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, item.Content); err != nil {
		tmp.Close()
		return fmt.Errorf("cloudfiles: writing %s: %w", localPath, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cloudfiles: closing %s: %w", localPath, err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return fmt.Errorf("cloudfiles: renaming into %s: %w", localPath, err)
	}

	success = true

	return nil
}

// GetStorageItemToFileAsync runs GetStorageItemToFile on its own goroutine.
func (c *Connection) GetStorageItemToFileAsync(
	ctx context.Context, container, name, localPath string, opts GetOptions,
) *Operation {
	return c.start(ctx, "get", func(ctx context.Context) error {
		return c.GetStorageItemToFile(ctx, container, name, localPath, opts)
	})
}

// GetStorageItemInformation returns an object's headers and metadata
// without its content.
func (c *Connection) GetStorageItemInformation(ctx context.Context, container, name string) (*StorageItem, error) {
	container, err := validateContainerName(container)
	if err != nil {
		return nil, err
	}

	name, err = validateObjectName(name)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, &Request{
		Method: http.MethodHead,
		Target: storageTarget(nil, container, name),
		scope:  scopeStorageItem,
	})
	if err != nil {
		return nil, err
	}

	return newStorageItem(name, resp), nil
}

// SetStorageItemMetaInformation replaces an object's user metadata.
func (c *Connection) SetStorageItemMetaInformation(
	ctx context.Context, container, name string, metadata map[string]string,
) error {
	container, err := validateContainerName(container)
	if err != nil {
		return err
	}

	name, err = validateObjectName(name)
	if err != nil {
		return err
	}

	h := make(http.Header)
	if err := metadataHeaders(h, objectMetaPrefix, metadata); err != nil {
		return err
	}

	_, err = c.Do(ctx, &Request{
		Method: http.MethodPost,
		Target: storageTarget(nil, container, name),
		Header: h,
		scope:  scopeStorageItem,
	})

	return err
}

// DeleteStorageItem removes container/name.
func (c *Connection) DeleteStorageItem(ctx context.Context, container, name string) error {
	container, err := validateContainerName(container)
	if err != nil {
		return err
	}

	name, err = validateObjectName(name)
	if err != nil {
		return err
	}

	_, err = c.Do(ctx, &Request{
		Method: http.MethodDelete,
		Target: storageTarget(nil, container, name),
		scope:  scopeStorageItem,
	})

	return err
}
