// Package tokenfile caches an authenticated Cloud Files session on disk so
// successive CLI invocations can skip the login exchange. The token is
// stored in oauth2.Token form with the session endpoints in the metadata
// map. Every read and write holds an advisory lock on "<path>.lock".
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/oauth2"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// TokenType marks tokens that are sent in the X-Auth-Token header rather
// than as a bearer token.
const TokenType = "X-Auth-Token"

// Metadata keys written alongside the token.
const (
	MetaUsername        = "username"
	MetaStorageURL      = "storage_url"
	MetaCDNURL          = "cdn_management_url"
	MetaAuthenticatedAt = "authenticated_at"
)

// File is the on-disk format.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a token file. Returns (nil, nil, nil) if the file does not
// exist.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	var (
		tok  *oauth2.Token
		meta map[string]string
	)

	err := withLock(path, func() error {
		var loadErr error
		tok, meta, loadErr = load(path)

		return loadErr
	})

	return tok, meta, err
}

func load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, nil, fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
	}

	if tf.Token.AccessToken == "" {
		return nil, nil, fmt.Errorf("tokenfile: %s has empty credentials (re-login required)", path)
	}

	return tf.Token, tf.Meta, nil
}

// Save writes a token file atomically (write-to-temp + rename) with 0600
// permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	if tok == nil {
		return errors.New("tokenfile: refusing to save nil token")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	return withLock(path, func() error {
		return save(path, tok, meta)
	})
}

func save(path string, tok *oauth2.Token, meta map[string]string) error {
	data, err := json.MarshalIndent(File{Token: tok, Meta: meta}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush before rename so a crash cannot leave a truncated token file.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the token file and its lock. A missing file is not an
// error.
func Remove(path string) error {
	err := withLock(path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("tokenfile: removing %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Remove(path + ".lock"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing lock: %w", err)
	}

	return nil
}

func withLock(path string, fn func() error) error {
	if _, err := os.Stat(filepath.Dir(path)); errors.Is(err, fs.ErrNotExist) {
		// No directory, no file: don't create one just for the lock.
		return fn()
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("tokenfile: locking %s: %w", path, err)
	}
	defer lock.Unlock()

	return fn()
}

// SaveSession caches sess for username at path.
func SaveSession(path, username string, sess cloudfiles.Session) error {
	tok := &oauth2.Token{
		AccessToken: sess.AuthToken,
		TokenType:   TokenType,
		Expiry:      sess.Expiry(),
	}

	meta := map[string]string{
		MetaUsername:        username,
		MetaStorageURL:      sess.StorageURL,
		MetaAuthenticatedAt: sess.AuthenticatedAt.UTC().Format(time.RFC3339Nano),
	}

	if sess.CDNManagementURL != "" {
		meta[MetaCDNURL] = sess.CDNManagementURL
	}

	return Save(path, tok, meta)
}

// LoadSession returns the cached session for username. ok is false when
// there is no cache, it belongs to another user, its token has expired, or
// the session is no longer valid at now.
func LoadSession(path, username string, now time.Time) (sess cloudfiles.Session, ok bool, err error) {
	tok, meta, err := Load(path)
	if err != nil || tok == nil {
		return cloudfiles.Session{}, false, err
	}

	if meta[MetaUsername] != username || tok.TokenType != TokenType {
		return cloudfiles.Session{}, false, nil
	}

	// The stored expiry is checked against the wall clock with oauth2's
	// early-expiry margin, independent of the authenticated_at record.
	if !tok.Valid() {
		return cloudfiles.Session{}, false, nil
	}

	at, err := time.Parse(time.RFC3339Nano, meta[MetaAuthenticatedAt])
	if err != nil {
		return cloudfiles.Session{}, false, fmt.Errorf("tokenfile: %s has a bad %s: %w", path, MetaAuthenticatedAt, err)
	}

	sess = cloudfiles.Session{
		AuthToken:        tok.AccessToken,
		StorageURL:       meta[MetaStorageURL],
		CDNManagementURL: meta[MetaCDNURL],
		AuthenticatedAt:  at,
	}

	return sess, sess.IsValid(now), nil
}
