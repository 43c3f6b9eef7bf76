package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudfiles-go/internal/config"
)

const (
	testUser    = "jdoe"
	testAPIKey  = "0123456789abcdef"
	testAccount = "/v1/MossoCloudFS_test"
)

type fakeObject struct {
	data        []byte
	contentType string
	meta        http.Header
}

type fakeContainer struct {
	objects map[string]*fakeObject
	meta    http.Header

	public bool
	ttl    int
	logs   bool
}

// fakeCloud is an in-memory Cloud Files account covering the auth,
// storage and CDN endpoints the CLI talks to.
type fakeCloud struct {
	srv *httptest.Server

	authCalls atomic.Int32

	mu         sync.Mutex
	tokens     map[string]bool
	deadIssues int
	containers map[string]*fakeContainer
	purges     []string
}

func newFakeCloud(t *testing.T) *fakeCloud {
	t.Helper()

	fc := &fakeCloud{
		tokens:     make(map[string]bool),
		containers: make(map[string]*fakeContainer),
	}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.route))
	t.Cleanup(fc.srv.Close)

	return fc
}

// revokeAll invalidates every issued token, as the service does when a
// session expires early.
func (fc *fakeCloud) revokeAll() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.tokens = make(map[string]bool)
}

// issueDeadTokens makes the next n logins return tokens that storage and
// CDN calls refuse.
func (fc *fakeCloud) issueDeadTokens(n int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.deadIssues = n
}

func (fc *fakeCloud) container(name string) *fakeContainer {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return fc.containers[name]
}

func (fc *fakeCloud) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth" {
		fc.handleAuth(w, r)
		return
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if !fc.tokens[r.Header.Get("X-Auth-Token")] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, testAccount):
		fc.handleStorage(w, r, strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, testAccount), "/"))
	case strings.HasPrefix(r.URL.Path, "/cdn"):
		fc.handleCDN(w, r, strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/cdn"), "/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (fc *fakeCloud) handleAuth(w http.ResponseWriter, r *http.Request) {
	n := fc.authCalls.Add(1)

	if r.Header.Get("X-Auth-User") != testUser || r.Header.Get("X-Auth-Key") != testAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	token := "token-" + strconv.Itoa(int(n))

	fc.mu.Lock()
	if fc.deadIssues > 0 {
		fc.deadIssues--
	} else {
		fc.tokens[token] = true
	}
	fc.mu.Unlock()

	w.Header().Set("X-Auth-Token", token)
	w.Header().Set("X-Storage-Url", fc.srv.URL+testAccount)
	w.Header().Set("X-CDN-Management-Url", fc.srv.URL+"/cdn")
	w.WriteHeader(http.StatusNoContent)
}

func writeListing(w http.ResponseWriter, names []string, q map[string][]string) {
	sort.Strings(names)

	prefix, marker := first(q["prefix"]), first(q["marker"])

	var out []string

	for _, n := range names {
		if strings.HasPrefix(n, prefix) && n > marker {
			out = append(out, n)
		}
	}

	if limit, err := strconv.Atoi(first(q["limit"])); err == nil && limit < len(out) {
		out = out[:limit]
	}

	if len(out) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, strings.Join(out, "\n"))
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}

	return v[0]
}

func copyMeta(dst http.Header, src http.Header, prefix string) {
	for k, v := range src {
		if strings.HasPrefix(k, prefix) {
			dst[k] = v
		}
	}
}

func (fc *fakeCloud) handleStorage(w http.ResponseWriter, r *http.Request, rest string) {
	cname, oname, _ := strings.Cut(rest, "/")

	if cname == "" {
		fc.handleAccount(w, r)
		return
	}

	c := fc.containers[cname]

	if oname == "" {
		fc.handleContainer(w, r, cname, c)
		return
	}

	if c == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	obj := c.objects[oname]

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		o := &fakeObject{data: data, contentType: r.Header.Get("Content-Type"), meta: http.Header{}}
		copyMeta(o.meta, r.Header, "X-Object-Meta-")
		c.objects[oname] = o
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet, http.MethodHead:
		if obj == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		etag := fmt.Sprintf("etag-%d", len(obj.data))
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		copyMeta(w.Header(), obj.meta, "X-Object-Meta-")
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("ETag", etag)
		w.Header().Set("Last-Modified", "Fri, 01 Mar 2024 10:00:00 GMT")
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.WriteHeader(http.StatusOK)

		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}
	case http.MethodPost:
		if obj == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		obj.meta = http.Header{}
		copyMeta(obj.meta, r.Header, "X-Object-Meta-")
		w.WriteHeader(http.StatusAccepted)
	case http.MethodDelete:
		if obj == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		delete(c.objects, oname)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (fc *fakeCloud) handleAccount(w http.ResponseWriter, r *http.Request) {
	var used int

	names := make([]string, 0, len(fc.containers))
	for n, c := range fc.containers {
		names = append(names, n)

		for _, o := range c.objects {
			used += len(o.data)
		}
	}

	if r.Method == http.MethodHead {
		w.Header().Set("X-Account-Container-Count", strconv.Itoa(len(names)))
		w.Header().Set("X-Account-Bytes-Used", strconv.Itoa(used))
		w.WriteHeader(http.StatusNoContent)

		return
	}

	writeListing(w, names, r.URL.Query())
}

func (fc *fakeCloud) handleContainer(w http.ResponseWriter, r *http.Request, name string, c *fakeContainer) {
	if c == nil && r.Method != http.MethodPut {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		if c != nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		c = &fakeContainer{objects: make(map[string]*fakeObject), meta: http.Header{}}
		copyMeta(c.meta, r.Header, "X-Container-Meta-")
		fc.containers[name] = c
		w.WriteHeader(http.StatusCreated)
	case http.MethodHead:
		var used int
		for _, o := range c.objects {
			used += len(o.data)
		}

		copyMeta(w.Header(), c.meta, "X-Container-Meta-")
		w.Header().Set("X-Container-Object-Count", strconv.Itoa(len(c.objects)))
		w.Header().Set("X-Container-Bytes-Used", strconv.Itoa(used))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		names := make([]string, 0, len(c.objects))
		for n := range c.objects {
			names = append(names, n)
		}

		writeListing(w, names, r.URL.Query())
	case http.MethodPost:
		c.meta = http.Header{}
		copyMeta(c.meta, r.Header, "X-Container-Meta-")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if len(c.objects) > 0 {
			w.WriteHeader(http.StatusConflict)
			return
		}

		delete(fc.containers, name)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (fc *fakeCloud) handleCDN(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		var names []string

		for n, c := range fc.containers {
			if c.public {
				names = append(names, n)
			}
		}

		writeListing(w, names, nil)

		return
	}

	cname, _, _ := strings.Cut(rest, "/")

	c := fc.containers[cname]
	if c == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		c.public = true
		c.ttl = 259200

		if ttl, err := strconv.Atoi(r.Header.Get("X-TTL")); err == nil {
			c.ttl = ttl
		}

		w.Header().Set("X-CDN-URI", "http://cdn.example/"+cname)
		w.WriteHeader(http.StatusCreated)
	case http.MethodPost:
		c.public = r.Header.Get("X-CDN-Enabled") == "True"
		c.logs = r.Header.Get("X-Log-Retention") == "True"

		if ttl, err := strconv.Atoi(r.Header.Get("X-TTL")); err == nil {
			c.ttl = ttl
		}

		w.WriteHeader(http.StatusAccepted)
	case http.MethodHead:
		if !c.public {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.Header().Set("X-CDN-Enabled", "True")
		w.Header().Set("X-CDN-URI", "http://cdn.example/"+cname)
		w.Header().Set("X-CDN-SSL-URI", "https://ssl.cdn.example/"+cname)
		w.Header().Set("X-TTL", strconv.Itoa(c.ttl))
		w.Header().Set("X-Log-Retention", strconv.FormatBool(c.logs))
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		fc.purges = append(fc.purges, rest+" "+r.Header.Get("X-Purge-Email"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// cliEnv is an isolated CLI environment pointed at a fakeCloud.
type cliEnv struct {
	cloud     *fakeCloud
	tokenPath string
	dir       string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()

	fc := newFakeCloud(t)
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "cache", "session.json")

	cfgPath := writeConfig(t, fmt.Sprintf(`[auth]
username = %q
auth_url = %q
token_path = %q

[logging]
log_format = "text"
`, testUser, fc.srv.URL+"/auth", tokenPath))

	t.Setenv(config.EnvConfig, cfgPath)
	t.Setenv(config.EnvAPIKey, testAPIKey)
	t.Setenv(config.EnvUsername, "")
	t.Setenv(config.EnvAuthURL, "")
	t.Setenv(config.EnvProxyPassword, "")

	return &cliEnv{cloud: fc, tokenPath: tokenPath, dir: dir}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// run executes the CLI with args, feeding stdin.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()

	var out, errOut bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.ExecuteContext(context.Background())

	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

// mustRun is run that fails the test on error.
func (e *cliEnv) mustRun(t *testing.T, args ...string) cliResult {
	t.Helper()

	res := e.run(t, "", args...)
	require.NoError(t, res.err, "stderr: %s", res.stderr)

	return res
}
