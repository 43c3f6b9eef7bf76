package cloudfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Header names shared by the login exchange and every authenticated call.
const (
	headerAuthUser         = "X-Auth-User"
	headerAuthKey          = "X-Auth-Key"
	headerAuthToken        = "X-Auth-Token"
	headerStorageURL       = "X-Storage-Url"
	headerCDNManagementURL = "X-CDN-Management-Url"
	headerTransID          = "X-Trans-Id"
)

// dispatcher turns a Request into an HTTP exchange. It knows nothing about
// sessions: the caller hands it the endpoints and token to use.
type dispatcher struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	watchers   *watcherList

	mu      sync.Mutex
	proxied map[string]*http.Client
}

func newDispatcher(httpClient *http.Client, userAgent string, logger *slog.Logger, watchers *watcherList) *dispatcher {
	return &dispatcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
		watchers:   watchers,
		proxied:    make(map[string]*http.Client),
	}
}

// submit executes req. It returns a Response for every status the server
// sends back, including failures; the error return is reserved for
// transport-level faults, which are returned unchanged.
func (d *dispatcher) submit(
	ctx context.Context, req *Request, ep Endpoints, token string, proxy *ProxyCredentials,
) (*Response, error) {
	target, err := req.Target(ep)
	if err != nil {
		return nil, err
	}

	client, err := d.clientFor(proxy)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)

		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = &progressReader{r: req.Body, progress: req.Progress, watchers: d.watchers}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("cloudfiles: creating request: %w", err)
	}

	for k, v := range req.Header {
		httpReq.Header[k] = v
	}

	if req.ContentLength > 0 {
		httpReq.ContentLength = req.ContentLength
	}

	if token != "" {
		httpReq.Header.Set(headerAuthToken, url.QueryEscape(token))
	}

	httpReq.Header.Set("User-Agent", d.userAgent)

	reqID := uuid.NewString()
	start := time.Now()

	d.logger.Debug("dispatching request",
		slog.String("request_id", reqID),
		slog.String("method", req.Method),
		slog.String("url", redactURL(target)),
		slog.Int64("content_length", req.ContentLength),
	)

	resp, err := client.Do(httpReq)
	if err != nil {
		d.logger.Debug("request failed",
			slog.String("request_id", reqID),
			slog.String("method", req.Method),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)

		return nil, err
	}
	defer resp.Body.Close()

	// Buffer the payload so the connection goes back to the pool now and
	// the caller gets a seekable copy.
	var observer *Progress
	if req.Body == nil {
		observer = req.Progress
		if observer != nil && resp.ContentLength > 0 {
			observer.setSize(resp.ContentLength)
		}
	}

	data, err := io.ReadAll(&progressReader{r: resp.Body, progress: observer, watchers: d.watchers})
	if err != nil {
		return nil, fmt.Errorf("cloudfiles: reading response body: %w", err)
	}

	out := newResponse(resp, data)

	d.logger.Debug("received response",
		slog.String("request_id", reqID),
		slog.String("method", req.Method),
		slog.Int("status", resp.StatusCode),
		slog.String("trans_id", resp.Header.Get(headerTransID)),
		slog.String("content_type", out.ContentType),
		slog.Int64("content_length", out.ContentLength),
		slog.Duration("elapsed", time.Since(start)),
	)

	return out, nil
}

// clientFor returns the HTTP client to use with proxy. Proxied clients are
// built once per proxy address and reused so their connection pools
// survive across requests.
func (d *dispatcher) clientFor(proxy *ProxyCredentials) (*http.Client, error) {
	if proxy == nil || proxy.URL == "" {
		return d.httpClient, nil
	}

	u, err := proxy.proxyURL()
	if err != nil {
		return nil, err
	}

	key := u.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.proxied[key]; ok {
		return c, nil
	}

	base, ok := d.httpClient.Transport.(*http.Transport)
	if !ok {
		base, ok = http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, errors.New("cloudfiles: default transport is not an *http.Transport")
		}
	}

	tr := base.Clone()
	tr.Proxy = http.ProxyURL(u)

	c := &http.Client{
		Transport:     tr,
		CheckRedirect: d.httpClient.CheckRedirect,
		Jar:           d.httpClient.Jar,
		Timeout:       d.httpClient.Timeout,
	}
	d.proxied[key] = c

	return c, nil
}

// redactURL strips user info and the query string from a URL before it is
// logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}

	u.User = nil
	u.RawQuery = ""

	return u.String()
}

// progressReader reports every chunk read through it to the connection's
// watchers and to an optional per-call tracker.
type progressReader struct {
	r        io.Reader
	progress *Progress
	watchers *watcherList
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.watchers.notify(n)

		if p.progress != nil {
			p.progress.Add(n)
		}
	}

	if errors.Is(err, io.EOF) && p.progress != nil {
		p.progress.Finish()
	}

	return n, err
}
