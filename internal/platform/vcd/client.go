package vcd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/imamik/edgefip/internal/config"
	"github.com/imamik/edgefip/internal/util/retry"
)

// DefaultAPIVersion is sent in the Accept header when none is configured.
const DefaultAPIVersion = "5.6"

const (
	headerAuthorization = "x-vcloud-authorization"
	headerRequestID     = "X-VMWARE-VCLOUD-CLIENT-REQUEST-ID"
)

// APIError is a non-2xx answer of the API.
type APIError struct {
	StatusCode     int
	MinorErrorCode string
	Message        string
}

func (e *APIError) Error() string {
	if e.MinorErrorCode != "" {
		return fmt.Sprintf("vcd api error %d (%s): %s", e.StatusCode, e.MinorErrorCode, e.Message)
	}
	return fmt.Sprintf("vcd api error %d: %s", e.StatusCode, e.Message)
}

// IsBusy reports whether err says the entity is still applying another
// change.
func IsBusy(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.MinorErrorCode == "BUSY_ENTITY" ||
		strings.Contains(apiErr.Message, "is busy completing an operation")
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// isTransient reports whether a request may be retried: network errors,
// throttling and server-side failures.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Config holds the connection settings.
type Config struct {
	URL        string
	Org        string
	VDC        string
	User       string
	Password   string
	APIVersion string
	Insecure   bool
}

// Client is an authenticated vCloud Director API session scoped to one
// organization VDC. It implements gateway.Client and gateway.WorkloadLookup.
type Client struct {
	cfg      Config
	base     *url.URL
	http     *http.Client
	timeouts *config.Timeouts

	mu      sync.Mutex
	token   string
	vdcHREF string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeouts sets request timeout and retry settings.
func WithTimeouts(t *config.Timeouts) Option {
	return func(c *Client) {
		c.timeouts = t
	}
}

// NewClient creates a client. No request is made until the first call.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid vcd url %q", cfg.URL)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}

	c := &Client{cfg: cfg, base: base, timeouts: config.LoadTimeouts()}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Insecure {
			// #nosec G402
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		c.http = &http.Client{Transport: transport, Timeout: c.timeouts.RequestTimeout}
	}
	return c, nil
}

// resolve turns an API path or an href returned by the API into a URL.
func (c *Client) resolve(href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	return c.base.ResolveReference(u).String(), nil
}

// login opens a session and stores its token.
func (c *Client) login(ctx context.Context) error {
	endpoint, err := c.resolve("/api/sessions")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.User+"@"+c.cfg.Org, c.cfg.Password)
	req.Header.Set("Accept", "application/*+xml;version="+c.cfg.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log in to %s: %w", c.base.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("failed to log in as %s@%s: %w", c.cfg.User, c.cfg.Org, readAPIError(resp))
	}
	token := resp.Header.Get(headerAuthorization)
	if token == "" {
		return fmt.Errorf("login response carries no %s header", headerAuthorization)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	logr.FromContextOrDiscard(ctx).V(1).Info("vcd session opened", "host", c.base.Host, "org", c.cfg.Org)
	return nil
}

func (c *Client) sessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// request sends one API request and decodes a 2xx body into out, if given.
// Transient failures are retried; an expired session is renewed once.
func (c *Client) request(ctx context.Context, method, href, contentType string, body []byte, out any) error {
	endpoint, err := c.resolve(href)
	if err != nil {
		return err
	}
	logger := logr.FromContextOrDiscard(ctx)

	return retry.Do(ctx, func(ctx context.Context) error {
		if c.sessionToken() == "" {
			if err := c.login(ctx); err != nil {
				return retry.Fatal(err)
			}
		}

		resp, err := c.send(ctx, method, endpoint, contentType, body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			if err := c.login(ctx); err != nil {
				return retry.Fatal(err)
			}
			if resp, err = c.send(ctx, method, endpoint, contentType, body); err != nil {
				return err
			}
		}
		defer func() { _ = resp.Body.Close() }()

		logger.V(2).Info("vcd request", "method", method, "url", endpoint, "status", resp.StatusCode)
		if resp.StatusCode/100 != 2 {
			apiErr := readAPIError(resp)
			if isTransient(apiErr) {
				return apiErr
			}
			return retry.Fatal(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Fatal(fmt.Errorf("failed to decode %s response: %w", endpoint, err))
		}
		return nil
	},
		retry.WithMaxAttempts(c.timeouts.RetryMaxAttempts+1),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay),
		retry.WithRetryIf(isTransient),
	)
}

func (c *Client) send(ctx context.Context, method, endpoint, contentType string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, retry.Fatal(err)
	}
	req.Header.Set("Accept", "application/*+xml;version="+c.cfg.APIVersion)
	req.Header.Set(headerAuthorization, c.sessionToken())
	req.Header.Set(headerRequestID, uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func readAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var body apiError
	if xml.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
		apiErr.MinorErrorCode = body.MinorErrorCode
	}
	return apiErr
}

// query runs a typed records query restricted by filter.
func (c *Client) query(ctx context.Context, typ, filter string) (*queryResultRecords, error) {
	params := url.Values{}
	params.Set("type", typ)
	params.Set("format", "records")
	params.Set("filter", filter)

	var records queryResultRecords
	if err := c.request(ctx, http.MethodGet, "/api/query?"+params.Encode(), "", nil, &records); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", typ, err)
	}
	return &records, nil
}

// vdc returns the href of the configured organization VDC.
func (c *Client) vdc(ctx context.Context) (string, error) {
	c.mu.Lock()
	href := c.vdcHREF
	c.mu.Unlock()
	if href != "" {
		return href, nil
	}

	records, err := c.query(ctx, "orgVdc", "name=="+c.cfg.VDC)
	if err != nil {
		return "", err
	}
	if len(records.OrgVdcs) == 0 {
		return "", fmt.Errorf("vdc %q not found in org %q", c.cfg.VDC, c.cfg.Org)
	}

	c.mu.Lock()
	c.vdcHREF = records.OrgVdcs[0].HREF
	c.mu.Unlock()
	return records.OrgVdcs[0].HREF, nil
}

// findInVDC returns the href of the named record of typ inside the VDC, or
// "" when there is none.
func (c *Client) findInVDC(ctx context.Context, typ, name string) (string, error) {
	vdc, err := c.vdc(ctx)
	if err != nil {
		return "", err
	}
	records, err := c.query(ctx, typ, fmt.Sprintf("name==%s;vdc==%s", name, vdc))
	if err != nil {
		return "", err
	}
	var all []queryRecord
	all = append(all, records.EdgeGateways...)
	all = append(all, records.VApps...)
	for _, r := range all {
		if r.Name == name {
			return r.HREF, nil
		}
	}
	return "", nil
}
