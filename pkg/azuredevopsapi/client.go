// Package azuredevopsapi is a small Azure DevOps Services REST client
// authenticated with a personal access token.
package azuredevopsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// DefaultAPIVersion is sent with every request unless overridden.
const DefaultAPIVersion = "7.0"

// Object is a decoded JSON object as returned by the service.
type Object = map[string]any

// Options configures a Client. Zero fields take defaults.
type Options struct {
	APIVersion string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls one Azure DevOps organization.
type Client struct {
	baseURL    *url.URL
	token      string
	apiVersion string
	http       *http.Client
	lg         *zap.Logger
}

// NewClient creates a client for organizationURL, e.g.
// https://dev.azure.com/contoso.
func NewClient(organizationURL, token string, opts Options) (*Client, error) {
	if organizationURL == "" {
		return nil, errors.New("organization url is required")
	}
	if token == "" {
		return nil, errors.New("personal access token is required")
	}
	u, err := url.Parse(strings.TrimRight(organizationURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse organization url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("organization url %q must be absolute", organizationURL)
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.HTTPClient == nil {
		// File reads carry their own deadline; no client-wide timeout.
		opts.HTTPClient = &http.Client{Transport: http.DefaultTransport}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    u,
		token:      token,
		apiVersion: opts.APIVersion,
		http:       opts.HTTPClient,
		lg:         opts.Logger,
	}, nil
}

// request describes one REST call relative to the organization URL.
type request struct {
	method     string
	project    string
	path       string
	query      url.Values
	body       any
	apiVersion string
	header     http.Header
}

func (c *Client) endpoint(r request) string {
	u := *c.baseURL
	segments := []string{strings.TrimRight(u.Path, "/")}
	if r.project != "" {
		segments = append(segments, r.project)
	}
	segments = append(segments, strings.TrimLeft(r.path, "/"))
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""

	q := url.Values{}
	for k, v := range r.query {
		q[k] = v
	}
	version := r.apiVersion
	if version == "" {
		version = c.apiVersion
	}
	q.Set("api-version", version)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r), body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.SetBasicAuth("", c.token)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		contentType := "application/json"
		if r.method == http.MethodPatch && strings.Contains(r.path, "/wit/") {
			contentType = "application/json-patch+json"
		}
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range r.header {
		req.Header[k] = v
	}
	return req, nil
}

// do executes r and returns the raw response. The caller closes the body.
// Non-2xx responses other than those listed in accept become *APIError.
func (c *Client) do(ctx context.Context, r request, accept ...int) (*http.Response, error) {
	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", r.method, r.path)
	}
	c.lg.Debug("Azure DevOps request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	for _, code := range accept {
		if resp.StatusCode == code {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Method:     r.method,
		Path:       r.path,
		Body:       strings.TrimSpace(string(b)),
	}
}

// doJSON executes r and decodes the response body into out.
func (c *Client) doJSON(ctx context.Context, r request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", r.method, r.path)
	}
	return nil
}

// listResponse is the collection envelope most list endpoints use.
type listResponse struct {
	Count int      `json:"count"`
	Value []Object `json:"value"`
}

func (c *Client) list(ctx context.Context, r request) ([]Object, error) {
	var lr listResponse
	if err := c.doJSON(ctx, r, &lr); err != nil {
		return nil, err
	}
	if lr.Value == nil {
		lr.Value = []Object{}
	}
	return lr.Value, nil
}

func (c *Client) object(ctx context.Context, r request) (Object, error) {
	var obj Object
	if err := c.doJSON(ctx, r, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// pathf formats a path relative to the organization or project. Values are
// left unescaped; url.URL escapes them when the request is built.
func pathf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
