// Package analysis submits accepted evidence to the detection backend and
// tracks the outcome of each submission.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/example/trafficwatch/internal/config"
	"github.com/example/trafficwatch/internal/intake"
)

// Request is the immutable outbound unit of work
type Request interface {
	Target() Endpoint
}

// FileRequest uploads one file in the multipart field "file"
type FileRequest struct {
	Endpoint Endpoint
	Upload   intake.Upload
}

// Target implements Request
func (r FileRequest) Target() Endpoint { return r.Endpoint }

// FormRequest posts a JSON document
type FormRequest struct {
	Endpoint Endpoint
	Payload  any
}

// Target implements Request
func (r FormRequest) Target() Endpoint { return r.Endpoint }

// Validate checks a request before it is sent
func Validate(req Request) error {
	if req == nil {
		return &ValidationError{Reason: ErrEmptyRequest.Error()}
	}
	switch r := req.(type) {
	case FileRequest:
		if r.Endpoint.Form {
			return &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("%s expects a form, not a file", r.Endpoint.Name)}
		}
		if r.Upload.Open == nil {
			return &ValidationError{Field: "file", Reason: ErrEmptyRequest.Error()}
		}
	case FormRequest:
		if !r.Endpoint.Form {
			return &ValidationError{Field: "endpoint", Reason: fmt.Sprintf("%s expects a file, not a form", r.Endpoint.Name)}
		}
		if r.Payload == nil {
			return &ValidationError{Field: "form", Reason: ErrEmptyRequest.Error()}
		}
	}
	if req.Target().Path == "" {
		return &ValidationError{Field: "endpoint", Reason: ErrUnknownEndpoint.Error()}
	}
	return nil
}

// Doer performs one backend call
type Doer interface {
	Do(ctx context.Context, req Request) (map[string]any, error)
}

// Client talks to the detection backend over HTTP
type Client struct {
	baseURL    string
	paths      map[string]string
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithPaths overrides endpoint paths by name
func WithPaths(paths map[string]string) ClientOption {
	return func(c *Client) {
		for name, p := range paths {
			if p != "" {
				c.paths[name] = p
			}
		}
	}
}

// WithClientCredentials authenticates every call with an OAuth2
// client-credentials token
func WithClientCredentials(cc clientcredentials.Config) ClientOption {
	return func(c *Client) {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		c.httpClient = cc.Client(ctx)
	}
}

// NewClient creates a backend client. The default HTTP client has no
// timeout; a call waits until the transport resolves.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		paths:      make(map[string]string),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig builds a client from the backend settings
func NewClientFromConfig(cfg config.BackendConfig) *Client {
	hc := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		hc.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	opts := []ClientOption{WithHTTPClient(hc), WithPaths(cfg.Endpoints)}
	if cfg.OAuth.ClientID != "" && cfg.OAuth.TokenURL != "" {
		opts = append(opts, WithClientCredentials(clientcredentials.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			TokenURL:     cfg.OAuth.TokenURL,
			Scopes:       cfg.OAuth.Scopes,
		}))
	}
	return NewClient(cfg.BaseURL, opts...)
}

// URL returns the full address of an endpoint
func (c *Client) URL(ep Endpoint) string {
	path := ep.Path
	if p, ok := c.paths[ep.Name]; ok {
		path = p
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Do sends the request and decodes the JSON reply. A reply carrying a
// detail string comes back with its payload and a *DomainError.
func (c *Client) Do(ctx context.Context, req Request) (map[string]any, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	ep := req.Target()
	body, contentType, err := c.encode(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(ep), body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("building request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	log.Debug().Str("endpoint", ep.Name).Str("url", httpReq.URL.String()).Msg("Submitting analysis request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	payload, decodeErr := decodeObject(raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := &TransportError{StatusCode: resp.StatusCode}
		if d, ok := detailOf(payload); ok {
			te.Detail = d
		} else if text := strings.TrimSpace(string(raw)); text != "" && decodeErr != nil {
			te.Detail = text
		}
		return payload, te
	}

	if decodeErr != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: decodeErr}
	}

	if d, ok := detailOf(payload); ok {
		return payload, &DomainError{Detail: d}
	}
	return payload, nil
}

func (c *Client) encode(req Request) (io.Reader, string, error) {
	switch r := req.(type) {
	case FormRequest:
		data, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, "", &ValidationError{Field: "form", Reason: fmt.Sprintf("encoding form: %v", err)}
		}
		return bytes.NewReader(data), "application/json", nil
	case FileRequest:
		return streamMultipart(r.Upload)
	default:
		return nil, "", &ValidationError{Reason: fmt.Sprintf("unsupported request %T", req)}
	}
}

// streamMultipart pipes the file into the body without buffering it whole
func streamMultipart(up intake.Upload) (io.Reader, string, error) {
	src, err := up.Open()
	if err != nil {
		return nil, "", &ValidationError{Field: "file", Reason: fmt.Sprintf("opening %s: %v", up.Name, err)}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer src.Close()

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Name))
		if up.MIMEType != "" {
			header.Set("Content-Type", up.MIMEType)
		} else {
			header.Set("Content-Type", "application/octet-stream")
		}

		part, err := mw.CreatePart(header)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType(), nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedBody)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedBody)
	}
	return payload, nil
}

func detailOf(payload map[string]any) (string, bool) {
	if payload == nil {
		return "", false
	}
	d, ok := payload["detail"].(string)
	return d, ok
}
