package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	errs "github.com/mwarrick/digital-business-card-sub000/internal/errors"
	"github.com/tidwall/gjson"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxAPIResponseBytes caps response body reads. Card collections
	// with all child rows stay well below this.
	maxAPIResponseBytes = 8 * 1024 * 1024
)

// errSuperseded is the cancellation cause of a list request replaced by
// a newer request for the same endpoint.
var errSuperseded = errors.New("superseded by a newer request")

// CredentialStore provides the bearer credential and is told to forget
// it when the server answers 401.
type CredentialStore interface {
	Token() string
	ClearToken() error
}

// Client talks to the card API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialStore

	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflightRequest
}

type inflightRequest struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so the bearer credential never
// leaks to a third-party domain.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewHTTPClient returns an HTTP client with the given timeout that only
// follows same-host redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		CheckRedirect: sameHostRedirectPolicy,
	}
}

// NewClient creates an API client for baseURL. If httpClient is nil, a
// client with a 30-second timeout and same-host redirect policy is
// created.
func NewClient(baseURL string, creds CredentialStore, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(httpClientTimeout)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		inflight:   make(map[string]inflightRequest),
	}
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// supersede registers a new list request for endpoint, cancelling any
// request for the same endpoint still in flight. The returned release
// func must be called when the request finishes.
func (c *Client) supersede(ctx context.Context, endpoint string) (context.Context, func()) {
	reqCtx, cancel := context.WithCancelCause(ctx)

	c.mu.Lock()
	if prev, ok := c.inflight[endpoint]; ok {
		prev.cancel(errSuperseded)
	}
	c.seq++
	seq := c.seq
	c.inflight[endpoint] = inflightRequest{seq: seq, cancel: cancel}
	c.mu.Unlock()

	return reqCtx, func() {
		c.mu.Lock()
		// A newer request may have replaced our entry already.
		if cur, ok := c.inflight[endpoint]; ok && cur.seq == seq {
			delete(c.inflight, endpoint)
		}
		c.mu.Unlock()
		cancel(nil)
	}
}

// request is one call against the API.
type request struct {
	method      string
	endpoint    string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, endpoint string, query url.Values, v interface{}) (request, error) {
	req := request{method: method, endpoint: endpoint, query: query}
	if v == nil {
		return req, nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return request{}, fmt.Errorf("marshalling request body: %w", err)
	}

	req.body = payload
	req.contentType = "application/json"

	return req, nil
}

// do sends r and returns the envelope's data member. The envelope is
// {"success":bool,"message":string,"data":any}; success:false is a
// rejection even on HTTP 200.
func (c *Client) do(ctx context.Context, r request) (gjson.Result, error) {
	target := c.baseURL + r.endpoint
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, c.classifyTransport(ctx, r, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return gjson.Result{}, c.classifyTransport(ctx, r, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if c.creds != nil {
			_ = c.creds.ClearToken()
		}

		return gjson.Result{}, fmt.Errorf("%s %s: %w", r.method, r.endpoint, errs.ErrAuthExpired)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := envelopeMessage(respBody)
		if msg == "" {
			msg = sanitizeResponseBody(respBody)
		}

		return gjson.Result{}, &ServerRejectedError{Endpoint: r.endpoint, Status: resp.StatusCode, Message: msg}
	}

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, &DecodeError{Endpoint: r.endpoint, Err: fmt.Errorf("invalid JSON: %s", sanitizeResponseBody(respBody))}
	}

	success := gjson.GetBytes(respBody, "success")
	if !success.Exists() {
		return gjson.Result{}, &DecodeError{Endpoint: r.endpoint, Err: errors.New("missing success flag")}
	}

	if !success.Bool() {
		msg := envelopeMessage(respBody)
		if msg == "" {
			msg = "request unsuccessful"
		}

		return gjson.Result{}, &ServerRejectedError{Endpoint: r.endpoint, Status: resp.StatusCode, Message: msg}
	}

	return gjson.GetBytes(respBody, "data"), nil
}

// classifyTransport separates a superseded request from a caller
// cancellation and from a genuine network failure.
func (c *Client) classifyTransport(ctx context.Context, r request, err error) error {
	if errors.Is(context.Cause(ctx), errSuperseded) {
		return fmt.Errorf("%s %s: %w", r.method, r.endpoint, errs.ErrCancelled)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", r.method, r.endpoint, ctxErr)
	}

	return &TransportError{Err: fmt.Errorf("sending request to %s: %w", r.endpoint, err)}
}

func envelopeMessage(body []byte) string {
	res := gjson.GetManyBytes(body, "message", "error")
	for _, r := range res {
		if r.Type == gjson.String && r.Str != "" {
			return sanitizeResponseBody([]byte(r.Str))
		}
	}

	return ""
}

// decodeData unmarshals the envelope's data member into v.
func decodeData(endpoint string, data gjson.Result, v interface{}) error {
	if !data.Exists() || data.Type == gjson.Null {
		return &DecodeError{Endpoint: endpoint, Err: errors.New("missing data")}
	}

	if err := json.Unmarshal([]byte(data.Raw), v); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}

	return nil
}
