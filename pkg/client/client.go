package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

// maxBody bounds how much of a response is read
const maxBody = 16 << 20

// Options tunes the HTTP transport
type Options struct {
	// Timeout bounds each HTTP attempt
	Timeout time.Duration

	// Retry drives transport-level retries of transient failures. Its
	// MaxAttempts counts the first request; 0 or 1 disables retries.
	Retry retry.Policy

	// UserAgent is sent with every request
	UserAgent string
}

// Client talks to the control-plane REST API
type Client struct {
	baseURL   string
	http      *retryablehttp.Client
	userAgent string
	logger    zerolog.Logger
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, opts Options) *Client {
	logger := log.WithComponent("client")

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = log.NewLeveled(logger)
	rc.RetryMax = opts.Retry.MaxAttempts - 1
	if rc.RetryMax < 0 {
		rc.RetryMax = 0
	}
	rc.RetryWaitMin = opts.Retry.Delay
	rc.RetryWaitMax = opts.Retry.MaxDelay
	policy := opts.Retry
	rc.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return policy.DelayFor(attemptNum + 1)
	}
	rc.CheckRetry = retryablehttp.DefaultRetryPolicy
	// Hand the last response back so status codes map onto StatusError
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	ua := opts.UserAgent
	if ua == "" {
		ua = "edgeagent"
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      rc,
		userAgent: ua,
		logger:    logger,
	}
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token authenticates with the device identity
func (c *Client) Token(ctx context.Context, id types.DeviceIdentity) (*Token, error) {
	form := url.Values{}
	form.Set("username", id.SerialNumber)
	form.Set("password", id.BoardSerialNumber)

	req, err := c.newRequest(ctx, http.MethodPost, "token/", "", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp tokenResponse
	if err := c.do(req, "token/", http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}
	if resp.Access == "" {
		return nil, fmt.Errorf("obtain token: %w: empty access token", ErrUnexpectedResponse)
	}

	tok := &Token{Access: resp.Access, Refresh: resp.Refresh}
	// The signature is the control plane's business; only the shape and
	// expiry matter here
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Access, &claims); err != nil {
		return nil, fmt.Errorf("obtain token: %w: %v", ErrUnexpectedResponse, err)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tok.Expires = exp.Time
	}
	c.logger.Debug().Time("expires", tok.Expires).Msg("Token obtained")
	return tok, nil
}

// LookupDevice returns the device registered under serial
func (c *Client) LookupDevice(ctx context.Context, tok *Token, serial string) (*Device, error) {
	path := "devices/?serial_number=" + url.QueryEscape(serial)
	req, err := c.newRequest(ctx, http.MethodGet, path, tok.Access, nil)
	if err != nil {
		return nil, err
	}

	var devices []Device
	if err := c.do(req, "devices/", http.StatusOK, &devices); err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	return &devices[0], nil
}

// PostOnline records a heartbeat
func (c *Client) PostOnline(ctx context.Context, tok *Token, ev OnlineEvent) error {
	return c.postJSON(ctx, tok, "device-online/", ev)
}

// PostUpdate records a completed update pass
func (c *Client) PostUpdate(ctx context.Context, tok *Token, ev UpdateEvent) error {
	return c.postJSON(ctx, tok, "device-update/", ev)
}

// AssignedLink returns the tunnel descriptor URI assigned to the device
func (c *Client) AssignedLink(ctx context.Context, tok *Token) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "device-v2ray/", tok.Access, nil)
	if err != nil {
		return "", err
	}
	var assignments []deviceV2ray
	if err := c.do(req, "device-v2ray/", http.StatusOK, &assignments); err != nil {
		return "", fmt.Errorf("fetch assignment: %w", err)
	}

	id := 0
	for _, a := range assignments {
		if a.ServerList != 0 {
			id = a.ServerList
			break
		}
	}
	if id == 0 {
		return "", fmt.Errorf("fetch assignment: %w: no server list assigned", ErrUnexpectedResponse)
	}

	path := "server-list/" + strconv.Itoa(id) + "/"
	req, err = c.newRequest(ctx, http.MethodGet, path, tok.Access, nil)
	if err != nil {
		return "", err
	}
	var sl serverList
	if err := c.do(req, path, http.StatusOK, &sl); err != nil {
		return "", fmt.Errorf("fetch server list %d: %w", id, err)
	}
	link := strings.TrimSpace(sl.V2rayLink)
	if link == "" {
		return "", fmt.Errorf("fetch server list %d: %w: empty link", id, ErrUnexpectedResponse)
	}
	return link, nil
}

// FileDeliveries lists the files queued for the device
func (c *Client) FileDeliveries(ctx context.Context, tok *Token) ([]FileDelivery, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "device-file/", tok.Access, nil)
	if err != nil {
		return nil, err
	}
	var files []FileDelivery
	if err := c.do(req, "device-file/", http.StatusOK, &files); err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	return files, nil
}

// MarkDelivered flags a delivery as applied
func (c *Client) MarkDelivered(ctx context.Context, tok *Token, id int, at time.Time) error {
	body, err := json.Marshal(fileDeliveryPatch{Applied: true, AppliedAt: at})
	if err != nil {
		return err
	}
	path := "device-file/" + strconv.Itoa(id) + "/"
	req, err := c.newRequest(ctx, http.MethodPatch, path, tok.Access, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, path, http.StatusOK, nil); err != nil {
		return fmt.Errorf("mark delivery %d: %w", id, err)
	}
	return nil
}

// Fetch downloads an absolute URL bypassing caches
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Method: http.MethodGet, Path: rawURL, Code: resp.StatusCode, Body: truncate(data)}
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, tok *Token, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, tok.Access, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, path, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path, access string, body io.Reader) (*retryablehttp.Request, error) {
	var raw interface{}
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+"/api/"+path, raw)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	return req, nil
}

// do sends req and decodes a JSON body into out when out is non-nil
func (c *Client) do(req *retryablehttp.Request, path string, want int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != want {
		return &StatusError{Method: req.Method, Path: path, Code: resp.StatusCode, Body: truncate(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnexpectedResponse, path, err)
	}
	return nil
}

// readBody reads at most maxBody bytes and fails rather than hand back a
// short body
func readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > maxBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBody)
	}
	return data, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// IsTransient reports whether err is worth another attempt at a higher level
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrUnexpectedResponse) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// Retryable marks err as permanent for retry.Do unless another attempt could
// succeed
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || !IsTransient(err) {
		return retry.Permanent(err)
	}
	return err
}
