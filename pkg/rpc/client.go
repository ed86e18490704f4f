package rpc

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
)

const (
	// DefaultPort is the port pcsd listens on
	DefaultPort = 2224
	// DefaultTimeout bounds a single node call
	DefaultTimeout = 5 * time.Second
	// DefaultMaxBodyBytes caps how much of a response is read
	DefaultMaxBodyBytes int64 = 10 << 20

	// TokenCookie carries the bearer token for peers that only read cookies
	TokenCookie = "token"
)

// TokenSource returns the token to present to a node, or "" if none is known
type TokenSource interface {
	Token(node string) string
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func(node string) string

// Token calls f
func (f TokenFunc) Token(node string) string {
	return f(node)
}

// Request is one call to /remote/<Command> on a node
type Request struct {
	Command string
	// Post selects POST; GET is used otherwise
	Post bool
	// Form is sent as the query string for GET and as the body for POST
	// when Body is empty
	Form url.Values
	// Body is sent verbatim for POST with ContentType
	Body        []byte
	ContentType string
	// Token overrides the TokenSource for this call
	Token string
	// Path replaces /remote/<Command> for the local management routes
	Path string
}

// Response is the raw answer of a node
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Config configures a Client
type Config struct {
	Port         int
	Timeout      time.Duration
	MaxBodyBytes int64
	Tokens       TokenSource
	// Transport replaces the default TLS transport (tests)
	Transport http.RoundTripper
}

// Client issues authenticated HTTPS calls to pcsd on other nodes.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	http    *http.Client
	port    int
	timeout time.Duration
	maxBody int64
	tokens  TokenSource
}

// NewClient creates a node RPC client. Certificates are not verified; peers
// are trusted through their tokens.
func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newTransport(cfg.Timeout)
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		port:    cfg.Port,
		timeout: cfg.Timeout,
		maxBody: cfg.MaxBodyBytes,
		tokens:  cfg.Tokens,
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, //nolint:gosec // self-signed node certificates
		TLSHandshakeTimeout: timeout,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Timeout returns the per-call timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// URL returns the address of command on node. A node name that already
// carries a port is used unchanged.
func (c *Client) URL(node, command string) string {
	return c.endpoint(node, "/remote/"+command)
}

func (c *Client) endpoint(host, path string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(c.port))
	}
	u := url.URL{Scheme: "https", Host: host, Path: path}
	return u.String()
}

// Call performs req against node. A transport failure yields an *Error with
// no response. A non-2xx answer yields both the response and an *Error of
// KindHTTP so callers can relay it.
func (c *Client) Call(ctx context.Context, node string, req Request) (*Response, error) {
	timer := metrics.NewTimer()
	resp, err := c.do(ctx, node, req)
	timer.ObserveDurationVec(metrics.RPCRequestDuration, req.Command)

	result := "success"
	if kind, ok := KindOf(err); ok {
		result = kind.String()
	} else if err != nil {
		result = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(req.Command, result).Inc()

	logger := log.WithNode(node)
	if err != nil {
		logger.Debug().Err(err).Str("command", req.Command).Dur("duration", timer.Duration()).Msg("node call failed")
	} else {
		logger.Debug().Str("command", req.Command).Int("status", resp.StatusCode).Dur("duration", timer.Duration()).Msg("node call")
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, node string, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newRequest(ctx, node, req)
	if err != nil {
		return nil, &Error{Node: node, Command: req.Command, Kind: KindUnreachable, Err: err}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &Error{Node: node, Command: req.Command, Kind: classify(err), Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		return nil, &Error{Node: node, Command: req.Command, Kind: classify(err), Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("node %s: %s: %w (limit %d bytes)", node, req.Command, ErrBodyTooLarge, c.maxBody)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, &Error{Node: node, Command: req.Command, Kind: KindHTTP, Status: httpResp.StatusCode}
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, node string, req Request) (*http.Request, error) {
	target := c.URL(node, req.Command)
	if req.Path != "" {
		target = c.endpoint(node, req.Path)
	}

	var (
		method = http.MethodGet
		body   io.Reader
		ctype  string
	)
	if req.Post {
		method = http.MethodPost
		switch {
		case len(req.Body) > 0:
			body = bytes.NewReader(req.Body)
			ctype = req.ContentType
			if ctype == "" {
				ctype = "application/json"
			}
		default:
			body = strings.NewReader(req.Form.Encode())
			ctype = "application/x-www-form-urlencoded"
		}
	} else if len(req.Form) > 0 {
		target += "?" + req.Form.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", node, err)
	}
	if ctype != "" {
		httpReq.Header.Set("Content-Type", ctype)
	}
	httpReq.Header.Set("Accept", "application/json")

	token := req.Token
	if token == "" && c.tokens != nil {
		token = c.tokens.Token(node)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
	}
	return httpReq, nil
}

// Authenticate logs in to node with a username and password and returns the
// token it issues. This is the only call made without a token.
func (c *Client) Authenticate(ctx context.Context, node, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, err := c.Call(ctx, node, Request{Command: "auth", Post: true, Form: form})
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(resp.Body))
	if token == "" {
		return "", fmt.Errorf("node %s returned an empty token", node)
	}
	return token, nil
}
