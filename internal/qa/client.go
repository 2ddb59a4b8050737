// Package qa talks to the remote question-answering service.
package qa

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/net/proxy"
)

const maxResponseBytes = 4 << 20

// ErrMalformedResponse reports a response body that is not the expected JSON shape.
var ErrMalformedResponse = errors.New("malformed response")

// APIError is an explicit `success:false` reply from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

// Stats is the opaque dataset summary returned by initialize.
type Stats map[string]any

// Options configures a Client.
type Options struct {
	BaseURL     string
	Dataset     string
	InitTimeout time.Duration
	AskTimeout  time.Duration
	SOCKSProxy  string
	HTTPClient  *http.Client
}

// Client issues initialize and ask calls for one dataset.
type Client struct {
	base        *url.URL
	dataset     string
	initTimeout time.Duration
	askTimeout  time.Duration
	http        *http.Client
}

type initializeResponse struct {
	Success *bool  `json:"success"`
	Stats   Stats  `json:"stats,omitempty"`
	Message string `json:"message,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Success *bool   `json:"success"`
	Answer  *string `json:"answer,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// NewClient validates options and builds a client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", opts.BaseURL)
	}
	dataset := strings.TrimSpace(opts.Dataset)
	if dataset == "" {
		return nil, errors.New("dataset must not be empty")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
		if addr := strings.TrimSpace(opts.SOCKSProxy); addr != "" {
			httpClient, err = newSOCKSClient(addr)
			if err != nil {
				return nil, err
			}
		}
	}

	return &Client{
		base:        base,
		dataset:     dataset,
		initTimeout: opts.InitTimeout,
		askTimeout:  opts.AskTimeout,
		http:        httpClient,
	}, nil
}

// Dataset returns the dataset every call is routed to.
func (c *Client) Dataset() string {
	return c.dataset
}

// Initialize prepares the dataset on the server and returns its stats.
func (c *Client) Initialize(ctx context.Context) (Stats, error) {
	var resp initializeResponse
	if err := c.post(ctx, c.initTimeout, "initialize", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Success == nil {
		return nil, fmt.Errorf("%w: missing success field", ErrMalformedResponse)
	}
	if !*resp.Success {
		return nil, &APIError{Message: resp.Message}
	}
	if resp.Stats == nil {
		resp.Stats = Stats{}
	}
	return resp.Stats, nil
}

// Ask sends one stateless question and returns the answer text.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	var resp askResponse
	if err := c.post(ctx, c.askTimeout, "ask", askRequest{Question: question}, &resp); err != nil {
		return "", err
	}
	if resp.Success == nil {
		return "", fmt.Errorf("%w: missing success field", ErrMalformedResponse)
	}
	if !*resp.Success {
		return "", &APIError{Message: resp.Error}
	}
	if resp.Answer == nil {
		return "", fmt.Errorf("%w: missing answer", ErrMalformedResponse)
	}
	return *resp.Answer, nil
}

// Ping checks that the service accepts TCP connections.
func (c *Client) Ping(ctx context.Context) error {
	host := c.base.Host
	if c.base.Port() == "" {
		port := "80"
		if c.base.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(c.base.Hostname(), port)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) post(ctx context.Context, timeout time.Duration, op string, body any, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var payload io.Reader = http.NoBody
	if body != nil {
		buf, err := sonic.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(op), payload)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}

	// Failure replies carry a JSON body with a 4xx/5xx status, so decode first.
	if err := sonic.Unmarshal(raw, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) endpoint(op string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/api/" + c.dataset + "/" + op
	u.RawPath = ""
	return u.String()
}

func newSOCKSClient(addr string) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks proxy %q: %w", addr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}
	return &http.Client{Transport: transport}, nil
}
