// Package driver is a Channel backed by a local messaging automation
// service spoken to over HTTP/JSON.
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/groupmsg/internal/domain/delivery"
)

// SessionStore persists the driver session between runs.
type SessionStore interface {
	Load(channel string) (delivery.Session, bool, error)
	Save(channel string, s delivery.Session) error
}

type Client struct {
	base   *url.URL
	hc     *http.Client
	store  SessionStore
	logger *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.hc = hc } }

func WithSessionStore(s SessionStore) Option { return func(c *Client) { c.store = s } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("driver url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("driver url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:   u,
		hc:     &http.Client{Timeout: timeout},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Name() string { return "driver" }

type openRequest struct {
	Resume []byte `json:"resume,omitempty"`
}

type openResponse struct {
	ID    string `json:"id"`
	State []byte `json:"state"`
}

// OpenSession resumes the stored session when there is one. The driver may
// hand back a fresh session if the old one is no longer usable.
func (c *Client) OpenSession(ctx context.Context) (delivery.Session, error) {
	var req openRequest
	if c.store != nil {
		prev, ok, err := c.store.Load(c.Name())
		if err != nil {
			c.logger.Warn("driver: could not load saved session", "error", err)
		} else if ok {
			req.Resume = prev.State
		}
	}

	var res openResponse
	if err := c.call(ctx, http.MethodPost, "/session", req, &res); err != nil {
		return delivery.Session{}, fmt.Errorf("open session: %w", err)
	}
	if res.ID == "" {
		return delivery.Session{}, errors.New("open session: driver returned no session id")
	}
	s := delivery.Session{ID: res.ID, State: res.State}
	if c.store != nil {
		if err := c.store.Save(c.Name(), s); err != nil {
			c.logger.Warn("driver: could not save session", "error", err)
		}
	}
	c.logger.Debug("driver: session open", "session", s.ID, "resumed", req.Resume != nil)
	return s, nil
}

type sendRequest struct {
	Target  string `json:"target"`
	By      string `json:"by"`
	Message string `json:"message"`
}

type sendResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (c *Client) LocateAndSend(ctx context.Context, s delivery.Session, target delivery.Target, body string) (delivery.SendResult, error) {
	var res sendResponse
	err := c.call(ctx, http.MethodPost, "/session/"+url.PathEscape(s.ID)+"/send",
		sendRequest{Target: target.Value, By: string(target.Kind), Message: body}, &res)

	var se *statusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.status == http.StatusNotFound:
		return delivery.SendResult{Status: delivery.StatusNotFound, Detail: se.Error()}, nil
	case IsTransient(err):
		return delivery.SendResult{Status: delivery.StatusTransient, Detail: err.Error()}, nil
	default:
		return delivery.SendResult{}, err
	}

	switch res.Status {
	case "ok", "sent":
		return delivery.SendResult{Status: delivery.StatusOK, Detail: res.Detail}, nil
	case "not_found":
		return delivery.SendResult{Status: delivery.StatusNotFound, Detail: res.Detail}, nil
	case "transient_error", "retry":
		return delivery.SendResult{Status: delivery.StatusTransient, Detail: res.Detail}, nil
	default:
		return delivery.SendResult{}, fmt.Errorf("driver: unknown send status %q", res.Status)
	}
}

func (c *Client) CloseSession(ctx context.Context, s delivery.Session) error {
	err := c.call(ctx, http.MethodDelete, "/session/"+url.PathEscape(s.ID), nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return nil
	}
	return err
}

// Ping checks that the driver is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/status", nil, nil)
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

// call sends in as JSON and decodes a 2xx response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = b
	}
	status, resBody, err := c.do(ctx, method, c.base.String()+path, body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewTransientError(fmt.Errorf("driver request failed: %w", err))
	}
	if status < 200 || status >= 300 {
		return &statusError{status: status, err: classifyStatus(status, resBody)}
	}
	if out == nil || len(bytes.TrimSpace(resBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return fmt.Errorf("decode driver response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
