// Package api talks to the remote bill store over HTTP/JSON.
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
	"strconv"
	"strings"
	"time"

	"walletwise/internal/bills"
	"walletwise/internal/core"
	applog "walletwise/internal/log"
)

const (
	pathLogin    = "/api/auth/login"
	pathBills    = "/api/contas"
	pathBetween  = "/api/consult-contas"
	pathRegister = "/api/cadastro-conta"
	pathChange   = "/api/contas/mudar-estado"

	maxBodyBytes = 4 << 20
)

// Observer receives per-request timings and parse rejections.
type Observer interface {
	ObserveAPI(endpoint string, d time.Duration, err error)
	RejectedRecords(n int)
}

// Client implements bills.Backend against the remote API.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	observer Observer
	logger   *applog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func WithLogger(l *applog.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent(applog.ComponentBills) }
}

// New builds a client for baseURL. No request is made.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		logger:  applog.Default(applog.ComponentBills),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login checks credentials with the API.
func (c *Client) Login(ctx context.Context, username, password string) (bills.Identity, error) {
	var out loginResponse
	err := c.do(ctx, "login", http.MethodPost, pathLogin, nil, loginRequest{Username: username, Senha: password}, &out)
	if err != nil {
		var ae *bills.APIError
		if errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusBadRequest || ae.Status == http.StatusForbidden) {
			return bills.Identity{}, fmt.Errorf("%w: %w", bills.ErrInvalidCredentials, ae)
		}
		return bills.Identity{}, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(out.UserID.Text), 10, 64)
	if err != nil {
		return bills.Identity{}, &bills.ParseError{Field: "user_id", Reason: "not an integer"}
	}
	return bills.Identity{UserID: id, Name: strings.TrimSpace(out.Nome)}, nil
}

// ListBills fetches every bill.
func (c *Client) ListBills(ctx context.Context) ([]core.Bill, error) {
	return c.list(ctx, "list", pathBills, nil)
}

// ListBillsBetween fetches bills due in [from, to]. Zero bounds are omitted.
func (c *Client) ListBillsBetween(ctx context.Context, from, to core.Date) ([]core.Bill, error) {
	q := url.Values{}
	if !from.IsZero() {
		q.Set("inicio", from.String())
	}
	if !to.IsZero() {
		q.Set("fim", to.String())
	}
	return c.list(ctx, "consult", pathBetween, q)
}

// CreateBill registers a bill and returns the record the API created. When
// the API answers with an empty body the submitted bill is returned as is.
func (c *Client) CreateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "register", http.MethodPost, pathRegister, nil, toNewBillRequest(b), &raw); err != nil {
		return core.Bill{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || raw[0] != '{' {
		return b, nil
	}
	created, err := parseRecord(0, raw)
	if err != nil {
		c.logger.WarnContext(ctx, "Created bill record did not parse", applog.FieldError, err)
		return b, nil
	}
	return created, nil
}

// ChangeBill sends a partial update.
func (c *Client) ChangeBill(ctx context.Context, ch bills.Change) error {
	return c.do(ctx, "change", http.MethodPost, pathChange, nil, toChangeRequest(ch), nil)
}

func (c *Client) list(ctx context.Context, endpoint, path string, q url.Values) ([]core.Bill, error) {
	var records []json.RawMessage
	if err := c.do(ctx, endpoint, http.MethodGet, path, q, nil, &records); err != nil {
		return nil, err
	}
	out := make([]core.Bill, 0, len(records))
	rejected := 0
	for i, raw := range records {
		b, err := parseRecord(i, raw)
		if err != nil {
			rejected++
			c.logger.WarnContext(ctx, "Skipping bill record",
				applog.FieldOperation, applog.OpParse,
				applog.FieldError, err.Error(),
				applog.FieldErrorType, applog.ErrorTypeParse)
			continue
		}
		out = append(out, b)
	}
	if c.observer != nil {
		c.observer.RejectedRecords(rejected)
	}
	return out, nil
}

// do sends one request. Transport failures are wrapped in
// bills.ErrUnreachable and non-2xx answers become *bills.APIError.
func (c *Client) do(ctx context.Context, endpoint, method, path string, q url.Values, in, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveAPI(endpoint, time.Since(start), err)
		}
	}()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", bills.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", bills.ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageResponse
		_ = json.Unmarshal(data, &msg)
		return &bills.APIError{Status: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &bills.ParseError{Reason: fmt.Sprintf("decode %s response: %v", endpoint, err)}
	}
	return nil
}
