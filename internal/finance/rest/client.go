// Package rest is the HTTP client for the remote finance API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finfix/internal/core"
	"finfix/internal/finance"
)

// maxErrorBody caps how much of a failed response is kept in StatusError.
const maxErrorBody = 512

type Client struct {
	base string
	http *http.Client
}

var _ finance.Backend = (*Client)(nil)

// New creates a client for the API rooted at base.
func New(base string, timeout time.Duration) *Client {
	return NewWithHTTPClient(base, newHTTPClientWithPooling(timeout))
}

// NewWithHTTPClient lets tests point the client at an httptest server.
func NewWithHTTPClient(base string, hc *http.Client) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: hc}
}

// newHTTPClientWithPooling keeps connections to the API warm across the many
// small calls a wizard session makes.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func userPath(userID string, rest string) string {
	return "/users/" + url.PathEscape(userID) + rest
}

func (c *Client) FetchSummary(ctx context.Context, userID string) (core.Summary, error) {
	var out core.Summary
	if err := c.do(ctx, http.MethodGet, userPath(userID, "/onboarding/summary"), nil, &out); err != nil {
		return core.Summary{}, err
	}
	return out, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpsertCurrency(ctx context.Context, userID string, currency core.Currency) error {
	body := struct {
		UID      string        `json:"uid"`
		Currency core.Currency `json:"currency"`
	}{userID, currency}
	return c.do(ctx, http.MethodPut, userPath(userID, "/onboarding/currency"), body, nil)
}

func (c *Client) UpsertIncomes(ctx context.Context, userID, incomes string) error {
	body := struct {
		UID     string `json:"uid"`
		Incomes string `json:"incomes"`
	}{userID, incomes}
	return c.do(ctx, http.MethodPut, userPath(userID, "/onboarding/incomes"), body, nil)
}

func (c *Client) CreateExpenses(ctx context.Context, expenses []core.Expense) error {
	return c.do(ctx, http.MethodPost, "/expenses/bulk", expenses, nil)
}

func (c *Client) CreateDebts(ctx context.Context, debts []core.Debt) error {
	return c.do(ctx, http.MethodPost, "/debts/bulk", debts, nil)
}

func (c *Client) UpdateDebt(ctx context.Context, id string, debt core.Debt) error {
	return c.do(ctx, http.MethodPatch, "/debts/"+url.PathEscape(id), debt, nil)
}

func (c *Client) DeleteDebt(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/debts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateInstallments(ctx context.Context, installments []core.Installment) error {
	return c.do(ctx, http.MethodPost, "/installments/bulk", installments, nil)
}

func (c *Client) DeleteInstallment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/installments/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CompleteOnboarding(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, userPath(userID, "/onboarding/complete"), nil, nil)
}

func (c *Client) Identity(ctx context.Context, userID string) (core.Identity, error) {
	var out core.Identity
	if err := c.do(ctx, http.MethodGet, userPath(userID, ""), nil, &out); err != nil {
		return core.Identity{}, err
	}
	return out, nil
}

// do sends in as JSON and decodes a 2xx response into out when out is set.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := finance.TokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(method+" "+path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, finance.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, finance.ErrUnauthorized)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &finance.StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
