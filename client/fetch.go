package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"medportal/client/session"
	v1 "medportal/pkg/api/v1"
	"medportal/pkg/constraints"
	"medportal/pkg/logger"

	"go.uber.org/zap"
)

// Request describes one logical API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is sent as JSON unless it is a []byte or an io.Reader.
	Body   any
	Header http.Header
	// Public requests carry no credentials and never trigger a refresh.
	Public       bool
	ResponseType constraints.ResponseType

	skipRefresh bool
}

// Response is a successful response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Empty reports whether the server answered 204 No Content.
func (r *Response) Empty() bool {
	return r.Status == http.StatusNoContent
}

// Do sends req and returns the successful response. On a 401 for an
// authenticated call it refreshes the session once, shared with every
// concurrent caller, and retries the call exactly once.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	payload, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header = req.Header.Clone()
		if req.Header == nil {
			req.Header = make(http.Header)
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
	}
	return c.send(ctx, req, payload)
}

func (c *Client) send(ctx context.Context, req Request, payload []byte) (*Response, error) {
	var tokens *session.Tokens
	if !req.Public {
		t, err := c.store.Get(ctx)
		if err != nil {
			return nil, err
		}
		if t == nil || t.AccessToken == "" {
			return nil, authRequired()
		}
		tokens = t
	}

	httpReq, err := c.newRequest(ctx, req, payload, tokens)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.observer.ObserveRequest(httpReq.Method, resp.StatusCode, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Public && !req.skipRefresh {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		req.skipRefresh = true
		return c.send(ctx, req, payload)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request, payload []byte, tokens *session.Tokens) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint(req.Path, req.Query), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" && responseType(req.ResponseType) == constraints.ResponseJSON {
		httpReq.Header.Set("Accept", "application/json")
	}
	if tokens != nil {
		httpReq.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	}
	return httpReq, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Fetch performs req and decodes the body into out according to
// req.ResponseType: any JSON target, *[]byte for blob, *string for text.
// A 204 response leaves out untouched. out may be nil to discard the body.
func (c *Client) Fetch(ctx context.Context, req Request, out any) error {
	res, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if res.Empty() || out == nil {
		return nil
	}

	switch rt := responseType(req.ResponseType); rt {
	case constraints.ResponseJSON:
		if err := json.Unmarshal(res.Body, out); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	case constraints.ResponseBlob:
		dst, ok := out.(*[]byte)
		if !ok {
			return fmt.Errorf("blob response needs *[]byte, got %T", out)
		}
		*dst = res.Body
	case constraints.ResponseText:
		dst, ok := out.(*string)
		if !ok {
			return fmt.Errorf("text response needs *string, got %T", out)
		}
		*dst = string(res.Body)
	default:
		return fmt.Errorf("unsupported response type %q", rt)
	}
	return nil
}

// FetchJSON decodes the response into a new T. It returns nil, nil on 204.
func FetchJSON[T any](ctx context.Context, c *Client, req Request) (*T, error) {
	req.ResponseType = constraints.ResponseJSON
	res, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Empty() {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(res.Body, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &v, nil
}

func responseType(rt constraints.ResponseType) constraints.ResponseType {
	if rt == "" {
		return constraints.ResponseJSON
	}
	return rt
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "", nil
	case io.Reader:
		raw, err := io.ReadAll(b)
		if err != nil {
			return nil, "", fmt.Errorf("read request body: %w", err)
		}
		return raw, "", nil
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return raw, "application/json", nil
	}
}

// refresh joins the in-flight refresh or starts one. The refresh itself runs
// detached from ctx so that one caller giving up does not fail the others.
func (c *Client) refresh(ctx context.Context) error {
	current, err := c.store.Get(ctx)
	if err != nil {
		return err
	}
	if current == nil || current.RefreshToken == "" {
		c.clearSession(ctx)
		return authRequired()
	}

	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return c.refreshTokens(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *Client) refreshTokens(ctx context.Context) (*session.Tokens, error) {
	prev, err := c.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	if prev == nil || prev.RefreshToken == "" {
		c.clearSession(ctx)
		return nil, authRequired()
	}

	next := c.requestRefresh(ctx, prev)
	if next == nil {
		c.observer.RecordRefresh(false)
		c.clearSession(ctx)
		return nil, authRequired()
	}
	if err := c.store.Set(ctx, *next); err != nil {
		logger.Error("failed to persist refreshed session", zap.Error(err))
		c.observer.RecordRefresh(false)
		c.clearSession(ctx)
		return nil, fmt.Errorf("%w: %w", authRequired(), err)
	}
	c.observer.RecordRefresh(true)
	logger.Debug("session refreshed", zap.String("role", next.Role))
	return next, nil
}

// requestRefresh returns nil on any failure.
func (c *Client) requestRefresh(ctx context.Context, prev *session.Tokens) *session.Tokens {
	u := c.endpoint(refreshPath, url.Values{"token": {prev.RefreshToken}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("token refresh failed", zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("token refresh rejected", zap.Int("status", resp.StatusCode))
		return nil
	}

	var pair v1.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil || pair.AccessToken == "" {
		logger.Warn("token refresh returned an unusable payload", zap.Error(err))
		return nil
	}

	role := prev.Role
	if pair.Role != "" {
		role = pair.Role
	}
	return &session.Tokens{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Role:         role,
		Email:        prev.Email,
	}
}

func (c *Client) clearSession(ctx context.Context) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to clear session", zap.Error(err))
	}
}
