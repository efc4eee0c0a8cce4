package client

import (
	"errors"
	"net/http"
	"strings"

	"medportal/client/session"
	"medportal/internal/metrics"

	"golang.org/x/sync/singleflight"
)

const (
	loginPath   = "/api/auth/login"
	refreshPath = "/api/auth/refresh"
	logoutPath  = "/api/auth/logout"

	refreshKey = "refresh"
)

// Client performs authenticated calls against the practice API.
// The refresh group is owned by the instance: every call made through the
// same Client shares a single in-flight token refresh.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *session.Store
	observer   metrics.ClientObserver

	refreshGroup singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithObserver(obs metrics.ClientObserver) Option {
	return func(c *Client) {
		if obs != nil {
			c.observer = obs
		}
	}
}

func New(baseURL string, store *session.Store, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 0},
		store:      store,
		observer:   metrics.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Client) Session() *session.Store {
	return c.store
}

func (c *Client) BaseURL() string {
	return c.baseURL
}
