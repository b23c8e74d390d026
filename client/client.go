// Package client drives the Colino authorization flow from the CLI
// side: it starts a flow, polls the session until the browser half
// finishes, and refreshes access tokens once the original ones go
// stale.
package client

import (
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultPollInterval = 2 * time.Second

type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

type Option func(*Client)

// WithHTTPClient overrides the retrying default, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithPollInterval sets the wait between session polls.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

// New builds a client for the auth service rooted at baseURL.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   defaultHTTPClient(),
		pollInterval: defaultPollInterval,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// leveledZerolog adapts zerolog to retryablehttp's logger. Client ERROR
// is rewritten to WARN because intermediate failures are retried.
type leveledZerolog struct {
	inner zerolog.Logger
}

func (l leveledZerolog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Info(msg string, keysAndValues ...any) {
	l.inner.Info().Fields(keysAndValues).Msg(msg)
}

func (l leveledZerolog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug().Fields(keysAndValues).Msg(msg)
}

// defaultHTTPClient retries connection errors and 5xx responses. Short
// waits: the CLI sits between a human and their terminal.
func defaultHTTPClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(leveledZerolog{inner: log.Logger})

	client := retryClient.StandardClient()
	client.Timeout = 30 * time.Second
	return client
}
