// Package supabase counts rows of target tables through the Supabase REST endpoint
// (PostgREST). It is used to cross-check direct database counts after a migration.
package supabase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/httpclient"
	"github.com/casebridge/dispatch-migrate/internal/logger"
)

const restPath = "/rest/v1/"

// Client issues count requests against one Supabase project.
type Client struct {
	baseURL *url.URL
	key     string
	http    *httpclient.Client
	log     logger.Logger
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpConfig httpclient.Config
	log        logger.Logger
}

// WithTransport routes requests through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.httpConfig.Transport = rt }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.httpConfig.DefaultTimeout = d }
}

// WithLogger sets the logger for request tracing.
func WithLogger(l logger.Logger) Option {
	return func(o *clientOptions) { o.log = l }
}

// New creates a client from the supabase settings.
func New(settings conf.SupabaseSettings, opts ...Option) (*Client, error) {
	if !settings.Enabled() {
		return nil, errors.Newf("supabase url and service role key are required").
			Component("supabase").
			Category(errors.CategoryConfiguration).
			Build()
	}
	base, err := url.Parse(strings.TrimRight(settings.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Newf("invalid supabase url %q", logger.RedactSensitiveData(settings.URL)).
			Component("supabase").
			Category(errors.CategoryConfiguration).
			Build()
	}

	o := clientOptions{httpConfig: httpclient.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil)
	}

	c := &Client{
		baseURL: base,
		key:     settings.ServiceKey,
		http:    httpclient.New(&o.httpConfig),
		log:     log.Module("supabase"),
	}
	c.http.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
		fields := []logger.Field{
			logger.String("method", req.Method),
			logger.String("path", req.URL.Path),
			logger.Duration("duration", elapsed),
		}
		if resp != nil {
			fields = append(fields, logger.Int("status", resp.StatusCode))
		}
		if err != nil {
			fields = append(fields, logger.Error(err))
		}
		c.log.Debug("supabase request", fields...)
	})
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.http.Close()
}

// Count returns the exact number of rows in table.
func (c *Client) Count(ctx context.Context, table string) (int64, error) {
	return c.count(ctx, table, nil)
}

// CountNotNull returns the number of rows in table whose column is not NULL. Target
// tables carry the legacy id in such a column, so this is the migrated-row count.
func (c *Client) CountNotNull(ctx context.Context, table, column string) (int64, error) {
	q := url.Values{}
	q.Set(column, "not.is.null")
	return c.count(ctx, table, q)
}

func (c *Client) count(ctx context.Context, table string, filter url.Values) (int64, error) {
	if table == "" {
		return 0, errors.Newf("table name is required").
			Component("supabase").
			Category(errors.CategoryValidation).
			Build()
	}

	endpoint := c.tableURL(table, filter)
	header := http.Header{}
	header.Set("apikey", c.key)
	header.Set("Authorization", "Bearer "+c.key)
	header.Set("Prefer", "count=exact")

	resp, err := c.http.Head(ctx, endpoint, header)
	if err != nil {
		category := errors.CategoryNetwork
		if ctx.Err() != nil {
			category = errors.CategoryCancellation
		}
		return 0, errors.New(fmt.Errorf("supabase count request failed: %w", err)).
			Component("supabase").
			Category(category).
			Context("table", table).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, errors.Newf("supabase count for %s returned %s", table, resp.Status).
			Component("supabase").
			Category(errors.CategoryHTTP).
			Context("table", table).
			Context("status_code", resp.StatusCode).
			Build()
	}

	n, err := ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, errors.New(err).
			Component("supabase").
			Category(errors.CategoryHTTP).
			Context("table", table).
			Build()
	}
	return n, nil
}

func (c *Client) tableURL(table string, filter url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + restPath + url.PathEscape(table)
	q := url.Values{}
	q.Set("select", "*")
	for k, v := range filter {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseContentRange extracts the total from a PostgREST Content-Range header such as
// "0-24/3573" or "*/0".
func ParseContentRange(header string) (int64, error) {
	header = strings.TrimSpace(header)
	_, total, ok := strings.Cut(header, "/")
	if !ok {
		return 0, fmt.Errorf("malformed content-range %q", header)
	}
	if total == "*" {
		return 0, fmt.Errorf("content-range %q carries no exact count", header)
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed content-range total %q", header)
	}
	return n, nil
}
