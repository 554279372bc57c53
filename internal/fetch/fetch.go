// Package fetch retrieves raw bytes for asset, border and dataset sources.
// Sources may be http(s) URLs, file:// URLs or plain filesystem paths.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalsfoundry/globeview/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrStatus is returned when an HTTP source answers with a non-2xx code.
	ErrStatus = errors.New("fetch: unexpected status")
	// ErrUnsupportedScheme is returned for URLs the client cannot read.
	ErrUnsupportedScheme = errors.New("fetch: unsupported scheme")
	// ErrTooLarge is returned when a body exceeds MaxBytes.
	ErrTooLarge = errors.New("fetch: body exceeds size limit")
)

// DefaultMaxBytes caps a single fetched body.
const DefaultMaxBytes = 64 << 20

// Fetcher retrieves the bytes behind a source URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, uri string) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, error) {
	return f(ctx, uri)
}

// Client is the default Fetcher.
type Client struct {
	HTTP     *http.Client
	BaseDir  string // resolves relative plain paths
	MaxBytes int64
}

// NewClient returns a client with a bounded HTTP timeout that resolves
// relative paths against baseDir.
func NewClient(baseDir string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		HTTP:     &http.Client{Timeout: timeout},
		BaseDir:  baseDir,
		MaxBytes: DefaultMaxBytes,
	}
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	ctx, span := observability.Tracer().Start(ctx, "fetch")
	defer span.End()
	span.SetAttributes(attribute.String("fetch.uri", uri))

	data, err := c.fetch(ctx, uri)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("fetch.bytes", len(data)))
	return data, nil
}

func (c *Client) fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Plain path (a one-letter scheme is a Windows drive).
		return c.readFile(uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return c.get(ctx, uri)
	case "file":
		return c.readFile(u.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func (c *Client) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrStatus, uri, resp.StatusCode)
	}
	return c.readAll(resp.Body)
}

func (c *Client) readFile(path string) ([]byte, error) {
	if c.BaseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(c.BaseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer f.Close()
	return c.readAll(f)
}

func (c *Client) readAll(r io.Reader) ([]byte, error) {
	limit := c.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
