// Package existdb implements [xmldb.Store] over the REST interface of an eXist-db server.
//
// Besides query execution the [Client] manages collections and documents, so records serialized
// with package xmlmodel can be stored and read back (see [StoreRecords] and [LoadRecords]).
//
// A [Client] is created once with [Open] and shared, it is safe for concurrent use.
package existdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/birdie-ai/xmlstore/event"
	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/tracing"
	"github.com/birdie-ai/xmlstore/xhttp"
)

type (
	// Config is the eXist-db connection configuration.
	Config struct {
		// URL is the base URL of the REST interface, like http://localhost:8080/exist/rest.
		URL      string
		User     string
		Password string
		// Timeout is the timeout of each HTTP request, zero means no timeout.
		Timeout time.Duration
		// MaxResults is the max number of items requested at once, queries matching more items
		// are read in multiple pages. Defaults to [DefaultMaxResults].
		MaxResults int
	}

	// Client is an eXist-db REST client.
	Client struct {
		baseURL    string
		user       string
		password   string
		maxResults int
		http       xhttp.Client
		events     *event.Publisher[DocumentEvent]
	}

	// Option configures a [Client] created with [Open].
	Option func(*Client)

	// DocumentEvent notifies that a document was stored or deleted, see [WithEvents].
	DocumentEvent struct {
		Op         DocumentOp `json:"op"`
		Collection string     `json:"collection"`
		Document   string     `json:"document"`
	}

	// DocumentOp is the operation notified by a [DocumentEvent].
	DocumentOp string
)

// Document operations.
const (
	DocumentStored  DocumentOp = "stored"
	DocumentDeleted DocumentOp = "deleted"
)

// DocumentEventName is the name of published [DocumentEvent] events.
const DocumentEventName = "existdb.document"

// Defaults used by [LoadConfig] and [Open].
const (
	DefaultURL        = "http://localhost:8080/exist/rest"
	DefaultMaxResults = 10000
)

// Errors returned by [Client] methods.
var (
	ErrInvalidConfig    = errors.New("invalid eXist-db config")
	ErrInvalidPath      = errors.New("invalid eXist-db path")
	ErrUnauthorized     = errors.New("eXist-db authentication failed")
	ErrDocumentNotFound = errors.New("document not found")
	ErrUnexpectedStatus = xhttp.ErrUnexpectedStatus
)

// WithHTTPClient sets the HTTP client used to talk with eXist-db.
// The default is a [http.Client] with the configured timeout.
func WithHTTPClient(c xhttp.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

// WithEvents publishes a [DocumentEvent] every time a document is stored or deleted.
// Failing to publish an event is logged and doesn't fail the document operation.
func WithEvents(p *event.Publisher[DocumentEvent]) Option {
	return func(client *Client) {
		client.events = p
	}
}

// LoadConfig will load the eXist-db Config from environment variables.
// The service name is used as a prefix for the environment variables.
// So a service "BOOKSHOP" will load the config from:
//
//   - BOOKSHOP_EXISTDB_URL: defaults to [DefaultURL]
//   - BOOKSHOP_EXISTDB_USER
//   - BOOKSHOP_EXISTDB_PASSWORD
//   - BOOKSHOP_EXISTDB_TIMEOUT: a Go duration like "30s", defaults to no timeout
//   - BOOKSHOP_EXISTDB_MAX_RESULTS: defaults to [DefaultMaxResults]
//
// The loaded config is not validated, [Open] validates it.
func LoadConfig(service string) (Config, error) {
	prefix := strings.ToUpper(service) + "_EXISTDB_"
	cfg := Config{
		URL:        os.Getenv(prefix + "URL"),
		User:       os.Getenv(prefix + "USER"),
		Password:   os.Getenv(prefix + "PASSWORD"),
		MaxResults: DefaultMaxResults,
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}

	var errs []error
	if v := os.Getenv(prefix + "TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %sTIMEOUT: %w", prefix, err))
		}
		cfg.Timeout = timeout
	}
	if v := os.Getenv(prefix + "MAX_RESULTS"); v != "" {
		maxResults, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing %sMAX_RESULTS: %w", prefix, err))
		}
		cfg.MaxResults = maxResults
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks that the config can be used to connect to eXist-db.
// All problems are reported at once on an error matching [ErrInvalidConfig].
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q is not an absolute URL", c.URL))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user is required"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout %v is negative", c.Timeout))
	}
	if c.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("max results %d is negative", c.MaxResults))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Open validates the config and connects to eXist-db by reading the root collection (/db),
// which checks the credentials. Bad credentials give an error matching [ErrUnauthorized].
func Open(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		user:       cfg.User,
		password:   cfg.Password,
		maxResults: cfg.MaxResults,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
	if c.maxResults == 0 {
		c.maxResults = DefaultMaxResults
	}
	for _, opt := range opts {
		opt(c)
	}

	res, err := c.send(ctx, http.MethodGet, rootCollection, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to eXist-db at %s: %w", c.baseURL, err)
	}
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: user %q", ErrUnauthorized, c.user)
	default:
		return nil, fmt.Errorf("connecting to eXist-db at %s: %w", c.baseURL, xhttp.NewStatusError(res))
	}

	slog.FromCtx(ctx).Info("connected to eXist-db", "url", c.baseURL, "user", c.user)
	return c, nil
}

// Close releases idle connections of the underlying HTTP client.
// The client must not be used after closing it.
func (c *Client) Close() error {
	if closer, ok := c.http.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	return nil
}

func (c *Client) notify(ctx context.Context, op DocumentOp, collection, name string) {
	if c.events == nil {
		return
	}
	ev := DocumentEvent{Op: op, Collection: collection, Document: name}
	if err := c.events.Publish(ctx, ev); err != nil {
		slog.FromCtx(ctx).Error("publishing document event", "op", op, "collection", collection, "document", name, "error", err)
	}
}

func (c *Client) send(ctx context.Context, method, resource string, body io.Reader) (*xhttp.Response, error) {
	req, err := xhttp.NewRequestWithContext(ctx, method, c.url(resource), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.user, c.password)
	tracing.SetHeader(ctx, req)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	return xhttp.Do(c.http, req)
}

func (c *Client) url(resource string) string {
	return c.baseURL + (&url.URL{Path: resource}).EscapedPath()
}

const contentType = "application/xml"
