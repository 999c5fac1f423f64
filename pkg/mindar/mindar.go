// Package mindar provides a client for the NDA mindar API, which manages
// per-user database schemas ("mindars") and the tables and records in them.
package mindar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/navikt/mindar/pkg/errs"
	"github.com/rs/zerolog"
)

const (
	DefaultExportTimeout = 30 * time.Minute

	// maxErrorBodyBytes bounds how much of an error response is kept
	maxErrorBodyBytes = 64 * 1024
)

type ContentType string

const (
	ContentTypeJSON ContentType = "application/json"
	ContentTypeCSV  ContentType = "text/csv"
	ContentTypeText ContentType = "text/plain"
)

type Client struct {
	client        *http.Client
	streamClient  *http.Client
	apiURL        string
	username      string
	password      string
	exportTimeout time.Duration
	metrics       *Metrics
	debug         bool
	log           zerolog.Logger
}

type Option func(*Client)

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithExportTimeout overrides how long an export may wait for the response
// headers or for the next chunk of data. The export as a whole is unbounded.
// Non-positive durations keep the default.
func WithExportTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.exportTimeout = d
		}
	}
}

// WithStreamClient sets the client used for exports. It must not limit the
// total duration of a request, as that would cut long downloads short. By
// default a copy of the main client with its Timeout cleared is used.
func WithStreamClient(client *http.Client) Option {
	return func(c *Client) {
		c.streamClient = client
	}
}

// WithDebug dumps every request and response to the logger.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

func New(apiURL, username, password string, client *http.Client, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		client:        client,
		apiURL:        strings.TrimSuffix(apiURL, "/"),
		username:      username,
		password:      password,
		exportTimeout: DefaultExportTimeout,
		log:           log,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Exports are bounded by a stall timer instead of an overall timeout
	if c.streamClient == nil {
		streamClient := *client
		streamClient.Timeout = 0
		c.streamClient = &streamClient
	}

	return c
}

type request struct {
	op          errs.Op
	method      string
	template    string
	pathParams  []string
	query       url.Values
	body        any
	contentType ContentType
	accept      ContentType
}

var placeholder = regexp.MustCompile(`\{[a-z_]+\}`)

// endpoint substitutes the path parameters into the placeholders of the
// template, in order.
func endpoint(template string, params ...string) (string, error) {
	n := len(placeholder.FindAllStringIndex(template, -1))
	if n != len(params) {
		return "", fmt.Errorf("template %s expects %d path parameters, got %d", template, n, len(params))
	}

	i := 0
	path := placeholder.ReplaceAllStringFunc(template, func(string) string {
		p := url.PathEscape(params[i])
		i++

		return p
	})

	return path, nil
}

func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	path, err := endpoint(r.template, r.pathParams...)
	if err != nil {
		return nil, err
	}

	u := c.apiURL + path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	contentType := r.contentType
	if contentType == "" {
		contentType = ContentTypeJSON
	}

	var body io.Reader

	switch b := r.body.(type) {
	case nil:
	case io.Reader:
		body = b
	case []byte:
		body = bytes.NewReader(b)
	case string:
		body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshalling body: %w", err)
		}

		body = bytes.NewReader(data)
	}

	method := r.method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	accept := r.accept
	if accept == "" {
		accept = ContentTypeJSON
	}

	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", string(accept))

	if body != nil {
		req.Header.Set("Content-Type", string(contentType))
	}

	return req, nil
}

// do performs one authenticated call. Any status outside 2xx is returned as
// a *StatusError and the response body is closed.
func (c *Client) do(ctx context.Context, client *http.Client, r request) (*http.Response, error) {
	const op errs.Op = "mindar.Client.do"

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, err)
	}

	if c.debug {
		reqdump, _ := httputil.DumpRequestOut(req, r.contentType != ContentTypeCSV)
		c.log.Debug().Msg(string(reqdump))
	}

	res, err := client.Do(req)
	if err != nil {
		c.metrics.observeRequest(r.op, 0)
		return nil, errs.E(errs.IO, op, fmt.Errorf("sending request: %w", err))
	}

	c.metrics.observeRequest(r.op, res.StatusCode)

	if c.debug {
		respdump, _ := httputil.DumpResponse(res, r.accept != ContentTypeText)
		c.log.Debug().Msg(string(respdump))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()

		msg, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyBytes))
		if err != nil {
			return nil, errs.E(errs.IO, op, err)
		}

		c.log.Error().Fields(map[string]any{
			"error_message": string(msg),
			"method":        req.Method,
			"path":          req.URL.Path,
			"status":        res.StatusCode,
		}).Msg("mindar_request")

		return nil, errs.E(errs.IO, op, &StatusError{
			Method:     req.Method,
			URL:        req.URL.Redacted(),
			StatusCode: res.StatusCode,
			Body:       string(msg),
		})
	}

	return res, nil
}

// send performs the call and decodes a JSON response into into, if given.
func (c *Client) send(ctx context.Context, r request, into any) error {
	const op errs.Op = "mindar.Client.send"

	res, err := c.do(ctx, c.client, r)
	if err != nil {
		return errs.E(op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errs.E(errs.IO, op, fmt.Errorf("reading response: %w", err))
	}

	if into == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	err = json.Unmarshal(data, into)
	if err != nil {
		return errs.E(errs.IO, op, errs.Parameter("response_body"), fmt.Errorf("decoding response: %w", err))
	}

	return nil
}
