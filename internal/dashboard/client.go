package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hyp3rd/ewrap"

	"perfstore/internal/compare"
	"perfstore/internal/core"
	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

const (
	defaultTimeout = 30 * time.Second
	// maxErrorBody bounds how much of an error response is kept in the message.
	maxErrorBody = 512
)

// FetchError reports a failed request: the server could not be reached, or
// it answered with a non-2xx status.
type FetchError struct {
	URL    string
	Status int
	Msg    string
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.Status, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return "fetch " + e.URL + ": " + e.Msg
	}
}

// Unwrap matches sentinel.ErrFetch and the transport error, if any.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{sentinel.ErrFetch}
	}

	return []error{sentinel.ErrFetch, e.Err}
}

// RunEntry is one row of a case's run list.
type RunEntry struct {
	ID      int64 `json:"id"`
	Created int64 `json:"created"`
	Value   struct {
		Status   core.RunStatus `json:"status"`
		Baseline bool           `json:"baseline"`
	} `json:"value"`
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Client fetches store resources.
type Client struct {
	links   Links
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a client for the store at base.
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{links: NewLinks(base), http: http.DefaultClient, timeout: defaultTimeout}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Links returns the URL builder.
func (c *Client) Links() Links {
	return c.links
}

func (c *Client) do(ctx context.Context, method string, link Link, body any, out any) error {
	u, err := c.links.Build(link)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader

	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ewrap.Wrap(err, "encode request")
		}

		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &FetchError{URL: u, Err: err}
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &FetchError{URL: u, Status: resp.StatusCode, Msg: errorMessage(msg)}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{URL: u, Err: ewrap.Wrap(err, "decode response")}
	}

	return nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}

	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}

	return strings.TrimSpace(string(body))
}

// OutputHdr fetches the document of one output log.
func (c *Client) OutputHdr(ctx context.Context, outputID int64) (*hdr.HdrData, error) {
	var data hdr.HdrData
	if err := c.do(ctx, http.MethodGet, Link{Kind: OutputHdr, ID: outputID}, nil, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// Aggregate fetches the merged document of op in a run.
func (c *Client) Aggregate(ctx context.Context, runID int64, op string) (*hdr.HdrData, error) {
	var data hdr.HdrData
	if err := c.do(ctx, http.MethodGet, Link{Kind: Aggregate, ID: runID, Op: op}, nil, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// Compare fetches the comparison of op across runs.
func (c *Client) Compare(ctx context.Context, runIDs []int64, op string) (*compare.Result, error) {
	var result compare.Result
	if err := c.do(ctx, http.MethodGet, Link{Kind: CompareOp, IDs: runIDs, Op: op}, nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Operations fetches the operations of a run.
func (c *Client) Operations(ctx context.Context, runID int64) ([]string, error) {
	var ops []string
	if err := c.do(ctx, http.MethodGet, Link{Kind: Operations, ID: runID}, nil, &ops); err != nil {
		return nil, err
	}

	return ops, nil
}

// CommonOperations fetches the operations shared by runs.
func (c *Client) CommonOperations(ctx context.Context, runIDs []int64) ([]string, error) {
	var ops []string
	if err := c.do(ctx, http.MethodGet, Link{Kind: CommonOperations, IDs: runIDs}, nil, &ops); err != nil {
		return nil, err
	}

	return ops, nil
}

// Runs fetches the run list of a case.
func (c *Client) Runs(ctx context.Context, caseID int64) ([]RunEntry, error) {
	var runs []RunEntry
	if err := c.do(ctx, http.MethodGet, Link{Kind: RunsList, ID: caseID}, nil, &runs); err != nil {
		return nil, err
	}

	return runs, nil
}

// SetBaseline flags or unflags a run as baseline.
func (c *Client) SetBaseline(ctx context.Context, runID int64, baseline bool) error {
	return c.do(ctx, http.MethodPost, Link{Kind: Baseline, ID: runID}, baseline, nil)
}

// Regression fetches the operations of a run that differ from the baseline.
func (c *Client) Regression(ctx context.Context, runID int64, threshold float64) (*compare.ChangeReport, error) {
	var report compare.ChangeReport
	if err := c.do(ctx, http.MethodGet, Link{Kind: Regression, ID: runID, Threshold: threshold}, nil, &report); err != nil {
		return nil, err
	}

	return &report, nil
}
