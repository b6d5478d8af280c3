// Package apiclient talks to the remote case API that owns every record the
// console displays. It speaks JSON for list, detail, create and update calls
// and multipart/form-data for submissions that carry attachments.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// TokenFunc returns the bearer token to forward for the operator behind ctx.
// An empty string sends the request unauthenticated.
type TokenFunc func(ctx context.Context) string

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	Token      TokenFunc
}

// Client is a thin REST client over resty. Only GET requests are retried;
// mutations are issued exactly once.
type Client struct {
	http   *resty.Client
	token  TokenFunc
	logger zerolog.Logger
}

// FilePart is one file attached to a multipart submission.
type FilePart struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

// New creates a Client for the given base URL.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:   client,
		token:  opts.Token,
		logger: logger.With().Str("component", "apiclient").Logger(),
	}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if c.token != nil {
		if tok := c.token(ctx); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	return req
}

// List fetches a collection. The remote API answers either with a bare JSON
// array or with an envelope carrying the array under "results" or "data".
func (c *Client) List(ctx context.Context, path string, query url.Values, out any) error {
	req := c.request(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	body, err := c.do(req, http.MethodGet, path)
	if err != nil {
		return err
	}
	items, err := unwrapCollection(body)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if err := json.Unmarshal(items, out); err != nil {
		return fmt.Errorf("GET %s: decode collection: %w", path, err)
	}
	return nil
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	body, err := c.do(c.request(ctx), http.MethodGet, path)
	if err != nil {
		return err
	}
	return decodeInto(body, out, http.MethodGet, path)
}

// Post creates a record from a JSON body.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	body, err := c.do(c.request(ctx).SetHeader("Content-Type", "application/json").SetBody(in), http.MethodPost, path)
	if err != nil {
		return err
	}
	return decodeInto(body, out, http.MethodPost, path)
}

// Patch partially updates a record from a JSON body.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	body, err := c.do(c.request(ctx).SetHeader("Content-Type", "application/json").SetBody(in), http.MethodPatch, path)
	if err != nil {
		return err
	}
	return decodeInto(body, out, http.MethodPatch, path)
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.do(c.request(ctx), http.MethodDelete, path)
	return err
}

// Submit sends fields and files as multipart/form-data using method (POST or
// PATCH).
func (c *Client) Submit(ctx context.Context, method, path string, fields map[string]string, files []FilePart, out any) error {
	req := c.request(ctx).SetMultipartFormData(fields)
	for _, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		req.SetMultipartField(f.Field, f.FileName, contentType, f.Content)
	}
	body, err := c.do(req, method, path)
	if err != nil {
		return err
	}
	return decodeInto(body, out, method, path)
}

func (c *Client) do(req *resty.Request, method, path string) ([]byte, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("method", method).
			Str("path", path).
			Msg("remote api call failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("remote api call")

	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, newAPIError(method, path, resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

func decodeInto(body []byte, out any, method, path string) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func unwrapCollection(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("[]"), nil
	}
	if trimmed[0] == '[' {
		return trimmed, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode collection envelope: %w", err)
	}
	for _, key := range []string{"results", "data", "items"} {
		if raw, ok := envelope[key]; ok {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("collection envelope has no results")
}
