// Package apiclient talks to the concoction HTTP API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"somnarium.ai/internal/concoction"
	"somnarium.ai/internal/protocol"
)

const DefaultTimeout = 5 * time.Second

// APIError is a non-2xx answer from the server. It unwraps to the matching
// concoction sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("http %d %s", e.Status, e.Code)
}

func (e *APIError) Unwrap() error { return e.kind }

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the API rooted at baseURL. Paths are resolved
// under /api, as the game clients do.
func New(baseURL string, opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: strings.TrimRight(strings.TrimSpace(baseURL), "/"), http: hc}
}

func (c *Client) url(path string) string {
	return c.base + "/api/" + strings.TrimLeft(path, "/")
}

// Ping reports whether the backend answers its health check.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	var h protocol.HealthResponse
	if err := c.do(ctx, http.MethodGet, "health", nil, &h); err != nil {
		return false, err
	}
	return h.OK, nil
}

// CreateConcoction uploads slugs and returns the allocated code. seeds may
// be nil to let the server draw them.
func (c *Client) CreateConcoction(ctx context.Context, slugs []string, seeds []float64) (string, error) {
	req := protocol.CreateConcoctionRequest{Items: slugs, Seeds: seeds}
	if req.Items == nil {
		req.Items = []string{}
	}
	var resp protocol.CreateConcoctionResponse
	if err := c.do(ctx, http.MethodPost, "concoctions", req, &resp); err != nil {
		return "", err
	}
	if !resp.Success || !concoction.IsCanonicalCode(resp.Code) {
		return "", fmt.Errorf("%w: unexpected create response %+v", concoction.ErrUnavailable, resp)
	}
	return resp.Code, nil
}

func (c *Client) GetConcoction(ctx context.Context, code string) (concoction.Concoction, error) {
	normalized := concoction.NormalizeCode(code)
	if normalized == "" {
		return concoction.Concoction{}, fmt.Errorf("%w: empty code", concoction.ErrInvalidCode)
	}
	var dto protocol.ConcoctionDTO
	if err := c.do(ctx, http.MethodGet, "concoctions/"+url.PathEscape(normalized), nil, &dto); err != nil {
		return concoction.Concoction{}, err
	}
	return dto.Concoction(), nil
}

// Get lets the client serve as a reconstruction source.
func (c *Client) Get(ctx context.Context, code string) (concoction.Concoction, error) {
	return c.GetConcoction(ctx, code)
}

// ListConcoctions returns recent concoctions, newest first. limit <= 0 asks
// for the server default.
func (c *Client) ListConcoctions(ctx context.Context, limit int) ([]concoction.Concoction, error) {
	path := "concoctions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var dtos []protocol.ConcoctionDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]concoction.Concoction, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.Concoction())
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), rd)
	if err != nil {
		return fmt.Errorf("%w: %w", concoction.ErrUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", concoction.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", concoction.ErrUnavailable, err)
	}

	if resp.StatusCode/100 != 2 {
		return apiError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", concoction.ErrUnavailable, path, err)
	}
	return nil
}

func apiError(status int, raw []byte) error {
	var body protocol.ErrorResponse
	_ = json.Unmarshal(raw, &body)
	e := &APIError{Status: status, Code: body.Code, Message: body.Error}
	switch {
	case body.Code == protocol.ErrInvalidCode:
		e.kind = concoction.ErrInvalidCode
	case body.Code == protocol.ErrInvalidItems, status == http.StatusBadRequest:
		e.kind = concoction.ErrInvalidItems
	case body.Code == protocol.ErrNotFound, status == http.StatusNotFound:
		e.kind = concoction.ErrNotFound
	case body.Code == protocol.ErrAllocationExhausted:
		e.kind = concoction.ErrAllocationExhausted
	default:
		e.kind = concoction.ErrUnavailable
	}
	return e
}

// IsSoftFailure reports whether err means the backend could not be reached
// or failed server side, as opposed to rejecting the request.
func IsSoftFailure(err error) bool {
	return errors.Is(err, concoction.ErrUnavailable) || errors.Is(err, concoction.ErrAllocationExhausted)
}
