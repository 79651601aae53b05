package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pixelgate/pixelgate/internal/model"
)

const defaultTimeout = 120 * time.Second

// Error carries the upstream HTTP status so handlers can relay it.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

type Result struct {
	Data        []byte
	ContentType string
}

type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.hc.Timeout = d
	}
}

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate fetches a fresh image for req. Only the generation parameters
// travel upstream; cache-control fields never appear in the URL.
func (c *Client) Generate(ctx context.Context, req *model.GenerateRequest) (*Result, error) {
	q := url.Values{}
	q.Set("model", req.Model)
	q.Set("width", strconv.Itoa(req.Width))
	q.Set("height", strconv.Itoa(req.Height))
	if req.Seed != nil {
		q.Set("seed", strconv.FormatInt(*req.Seed, 10))
	}
	target := fmt.Sprintf("%s/prompt/%s?%s", c.baseURL, url.PathEscape(req.Prompt), q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(httpReq)
	rsp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call upstream failed, err:%w", err)
	}
	defer rsp.Body.Close()
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body failed, err:%w", err)
	}
	if rsp.StatusCode != http.StatusOK {
		return nil, &Error{StatusCode: rsp.StatusCode, Body: truncate(string(data), 512)}
	}
	ct := rsp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Result{Data: data, ContentType: ct}, nil
}

// ListModels asks the upstream which generation models are available.
func (c *Client) ListModels(ctx context.Context) ([]model.UpstreamModel, error) {
	target := c.baseURL + "/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(httpReq)
	rsp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call upstream failed, err:%w", err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(rsp.Body)
		return nil, &Error{StatusCode: rsp.StatusCode, Body: truncate(string(data), 512)}
	}
	var models []model.UpstreamModel
	if err := json.NewDecoder(rsp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("decode models failed, err:%w", err)
	}
	return models, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
