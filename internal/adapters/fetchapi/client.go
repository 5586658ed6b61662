package fetchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"tg-media-bot/internal/domain"
	"tg-media-bot/internal/infra/metrics"
)

// ErrQuotaExceeded возвращается, когда все ключи API исчерпали лимит.
var ErrQuotaExceeded = errors.New("fetch api quota exceeded")

// Client получает прямые ссылки на медиа через внешний API.
type Client struct {
	baseURL    *url.URL
	host       string
	keys       []string
	next       atomic.Uint32
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

type mediaResponse struct {
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	Caption   string `json:"caption"`
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New создаёт клиент. keys перебираются по кругу при ответах 429 и 403.
func New(baseURL, host string, keys []string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	client := &Client{
		baseURL:    parsed,
		host:       host,
		keys:       keys,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Fetch реализует domain.Fetcher.
func (c *Client) Fetch(ctx context.Context, sourceURL string) (domain.FetchedMedia, error) {
	attempts := len(c.keys)
	if attempts == 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		key := c.key()
		resp, status, err := c.get(ctx, sourceURL, key)
		if err == nil {
			return domain.FetchedMedia{
				SourceURL: sourceURL,
				MediaURL:  resp.MediaURL,
				MediaType: normalizeType(resp.MediaType),
				Caption:   resp.Caption,
			}, nil
		}
		lastErr = err
		if status != http.StatusTooManyRequests && status != http.StatusForbidden {
			return domain.FetchedMedia{}, err
		}
		c.rotate()
	}
	return domain.FetchedMedia{}, fmt.Errorf("%w: %v", ErrQuotaExceeded, lastErr)
}

func (c *Client) key() string {
	if len(c.keys) == 0 {
		return ""
	}
	return c.keys[int(c.next.Load())%len(c.keys)]
}

func (c *Client) rotate() {
	c.next.Add(1)
}

func (c *Client) get(ctx context.Context, sourceURL, key string) (mediaResponse, int, error) {
	resolved := *c.baseURL
	query := resolved.Query()
	query.Set("url", sourceURL)
	resolved.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return mediaResponse{}, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.host != "" {
		req.Header.Set("X-RapidAPI-Host", c.host)
	}
	if key != "" {
		req.Header.Set("X-RapidAPI-Key", key)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("fetch_api", "fetch", c.baseURL.Host, start, err)
		return mediaResponse{}, 0, fmt.Errorf("fetch api request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := decode(resp)
	metrics.ObserveNetworkRequest("fetch_api", "fetch", c.baseURL.Host, start, err)
	return out, resp.StatusCode, err
}

func decode(resp *http.Response) (mediaResponse, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return mediaResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		msg := strings.TrimSpace(apiErr.Error)
		if msg == "" {
			msg = strings.TrimSpace(apiErr.Message)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusNotFound {
			return mediaResponse{}, fmt.Errorf("fetch api: %s: %w", msg, domain.ErrNotFound)
		}
		return mediaResponse{}, fmt.Errorf("fetch api error (%d): %s", resp.StatusCode, msg)
	}
	var out mediaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return mediaResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if out.MediaURL == "" {
		return mediaResponse{}, fmt.Errorf("fetch api: empty media_url: %w", domain.ErrNotFound)
	}
	return out, nil
}

func normalizeType(raw string) string {
	switch t := strings.ToLower(strings.TrimSpace(raw)); t {
	case "image", "picture", "photo":
		return "photo"
	case "gif", "animation":
		return "animation"
	case "":
		return "video"
	default:
		return t
	}
}
