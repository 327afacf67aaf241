package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stixly/stickerbot/core/logger"
)

const requestTimeout = 10 * time.Second

// Client checks sticker set existence against the gallery catalog, consulting
// the cache before the network. Catalog outages degrade to "unknown": the
// caller gets exists=false with ok=false and decides how to proceed.
type Client struct {
	baseURL      string
	serviceToken string
	cache        *Cache
	httpClient   *http.Client
}

// NewClient constructs a catalog client. cache may not be nil.
func NewClient(baseURL, serviceToken string, cache *Cache, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		cache:        cache,
		httpClient:   httpClient,
	}
}

// Configured reports whether the catalog endpoint is usable.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.serviceToken != ""
}

type checkResponse struct {
	Exists bool  `json:"exists"`
	SetID  int64 `json:"setId"`
}

// StickerSetExists reports whether the named set is known to the gallery.
// ok=false means the answer is unknown (unconfigured client or catalog
// failure); the result is cached only when the catalog answered.
func (c *Client) StickerSetExists(ctx context.Context, name string) (exists bool, setID int64, ok bool) {
	if name == "" {
		return false, 0, false
	}

	if entry, hit := c.cache.Get(name); hit {
		return entry.Exists, entry.SetID, true
	}

	if !c.Configured() {
		return false, 0, false
	}

	result, err := c.checkRemote(ctx, name)
	if err != nil {
		logger.Cache.Warn("catalog check failed",
			slog.String("event", "gallery.check"),
			slog.String("name", name),
			slog.String("err", err.Error()),
		)
		return false, 0, false
	}

	c.cache.Set(name, result.Exists, result.SetID)
	return result.Exists, result.SetID, true
}

// InvalidateSet drops the cached fact for a set, e.g. after publishing it.
func (c *Client) InvalidateSet(name string) {
	c.cache.Invalidate(name)
}

func (c *Client) checkRemote(ctx context.Context, name string) (*checkResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/internal/stickersets/check?%s", c.baseURL,
		url.Values{"name": {name}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("catalog check status: %s", resp.Status)
	}

	var result checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("catalog check decode: %w", err)
	}
	return &result, nil
}
