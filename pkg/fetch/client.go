package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/retry"
)

// Client fetches image bytes from the CDN URLs the extractor resolved.
// It is independent of the browser session; image URLs are plain HTTPS.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	retryCfg   *retry.Config
	logger     logger.Logger
}

// NewClient creates an image fetch client. maxAttempts bounds the retries
// for transient transport failures.
func NewClient(timeout time.Duration, maxAttempts int, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			"Accept":          "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
		},
		retryCfg: &retry.Config{
			MaxAttempts: maxAttempts,
			Backoff:     retry.DefaultExponentialBackoff(),
			RetryIf:     retry.DefaultRetryIf,
			Context:     context.Background(),
			Logger:      log,
		},
		logger: log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// FetchImage downloads the bytes at url, retrying transient failures.
// Non-success statuses and network errors come back as typed errors so the
// downloader can classify them; nothing here panics or writes to disk.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	cfg := *c.retryCfg
	cfg.Context = ctx

	return retry.DoWithResult(func() ([]byte, error) {
		return c.fetchOnce(ctx, url)
	}, &cfg)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindDownloadFailed, err, "invalid image URL %q", url)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("fetching image", map[string]interface{}{
		"url": url,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, err, "network error fetching %q", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			logger.LogRateLimit(url, retryAfter)
		}
		kind := errors.KindDownloadFailed
		if errors.IsRetryableStatusCode(resp.StatusCode) {
			kind = errors.KindServerError
		}
		return nil, &errors.Error{
			Kind:    kind,
			Message: fmt.Sprintf("unexpected status fetching image: %s", resp.Status),
			Code:    resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, err, "reading image body from %q", url)
	}

	c.logger.DebugWithFields("image fetched", map[string]interface{}{
		"url":      url,
		"size":     len(data),
		"duration": time.Since(start),
	})

	return data, nil
}
