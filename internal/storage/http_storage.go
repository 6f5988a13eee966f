package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ImageFetcher downloads raw image bytes. At most limit bytes are read; callers pass
// one more than they accept so oversized payloads can still be detected.
type ImageFetcher interface {
	FetchBytes(ctx context.Context, imageURL string, limit int64) ([]byte, error)
}

// StatusError is returned when the remote server answers with a non-200 status
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return fmt.Sprintf("client error: status code %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: status code %d", e.StatusCode)
}

// IsClientError reports whether err carries a 4xx status
func IsClientError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
}

const maxAttempts = 3

// HTTPImageFetcher implements ImageFetcher with bounded retries
type HTTPImageFetcher struct {
	client  *http.Client
	backoff time.Duration
}

// NewHTTPImageFetcher creates an HTTP image fetcher whose retries back off linearly from one second
func NewHTTPImageFetcher(timeout time.Duration) *HTTPImageFetcher {
	return NewHTTPImageFetcherWithBackoff(timeout, time.Second)
}

// NewHTTPImageFetcherWithBackoff creates a fetcher with a custom retry backoff unit
func NewHTTPImageFetcherWithBackoff(timeout, backoff time.Duration) *HTTPImageFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		backoff: backoff,
	}
}

// FetchBytes downloads imageURL. Network failures and 5xx responses are retried up to
// three attempts in total; 4xx responses fail immediately.
func (h *HTTPImageFetcher) FetchBytes(ctx context.Context, imageURL string, limit int64) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		data, err := h.fetchOnce(ctx, imageURL, limit)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if IsClientError(err) || ctx.Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to fetch image: %w", ctx.Err())
			case <-time.After(time.Duration(attempt+1) * h.backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", maxAttempts, lastErr)
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/bmp, */*")
	req.Header.Set("User-Agent", "Vision-Guard/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
