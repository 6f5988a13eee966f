package storage

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var onePixelPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}

func TestHTTPImageFetcher_RetryLogic(t *testing.T) {
	tests := []struct {
		name          string
		responses     []int // Status codes to return in sequence
		expectRetries int   // Expected number of requests
		expectError   bool
		errorContains string
	}{
		{
			name:          "Success on first attempt",
			responses:     []int{200},
			expectRetries: 1,
			expectError:   false,
		},
		{
			name:          "Success on second attempt after 5xx",
			responses:     []int{500, 200},
			expectRetries: 2,
			expectError:   false,
		},
		{
			name:          "4xx client error - no retry",
			responses:     []int{404},
			expectRetries: 1,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "4xx after 5xx - should retry until 4xx then stop",
			responses:     []int{500, 404},
			expectRetries: 2,
			expectError:   true,
			errorContains: "client error: status code 404",
		},
		{
			name:          "All 5xx errors - retry all attempts",
			responses:     []int{500, 502, 503},
			expectRetries: 3,
			expectError:   true,
			errorContains: "server error: status code 503",
		},
		{
			name:          "Mixed 4xx errors - stop on first 4xx",
			responses:     []int{400},
			expectRetries: 1,
			expectError:   true,
			errorContains: "client error: status code 400",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requestCount := 0

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if requestCount < len(tt.responses) {
					statusCode := tt.responses[requestCount]
					requestCount++

					if statusCode == 200 {
						// Return a valid minimal PNG image (1x1 pixel)
						w.Header().Set("Content-Type", "image/png")
						w.Write(onePixelPNG)
					} else {
						w.WriteHeader(statusCode)
						w.Write([]byte(fmt.Sprintf("Error %d", statusCode)))
					}
				} else {
					// Shouldn't happen in our tests
					w.WriteHeader(500)
					w.Write([]byte("Unexpected request"))
				}
			}))
			defer server.Close()

			fetcher := NewHTTPImageFetcherWithBackoff(5*time.Second, time.Millisecond)

			data, err := fetcher.FetchBytes(context.Background(), server.URL, 1024)

			// Verify request count
			if requestCount != tt.expectRetries {
				t.Errorf("Expected %d requests, got %d", tt.expectRetries, requestCount)
			}

			// Verify error expectation
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error, but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %s", tt.errorContains, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error, got: %s", err.Error())
				}
				if !bytes.Equal(data, onePixelPNG) {
					t.Errorf("Expected body to be returned unchanged, got %d bytes", len(data))
				}
			}
		})
	}
}

func TestHTTPImageFetcher_NetworkError_Retry(t *testing.T) {
	requestCount := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		if requestCount < 3 {
			// Simulate network error by closing connection
			hj, ok := w.(http.Hijacker)
			if ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		// Success on third attempt
		w.Header().Set("Content-Type", "image/png")
		w.Write(onePixelPNG)
	}))
	defer server.Close()

	fetcher := NewHTTPImageFetcherWithBackoff(5*time.Second, 20*time.Millisecond)

	start := time.Now()
	_, err := fetcher.FetchBytes(context.Background(), server.URL, 1024)
	duration := time.Since(start)

	// Should succeed after retries
	if err != nil {
		t.Errorf("Expected success after retries, got error: %s", err.Error())
	}

	// Should have made 3 requests
	if requestCount != 3 {
		t.Errorf("Expected 3 requests, got %d", requestCount)
	}

	// Linear backoff: 20ms then 40ms.
	if duration < 60*time.Millisecond {
		t.Errorf("Expected at least 60ms of backoff, took %v", duration)
	}
}

func TestHTTPImageFetcher_LimitsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0xAB}, 4096))
	}))
	defer server.Close()

	data, err := NewHTTPImageFetcherWithBackoff(5*time.Second, time.Millisecond).FetchBytes(context.Background(), server.URL, 101)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if len(data) != 101 {
		t.Errorf("Expected read to stop at 101 bytes, got %d", len(data))
	}
}

func TestHTTPImageFetcher_ContextCancelled(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPImageFetcherWithBackoff(5*time.Second, time.Second).FetchBytes(ctx, server.URL, 1024)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if requestCount != 1 {
		t.Errorf("Expected a single request before cancellation, got %d", requestCount)
	}
}

func TestIsClientError(t *testing.T) {
	if !IsClientError(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 404})) {
		t.Error("Expected wrapped 404 to be a client error")
	}
	if IsClientError(&StatusError{StatusCode: 502}) {
		t.Error("Expected 502 not to be a client error")
	}
	if IsClientError(errors.New("dial tcp: refused")) {
		t.Error("Expected plain error not to be a client error")
	}
}

func TestSplitBlobPath(t *testing.T) {
	tests := []struct {
		raw       string
		container string
		blob      string
		wantErr   bool
	}{
		{"https://acct.blob.core.windows.net/images/cats/1.jpg", "images", "cats/1.jpg", false},
		{"https://acct.blob.core.windows.net/images?blob=cats/1.jpg", "images", "cats/1.jpg", false},
		{"https://acct.blob.core.windows.net/images", "", "", true},
		{"https://acct.blob.core.windows.net/", "", "", true},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatalf("Bad test URL %s: %v", tt.raw, err)
		}
		container, blob, err := SplitBlobPath(u)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tt.raw, tt.wantErr, err)
			continue
		}
		if container != tt.container || blob != tt.blob {
			t.Errorf("%s: expected %s/%s, got %s/%s", tt.raw, tt.container, tt.blob, container, blob)
		}
	}
}
