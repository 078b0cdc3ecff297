package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxDownloadBytes bounds any media body read into memory.
const maxDownloadBytes = 256 << 20

// doJSON sends body (when non-nil) as JSON and decodes a 2xx answer into T.
// Non-2xx answers come back as *ProviderError.
func doJSON[T any](ctx context.Context, client *http.Client, provider, method, url string, body any, headers map[string]string) (T, error) {
	var response T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return response, fmt.Errorf("marshal %s request: %w", provider, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return response, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return response, TransportError(provider, err)
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return response, TransportError(provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, HTTPError(provider, resp.StatusCode, responseBytes)
	}

	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return response, NewProviderError(KindProvider, provider, resp.StatusCode, "unreadable response: "+snippet(responseBytes))
	}
	return response, nil
}

// ReadFileFromUrl downloads url and returns the body and its content type.
func ReadFileFromUrl(ctx context.Context, client *http.Client, provider, url string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", TransportError(provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", HTTPError(provider, resp.StatusCode, body)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", TransportError(provider, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(content)
	}
	return content, mimeType, nil
}

// DataURL makes bytes embeddable in the browser without another fetch.
func DataURL(mimeType string, data []byte) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
