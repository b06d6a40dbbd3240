package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

const maxErrorBody = 4 << 10

// DownloadFile downloads a file from a URL and returns its content and content type.
func DownloadFile(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("bad status: %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// ParseModelName splits a Replicate style model reference "owner/name[:version]".
func ParseModelName(fullModelName string) (owner, name, version string, err error) {
	ref := fullModelName
	if i := strings.Index(ref, ":"); i >= 0 {
		ref, version = ref[:i], ref[i+1:]
	}
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid model format. Expected 'owner/model_name', got '%s'", fullModelName)
	}
	return parts[0], parts[1], version, nil
}

// DecodeDataURL decodes a "data:<mime>;base64,<payload>" URL.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, "", fmt.Errorf("not a data URL")
	}
	comma := strings.Index(dataURL, ",")
	if comma == -1 {
		return nil, "", fmt.Errorf("invalid data URL format: missing comma")
	}
	meta := dataURL[len("data:"):comma]
	contentType := strings.SplitN(meta, ";", 2)[0]
	if contentType == "" {
		contentType = "image/png"
	}
	data, err := base64.StdEncoding.DecodeString(dataURL[comma+1:])
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 data: %w", err)
	}
	return data, contentType, nil
}

// EncodeDataURL builds a base64 data URL, sniffing the content type from the bytes.
func EncodeDataURL(data []byte) string {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// FormatFromContentType maps a MIME type to a short format name.
func FormatFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	switch mediaType {
	case "image/jpeg":
		return "jpeg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	default:
		return "png"
	}
}

// FormatFromURL guesses the format from the URL path extension.
func FormatFromURL(rawURL string, fallback string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	switch ext {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "webp", "gif", "mp4", "webm":
		return ext
	default:
		return fallback
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, header http.Header) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}

// getJSON fetches a job status document. Transport errors and non-2xx
// responses are returned as is; a body that does not decode ends polling.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, stopPolling(fmt.Errorf("failed to decode response: %w", err))
	}
	return resp.StatusCode, nil
}

// newAPIError reads the error body and extracts the most useful message from
// the JSON shapes the supported providers use.
func newAPIError(provider string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    extractErrorMessage(body),
	}
}

func extractErrorMessage(body []byte) string {
	var shape struct {
		Error  json.RawMessage `json:"error"`
		Detail string          `json:"detail"`
		Errors []string        `json:"errors"`
		Name   string          `json:"name"`
	}
	raw := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &shape); err != nil {
		return raw
	}
	if len(shape.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shape.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(shape.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	if shape.Detail != "" {
		return shape.Detail
	}
	if len(shape.Errors) > 0 {
		return strings.Join(shape.Errors, "; ")
	}
	if shape.Name != "" {
		return shape.Name
	}
	return raw
}

func bearer(key string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return h
}
