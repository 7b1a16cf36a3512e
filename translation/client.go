// Package translation serializes and batches outbound translation
// requests, enforcing rate-limit-aware retry and same-language ordering
// guarantees.
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Result is one translated text.
type Result struct {
	Text               string
	DetectedSourceLang string
}

// Client dispatches one batch translation call. Implementations must
// return results in the same order as texts.
type Client interface {
	Translate(ctx context.Context, texts []string, targetLang, sourceLang string) ([]Result, error)
}

// APIError is a non-2xx response from the translation service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("translation api error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient: rate limiting
// (429) and server errors (5xx) are retried; everything else, including
// 403 and 456 (quota exceeded), is permanent.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable classifies an error from Client.Translate. Network
// failures count as transient; malformed payloads and non-retryable
// statuses do not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// HTTPClient talks to a DeepL-style batch translation endpoint.
type HTTPClient struct {
	// Endpoint is the translate URL, e.g. https://api-free.deepl.com/v2/translate.
	Endpoint string
	// AuthKey is sent as the DeepL-Auth-Key authorization credential.
	AuthKey string
	// Client defaults to a 30s-timeout client when nil.
	Client *http.Client
}

type translateRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		Text                   string `json:"text"`
		DetectedSourceLanguage string `json:"detected_source_language"`
	} `json:"translations"`
}

func (c *HTTPClient) Translate(ctx context.Context, texts []string, targetLang, sourceLang string) ([]Result, error) {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	body, err := json.Marshal(translateRequest{
		Text:       texts,
		TargetLang: targetLang,
		SourceLang: sourceLang,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.AuthKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed translateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	results := make([]Result, len(parsed.Translations))
	for i, tr := range parsed.Translations {
		results[i] = Result{Text: tr.Text, DetectedSourceLang: tr.DetectedSourceLanguage}
	}
	return results, nil
}
