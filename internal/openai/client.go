// Package openai talks to an OpenAI-compatible API: audio transcription,
// schema-constrained chat completion, and key validation. Every failure
// is classified into an apperr kind so callers can pick between
// retrying, surfacing, and queueing.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/vono/internal/apperr"
	"github.com/kalambet/vono/internal/audio"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	defaultTimeout  = 60 * time.Second
	keyCheckTimeout = 10 * time.Second

	// snippetLimit bounds how much of an error body makes it into
	// error messages.
	snippetLimit = 200
)

// Client is a thin HTTP client for an OpenAI-compatible endpoint. The
// API key is passed per call rather than stored: credential resolution
// happens per pipeline run, so a key added mid-session takes effect
// immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient targets the hosted OpenAI API.
func NewClient() *Client {
	return NewClientWithBaseURL(defaultBaseURL)
}

// NewClientWithBaseURL targets any compatible endpoint (a proxy, a
// local gateway). The version prefix, e.g. /v1, belongs in the URL.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Transcribe uploads audio for transcription and returns the text along
// with the detected language.
func (c *Client) Transcribe(ctx context.Context, apiKey, model string, p *audio.Payload, filename string) (TranscriptionResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("model", model); err != nil {
		return TranscriptionResult{}, fmt.Errorf("writing model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return TranscriptionResult{}, fmt.Errorf("writing response_format field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(p.Bytes); err != nil {
		return TranscriptionResult{}, fmt.Errorf("writing audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return TranscriptionResult{}, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return TranscriptionResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, err := c.do(req, "transcription")
	if err != nil {
		return TranscriptionResult{}, err
	}

	var out TranscriptionResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return TranscriptionResult{}, apperr.Wrap(apperr.KindTransient, err, "decoding transcription response")
	}
	return out, nil
}

// ChatJSON runs a chat completion constrained to the given JSON schema
// and returns the raw content of the first choice.
func (c *Client) ChatJSON(ctx context.Context, apiKey, model string, messages []Message, schemaName string, schema *Schema) (string, error) {
	payload := chatRequest{
		Model:    model,
		Messages: messages,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   schemaName,
				Strict: true,
				Schema: schema,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	respBody, err := c.do(req, "extraction")
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", apperr.Wrap(apperr.KindTransient, err, "decoding chat response")
	}
	if len(out.Choices) == 0 {
		return "", apperr.New(apperr.KindTransient, "chat response carried no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// ValidateKey checks the API key against the models endpoint. A nil
// return means the provider accepted it.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	ctx, cancel := context.WithTimeout(ctx, keyCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	_, err = c.do(req, "models")
	return err
}

// do sends the request and returns the response body, classifying
// transport and status failures.
func (c *Client) do(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		e := apperr.Wrap(apperr.KindTransient, err, endpoint+" request failed")
		e.Endpoint = endpoint
		return nil, e
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e := apperr.Wrap(apperr.KindTransient, err, "reading "+endpoint+" response")
		e.Endpoint = endpoint
		return nil, e
	}
	if resp.StatusCode >= 400 {
		return nil, classifyStatus(endpoint, resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}
	return body, nil
}

// classifyStatus maps a provider error status to an apperr kind.
func classifyStatus(endpoint string, status int, body []byte, retryAfter string) error {
	detail := providerMessage(body)

	var e *apperr.Error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = apperr.Newf(apperr.KindCredentialInvalid, "provider rejected the API key (HTTP %d)", status)
	case status == http.StatusTooManyRequests:
		e = apperr.Newf(apperr.KindRateLimited, "provider rate limit hit on %s", endpoint)
		e.RetryAfter = parseRetryAfter(retryAfter)
	case status >= 500:
		e = apperr.Newf(apperr.KindTransient, "provider error on %s (HTTP %d)", endpoint, status)
	default:
		e = apperr.Newf(apperr.KindValidation, "provider refused the %s request (HTTP %d)", endpoint, status)
	}
	e.Endpoint = endpoint
	if detail != "" {
		e.Message += ": " + detail
	}
	return e
}

// providerMessage extracts the error message from an OpenAI-style error
// body, falling back to a trimmed snippet of the raw body.
func providerMessage(body []byte) string {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return s
}

// parseRetryAfter understands both forms of the Retry-After header:
// delay seconds and an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
