package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

const (
	defaultEndpoint  = "https://api.ocr.space/parse/image"
	fallbackLanguage = "eng"

	maxAttempts    = 3
	attemptTimeout = 20 * time.Second
	retryBaseDelay = 1 * time.Second
)

// OCRSpace implements the Recognizer interface using the OCR.space API.
//
// The HTTP session is process-wide shared state: it is created lazily,
// reused across requests, and discarded after any failed attempt. A session
// that timed out is assumed to hold corrupt connection state and is never
// reused. Access goes through acquire/invalidate under a mutex; the raw
// session is never handed to concurrent callers.
type OCRSpace struct {
	endpoint string
	apiKey   string
	language string

	mu      sync.Mutex
	session *http.Client

	sleep func(time.Duration)
}

// NewOCRSpace creates a new OCR.space Recognizer instance. language is the
// primary recognition language (defaults to "ind"); English is always used
// for the final fallback attempt.
func NewOCRSpace(endpoint, apiKey, language string) (*OCRSpace, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ocr.space api key is required")
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if language == "" {
		language = "ind"
	}

	return &OCRSpace{
		endpoint: endpoint,
		apiKey:   apiKey,
		language: language,
		sleep:    time.Sleep,
	}, nil
}

// ocrSpaceResponse is the reply shape of the parse/image endpoint
type ocrSpaceResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// errorMessage flattens the API's ErrorMessage field, which arrives either
// as a string or as an array of strings
func (r *ocrSpaceResponse) errorMessage() string {
	if len(r.ErrorMessage) == 0 {
		return "OCR processing failed"
	}
	var single string
	if err := json.Unmarshal(r.ErrorMessage, &single); err == nil && single != "" {
		return single
	}
	var many []string
	if err := json.Unmarshal(r.ErrorMessage, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return "OCR processing failed"
}

// Recognize runs the retry policy: up to maxAttempts with the primary
// language, a linearly increasing delay between attempts, then a single
// English fallback attempt. Empty text counts as a failure.
func (o *OCRSpace) Recognize(imageURL string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := o.attempt(imageURL, o.language)
		if err == nil {
			return text, nil
		}
		lastErr = err
		slog.Error("OCR attempt failed",
			"attempt", attempt,
			"language", o.language,
			"error", err,
		)
		o.invalidate()
		if attempt < maxAttempts {
			o.sleep(time.Duration(attempt) * retryBaseDelay)
		}
	}

	slog.Warn("All primary OCR attempts failed, falling back to English", "language", o.language)
	text, err := o.attempt(imageURL, fallbackLanguage)
	if err == nil {
		return text, nil
	}
	o.invalidate()

	return "", fmt.Errorf("ocr failed after %d attempts: %w", maxAttempts, lastErr)
}

// attempt performs one bounded call to the OCR API
func (o *OCRSpace) attempt(imageURL, language string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	fields := map[string]string{
		"url":               imageURL,
		"language":          language,
		"isOverlayRequired": "false",
		"OCREngine":         "2",
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return "", fmt.Errorf("writing form field: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("apikey", o.apiKey)

	resp, err := o.acquire().Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ocr API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ocr API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parsed ocrSpaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr processing error: %s", parsed.errorMessage())
	}
	if len(parsed.ParsedResults) == 0 || parsed.ParsedResults[0].ParsedText == "" {
		return "", fmt.Errorf("ocr returned empty text")
	}

	return parsed.ParsedResults[0].ParsedText, nil
}

// acquire returns the cached HTTP session, creating it on first use
func (o *OCRSpace) acquire() *http.Client {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		o.session = &http.Client{}
	}
	return o.session
}

// invalidate discards the cached session so the next attempt starts fresh
func (o *OCRSpace) invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session = nil
}
