package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

// Supabase uploads receipt images to a Supabase Storage bucket and exposes
// their public URLs. Objects are never overwritten: every upload gets a
// fresh owner-scoped path.
type Supabase struct {
	baseURL string
	apiKey  string
	bucket  string
	client  *http.Client
}

// NewSupabase creates a new Supabase storage client
func NewSupabase(baseURL, apiKey, bucket string) (*Supabase, error) {
	if baseURL == "" || apiKey == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	if bucket == "" {
		bucket = "receipt-images"
	}

	return &Supabase{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

// Upload writes the image to an owner-scoped path and returns its public
// URL. The timestamp plus random suffix keeps concurrent uploads from
// colliding.
func (s *Supabase) Upload(data []byte, ownerID string) (string, error) {
	objectPath := fmt.Sprintf("public/%s/%d_%d.jpg", ownerID, time.Now().UnixMilli(), rand.Int63n(1_000_000_000))

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, objectPath)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling storage API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("storage upload error (status %d): %s", resp.StatusCode, string(body))
	}

	return s.publicURL(objectPath), nil
}

// Remove deletes the object behind a previously returned public URL.
// Callers treat failures as best-effort cleanup.
func (s *Supabase) Remove(publicURL string) error {
	objectPath, err := objectPathFromURL(publicURL)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string][]string{"prefixes": {objectPath}})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, s.bucket)
	req, err := http.NewRequestWithContext(ctx, "DELETE", url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling storage API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("storage delete error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// publicURL builds the public URL for an object path
func (s *Supabase) publicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, objectPath)
}

// objectPathFromURL recovers the object path from a public URL. Uploaded
// objects always live under a "public/{ownerID}/" prefix, which is the last
// "public/" segment of the URL.
func objectPathFromURL(publicURL string) (string, error) {
	idx := strings.LastIndex(publicURL, "public/")
	if idx == -1 {
		return "", fmt.Errorf("not a storage public URL: %s", publicURL)
	}
	return publicURL[idx:], nil
}
