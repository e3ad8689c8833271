package client

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mfgops/wo-import-server/internal/importer"
)

// Config holds the record store connection settings
type Config struct {
	BaseURL        string
	TimeoutSeconds int
	MaxRetries     uint64
	Gzip           bool // compress bulk payloads
	BasicUser      string
	BasicPass      string
}

// Store is the HTTP client for the external generic record store. Transient
// failures (network errors, 429, 5xx) are retried with exponential backoff;
// other 4xx responses fail immediately. It implements importer.RecordStore.
type Store struct {
	client     *http.Client
	baseURL    string
	authHeader string
	gzip       bool
	maxRetries uint64
	timings    *importer.Timings
}

// NewStore creates a store client. If timings is nil, attempt counters are
// disabled.
func NewStore(cfg Config, timings *importer.Timings) *Store {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	authHeader := ""
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		credentials := cfg.BasicUser + ":" + cfg.BasicPass
		authHeader = "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
	}

	return &Store{
		client:     &http.Client{Timeout: time.Duration(timeout) * time.Second},
		baseURL:    cfg.BaseURL,
		authHeader: authHeader,
		gzip:       cfg.Gzip,
		maxRetries: maxRetries,
		timings:    timings,
	}
}

// List retrieves all records of an entity type
func (s *Store) List(ctx context.Context, entity string) ([]importer.Record, error) {
	var records []importer.Record
	err := s.doJSON(ctx, http.MethodGet, s.baseURL+"/"+entity, nil, &records, false)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	return records, nil
}

// Create inserts one record
func (s *Store) Create(ctx context.Context, entity string, data map[string]any) (importer.Record, error) {
	var rec importer.Record
	err := s.doJSON(ctx, http.MethodPost, s.baseURL+"/"+entity, data, &rec, false)
	if err != nil {
		return importer.Record{}, fmt.Errorf("create %s: %w", entity, err)
	}
	return rec, nil
}

// BulkCreate inserts a chunk of records in one call
func (s *Store) BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]importer.Record, error) {
	var records []importer.Record
	err := s.doJSON(ctx, http.MethodPost, s.baseURL+"/"+entity+"/bulk", items, &records, s.gzip)
	if err != nil {
		return nil, fmt.Errorf("bulk create %s: %w", entity, err)
	}
	return records, nil
}

// Update replaces one record by id
func (s *Store) Update(ctx context.Context, entity, id string, data map[string]any) (importer.Record, error) {
	var rec importer.Record
	err := s.doJSON(ctx, http.MethodPut, s.baseURL+"/"+entity+"/"+id, data, &rec, false)
	if err != nil {
		return importer.Record{}, fmt.Errorf("update %s/%s: %w", entity, id, err)
	}
	return rec, nil
}

// Delete removes one record by id
func (s *Store) Delete(ctx context.Context, entity, id string) error {
	err := s.doJSON(ctx, http.MethodDelete, s.baseURL+"/"+entity+"/"+id, nil, nil, false)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", entity, id, err)
	}
	return nil
}

// doJSON performs one request with retries. out may be nil when no response
// body is expected.
func (s *Store) doJSON(ctx context.Context, method, url string, payload, out any, compress bool) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		s.timings.IncStoreAttempt()
		if attempt > 1 {
			s.timings.IncStoreRetry()
		}

		err := s.doOnce(ctx, method, url, body, out, compress)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	return backoff.Retry(operation, policy)
}

func (s *Store) doOnce(ctx context.Context, method, url string, body []byte, out any, compress bool) error {
	var reader io.Reader
	contentEncoding := ""
	if body != nil {
		if compress {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			if _, err := gz.Write(body); err != nil {
				return fmt.Errorf("gzip error: %w", err)
			}
			if err := gz.Close(); err != nil {
				return fmt.Errorf("gzip close error: %w", err)
			}
			reader = &buf
			contentEncoding = "gzip"
		} else {
			reader = bytes.NewReader(body)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}
	if s.authHeader != "" {
		req.Header.Set("Authorization", s.authHeader)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response error: %w", err)
		}
	}
	return nil
}

// isRetryable reports whether an error is worth another attempt: network
// errors, 429 and 5xx are; the remaining 4xx are not.
func isRetryable(err error) bool {
	httpErr, ok := err.(*HTTPError)
	if !ok {
		return true
	}
	if httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return httpErr.StatusCode >= 500
}

// HTTPError is a non-2xx store response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}
