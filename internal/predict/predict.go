package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is an HTTP-status-class failure from the prediction oracle,
// carrying the status code and raw response body.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prediction oracle error: status=%d body=%s", e.Status, e.Body)
}

// OracleError is any other prediction failure (timeout, connection,
// malformed response).
type OracleError struct {
	Reason string
	Err    error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("prediction failed: %s: %v", e.Reason, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// Service calls the external prediction oracle and merges its output into
// the caller's record. Single attempt per call; retries are the caller's
// responsibility.
type Service struct {
	apiURL     string
	httpClient *http.Client
}

// NewService creates a prediction service for the given oracle URL.
func NewService(apiURL string, timeout time.Duration) *Service {
	return &Service{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Merge posts the record to the oracle and returns the union of the record's
// fields and the oracle's returned fields. Oracle fields win on collision.
func (s *Service) Merge(ctx context.Context, record map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, &OracleError{Reason: "marshal record", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &OracleError{Reason: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &OracleError{Reason: "request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &OracleError{Reason: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var predictions map[string]any
	if err := json.Unmarshal(body, &predictions); err != nil {
		return nil, &OracleError{Reason: "parse response", Err: err}
	}

	merged := make(map[string]any, len(record)+len(predictions))
	for k, v := range record {
		merged[k] = v
	}
	for k, v := range predictions {
		merged[k] = v
	}
	return merged, nil
}
