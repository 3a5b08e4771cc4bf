// Package features fetches raw linguistic and behavioral feature records
// from the feature store and assembles the 26-dim feature vector the
// model registry's predict contract expects.
package features

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"selinfer/internal/sel"
	"selinfer/internal/validation"
)

// recordKind selects which feature record type to fetch.
type recordKind string

const (
	kindLinguistic recordKind = "linguistic"
	kindBehavioral recordKind = "behavioral"
)

// StoreClient fetches raw feature records for a student. Calls must support
// concurrent use (spec §6: "must support concurrent reads").
type StoreClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStoreClient builds a client against the configured feature store URL.
func NewStoreClient(baseURL string, httpClient *http.Client) *StoreClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StoreClient{baseURL: baseURL, httpClient: httpClient}
}

type featureRecordPayload struct {
	Values     map[string]float64 `json:"values"`
	CapturedAt time.Time          `json:"captured_at"`
}

// FetchLinguistic returns the most recent linguistic record for studentID,
// or nil if the store has none. A transport/backend error is returned as
// *sel.UpstreamUnavailable per spec §4.6.
func (c *StoreClient) FetchLinguistic(ctx context.Context, studentID string) (*sel.LinguisticRecord, error) {
	payload, err := c.fetch(ctx, studentID, kindLinguistic)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	return &sel.LinguisticRecord{StudentID: studentID, Values: payload.Values, CapturedAt: payload.CapturedAt}, nil
}

// FetchBehavioral returns the most recent behavioral record for studentID,
// or nil if the store has none.
func (c *StoreClient) FetchBehavioral(ctx context.Context, studentID string) (*sel.BehavioralRecord, error) {
	payload, err := c.fetch(ctx, studentID, kindBehavioral)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	return &sel.BehavioralRecord{StudentID: studentID, Values: payload.Values, CapturedAt: payload.CapturedAt}, nil
}

func (c *StoreClient) fetch(ctx context.Context, studentID string, kind recordKind) (*featureRecordPayload, error) {
	safeID, err := validation.StudentID(studentID)
	if err != nil {
		return nil, &sel.UpstreamUnavailable{Upstream: "feature_store", Cause: err}
	}
	url := fmt.Sprintf("%s/students/%s/features/%s", c.baseURL, safeID, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, bytes.NewReader(nil))
	if err != nil {
		return nil, &sel.UpstreamUnavailable{Upstream: "feature_store", Cause: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &sel.UpstreamUnavailable{Upstream: "feature_store", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &sel.UpstreamUnavailable{Upstream: "feature_store", Cause: fmt.Errorf("status %s: %s", resp.Status, string(b))}
	}

	var payload featureRecordPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &sel.UpstreamUnavailable{Upstream: "feature_store", Cause: err}
	}
	return &payload, nil
}
