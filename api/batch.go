package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// Batch endpoints
const (
	SubmitBatchPath = "/api/batch/process"
	BatchStatusPath = "/api/batch/status/"
)

// Item and job status values reported by the service
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// BatchSubmission is the body of a batch submit call.
type BatchSubmission struct {
	// Items are opaque per-item payloads
	Items []json.RawMessage `json:"items"`
	// MaxConcurrent asks the service to bound its per-batch parallelism
	MaxConcurrent int `json:"max_concurrent,omitempty"`
}

// BatchAccepted is the submit response.
type BatchAccepted struct {
	BatchID string `json:"batch_id"`
}

// BatchItem is one item of a status response.
type BatchItem struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchStatus is the status response.
type BatchStatus struct {
	BatchID        string      `json:"batch_id,omitempty"`
	Status         string      `json:"status"`
	Items          []BatchItem `json:"items"`
	CompletedCount int         `json:"completed_count"`
	TotalCount     int         `json:"total_count"`
}

func (c *client) SubmitBatch(ctx context.Context, sub *BatchSubmission) (*BatchAccepted, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: SubmitBatchPath, Body: sub})
	if err != nil {
		return nil, err
	}
	var out BatchAccepted
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if out.BatchID == "" {
		return nil, ErrMissingBatchID
	}
	return &out, nil
}

func (c *client) BatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodGet, Path: BatchStatusPath + url.PathEscape(batchID)})
	if err != nil {
		return nil, err
	}
	var out BatchStatus
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
