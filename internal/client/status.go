package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/slipstream-hr/slipstream/internal/models"
)

// statusPaths maps each job kind to its status endpoint. The three
// backend queues expose the same response shape under different routes.
var statusPaths = map[models.JobKind]string{
	models.JobKindEmployeeBulkUpload: "/employees/bulk-upload/%s/status",
	models.JobKindPayslipUpload:      "/payslips/upload/%s/status",
	models.JobKindBatchSend:          "/payslips/batches/send/%s/status",
}

// jobStatusWire is the raw poll response before state normalization
type jobStatusWire struct {
	State        string              `json:"state"`
	Progress     *models.RawProgress `json:"progress"`
	Result       json.RawMessage     `json:"result"`
	FailedReason string              `json:"failedReason"`
}

// GetJobStatus fetches and normalizes the current status of a tracked
// job. Wire states are mapped onto the canonical enum here so nothing
// downstream sees raw backend vocabulary.
func (c *Client) GetJobStatus(ctx context.Context, kind models.JobKind, jobID string) (*models.Job, error) {
	path, ok := statusPaths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}

	var wire jobStatusWire
	if _, err := c.get(ctx, fmt.Sprintf(path, url.PathEscape(jobID)), &wire); err != nil {
		return nil, err
	}

	state, err := models.ParseJobState(kind, wire.State)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		JobID:        jobID,
		Kind:         kind,
		State:        state,
		Progress:     wire.Progress,
		FailedReason: wire.FailedReason,
	}

	if state == models.JobStateCompleted && len(wire.Result) > 0 {
		result, err := decodeJobResult(kind, wire.Result)
		if err != nil {
			return nil, err
		}
		job.Result = result
	}

	return job, nil
}

// decodeJobResult parses the kind-specific result payload of a
// completed job
func decodeJobResult(kind models.JobKind, raw json.RawMessage) (*models.JobResult, error) {
	switch kind {
	case models.JobKindEmployeeBulkUpload, models.JobKindPayslipUpload:
		var result models.BulkUploadResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode upload result: %w", err)
		}
		return &models.JobResult{BulkUpload: &result}, nil
	case models.JobKindBatchSend:
		var result models.BatchSendResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode batch send result: %w", err)
		}
		return &models.JobResult{BatchSend: &result}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

// decodeEnvelopeData unmarshals an envelope's data field into out
func decodeEnvelopeData(envelope *apiEnvelope, out interface{}) error {
	if len(envelope.Data) == 0 {
		return fmt.Errorf("response envelope has no data")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// ListEmployees fetches one page of the employee collection
func (c *Client) ListEmployees(ctx context.Context, page, limit int, search string) (*models.EmployeePage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	if search != "" {
		query.Set("search", search)
	}

	var employees []models.Employee
	envelope, err := c.get(ctx, "/employees?"+query.Encode(), &employees)
	if err != nil {
		return nil, err
	}

	result := &models.EmployeePage{Employees: employees}
	if len(envelope.Meta) > 0 {
		if err := json.Unmarshal(envelope.Meta, &result.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode employee pagination: %w", err)
		}
	}
	return result, nil
}

// ListBatches fetches one page of the payslip batch collection,
// optionally filtered by pay month and status
func (c *Client) ListBatches(ctx context.Context, page, limit int, payMonth, status string) (*models.BatchPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	if payMonth != "" {
		query.Set("payMonth", payMonth)
	}
	if status != "" {
		query.Set("status", status)
	}

	var batches []models.PayslipBatch
	envelope, err := c.get(ctx, "/payslips/batches?"+query.Encode(), &batches)
	if err != nil {
		return nil, err
	}

	result := &models.BatchPage{Batches: batches}
	if len(envelope.Meta) > 0 {
		if err := json.Unmarshal(envelope.Meta, &result.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode batch pagination: %w", err)
		}
	}
	return result, nil
}

// DownloadEmployeeTemplate fetches the bulk upload spreadsheet template
func (c *Client) DownloadEmployeeTemplate(ctx context.Context) ([]byte, error) {
	return c.download(ctx, "/employees/template")
}
