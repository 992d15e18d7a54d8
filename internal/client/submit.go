package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/slipstream-hr/slipstream/internal/models"
)

// SubmissionError is returned when a submit call is rejected before a
// job is created: local pre-flight validation failure, transport error,
// or a non-success HTTP status from the backend. The caller may retry
// immediately; there is no job to track.
type SubmissionError struct {
	Kind    models.JobKind
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "submission rejected"
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// AsSubmissionError unwraps err into a *SubmissionError if possible
func AsSubmissionError(err error) (*SubmissionError, bool) {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr, true
	}
	return nil, false
}

// SubmitBulkUpload submits an employee spreadsheet for asynchronous
// processing. Returns immediately with the job identifier; processing
// happens in the backend queue.
func (c *Client) SubmitBulkUpload(ctx context.Context, filePath string) (*models.JobSubmission, error) {
	if err := validateSpreadsheet(filePath); err != nil {
		return nil, &SubmissionError{Kind: models.JobKindEmployeeBulkUpload, Message: err.Error(), Err: err}
	}
	return c.submitMultipart(ctx, models.JobKindEmployeeBulkUpload, "/employees/bulk-upload", filePath, nil)
}

// SubmitPayslipUpload submits a payslip PDF or ZIP for a given pay month
func (c *Client) SubmitPayslipUpload(ctx context.Context, filePath, payMonth string) (*models.JobSubmission, error) {
	if err := validatePayslipFile(filePath, payMonth); err != nil {
		return nil, &SubmissionError{Kind: models.JobKindPayslipUpload, Message: err.Error(), Err: err}
	}
	return c.submitMultipart(ctx, models.JobKindPayslipUpload, "/payslips/upload", filePath, map[string]string{
		"payMonth": payMonth,
	})
}

// SubmitBatchSend queues email sending for a processed payslip batch
func (c *Client) SubmitBatchSend(ctx context.Context, batchUUID string) (*models.JobSubmission, error) {
	if batchUUID == "" {
		err := fmt.Errorf("batch identifier is required")
		return nil, &SubmissionError{Kind: models.JobKindBatchSend, Message: err.Error(), Err: err}
	}

	var submission models.JobSubmission
	envelope, err := c.postJSON(ctx, "/payslips/batches/"+batchUUID+"/send", nil, &submission)
	if err != nil {
		return nil, wrapSubmitError(models.JobKindBatchSend, err)
	}
	if submission.Message == "" {
		submission.Message = envelope.Message
	}
	if submission.JobID == "" {
		err := fmt.Errorf("backend did not return a job identifier")
		return nil, &SubmissionError{Kind: models.JobKindBatchSend, Message: err.Error(), Err: err}
	}
	return &submission, nil
}

// submitMultipart uploads a file with optional form fields and returns
// the job submission response
func (c *Client) submitMultipart(ctx context.Context, kind models.JobKind, path, filePath string, fields map[string]string) (*models.JobSubmission, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, &SubmissionError{Kind: kind, Message: fmt.Sprintf("cannot open %s", filepath.Base(filePath)), Err: err}
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return nil, &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to build upload form: %w", err)}
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to read %s: %w", filepath.Base(filePath), err)}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to build upload form: %w", err)}
		}
	}
	// Correlation ID lets backend logs tie the upload to this client run
	if err := writer.WriteField("requestId", uuid.New().String()); err != nil {
		return nil, &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to build upload form: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return nil, &SubmissionError{Kind: kind, Err: fmt.Errorf("failed to finalize upload form: %w", err)}
	}

	envelope, err := c.do(ctx, http.MethodPost, path, writer.FormDataContentType(), &buf)
	if err != nil {
		return nil, wrapSubmitError(kind, err)
	}

	var submission models.JobSubmission
	if err := decodeEnvelopeData(envelope, &submission); err != nil {
		return nil, &SubmissionError{Kind: kind, Err: err}
	}
	if submission.Message == "" {
		submission.Message = envelope.Message
	}
	if submission.JobID == "" {
		err := fmt.Errorf("backend did not return a job identifier")
		return nil, &SubmissionError{Kind: kind, Message: err.Error(), Err: err}
	}

	c.logger.Info().
		Str("kind", string(kind)).
		Str("job_id", submission.JobID).
		Str("file", filepath.Base(filePath)).
		Msg("Job submitted")

	return &submission, nil
}

// wrapSubmitError converts transport and HTTP errors from a submit call
// into SubmissionError, preserving the server's message when present
func wrapSubmitError(kind models.JobKind, err error) error {
	var httpErr *apiError
	if errors.As(err, &httpErr) {
		return &SubmissionError{Kind: kind, Message: httpErr.Message, Err: err}
	}
	return &SubmissionError{Kind: kind, Err: err}
}
