// -----------------------------------------------------------------------
// Tracked Job - canonical client-side view of a backend async job
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
)

// JobState is the canonical job lifecycle state. Backend queues use
// inconsistent vocabularies per job kind ("waiting"/"active" for email
// sends, "queued"/"processing"/"parsing" for uploads); every wire value
// is normalized onto this enum at the client edge and nothing downstream
// branches on raw wire strings.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
)

// JobKind identifies which submission surface a job belongs to
type JobKind string

const (
	JobKindEmployeeBulkUpload JobKind = "employee_bulk_upload"
	JobKindPayslipUpload      JobKind = "payslip_upload"
	JobKindBatchSend          JobKind = "batch_send"
)

// wireStates maps raw backend state strings onto the canonical enum.
// Upload queues report queued/parsing/processing, the email send queue
// reports waiting/active. Terminal states are spelled the same everywhere.
var wireStates = map[string]JobState{
	"queued":     JobStateQueued,
	"waiting":    JobStateQueued,
	"pending":    JobStateQueued,
	"processing": JobStateProcessing,
	"parsing":    JobStateProcessing,
	"active":     JobStateProcessing,
	"completed":  JobStateCompleted,
	"failed":     JobStateFailed,
}

// ParseJobState normalizes a raw wire state for the given job kind.
// Unknown values are an error rather than a silent default: an
// unrecognized state means the client and backend disagree about the
// protocol, and guessing would mask that.
func ParseJobState(kind JobKind, wire string) (JobState, error) {
	if state, ok := wireStates[wire]; ok {
		return state, nil
	}
	return "", fmt.Errorf("unknown %s job state %q", kind, wire)
}

// IsTerminal returns true for the two states after which no further
// polling occurs
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Job is the normalized client-side snapshot of one submitted
// asynchronous unit of work. It is assigned at submission, mutated only
// by poll responses, and discarded on reset or resubmission. The backend
// is the sole source of truth for State, Progress and Result.
type Job struct {
	JobID        string       `json:"jobId"`
	Kind         JobKind      `json:"kind"`
	State        JobState     `json:"state"`
	Progress     *RawProgress `json:"progress,omitempty"`
	Result       *JobResult   `json:"result,omitempty"`
	FailedReason string       `json:"failedReason,omitempty"`
}

// IsTerminal returns true if the job has reached completed or failed
func (j *Job) IsTerminal() bool {
	return j.State.IsTerminal()
}

// FailedJob synthesizes a terminal failed Job for a tracked job whose
// status could not be checked (transport or parse error during a poll)
func FailedJob(jobID string, kind JobKind, reason string) *Job {
	if reason == "" {
		reason = "status check failed"
	}
	return &Job{
		JobID:        jobID,
		Kind:         kind,
		State:        JobStateFailed,
		FailedReason: reason,
	}
}

// RawProgress is the heterogeneous progress payload reported by the
// backend: either a bare integer percentage or a structured
// stage/processed/total/percentage record. The zero value means "no
// progress reported yet", which is legitimate while a job is queued.
type RawProgress struct {
	// Structured is true when the backend sent the object form
	Structured bool   `json:"-"`
	Stage      string `json:"stage,omitempty"`
	Processed  int    `json:"processed,omitempty"`
	Total      int    `json:"total,omitempty"`
	Percentage int    `json:"percentage"`
}

// UnmarshalJSON accepts both wire forms of the progress payload
func (p *RawProgress) UnmarshalJSON(data []byte) error {
	// Bare number form
	var pct float64
	if err := json.Unmarshal(data, &pct); err == nil {
		*p = RawProgress{Percentage: int(pct)}
		return nil
	}

	// Structured form
	var structured struct {
		Stage      string `json:"stage"`
		Processed  int    `json:"processed"`
		Total      int    `json:"total"`
		Percentage int    `json:"percentage"`
	}
	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("unrecognized progress payload: %w", err)
	}

	*p = RawProgress{
		Structured: true,
		Stage:      structured.Stage,
		Processed:  structured.Processed,
		Total:      structured.Total,
		Percentage: structured.Percentage,
	}
	return nil
}

// MarshalJSON writes the form the payload arrived in
func (p RawProgress) MarshalJSON() ([]byte, error) {
	if !p.Structured {
		return json.Marshal(p.Percentage)
	}
	type structured RawProgress
	return json.Marshal(structured(p))
}

// JobResult carries the kind-specific final payload of a completed job.
// Exactly one of the pointers is set, matching the job kind.
type JobResult struct {
	BulkUpload *BulkUploadResult `json:"bulkUpload,omitempty"`
	BatchSend  *BatchSendResult  `json:"batchSend,omitempty"`
}

// BulkUploadRowError describes one rejected spreadsheet row
type BulkUploadRowError struct {
	Row         int      `json:"row"`
	IppisNumber string   `json:"ippisNumber"`
	Errors      []string `json:"errors"`
}

// BulkUploadResult is the final payload of an employee bulk upload or
// payslip batch upload job
type BulkUploadResult struct {
	TotalRecords   int                  `json:"totalRecords"`
	SuccessCount   int                  `json:"successCount"`
	FailureCount   int                  `json:"failureCount"`
	ProcessingTime float64              `json:"processingTime"`
	Errors         []BulkUploadRowError `json:"errors"`
}

// BatchSendResult is the final payload of a batch email send job
type BatchSendResult struct {
	BatchID       string `json:"batchId"`
	PayMonth      string `json:"payMonth"`
	TotalPayslips int    `json:"totalPayslips"`
	SuccessCount  int    `json:"successCount"`
	FailureCount  int    `json:"failureCount"`
	SkippedCount  int    `json:"skippedCount,omitempty"`
	EmailStatus   string `json:"emailStatus"`
	Message       string `json:"message,omitempty"`
}

// JobSubmission is the backend's immediate response to a submit call
type JobSubmission struct {
	JobID   string `json:"jobId"`
	Message string `json:"message,omitempty"`
}
