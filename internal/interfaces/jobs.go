package interfaces

import (
	"context"

	"github.com/slipstream-hr/slipstream/internal/models"
)

// StatusFetcher fetches the normalized status of a submitted job.
// Implemented by the API client; the tracker depends on this interface
// so tests can drive it with scripted responses.
type StatusFetcher interface {
	GetJobStatus(ctx context.Context, kind models.JobKind, jobID string) (*models.Job, error)
}

// BatchSubmitter queues email sending for a processed payslip batch.
// Implemented by the API client; used by the send scheduler.
type BatchSubmitter interface {
	SubmitBatchSend(ctx context.Context, batchUUID string) (*models.JobSubmission, error)
}

// CollectionLister reads the employee and batch collections from the
// backend. Used by the cache to refetch after invalidation.
type CollectionLister interface {
	ListEmployees(ctx context.Context, page, limit int, search string) (*models.EmployeePage, error)
	ListBatches(ctx context.Context, page, limit int, payMonth, status string) (*models.BatchPage, error)
}
