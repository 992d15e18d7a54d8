package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/slipstream-hr/slipstream/internal/interfaces"
	"github.com/slipstream-hr/slipstream/internal/models"
)

// Severity classifies the outcome notice shown for a terminal job
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is the user-facing outcome of a terminal job: a severity, a
// summary line, and for partial upload failures the per-row details
type Notice struct {
	Severity  Severity
	Message   string
	RowErrors []models.BulkUploadRowError
	// Resettable is true when the surface may offer a retry: the job is
	// finished and a fresh submission cannot conflict with it.
	Resettable bool
}

// Reconciler turns each terminal job snapshot into a Notice exactly
// once and publishes the matching invalidation events. Polling can
// observe the same terminal state more than once (a late in-flight
// response, a resumed surface); reconciliation must not double-fire.
type Reconciler struct {
	events interfaces.EventService
	logger arbor.ILogger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewReconciler creates a Reconciler publishing on the given event bus
func NewReconciler(events interfaces.EventService, logger arbor.ILogger) *Reconciler {
	return &Reconciler{
		events: events,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Reconcile processes a terminal job snapshot. Returns the Notice to
// display, or nil when the snapshot is non-terminal or the job was
// already reconciled.
func (r *Reconciler) Reconcile(ctx context.Context, job *models.Job) *Notice {
	if job == nil || !job.IsTerminal() {
		return nil
	}

	r.mu.Lock()
	if _, done := r.seen[job.JobID]; done {
		r.mu.Unlock()
		r.logger.Debug().
			Str("job_id", job.JobID).
			Msg("Job already reconciled, skipping")
		return nil
	}
	r.seen[job.JobID] = struct{}{}
	r.mu.Unlock()

	if job.State == models.JobStateFailed {
		return r.reconcileFailed(ctx, job)
	}
	return r.reconcileCompleted(ctx, job)
}

// Forget drops a job from the reconciled set. Used when a surface is
// reset so a resubmission of the same logical work starts clean.
func (r *Reconciler) Forget(jobID string) {
	r.mu.Lock()
	delete(r.seen, jobID)
	r.mu.Unlock()
}

func (r *Reconciler) reconcileFailed(ctx context.Context, job *models.Job) *Notice {
	reason := job.FailedReason
	if reason == "" {
		reason = "job failed"
	}

	r.logger.Warn().
		Str("job_id", job.JobID).
		Str("kind", string(job.Kind)).
		Str("reason", reason).
		Msg("Job failed")

	r.publish(ctx, interfaces.Event{Type: interfaces.EventJobFailed, Payload: job})

	// The backend's reason is surfaced verbatim: "Corrupt file" from the
	// parser beats any generic rewording.
	return &Notice{
		Severity:   SeverityError,
		Message:    reason,
		Resettable: true,
	}
}

func (r *Reconciler) reconcileCompleted(ctx context.Context, job *models.Job) *Notice {
	r.publish(ctx, interfaces.Event{Type: interfaces.EventJobCompleted, Payload: job})

	switch job.Kind {
	case models.JobKindEmployeeBulkUpload:
		r.publish(ctx, interfaces.Event{Type: interfaces.EventEmployeesInvalidated})
		return r.uploadNotice(job, "employee record")
	case models.JobKindPayslipUpload:
		r.publish(ctx, interfaces.Event{Type: interfaces.EventBatchesInvalidated})
		return r.uploadNotice(job, "payslip")
	case models.JobKindBatchSend:
		r.publish(ctx, interfaces.Event{Type: interfaces.EventBatchesInvalidated})
		return r.batchSendNotice(job)
	default:
		return &Notice{
			Severity:   SeveritySuccess,
			Message:    "Job completed",
			Resettable: true,
		}
	}
}

// uploadNotice summarizes a completed bulk upload. A completed job can
// still carry row-level failures; those render as a warning with the
// rejected rows attached, not a success.
func (r *Reconciler) uploadNotice(job *models.Job, noun string) *Notice {
	result := job.Result
	if result == nil || result.BulkUpload == nil {
		// Completed with no result payload: report completion and let
		// the refetched collection tell the rest.
		return &Notice{
			Severity:   SeveritySuccess,
			Message:    "Upload completed",
			Resettable: true,
		}
	}

	upload := result.BulkUpload

	r.logger.Info().
		Str("job_id", job.JobID).
		Int("total", upload.TotalRecords).
		Int("succeeded", upload.SuccessCount).
		Int("failed", upload.FailureCount).
		Msg("Upload completed")

	if upload.FailureCount == 0 {
		return &Notice{
			Severity:   SeveritySuccess,
			Message:    fmt.Sprintf("Successfully processed %d %ss", upload.SuccessCount, noun),
			Resettable: true,
		}
	}

	return &Notice{
		Severity:   SeverityWarning,
		Message:    fmt.Sprintf("Processed %d of %d %ss, %d failed", upload.SuccessCount, upload.TotalRecords, noun, upload.FailureCount),
		RowErrors:  upload.Errors,
		Resettable: true,
	}
}

func (r *Reconciler) batchSendNotice(job *models.Job) *Notice {
	result := job.Result
	if result == nil || result.BatchSend == nil {
		return &Notice{
			Severity:   SeveritySuccess,
			Message:    "Batch send completed",
			Resettable: true,
		}
	}

	send := result.BatchSend

	r.logger.Info().
		Str("job_id", job.JobID).
		Str("batch_id", send.BatchID).
		Int("sent", send.SuccessCount).
		Int("failed", send.FailureCount).
		Int("skipped", send.SkippedCount).
		Msg("Batch send completed")

	message := send.Message
	if message == "" {
		message = fmt.Sprintf("Sent %d of %d payslips", send.SuccessCount, send.TotalPayslips)
	}

	severity := SeveritySuccess
	if send.FailureCount > 0 {
		severity = SeverityWarning
		message = fmt.Sprintf("%s (%d failed)", message, send.FailureCount)
	}

	return &Notice{
		Severity:   severity,
		Message:    message,
		Resettable: true,
	}
}

// publish fires an event, logging rather than propagating failures:
// a broken subscriber must not block outcome display
func (r *Reconciler) publish(ctx context.Context, event interfaces.Event) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.Warn().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("Failed to publish event")
	}
}
