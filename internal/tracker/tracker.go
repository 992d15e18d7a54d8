// Package tracker owns the client side of the asynchronous job
// protocol: fixed-interval status polling with a canonical state
// machine, progress projection, and one-shot result reconciliation.
// One implementation serves all three job kinds (employee bulk upload,
// payslip batch upload, batch email send).
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/slipstream-hr/slipstream/internal/interfaces"
	"github.com/slipstream-hr/slipstream/internal/models"
)

// UpdateFunc receives each normalized job snapshot as it is observed.
// The final invocation carries a terminal state; no calls follow it.
type UpdateFunc func(job *models.Job)

// CancelFunc stops tracking. After it returns, no further UpdateFunc
// calls occur, even if a poll was in flight at cancellation time.
type CancelFunc func()

// Tracker polls job status at a fixed interval until a terminal state.
// Each tracked job runs its own timer loop with at most one status
// request in flight, so updates for a given job are strictly ordered.
type Tracker struct {
	status   interfaces.StatusFetcher
	interval time.Duration
	maxPolls int
	logger   arbor.ILogger

	mu     sync.Mutex
	active map[string]CancelFunc // surface key -> cancel for the current job
}

// Option configures a Tracker
type Option func(*Tracker)

// WithInterval overrides the default 3s poll interval
func WithInterval(interval time.Duration) Option {
	return func(t *Tracker) {
		if interval > 0 {
			t.interval = interval
		}
	}
}

// WithMaxPolls caps the number of status checks before a job is
// declared abandoned. Zero means unlimited: a stuck job polls until
// the caller cancels.
func WithMaxPolls(maxPolls int) Option {
	return func(t *Tracker) {
		if maxPolls >= 0 {
			t.maxPolls = maxPolls
		}
	}
}

// New creates a Tracker backed by the given status fetcher
func New(status interfaces.StatusFetcher, logger arbor.ILogger, opts ...Option) *Tracker {
	t := &Tracker{
		status:   status,
		interval: 3 * time.Second,
		logger:   logger,
		active:   make(map[string]CancelFunc),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// tracking holds the cancellation state for one tracked job. The mutex
// orders deliveries against cancellation: cancel() takes the same lock
// as deliver(), so once cancel returns, any in-flight response is
// dropped rather than applied.
type tracking struct {
	mu        sync.Mutex
	cancelled bool
	stop      context.CancelFunc
}

// deliver forwards a snapshot to onUpdate unless tracking was cancelled
func (tr *tracking) deliver(onUpdate UpdateFunc, job *models.Job) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.cancelled {
		return false
	}
	onUpdate(job)
	return true
}

// cancel stops the poll loop and blocks out any further delivery
func (tr *tracking) cancel() {
	tr.mu.Lock()
	tr.cancelled = true
	tr.mu.Unlock()
	tr.stop()
}

// Track starts polling the given job until it reaches a terminal state.
// The first poll fires one interval after Track returns; the submission
// response itself serves as the initial snapshot. Returns a CancelFunc
// that stops tracking immediately.
func (t *Tracker) Track(jobID string, kind models.JobKind, onUpdate UpdateFunc) CancelFunc {
	ctx, stop := context.WithCancel(context.Background())
	tr := &tracking{stop: stop}

	t.logger.Debug().
		Str("job_id", jobID).
		Str("kind", string(kind)).
		Dur("interval", t.interval).
		Msg("Tracking job")

	go t.poll(ctx, tr, jobID, kind, onUpdate)

	return tr.cancel
}

// TrackSurface starts tracking a job on behalf of a named submission
// surface (one upload page or modal). Each surface tracks at most one
// job: submitting a new job cancels tracking of the previous one.
func (t *Tracker) TrackSurface(surface, jobID string, kind models.JobKind, onUpdate UpdateFunc) CancelFunc {
	t.mu.Lock()
	if previous, ok := t.active[surface]; ok {
		previous()
	}
	cancel := t.Track(jobID, kind, onUpdate)
	t.active[surface] = cancel
	t.mu.Unlock()
	return cancel
}

// Close cancels all active surface tracks
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, cancel := range t.active {
		cancel()
	}
	t.active = make(map[string]CancelFunc)
}

// poll runs the fixed-interval status loop for one job. The loop body
// blocks on the status request, so poll N+1 is never issued before poll
// N's response is observed and missed ticks are simply dropped.
func (t *Tracker) poll(ctx context.Context, tr *tracking, jobID string, kind models.JobKind, onUpdate UpdateFunc) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			polls++
			job, err := t.status.GetJobStatus(ctx, kind, jobID)
			if err != nil {
				if ctx.Err() != nil {
					// Cancelled while the request was in flight
					return
				}
				// A failed status check is fatal for the tracked job:
				// silent retry would leave the UI spinning on a backend
				// that may never answer. Fail fast and let the user
				// resubmit.
				t.logger.Warn().
					Err(err).
					Str("job_id", jobID).
					Str("kind", string(kind)).
					Msg("Status check failed, marking job failed")
				tr.deliver(onUpdate, models.FailedJob(jobID, kind, err.Error()))
				tr.cancel()
				return
			}

			if !tr.deliver(onUpdate, job) {
				return
			}

			if job.IsTerminal() {
				t.logger.Info().
					Str("job_id", jobID).
					Str("kind", string(kind)).
					Str("state", string(job.State)).
					Int("polls", polls).
					Msg("Job reached terminal state")
				tr.cancel()
				return
			}

			if t.maxPolls > 0 && polls >= t.maxPolls {
				reason := fmt.Sprintf("job still %s after %d status checks", job.State, polls)
				t.logger.Warn().
					Str("job_id", jobID).
					Str("kind", string(kind)).
					Msg("Poll ceiling reached, abandoning job")
				tr.deliver(onUpdate, models.FailedJob(jobID, kind, reason))
				tr.cancel()
				return
			}
		}
	}
}
