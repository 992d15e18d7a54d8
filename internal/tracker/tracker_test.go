package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/slipstream-hr/slipstream/internal/models"
)

// scriptedFetcher plays back a fixed sequence of status responses, then
// repeats the last one
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	delay     time.Duration
}

type scriptedResponse struct {
	job *models.Job
	err error
}

func (f *scriptedFetcher) GetJobStatus(ctx context.Context, kind models.JobKind, jobID string) (*models.Job, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++

	resp := f.responses[idx]
	return resp.job, resp.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder collects delivered job snapshots
type recorder struct {
	mu   sync.Mutex
	jobs []*models.Job
	done chan struct{}
	once sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) update(job *models.Job) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if job.IsTerminal() {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) snapshot() []*models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *recorder) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal update")
	}
}

func job(state models.JobState) *models.Job {
	return &models.Job{JobID: "job-1", Kind: models.JobKindEmployeeBulkUpload, State: state}
}

func TestTrackDeliversEveryPollUntilTerminal(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{job: job(models.JobStateQueued)},
		{job: job(models.JobStateProcessing)},
		{job: job(models.JobStateProcessing)},
		{job: job(models.JobStateCompleted)},
	}}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)
	rec.waitTerminal(t)

	jobs := rec.snapshot()
	require.Len(t, jobs, 4)
	assert.Equal(t, models.JobStateQueued, jobs[0].State)
	assert.Equal(t, models.JobStateProcessing, jobs[1].State)
	assert.Equal(t, models.JobStateProcessing, jobs[2].State)
	assert.Equal(t, models.JobStateCompleted, jobs[3].State)
}

func TestTrackStopsPollingAfterTerminal(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{job: job(models.JobStateCompleted)},
	}}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)
	rec.waitTerminal(t)

	// Give the loop time to misbehave if it were going to
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, 1, fetcher.callCount(), "no polls after a terminal state")
	assert.Len(t, rec.snapshot(), 1, "no updates after a terminal state")
}

func TestTrackSynthesizesFailureOnTransportError(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{job: job(models.JobStateProcessing)},
		{err: fmt.Errorf("connection refused")},
	}}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)
	rec.waitTerminal(t)

	jobs := rec.snapshot()
	require.Len(t, jobs, 2)
	final := jobs[1]
	assert.Equal(t, models.JobStateFailed, final.State)
	assert.Equal(t, "connection refused", final.FailedReason)
	assert.Equal(t, "job-1", final.JobID)

	// The synthesized failure is terminal: polling stops
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, fetcher.callCount())
}

func TestTrackPreservesBackendFailureReason(t *testing.T) {
	failed := job(models.JobStateFailed)
	failed.FailedReason = "Corrupt file"

	fetcher := &scriptedFetcher{responses: []scriptedResponse{{job: failed}}}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)
	rec.waitTerminal(t)

	jobs := rec.snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Corrupt file", jobs[0].FailedReason)
}

func TestCancelStopsDeliveries(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{job: job(models.JobStateProcessing)},
	}}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	cancel := tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)

	// Let a couple of polls land, then cancel
	time.Sleep(35 * time.Millisecond)
	cancel()
	delivered := len(rec.snapshot())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, delivered, len(rec.snapshot()), "no updates after cancel returned")
}

func TestCancelDuringInFlightPoll(t *testing.T) {
	// The fetcher stalls long enough that cancel lands while a status
	// request is in flight; its response must be dropped
	fetcher := &scriptedFetcher{
		responses: []scriptedResponse{{job: job(models.JobStateProcessing)}},
		delay:     80 * time.Millisecond,
	}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	cancel := tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)

	// Wait for the first poll to start, then cancel mid-request
	time.Sleep(30 * time.Millisecond)
	cancel()

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, rec.snapshot(), "in-flight response delivered after cancel")
}

func TestMaxPollsAbandonsStuckJob(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{job: job(models.JobStateProcessing)},
	}}
	rec := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(),
		WithInterval(10*time.Millisecond), WithMaxPolls(3))
	tracker.Track("job-1", models.JobKindEmployeeBulkUpload, rec.update)
	rec.waitTerminal(t)

	jobs := rec.snapshot()
	require.Len(t, jobs, 4, "three processing updates then the abandonment")
	final := jobs[3]
	assert.Equal(t, models.JobStateFailed, final.State)
	assert.Contains(t, final.FailedReason, "after 3 status checks")
	assert.Equal(t, 3, fetcher.callCount())
}

func TestTrackSurfaceReplacesPreviousJob(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []scriptedResponse{
		{job: job(models.JobStateProcessing)},
	}}
	first := newRecorder()
	second := newRecorder()

	tracker := New(fetcher, arbor.NewLogger(), WithInterval(10*time.Millisecond))
	tracker.TrackSurface("bulk-upload", "job-1", models.JobKindEmployeeBulkUpload, first.update)

	time.Sleep(35 * time.Millisecond)
	tracker.TrackSurface("bulk-upload", "job-2", models.JobKindEmployeeBulkUpload, second.update)
	firstCount := len(first.snapshot())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, firstCount, len(first.snapshot()), "replaced track kept delivering")
	assert.NotEmpty(t, second.snapshot(), "replacement track never delivered")

	tracker.Close()
}
