// Package scheduler implements deferred batch email sending: a batch
// can be queued for dispatch at a later time instead of sent
// immediately. Each scheduled send fires once, submits the send job,
// and hands the job to the tracker like a manual send would.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/slipstream-hr/slipstream/internal/interfaces"
	"github.com/slipstream-hr/slipstream/internal/models"
	"github.com/slipstream-hr/slipstream/internal/tracker"
)

// sendEntry is one pending scheduled send
type sendEntry struct {
	batchUUID string
	schedule  string
	cronID    cron.EntryID
}

// Service schedules batch sends for later dispatch
type Service struct {
	submitter interfaces.BatchSubmitter
	tracker   *tracker.Tracker
	cron      *cron.Cron
	logger    arbor.ILogger

	mu      sync.Mutex
	pending map[string]*sendEntry
	onJob   tracker.UpdateFunc
	running bool
}

// NewService creates a send scheduler. onJob receives status updates
// for jobs the scheduler submits, exactly as a manual send would.
func NewService(submitter interfaces.BatchSubmitter, jobTracker *tracker.Tracker, onJob tracker.UpdateFunc, logger arbor.ILogger) *Service {
	return &Service{
		submitter: submitter,
		tracker:   jobTracker,
		cron:      cron.New(),
		logger:    logger,
		pending:   make(map[string]*sendEntry),
		onJob:     onJob,
	}
}

// Start begins the scheduler
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("Send scheduler started")
	return nil
}

// Stop halts the scheduler. Pending sends are dropped; jobs already
// submitted keep being tracked.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.pending = make(map[string]*sendEntry)
	s.running = false
	s.logger.Info().Msg("Send scheduler stopped")
	return nil
}

// ScheduleSend queues a batch for dispatch per the given cron spec. The
// send fires once on the first matching tick and then deschedules
// itself. A batch can hold at most one pending send: rescheduling
// replaces the previous entry.
func (s *Service) ScheduleSend(batchUUID, spec string) error {
	if batchUUID == "" {
		return fmt.Errorf("batch UUID is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, exists := s.pending[batchUUID]; exists {
		s.cron.Remove(previous.cronID)
	}

	entry := &sendEntry{batchUUID: batchUUID, schedule: spec}
	cronID, err := s.cron.AddFunc(spec, func() {
		s.dispatch(batchUUID)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule send: %w", err)
	}
	entry.cronID = cronID
	s.pending[batchUUID] = entry

	s.logger.Info().
		Str("batch_uuid", batchUUID).
		Str("schedule", spec).
		Msg("Batch send scheduled")

	return nil
}

// ScheduleSendAt queues a batch for dispatch at a specific time
func (s *Service) ScheduleSendAt(batchUUID string, at time.Time) error {
	if !at.After(time.Now()) {
		return fmt.Errorf("scheduled time must be in the future")
	}
	spec := fmt.Sprintf("%d %d %d %d *", at.Minute(), at.Hour(), at.Day(), int(at.Month()))
	return s.ScheduleSend(batchUUID, spec)
}

// CancelSend drops a pending scheduled send
func (s *Service) CancelSend(batchUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.pending[batchUUID]
	if !exists {
		return fmt.Errorf("no scheduled send for batch %s", batchUUID)
	}

	s.cron.Remove(entry.cronID)
	delete(s.pending, batchUUID)

	s.logger.Info().
		Str("batch_uuid", batchUUID).
		Msg("Scheduled send cancelled")

	return nil
}

// PendingSends returns the batch UUIDs with a scheduled send, mapped to
// their next fire time
func (s *Service) PendingSends() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]time.Time, len(s.pending))
	for uuid, entry := range s.pending {
		for _, cronEntry := range s.cron.Entries() {
			if cronEntry.ID == entry.cronID {
				result[uuid] = cronEntry.Next
				break
			}
		}
	}
	return result
}

// dispatch fires one scheduled send: deschedule, submit, track
func (s *Service) dispatch(batchUUID string) {
	s.mu.Lock()
	if entry, exists := s.pending[batchUUID]; exists {
		s.cron.Remove(entry.cronID)
		delete(s.pending, batchUUID)
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("batch_uuid", batchUUID).
		Msg("Dispatching scheduled send")

	submission, err := s.submitter.SubmitBatchSend(context.Background(), batchUUID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("batch_uuid", batchUUID).
			Msg("Scheduled send submission failed")
		if s.onJob != nil {
			s.onJob(models.FailedJob("", models.JobKindBatchSend, err.Error()))
		}
		return
	}

	s.tracker.Track(submission.JobID, models.JobKindBatchSend, s.onJob)
}
