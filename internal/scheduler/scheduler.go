// Package scheduler implements the Scheduler (C6): runs hard-point
// executions for a batch with bounded concurrency, honoring
// pause/resume/cancel. Grounded on internal/ticket/ticket.go's
// buildCacheParallel (a job-channel + worker-pool + sync.WaitGroup
// bounded pool), generalized from "run every job to completion" to
// cooperative pause/cancel checked at the suspension points
// internal/hardpoint defines.
package scheduler

import (
	"context"
	"sync"

	"fatorch/internal/channelstate"
	"fatorch/internal/hardpoint"
	"fatorch/internal/model"
)

// Saver is the narrow seam into the Record Store (C8) the scheduler needs:
// queueing a save for a channel whose hard-point result alone leaves its
// overall_status terminal (a failed or cancelled sweep).
type Saver interface {
	SaveQueued(channel *model.Channel)
}

// Scheduler runs hard-point executions for a set of waiting channels.
type Scheduler struct {
	mgr      *channelstate.Manager
	executor *hardpoint.Executor
	saver    Saver
	maxPar   int

	mu         sync.Mutex
	paused     bool
	resumeCh   chan struct{}
	runCancel  context.CancelFunc
	inFlight   map[string]context.CancelFunc
	retestCh   chan string
}

// New creates a Scheduler bounded to maxParallel concurrent tasks
// (default 4 if maxParallel <= 0).
func New(mgr *channelstate.Manager, executor *hardpoint.Executor, saver Saver, maxParallel int) *Scheduler {
	if maxParallel <= 0 {
		maxParallel = 4
	}

	return &Scheduler{
		mgr:      mgr,
		executor: executor,
		saver:    saver,
		maxPar:   maxParallel,
		resumeCh: closedChan(),
		inFlight: make(map[string]context.CancelFunc),
		retestCh: make(chan string, 64),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)

	return ch
}

// CheckPoint implements hardpoint.Suspension: it blocks while the
// scheduler is paused and returns ctx.Err() once cancelled, satisfying
// the suspension-point contract manual tests rely on.
func (s *Scheduler) CheckPoint(ctx context.Context) error {
	for {
		s.mu.Lock()
		resumeCh := s.resumeCh
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumeCh:
			return nil
		}
	}
}

// Pause sets the pause flag; every running task blocks at its next
// suspension point until Resume is called.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return
	}

	s.paused = true
	s.resumeCh = make(chan struct{})
}

// Resume releases all tasks blocked on a suspension point.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return
	}

	s.paused = false
	close(s.resumeCh)
}

// Cancel raises cancellation into every task currently running under
// Run. Tasks perform a best-effort reset write in their finalizer
// regardless.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	cancel := s.runCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Retest short-circuits a channel back into waiting and re-enqueues it
// for the next Run call (or, if a Run is active, picks it up on the
// retest channel).
func (s *Scheduler) Retest(ctx context.Context, channelID string) error {
	if _, err := s.mgr.ResetForRetest(ctx, channelID); err != nil {
		return err
	}

	select {
	case s.retestCh <- channelID:
	default:
		// Retest queue full; the channel stays "waiting" and will be
		// picked up by the next full Run over the batch.
	}

	return nil
}

// Run dispatches one hard-point task per channel in channels, bounded by
// maxPar concurrent tasks. It blocks until every channel has a terminal
// hard-point result or ctx is done. No ordering is guaranteed across
// channels; within a channel, checkpoints are strictly sequential
// (enforced by internal/hardpoint), and internal/channelstate guarantees
// no channel is in_progress in two places at once.
func (s *Scheduler) Run(ctx context.Context, channels []*model.Channel) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.runCancel = cancel
	s.mu.Unlock()

	defer cancel()

	jobs := make(chan *model.Channel, s.maxPar)

	var wg sync.WaitGroup

	for i := 0; i < s.maxPar; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for c := range jobs {
				s.runOne(runCtx, c)
			}
		}()
	}

	for _, c := range channels {
		select {
		case jobs <- c:
		case <-runCtx.Done():
		}
	}

	close(jobs)
	wg.Wait()

	return runCtx.Err()
}

// runOne drives one channel through begin → execute → record, per
// the documented sweep-then-settle ordering.
func (s *Scheduler) runOne(ctx context.Context, c *model.Channel) {
	if _, err := s.mgr.BeginHardPointTest(ctx, c.ID); err != nil {
		return
	}

	verdict, err := s.executor.Run(ctx, c, s)
	if err != nil {
		// The executor itself failed to resolve gateways or recognize the
		// module type — a programmer/config error, not a sweep outcome.
		// Record it as a failure rather than leaving the channel stuck
		// in_progress.
		_, _ = s.mgr.RecordHardPointOutcome(ctx, c.ID, model.HardPointFailed, err.Error())

		return
	}

	if verdict.Cancelled {
		updated, err := s.mgr.RecordCancelledHardPoint(ctx, c.ID)
		if err == nil && s.saver != nil && updated.OverallStatus.IsTerminal() {
			s.saver.SaveQueued(updated)
		}

		return
	}

	updated, err := s.mgr.RecordHardPointOutcome(ctx, c.ID, verdict.Result, verdict.Detail)
	if err != nil {
		return
	}

	// A failing hard-point result resolves overall_status to failed
	// immediately, with no manual sub-item left to wait for — that's the
	// only way this call site alone can reach a terminal state. A passing
	// result still leaves show_value (and, for AI, the alarm sub-items)
	// outstanding, so internal/manualtest is the one that saves once those
	// land.
	if s.saver != nil && updated.OverallStatus.IsTerminal() {
		s.saver.SaveQueued(updated)
	}
}
