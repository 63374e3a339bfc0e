// Package scheduler drives planned send tasks in real time. It owns all
// per-task runtime state: jobs, armed timers and aggregate statistics. The
// persistent store keeps only the task record; everything here dies with
// the process.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/SubinY/email-sender/internal/clock"
	"github.com/SubinY/email-sender/internal/mailer"
	"github.com/SubinY/email-sender/internal/models"
	"github.com/SubinY/email-sender/internal/planner"
)

// Directory resolves sender and recipient records referenced by a plan
type Directory interface {
	Sender(id string) (*models.Sender, error)
	Recipient(id string) (*models.Recipient, error)
}

// Observer receives scheduling events, typically for metrics
type Observer interface {
	TaskStarted()
	TaskStopped()
	JobSent()
	JobFailed(antiSpam bool)
}

type nopObserver struct{}

func (nopObserver) TaskStarted()       {}
func (nopObserver) TaskStopped()       {}
func (nopObserver) JobSent()           {}
func (nopObserver) JobFailed(bool)     {}

// Config holds scheduler settings
type Config struct {
	// CompletionCheckInterval is the period of the low-frequency sweep that
	// catches completions missed by dispatch-time checks.
	CompletionCheckInterval time.Duration
}

// Scheduler owns task runtimes. A single mutex guards the task map and all
// runtime state; it is never held across a mailer call.
type Scheduler struct {
	cfg    Config
	clk    clock.Clock
	mailer mailer.Mailer
	dir    Directory
	logger *slog.Logger
	obs    Observer

	// onCompleted, when set, is invoked on its own goroutine after a task
	// transitions to completed, so the caller can persist the record.
	onCompleted func(taskID string)

	mu    sync.Mutex
	tasks map[string]*taskRuntime
}

// taskRuntime is the in-memory state of one started task
type taskRuntime struct {
	task       models.Task
	plan       *planner.Plan
	isRunning  bool
	startedAt  time.Time
	dayZero    time.Time // midnight of day 1
	completedAt *time.Time

	jobs     map[string]*models.Job
	jobOrder []string
	timers   map[string]clock.Handle
	sweep    clock.Handle

	senders    map[string]*models.Sender
	recipients map[string]*models.Recipient

	stats models.TaskStatistics
}

// New creates a scheduler
func New(cfg Config, clk clock.Clock, m mailer.Mailer, dir Directory, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.CompletionCheckInterval <= 0 {
		cfg.CompletionCheckInterval = time.Minute
	}

	return &Scheduler{
		cfg:    cfg,
		clk:    clk,
		mailer: m,
		dir:    dir,
		logger: logger.With("component", "scheduler"),
		obs:    nopObserver{},
		tasks:  make(map[string]*taskRuntime),
	}
}

// SetObserver wires scheduling events to an observer
func (s *Scheduler) SetObserver(obs Observer) {
	if obs != nil {
		s.obs = obs
	}
}

// SetCompletionFunc registers a callback invoked when a task completes
func (s *Scheduler) SetCompletionFunc(fn func(taskID string)) {
	s.onCompleted = fn
}

// StartTask materialises the plan into jobs and arms their timers. Any
// prior runtime for the task is discarded first.
func (s *Scheduler) StartTask(task *models.Task, plan *planner.Plan) error {
	if task == nil || plan == nil {
		return fmt.Errorf("scheduler: task and plan are required")
	}
	if plan.TotalEmails == 0 {
		return fmt.Errorf("scheduler: plan for task %s contains no emails", task.ID)
	}

	// Integrity gate: a misaligned plan is refused, never repaired here.
	for _, day := range plan.Days {
		for _, sd := range day.Senders {
			if len(sd.RecipientIDs) != len(sd.PlannedTimes) {
				return &DataIntegrityError{
					TaskID:     task.ID,
					SenderID:   sd.SenderID,
					Day:        day.Day,
					Recipients: len(sd.RecipientIDs),
					Times:      len(sd.PlannedTimes),
				}
			}
		}
	}

	senders, recipients, err := s.resolve(plan)
	if err != nil {
		return err
	}

	now := s.clk.Now()
	rt := &taskRuntime{
		task:       *task,
		plan:       plan,
		isRunning:  true,
		startedAt:  now,
		dayZero:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		jobs:       make(map[string]*models.Job),
		timers:     make(map[string]clock.Handle),
		senders:    senders,
		recipients: recipients,
	}
	s.materialise(rt)
	rt.stats = models.TaskStatistics{
		TotalEmails:  len(rt.jobOrder),
		TotalPending: len(rt.jobOrder),
	}

	s.mu.Lock()
	prior, hadPrior := s.tasks[task.ID]
	priorRunning := hadPrior && prior.isRunning
	s.cleanupLocked(task.ID)
	s.tasks[task.ID] = rt
	for _, jobID := range rt.jobOrder {
		s.armLocked(rt, rt.jobs[jobID])
	}
	s.armSweepLocked(task.ID, rt)
	s.mu.Unlock()

	if priorRunning {
		s.obs.TaskStopped()
	}
	s.obs.TaskStarted()
	s.logger.Info("task started",
		"task_id", task.ID,
		"jobs", len(rt.jobOrder),
		"days", plan.CalculatedDays,
	)
	return nil
}

// PauseTask cancels pending timers and freezes dispatch. Jobs already
// processing run to their terminal outcome.
func (s *Scheduler) PauseTask(taskID string) error {
	s.mu.Lock()
	rt, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrTaskNotFound
	}
	if !rt.isRunning {
		s.mu.Unlock()
		return nil
	}
	rt.isRunning = false
	s.cancelTimersLocked(rt)
	s.mu.Unlock()

	s.obs.TaskStopped()
	s.logger.Info("task paused", "task_id", taskID)
	return nil
}

// ResumeTask re-arms timers for all still-pending jobs. Overdue jobs fire
// as soon as possible. Resuming an unknown or already running task is a
// no-op.
func (s *Scheduler) ResumeTask(taskID string) error {
	s.mu.Lock()
	rt, ok := s.tasks[taskID]
	if !ok || rt.isRunning || rt.completedAt != nil {
		s.mu.Unlock()
		return nil
	}
	rt.isRunning = true
	armed := 0
	for _, jobID := range rt.jobOrder {
		job := rt.jobs[jobID]
		if job.Status != models.JobPending {
			continue
		}
		s.armLocked(rt, job)
		armed++
	}
	s.armSweepLocked(taskID, rt)
	s.mu.Unlock()

	s.obs.TaskStarted()
	s.logger.Info("task resumed", "task_id", taskID, "armed", armed)
	return nil
}

// StopTask cancels every timer and deletes the task's runtime
func (s *Scheduler) StopTask(taskID string) error {
	s.mu.Lock()
	rt, existed := s.tasks[taskID]
	wasRunning := existed && rt.isRunning
	s.cleanupLocked(taskID)
	s.mu.Unlock()

	if wasRunning {
		s.obs.TaskStopped()
	}
	if existed {
		s.logger.Info("task stopped", "task_id", taskID)
	}
	return nil
}

// Reset clears every task, job and timer owned by the scheduler
func (s *Scheduler) Reset() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	running := 0
	for id, rt := range s.tasks {
		ids = append(ids, id)
		if rt.isRunning {
			running++
		}
	}
	for _, id := range ids {
		s.cleanupLocked(id)
	}
	s.mu.Unlock()

	for i := 0; i < running; i++ {
		s.obs.TaskStopped()
	}
	s.logger.Info("scheduler reset", "tasks_cleared", len(ids))
}

// resolve loads every sender and recipient the plan references
func (s *Scheduler) resolve(plan *planner.Plan) (map[string]*models.Sender, map[string]*models.Recipient, error) {
	senders := make(map[string]*models.Sender)
	recipients := make(map[string]*models.Recipient)

	for _, day := range plan.Days {
		for _, sd := range day.Senders {
			if _, ok := senders[sd.SenderID]; !ok {
				sender, err := s.dir.Sender(sd.SenderID)
				if err != nil {
					return nil, nil, fmt.Errorf("scheduler: failed to resolve sender %s: %w", sd.SenderID, err)
				}
				senders[sd.SenderID] = sender
			}
			for _, rid := range sd.RecipientIDs {
				if _, ok := recipients[rid]; !ok {
					rec, err := s.dir.Recipient(rid)
					if err != nil {
						return nil, nil, fmt.Errorf("scheduler: failed to resolve recipient %s: %w", rid, err)
					}
					recipients[rid] = rec
				}
			}
		}
	}
	return senders, recipients, nil
}

// materialise expands the plan into jobs with deterministic ids
func (s *Scheduler) materialise(rt *taskRuntime) {
	for _, day := range rt.plan.Days {
		for _, sd := range day.Senders {
			for i, recipientID := range sd.RecipientIDs {
				at, err := s.jobInstant(rt.dayZero, day.Day, sd.PlannedTimes[i])
				if err != nil {
					s.logger.Error("invalid planned time, falling back to midnight",
						"task_id", rt.task.ID,
						"sender_id", sd.SenderID,
						"day", day.Day,
						"time", sd.PlannedTimes[i],
					)
					at = rt.dayZero.Add(time.Duration(day.Day-1) * 24 * time.Hour)
				}

				job := &models.Job{
					ID:          jobID(rt.task.ID, sd.SenderID, recipientID, day.Day, i),
					TaskID:      rt.task.ID,
					SenderID:    sd.SenderID,
					RecipientID: recipientID,
					Day:         day.Day,
					ScheduledAt: at,
					Status:      models.JobPending,
				}
				rt.jobs[job.ID] = job
				rt.jobOrder = append(rt.jobOrder, job.ID)
			}
		}
	}
}

func (s *Scheduler) jobInstant(dayZero time.Time, day int, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return dayZero.
		Add(time.Duration(day-1) * 24 * time.Hour).
		Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

func jobID(taskID, senderID, recipientID string, day, index int) string {
	return strings.Join([]string{taskID, senderID, recipientID, fmt.Sprint(day), fmt.Sprint(index)}, "|")
}

// armLocked schedules the job's timer; overdue jobs fire as soon as the
// timer source allows
func (s *Scheduler) armLocked(rt *taskRuntime, job *models.Job) {
	taskID := rt.task.ID
	id := job.ID
	rt.timers[id] = s.clk.Schedule(job.ScheduledAt, func() {
		s.dispatch(taskID, id)
	})
}

// armSweepLocked arms the self-rearming completion sweep
func (s *Scheduler) armSweepLocked(taskID string, rt *taskRuntime) {
	rt.sweep = s.clk.Schedule(s.clk.Now().Add(s.cfg.CompletionCheckInterval), func() {
		s.sweepTask(taskID)
	})
}

func (s *Scheduler) sweepTask(taskID string) {
	s.mu.Lock()
	rt, ok := s.tasks[taskID]
	if !ok || !rt.isRunning {
		s.mu.Unlock()
		return
	}
	completed := s.checkCompletionLocked(rt)
	if !completed {
		s.armSweepLocked(taskID, rt)
	}
	s.mu.Unlock()

	if completed {
		s.finishTask(taskID)
	}
}

// dispatch runs on the timer goroutine: it claims the job under the lock,
// performs the send without it, then applies the terminal transition.
func (s *Scheduler) dispatch(taskID, jobID string) {
	s.mu.Lock()
	rt, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(rt.timers, jobID)
	if !rt.isRunning {
		s.mu.Unlock()
		return
	}
	job, ok := rt.jobs[jobID]
	if !ok || job.Status != models.JobPending {
		s.mu.Unlock()
		return
	}

	job.Status = models.JobProcessing
	job.Attempts++
	rt.stats.TotalPending--
	rt.stats.TotalProcessing++

	out := s.outboundLocked(rt, job)
	s.mu.Unlock()

	receipt, err := s.mailer.Send(context.Background(), out)

	s.mu.Lock()
	rt, ok = s.tasks[taskID]
	if !ok {
		// Task was stopped or reset while the send was in flight.
		s.mu.Unlock()
		return
	}
	job, jobOK := rt.jobs[jobID]
	if !jobOK || job.Status != models.JobProcessing {
		s.mu.Unlock()
		return
	}

	now := s.clk.Now()
	rt.stats.TotalProcessing--
	if err != nil {
		job.Status = models.JobFailed
		job.Error = err.Error()
		rt.stats.TotalFailed++
	} else {
		job.Status = models.JobSent
		job.SentAt = &now
		rt.stats.TotalSent++
	}
	recomputeRates(&rt.stats)

	completed := false
	if rt.isRunning {
		completed = s.checkCompletionLocked(rt)
	}
	s.mu.Unlock()

	if err != nil {
		_, antiSpam := err.(*mailer.AntiSpamError)
		s.obs.JobFailed(antiSpam)
		s.logger.Debug("job failed",
			"task_id", taskID,
			"job_id", jobID,
			"error", err,
		)
	} else {
		s.obs.JobSent()
		s.logger.Debug("job sent",
			"task_id", taskID,
			"job_id", jobID,
			"message_id", receipt.MessageID,
		)
	}

	if completed {
		s.finishTask(taskID)
	}
}

func (s *Scheduler) outboundLocked(rt *taskRuntime, job *models.Job) *mailer.Outbound {
	out := &mailer.Outbound{
		SenderID:    job.SenderID,
		RecipientID: job.RecipientID,
		Subject:     rt.task.Subject,
		Body:        rt.task.Body,
	}
	if sender := rt.senders[job.SenderID]; sender != nil {
		out.SenderEmail = sender.EmailAccount
		out.SenderName = sender.SenderName
	}
	if rec := rt.recipients[job.RecipientID]; rec != nil {
		out.RecipientEmail = rec.Email
	}
	return out
}

// checkCompletionLocked reports whether the task just finished and, if so,
// marks it completed and cancels its remaining timers
func (s *Scheduler) checkCompletionLocked(rt *taskRuntime) bool {
	if rt.completedAt != nil {
		return false
	}
	if rt.stats.TotalPending > 0 || rt.stats.TotalProcessing > 0 {
		return false
	}

	now := s.clk.Now()
	rt.completedAt = &now
	rt.isRunning = false
	s.cancelTimersLocked(rt)
	return true
}

// finishTask runs completion side effects outside the lock
func (s *Scheduler) finishTask(taskID string) {
	s.obs.TaskStopped()
	s.logger.Info("task completed", "task_id", taskID)
	if s.onCompleted != nil {
		go s.onCompleted(taskID)
	}
}

func (s *Scheduler) cancelTimersLocked(rt *taskRuntime) {
	for id, handle := range rt.timers {
		handle.Stop()
		delete(rt.timers, id)
	}
	if rt.sweep != nil {
		rt.sweep.Stop()
		rt.sweep = nil
	}
}

func (s *Scheduler) cleanupLocked(taskID string) {
	rt, ok := s.tasks[taskID]
	if !ok {
		return
	}
	s.cancelTimersLocked(rt)
	delete(s.tasks, taskID)
}

func recomputeRates(stats *models.TaskStatistics) {
	done := stats.TotalSent + stats.TotalFailed
	if done > 0 {
		stats.SuccessRate = float64(stats.TotalSent) / float64(done)
	} else {
		stats.SuccessRate = 0
	}
	if stats.TotalEmails > 0 {
		stats.ProgressPercent = float64(done) / float64(stats.TotalEmails) * 100
	}
}
