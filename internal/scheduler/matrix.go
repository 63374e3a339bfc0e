package scheduler

import (
	"time"

	"github.com/SubinY/email-sender/internal/models"
)

// MatrixStats aggregates the status matrix of one task
type MatrixStats struct {
	Pending        int     `json:"pending"`
	Processing     int     `json:"processing"`
	Sent           int     `json:"sent"`
	Failed         int     `json:"failed"`
	Total          int     `json:"total"`
	SuccessRate    float64 `json:"success_rate"`
	CompletionRate float64 `json:"completion_rate"`
}

// Snapshot is a read-only view of a task's runtime state
type Snapshot struct {
	TaskID      string                 `json:"task_id"`
	Name        string                 `json:"name"`
	State       string                 `json:"state"` // running, paused, completed
	IsRunning   bool                   `json:"is_running"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Days        int                    `json:"days"`
	Stats       models.TaskStatistics  `json:"stats"`
	Jobs        []models.Job           `json:"jobs,omitempty"`
}

// GetTaskStatus returns a snapshot of the task's runtime. Jobs are listed
// in creation order. includeJobs controls whether the (possibly large) job
// list is copied out.
func (s *Scheduler) GetTaskStatus(taskID string, includeJobs bool) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}

	snap := &Snapshot{
		TaskID:      taskID,
		Name:        rt.task.Name,
		State:       rt.stateLocked(),
		IsRunning:   rt.isRunning,
		StartedAt:   rt.startedAt,
		CompletedAt: rt.completedAt,
		Days:        rt.plan.CalculatedDays,
		Stats:       rt.stats,
	}
	if includeJobs {
		snap.Jobs = make([]models.Job, 0, len(rt.jobOrder))
		for _, id := range rt.jobOrder {
			snap.Jobs = append(snap.Jobs, *rt.jobs[id])
		}
	}
	return snap, nil
}

// GetStatusMatrix projects the task's jobs into the recipient-by-sender
// status matrix together with its aggregate stats
func (s *Scheduler) GetStatusMatrix(taskID string) (map[string]map[string]models.JobStatus, *MatrixStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, ErrTaskNotFound
	}

	matrix := make(map[string]map[string]models.JobStatus)
	stats := &MatrixStats{}

	for _, id := range rt.jobOrder {
		job := rt.jobs[id]
		row := matrix[job.RecipientID]
		if row == nil {
			row = make(map[string]models.JobStatus)
			matrix[job.RecipientID] = row
		}
		row[job.SenderID] = job.Status

		stats.Total++
		switch job.Status {
		case models.JobPending:
			stats.Pending++
		case models.JobProcessing:
			stats.Processing++
		case models.JobSent:
			stats.Sent++
		case models.JobFailed:
			stats.Failed++
		}
	}

	done := stats.Sent + stats.Failed
	if done > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(done)
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(done) / float64(stats.Total)
	}
	return matrix, stats, nil
}

// TaskCount returns the number of live task runtimes
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (rt *taskRuntime) stateLocked() string {
	switch {
	case rt.completedAt != nil:
		return "completed"
	case rt.isRunning:
		return "running"
	default:
		return "paused"
	}
}
