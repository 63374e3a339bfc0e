package models

import "time"

// TaskStatus is the lifecycle state of a send task
type TaskStatus string

const (
	TaskInitialized TaskStatus = "initialized"
	TaskRunning     TaskStatus = "running"
	TaskPaused      TaskStatus = "paused"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
)

// Task represents a bulk send task record
type Task struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	Status                   TaskStatus `json:"status"`
	StartTime                *time.Time `json:"start_time,omitempty"`
	EndTime                  *time.Time `json:"end_time,omitempty"`
	DurationDays             int        `json:"duration_days,omitempty"`
	EmailsPerHour            int        `json:"emails_per_hour"`
	EmailsPerRecipientPerDay int        `json:"emails_per_recipient_per_day"`
	WorkingHours             int        `json:"working_hours"`
	SenderIDs                []string   `json:"sender_ids"`
	Subject                  string     `json:"subject"`
	Body                     string     `json:"body"`
	CreatedBy                string     `json:"created_by,omitempty"`
	Deleted                  bool       `json:"deleted,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// TaskStatistics holds aggregate counters derived from a task's jobs
type TaskStatistics struct {
	TotalEmails     int     `json:"total_emails"`
	TotalSent       int     `json:"total_sent"`
	TotalFailed     int     `json:"total_failed"`
	TotalPending    int     `json:"total_pending"`
	TotalProcessing int     `json:"total_processing"`
	SuccessRate     float64 `json:"success_rate"`
	ProgressPercent float64 `json:"progress_percent"`
}
