package models

import "time"

// JobStatus is the state of a single planned send
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
)

// Job represents one planned send of a task, scheduled at a wall-clock instant
type Job struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Day         int        `json:"day"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}
