package scheduler

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned when no runtime exists for a task id
var ErrTaskNotFound = errors.New("scheduler: task not found")

// DataIntegrityError reports a plan whose recipient and time lists disagree.
// Start refuses such plans outright; repair belongs to the planner.
type DataIntegrityError struct {
	TaskID     string
	SenderID   string
	Day        int
	Recipients int
	Times      int
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("scheduler: task %s day %d sender %s: %d recipients vs %d planned times",
		e.TaskID, e.Day, e.SenderID, e.Recipients, e.Times)
}
