package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/SubinY/email-sender/internal/models"
)

// TaskRepository manages task records. Only lifecycle fields are written by
// the control path; per-job runtime is never persisted.
type TaskRepository struct {
	db *bolt.DB
}

// Create stores a new task in the Initialized state
func (r *TaskRepository) Create(task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.Status = models.TaskInitialized
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	return r.put(task)
}

// GetByID returns a task by id, or nil when absent or soft-deleted
func (r *TaskRepository) GetByID(id string) (*models.Task, error) {
	task, err := r.getRaw(id)
	if err != nil {
		return nil, err
	}
	if task == nil || task.Deleted {
		return nil, nil
	}
	return task, nil
}

// List returns all live tasks sorted by creation time
func (r *TaskRepository) List() ([]models.Task, error) {
	var tasks []models.Task

	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).ForEach(func(k, v []byte) error {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if task.Deleted {
				return nil
			}
			tasks = append(tasks, task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// UpdateStatus records a lifecycle transition. Start and end timestamps are
// set for the transitions that define them and preserved otherwise.
func (r *TaskRepository) UpdateStatus(id string, status models.TaskStatus) error {
	task, err := r.getRaw(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	switch status {
	case models.TaskRunning:
		if task.StartTime == nil {
			task.StartTime = &now
		}
		task.EndTime = nil
	case models.TaskCompleted, models.TaskFailed:
		task.EndTime = &now
	case models.TaskInitialized:
		task.StartTime = nil
		task.EndTime = nil
	}

	return r.put(task)
}

// UpdateDuration records the planned duration in days
func (r *TaskRepository) UpdateDuration(id string, days int) error {
	task, err := r.getRaw(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}
	task.DurationDays = days
	task.UpdatedAt = time.Now()
	return r.put(task)
}

// SoftDelete marks a task deleted without removing the record
func (r *TaskRepository) SoftDelete(id string) error {
	task, err := r.getRaw(id)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}
	task.Deleted = true
	task.UpdatedAt = time.Now()
	return r.put(task)
}

// PurgeDeleted removes soft-deleted tasks older than maxAge and returns the
// number purged
func (r *TaskRepository) PurgeDeleted(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	purged := 0

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTasks)
		var stale [][]byte

		err := bucket.ForEach(func(k, v []byte) error {
			var task models.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			if task.Deleted && task.UpdatedAt.Before(cutoff) {
				key := make([]byte, len(k))
				copy(key, k)
				stale = append(stale, key)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// MarkInterrupted flips tasks left Running by a previous process to Paused.
// Runtime state does not survive restart, so these tasks require a manual
// restart; the caller logs the affected ids.
func (r *TaskRepository) MarkInterrupted() ([]string, error) {
	tasks, err := r.List()
	if err != nil {
		return nil, err
	}

	var interrupted []string
	for i := range tasks {
		if tasks[i].Status != models.TaskRunning {
			continue
		}
		if err := r.UpdateStatus(tasks[i].ID, models.TaskPaused); err != nil {
			return interrupted, err
		}
		interrupted = append(interrupted, tasks[i].ID)
	}
	return interrupted, nil
}

func (r *TaskRepository) getRaw(id string) (*models.Task, error) {
	var task *models.Task

	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return nil
		}
		task = &models.Task{}
		return json.Unmarshal(data, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) put(task *models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTasks).Put([]byte(task.ID), data)
	})
}
