package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SubinY/email-sender/internal/models"
	"github.com/SubinY/email-sender/internal/planner"
	"github.com/SubinY/email-sender/internal/scheduler"
)

// CalculateRequest is the request body for POST /send-tasks/calculate
type CalculateRequest struct {
	SenderIDs                []string `json:"senderIds"`
	EmailsPerHour            int      `json:"emailsPerHour"`
	EmailsPerRecipientPerDay int      `json:"emailsPerRecipientPerDay"`
	WorkingHours             int      `json:"workingHours,omitempty"`
}

// CreateTaskRequest is the request body for POST /send-tasks
type CreateTaskRequest struct {
	Name                     string   `json:"name"`
	SenderIDs                []string `json:"senderIds"`
	EmailsPerHour            int      `json:"emailsPerHour"`
	EmailsPerRecipientPerDay int      `json:"emailsPerRecipientPerDay"`
	WorkingHours             int      `json:"workingHours,omitempty"`
	Subject                  string   `json:"subject"`
	Body                     string   `json:"body"`
	DurationDays             int      `json:"durationDays,omitempty"`
	CreatedBy                string   `json:"createdBy,omitempty"`
}

// ControlRequest is the request body for POST /send-tasks/{id}/control
type ControlRequest struct {
	Action            string        `json:"action"`
	CalculationResult *planner.Plan `json:"calculationResult,omitempty"`
}

// TaskStatusResponse is the response for GET /send-tasks/{id}/status
type TaskStatusResponse struct {
	Task            *models.Task                           `json:"task"`
	Senders         []models.Sender                        `json:"senders"`
	SchedulerStatus *scheduler.Snapshot                    `json:"schedulerStatus,omitempty"`
	StatusMatrix    map[string]map[string]models.JobStatus `json:"statusMatrix,omitempty"`
	MatrixStats     *scheduler.MatrixStats                 `json:"matrixStats,omitempty"`
	RealTimeStats   *models.TaskStatistics                 `json:"realTimeStats,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	ActiveTasks int    `json:"active_tasks"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
		ActiveTasks: s.sched.TaskCount(),
	})
}

// handleCalculate handles POST /send-tasks/calculate
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}

	if msg := validateCalculateRequest(&req); msg != "" {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, msg)
		return
	}

	recipientIDs, errCode, err := s.planningInputs(req.SenderIDs)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, errCode, err.Error())
		return
	}

	plan, err := s.planner.Plan(planner.Params{
		SenderIDs:                req.SenderIDs,
		RecipientIDs:             recipientIDs,
		EmailsPerHour:            req.EmailsPerHour,
		EmailsPerRecipientPerDay: req.EmailsPerRecipientPerDay,
		WorkingHours:             req.WorkingHours,
	})
	if err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, plan)
}

// planningInputs verifies the requested senders and loads the deliverable
// recipient population
func (s *Server) planningInputs(senderIDs []string) ([]string, string, error) {
	senders, err := s.store.Senders.GetMany(senderIDs)
	if err != nil {
		return nil, CodeInvalidSenders, err
	}
	for i := range senders {
		if !senders[i].Enabled {
			return nil, CodeDisabledSenders, fmt.Errorf("sender %s is disabled", senders[i].ID)
		}
	}

	recipients, err := s.store.Recipients.ListDeliverable()
	if err != nil {
		return nil, CodeInternalError, err
	}
	if len(recipients) == 0 {
		return nil, CodeNoRecipients, fmt.Errorf("no deliverable recipients")
	}

	recipientIDs := make([]string, len(recipients))
	for i := range recipients {
		recipientIDs[i] = recipients[i].ID
	}
	return recipientIDs, "", nil
}

// handleCreateTask handles POST /send-tasks
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}

	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "name is required")
		return
	}
	if msg := validateCalculateRequest(&CalculateRequest{
		SenderIDs:                req.SenderIDs,
		EmailsPerHour:            req.EmailsPerHour,
		EmailsPerRecipientPerDay: req.EmailsPerRecipientPerDay,
		WorkingHours:             req.WorkingHours,
	}); msg != "" {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, msg)
		return
	}
	if _, errCode, err := s.planningInputs(req.SenderIDs); err != nil {
		s.sendError(w, http.StatusBadRequest, errCode, err.Error())
		return
	}

	hours := req.WorkingHours
	if hours == 0 {
		hours = 24
	}
	task := &models.Task{
		Name:                     req.Name,
		SenderIDs:                req.SenderIDs,
		EmailsPerHour:            req.EmailsPerHour,
		EmailsPerRecipientPerDay: req.EmailsPerRecipientPerDay,
		WorkingHours:             hours,
		Subject:                  req.Subject,
		Body:                     req.Body,
		DurationDays:             req.DurationDays,
		CreatedBy:                req.CreatedBy,
	}
	if err := s.store.Tasks.Create(task); err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to create task")
		return
	}

	s.logger.Info("task created", "task_id", task.ID, "name", task.Name)
	s.sendJSON(w, http.StatusCreated, task)
}

// handleListTasks handles GET /send-tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.Tasks.List()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to list tasks")
		return
	}
	s.sendJSON(w, http.StatusOK, tasks)
}

// handleControl handles POST /send-tasks/{id}/control
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	task, err := s.store.Tasks.GetByID(taskID)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to load task")
		return
	}
	if task == nil {
		s.sendError(w, http.StatusNotFound, CodeTaskNotFound, "task not found")
		return
	}

	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}

	switch req.Action {
	case "start":
		s.controlStart(w, task, &req)
	case "pause":
		if err := s.sched.PauseTask(taskID); err != nil {
			s.sendError(w, http.StatusNotFound, CodeTaskNotFound, "task has no runtime")
			return
		}
		if snap, err := s.sched.GetTaskStatus(taskID, false); err == nil && snap.State == "paused" {
			s.persistStatus(taskID, models.TaskPaused)
		}
		s.controlOK(w, taskID)
	case "resume":
		if err := s.sched.ResumeTask(taskID); err != nil {
			s.sendError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
			return
		}
		if snap, err := s.sched.GetTaskStatus(taskID, false); err == nil && snap.IsRunning {
			s.persistStatus(taskID, models.TaskRunning)
		}
		s.controlOK(w, taskID)
	case "stop":
		if err := s.sched.StopTask(taskID); err != nil {
			s.sendError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
			return
		}
		s.persistStatus(taskID, models.TaskInitialized)
		s.controlOK(w, taskID)
	default:
		s.sendError(w, http.StatusBadRequest, CodeInvalidAction, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) controlStart(w http.ResponseWriter, task *models.Task, req *ControlRequest) {
	if req.CalculationResult == nil {
		s.sendError(w, http.StatusBadRequest, CodeCalculationRequired, "calculationResult is required for start")
		return
	}
	if len(req.CalculationResult.Seed) == 0 {
		s.sendError(w, http.StatusBadRequest, CodeMissingStatusMatrix, "calculationResult.statusMatrix is required")
		return
	}

	if err := s.sched.StartTask(task, req.CalculationResult); err != nil {
		s.persistStatus(task.ID, models.TaskFailed)

		var integrity *scheduler.DataIntegrityError
		if errors.As(err, &integrity) {
			s.sendError(w, http.StatusUnprocessableEntity, CodeDataIntegrityError, integrity.Error())
			return
		}
		s.sendError(w, http.StatusInternalServerError, CodeSchedulerStartFailed, err.Error())
		return
	}

	s.persistStatus(task.ID, models.TaskRunning)
	if err := s.store.Tasks.UpdateDuration(task.ID, req.CalculationResult.CalculatedDays); err != nil {
		s.logger.Error("failed to persist task duration", "task_id", task.ID, "error", err)
	}
	s.controlOK(w, task.ID)
}

func (s *Server) controlOK(w http.ResponseWriter, taskID string) {
	task, err := s.store.Tasks.GetByID(taskID)
	if err != nil || task == nil {
		s.sendJSON(w, http.StatusOK, map[string]string{"taskId": taskID})
		return
	}
	s.sendJSON(w, http.StatusOK, task)
}

func (s *Server) persistStatus(taskID string, status models.TaskStatus) {
	if err := s.store.Tasks.UpdateStatus(taskID, status); err != nil {
		s.logger.Error("failed to persist task status",
			"task_id", taskID,
			"status", status,
			"error", err,
		)
	}
}

// handleTaskStatus handles GET /send-tasks/{id}/status
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	task, err := s.store.Tasks.GetByID(taskID)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to load task")
		return
	}
	if task == nil {
		s.sendError(w, http.StatusNotFound, CodeTaskNotFound, "task not found")
		return
	}

	resp := &TaskStatusResponse{Task: task}

	if len(task.SenderIDs) > 0 {
		if senders, err := s.store.Senders.GetMany(task.SenderIDs); err == nil {
			resp.Senders = senders
		}
	}
	if resp.Senders == nil {
		resp.Senders = []models.Sender{}
	}

	if snap, err := s.sched.GetTaskStatus(taskID, false); err == nil {
		resp.SchedulerStatus = snap
		resp.RealTimeStats = &snap.Stats

		matrix, stats, err := s.sched.GetStatusMatrix(taskID)
		if err == nil {
			resp.StatusMatrix = matrix
			resp.MatrixStats = stats
		}
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// handleResetAll handles DELETE /send-tasks
func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	s.sched.Reset()
	s.logger.Info("scheduler reset via API")
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func validateCalculateRequest(req *CalculateRequest) string {
	if len(req.SenderIDs) == 0 {
		return "senderIds is required"
	}
	if req.EmailsPerHour <= 0 {
		return "emailsPerHour must be positive"
	}
	if req.EmailsPerRecipientPerDay <= 0 {
		return "emailsPerRecipientPerDay must be positive"
	}
	if req.WorkingHours < 0 || req.WorkingHours > 24 {
		return "workingHours must be in 1..24"
	}
	return ""
}
