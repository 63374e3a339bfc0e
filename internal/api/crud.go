package api

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/SubinY/email-sender/internal/models"
)

// SenderRequest is the request body for sender create/update
type SenderRequest struct {
	CompanyName  string `json:"companyName"`
	EmailAccount string `json:"emailAccount"`
	SMTPEndpoint string `json:"smtpEndpoint"`
	Port         int    `json:"port"`
	TLS          bool   `json:"tls"`
	SenderName   string `json:"senderName"`
	Enabled      bool   `json:"enabled"`
	// Secret is the plaintext SMTP password; it is sealed before storage
	// and never echoed back.
	Secret string `json:"secret,omitempty"`
}

func (s *Server) handleListSenders(w http.ResponseWriter, r *http.Request) {
	filter := models.SenderListFilter{
		EnabledOnly: r.URL.Query().Get("enabled") == "true",
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		filter.Offset, _ = strconv.Atoi(offset)
	}

	senders, err := s.store.Senders.List(filter)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to list senders")
		return
	}
	s.sendJSON(w, http.StatusOK, senders)
}

func (s *Server) handleCreateSender(w http.ResponseWriter, r *http.Request) {
	var req SenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}
	if msg := validateSenderRequest(&req); msg != "" {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, msg)
		return
	}

	sender := senderFromRequest(&req)
	if err := s.store.Senders.Create(sender, req.Secret); err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to create sender")
		return
	}

	s.logger.Info("sender created", "sender_id", sender.ID, "account", sender.EmailAccount)
	s.sendJSON(w, http.StatusCreated, sender)
}

func (s *Server) handleGetSender(w http.ResponseWriter, r *http.Request) {
	sender, err := s.store.Senders.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to load sender")
		return
	}
	if sender == nil {
		s.sendError(w, http.StatusNotFound, CodeNotFound, "sender not found")
		return
	}
	s.sendJSON(w, http.StatusOK, sender)
}

func (s *Server) handleUpdateSender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}
	if msg := validateSenderRequest(&req); msg != "" {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, msg)
		return
	}

	sender := senderFromRequest(&req)
	sender.ID = id
	if err := s.store.Senders.Update(sender, req.Secret); err != nil {
		s.sendError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, sender)
}

func (s *Server) handleDeleteSender(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Senders.Delete(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to delete sender")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	var (
		recipients []models.Recipient
		err        error
	)
	if r.URL.Query().Get("deliverable") == "true" {
		recipients, err = s.store.Recipients.ListDeliverable()
	} else {
		recipients, err = s.store.Recipients.List()
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to list recipients")
		return
	}
	s.sendJSON(w, http.StatusOK, recipients)
}

func (s *Server) handleCreateRecipient(w http.ResponseWriter, r *http.Request) {
	var rec models.Recipient
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}

	rec.ID = ""
	if err := s.store.Recipients.Create(&rec); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleImportRecipients(w http.ResponseWriter, r *http.Request) {
	var recs []models.Recipient
	if err := json.NewDecoder(r.Body).Decode(&recs); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}
	if len(recs) == 0 {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "no recipients to import")
		return
	}

	result, err := s.store.Recipients.Import(recs)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "import failed")
		return
	}

	s.logger.Info("recipients imported", "total", result.Total, "imported", result.Imported, "skipped", result.Skipped)
	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleBlacklistRecipient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Blacklisted bool `json:"blacklisted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, CodeValidationError, "invalid request body")
		return
	}

	if err := s.store.Recipients.SetBlacklisted(id, req.Blacklisted); err != nil {
		s.sendError(w, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]bool{"blacklisted": req.Blacklisted})
}

func (s *Server) handleDeleteRecipient(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Recipients.Delete(chi.URLParam(r, "id")); err != nil {
		s.sendError(w, http.StatusInternalServerError, CodeInternalError, "failed to delete recipient")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func senderFromRequest(req *SenderRequest) *models.Sender {
	return &models.Sender{
		CompanyName:  req.CompanyName,
		EmailAccount: req.EmailAccount,
		SMTPEndpoint: req.SMTPEndpoint,
		Port:         req.Port,
		TLS:          req.TLS,
		SenderName:   req.SenderName,
		Enabled:      req.Enabled,
	}
}

func validateSenderRequest(req *SenderRequest) string {
	if req.EmailAccount == "" {
		return "emailAccount is required"
	}
	if _, err := mail.ParseAddress(req.EmailAccount); err != nil {
		return "emailAccount is not a valid address"
	}
	if req.Port < 0 || req.Port > 65535 {
		return "port is out of range"
	}
	return ""
}
