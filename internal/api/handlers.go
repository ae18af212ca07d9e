package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Applicant-facing review notifications.
const (
	msgApproved = "🎉 Ваша заявка на финансовую помощь одобрена! Сотрудник клиники свяжется с вами для согласования дальнейших шагов."
	msgRejected = "😔 К сожалению, по итогам рассмотрения ваша заявка отклонена.\n\nКомментарий: %s"
)

type reviewRequest struct {
	Comment string `json:"comment"`
}

type notifyRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := models.SubmissionStatus(r.URL.Query().Get("status"))
	subs, err := s.store.ListSubmissions(r.Context(), status)
	if err != nil {
		slog.Error("Server.handleList: listing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list submissions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(subs))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSubmissionError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sub))
}

// handleApprove records the caller role's approval; once both roles have
// approved, the applicant is notified.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	role := roleFromContext(r.Context())

	sub, err := s.store.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	switch role {
	case RoleDoctor:
		sub.ApprovedByDoctor = true
		sub.DoctorComment = req.Comment
	case RoleAccountant:
		sub.ApprovedByAccountant = true
		sub.AccountantComment = req.Comment
	}
	wasApproved := sub.Status == models.SubmissionStatusApproved
	sub.CheckFullApproval()

	if err := s.store.UpdateSubmission(r.Context(), sub); err != nil {
		slog.Error("Server.handleApprove: update failed", "submission", sub.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to update submission"))
		return
	}
	slog.Info("Server.handleApprove: approval recorded", "submission", sub.ID, "role", role, "status", sub.Status)

	if !wasApproved && sub.Status == models.SubmissionStatusApproved {
		if err := s.notifier.SendMessage(r.Context(), sub.ChatID, msgApproved); err != nil {
			slog.Warn("Server.handleApprove: applicant notification failed", "submission", sub.ID, "error", err)
		}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("approval recorded", sub))
}

// handleReject marks the submission rejected and notifies the applicant with
// the reviewer's comment.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	role := roleFromContext(r.Context())

	sub, err := s.store.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	sub.Status = models.SubmissionStatusRejected
	switch role {
	case RoleDoctor:
		sub.DoctorComment = req.Comment
	case RoleAccountant:
		sub.AccountantComment = req.Comment
	}

	if err := s.store.UpdateSubmission(r.Context(), sub); err != nil {
		slog.Error("Server.handleReject: update failed", "submission", sub.ID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to update submission"))
		return
	}
	slog.Info("Server.handleReject: submission rejected", "submission", sub.ID, "role", role)

	comment := req.Comment
	if comment == "" {
		comment = "не указан"
	}
	if err := s.notifier.SendMessage(r.Context(), sub.ChatID, fmt.Sprintf(msgRejected, comment)); err != nil {
		slog.Warn("Server.handleReject: applicant notification failed", "submission", sub.ID, "error", err)
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("rejection recorded", sub))
}

// handleNotify relays a free-form staff message to the applicant.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message is required"))
		return
	}

	sub, err := s.store.GetSubmission(r.Context(), r.PathValue("id"))
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	if err := s.notifier.SendMessage(r.Context(), sub.ChatID, req.Message); err != nil {
		slog.Error("Server.handleNotify: delivery failed", "submission", sub.ID, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("failed to deliver message"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("message delivered", nil))
}

func writeSubmissionError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrSubmissionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("submission not found"))
		return
	}
	slog.Error("api.writeSubmissionError: lookup failed", "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load submission"))
}
