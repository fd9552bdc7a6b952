package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/avdeeva/fieldline/internal/auth"
	"github.com/avdeeva/fieldline/internal/dispatch"
	"github.com/avdeeva/fieldline/internal/lifecycle"
	"github.com/avdeeva/fieldline/internal/models"
	"github.com/avdeeva/fieldline/internal/validation"
)

// claimsAndID pulls the authenticated actor out of the request context.
func claimsAndID(r *http.Request) (*auth.Claims, uuid.UUID, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, uuid.Nil, false
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, uuid.Nil, false
	}
	return claims, id, true
}

func jobIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (h *Handlers) createJob(w http.ResponseWriter, r *http.Request) {
	_, customerID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}

	var req dispatch.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	// The booking is always made on behalf of the authenticated customer.
	req.CustomerID = customerID

	job, err := h.Dispatch.CreateJob(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}

	jobs, err := h.Lifecycle.ListJobs(r.Context(), userID, models.Role(claims.Role))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	if claims.Role != string(models.RoleAdmin) && job.CustomerID != userID && job.TechnicianID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request) {
	claims, actorID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status     string                     `json:"status"`
		Reason     *models.CancellationReason `json:"reason,omitempty"`
		FinalPrice *float64                   `json:"final_price,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.Lifecycle.Transition(r.Context(), lifecycle.TransitionRequest{
		JobID:      jobID,
		ActorID:    actorID,
		ActorRole:  models.Role(claims.Role),
		Target:     models.Status(req.Status),
		Reason:     req.Reason,
		FinalPrice: req.FinalPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) postLocation(w http.ResponseWriter, r *http.Request) {
	_, technicianID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sample, err := h.Relay.PostLocation(r.Context(), jobID, technicianID, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

func (h *Handlers) getLastLocation(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if claims.Role != string(models.RoleAdmin) && job.CustomerID != userID && job.TechnicianID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	sample, err := h.Relay.LastLocation(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sample)
}

func (h *Handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	claims, senderID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.Relay.PostMessage(r.Context(), jobID, senderID, models.Role(claims.Role), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	msgs, err := h.Relay.ListMessages(r.Context(), jobID, userID, models.Role(claims.Role))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handlers) attachRating(w http.ResponseWriter, r *http.Request) {
	_, customerID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	var req struct {
		Rating int    `json:"rating"`
		Review string `json:"review,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := h.Lifecycle.AttachRating(r.Context(), jobID, customerID, req.Rating, req.Review)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (h *Handlers) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	claims, uploaderID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if job.CustomerID != uploaderID && job.TechnicianID != uploaderID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := r.ParseMultipartForm(validation.MaxAttachmentSize); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > validation.MaxAttachmentSize {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxAttachmentSize+1))
	if err != nil {
		slog.Error("failed to read attachment", "filename", header.Filename, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if len(data) > validation.MaxAttachmentSize {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	// Sniff the real content type rather than trusting the client header.
	mtype := mimetype.Detect(data)
	if !validation.AllowedAttachmentTypes[mtype.String()] {
		http.Error(w, "unsupported content type: "+mtype.String(), http.StatusBadRequest)
		return
	}

	result, err := h.Storage.UploadFile(r.Context(), header.Filename, bytes.NewReader(data), mtype.String())
	if err != nil {
		slog.Error("failed to upload attachment", "filename", header.Filename, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	att := &models.Attachment{
		ID:          uuid.New(),
		JobID:       jobID,
		UploaderID:  uploaderID,
		Filename:    header.Filename,
		ContentType: mtype.String(),
		Size:        int64(len(data)),
		StorageKey:  result.Key,
		URL:         result.URL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateAttachment(r.Context(), att); err != nil {
		slog.Error("failed to record attachment", "job_id", jobID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.Info("attachment uploaded",
		"job_id", jobID,
		"uploader_id", uploaderID,
		"role", claims.Role,
		"content_type", mtype.String())

	writeJSON(w, http.StatusCreated, att)
}

func (h *Handlers) listAttachments(w http.ResponseWriter, r *http.Request) {
	claims, userID, ok := claimsAndID(r)
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	jobID, ok := jobIDParam(r)
	if !ok {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if claims.Role != string(models.RoleAdmin) && job.CustomerID != userID && job.TechnicianID != userID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	atts, err := h.Store.ListAttachments(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, atts)
}
