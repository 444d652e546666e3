package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

// createSessionRequest is the optional body of POST /sessions.
type createSessionRequest struct {
	TestMode bool `json:"test_mode"`
}

// answerRequest is the body of POST /sessions/{id}/answers.
type answerRequest struct {
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// catalogHandler returns the base question catalog (GET /catalog).
func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	questions := s.sessions.Engine().Catalog().Questions()
	slog.Debug("Server.catalogHandler: serving catalog", "questions", len(questions))
	writeJSONResponse(w, http.StatusOK, models.Success(questions))
}

// createSessionHandler starts a questionnaire (POST /sessions).
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSONBody(w, r, &req, true) {
		return
	}
	sess, err := s.sessions.Create(r.Context(), s.opts.TestMode || req.TestMode)
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to create session", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	slog.Info("Server.createSessionHandler: session created", "session", sess.ID, "testMode", sess.TestMode)
	writeJSONResponse(w, http.StatusCreated, models.Success(sess.View()))
}

// getSessionHandler returns the current view (GET /sessions/{id}).
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	unlock := s.locks.lock(id)
	defer unlock()

	sess, ok := s.load(w, r, id)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess.View()))
}

// deleteSessionHandler forgets a session (DELETE /sessions/{id}).
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		slog.Error("Server.deleteSessionHandler: failed to delete session", "session", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted", nil))
}

// answerHandler records an answer for a question in the live catalog
// (POST /sessions/{id}/answers).
func (s *Server) answerHandler(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decodeJSONBody(w, r, &req, false) {
		return
	}
	if req.QuestionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: question_id"))
		return
	}

	id := r.PathValue("id")
	unlock := s.locks.lock(id)
	defer unlock()

	sess, ok := s.load(w, r, id)
	if !ok {
		return
	}
	q, found := sess.Catalog.Lookup(req.QuestionID)
	if !found {
		slog.Warn("Server.answerHandler: unknown question", "session", id, "question", req.QuestionID)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithResult("Unknown question: "+req.QuestionID, sess.View()))
		return
	}
	value, err := q.DecodeJSON(req.Value)
	if err != nil {
		slog.Warn("Server.answerHandler: malformed answer", "session", id, "question", q.ID, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithResult(err.Error(), sess.View()))
		return
	}
	engine := s.sessions.Engine()
	s.apply(w, r, sess, func() error { return engine.Record(sess, q.ID, value) })
}

// nextHandler validates the current answer and advances (POST /sessions/{id}/next).
func (s *Server) nextHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(e *flow.Engine, sess *flow.Session) error { return e.Advance(sess) })
}

// backHandler steps back one question (POST /sessions/{id}/back).
func (s *Server) backHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(e *flow.Engine, sess *flow.Session) error { return e.Retreat(sess) })
}

// restartHandler starts a fresh evaluation (POST /sessions/{id}/restart).
func (s *Server) restartHandler(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(e *flow.Engine, sess *flow.Session) error {
		if e.ExpireStaleSubmission(sess) {
			slog.Info("Server.restartHandler: abandoned submission cleared", "session", sess.ID)
		}
		if sess.State.Submission == models.SubmissionSubmitting {
			return flow.ErrSubmissionInFlight
		}
		e.Restart(sess)
		return nil
	})
}

// submitHandler hands the evaluation and contact details to the lead
// submitter (POST /sessions/{id}/submit). The session is marked submitting
// and saved before delivery, so the session lock is not held while the
// submitter runs and concurrent submits see the in-flight state.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	var contact models.ContactInfo
	if !decodeJSONBody(w, r, &contact, false) {
		return
	}

	id := r.PathValue("id")
	engine := s.sessions.Engine()

	unlock := s.locks.lock(id)
	sess, ok := s.load(w, r, id)
	if !ok {
		unlock()
		return
	}
	sub, err := engine.BeginSubmit(sess, contact)
	if err != nil {
		unlock()
		s.writeFlowError(w, sess, err)
		return
	}
	if err := s.sessions.Save(r.Context(), sess); err != nil {
		unlock()
		slog.Error("Server.submitHandler: failed to save submitting state", "session", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}
	unlock()

	res, deliverErr := engine.Deliver(r.Context(), s.submitter, sub)

	// The request may have been cancelled while the submitter ran; the
	// outcome still has to be recorded.
	ctx := context.WithoutCancel(r.Context())
	unlock = s.locks.lock(id)
	defer unlock()

	sess, err = s.sessions.Load(ctx, id)
	if err != nil {
		slog.Error("Server.submitHandler: session vanished during submission", "session", id, "error", err)
		s.writeLoadError(w, id, err)
		return
	}
	finishErr := engine.FinishSubmit(sess, sub, res, deliverErr)
	if errors.Is(finishErr, flow.ErrStaleSubmission) {
		s.writeFlowError(w, sess, finishErr)
		return
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		slog.Error("Server.submitHandler: failed to save submission outcome", "session", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}
	if finishErr != nil {
		s.writeFlowError(w, sess, finishErr)
		return
	}
	slog.Info("Server.submitHandler: lead submitted", "session", id, "lead", sess.State.LeadID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage(flow.MessageConfirmation, sess.View()))
}

// leadsHandler lists recent leads for operators (GET /leads?limit=N).
func (s *Server) leadsHandler(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultLeadListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a positive integer"))
			return
		}
		limit = n
	}
	leads, err := s.leads.ListLeads(limit)
	if err != nil {
		slog.Error("Server.leadsHandler: failed to list leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch leads"))
		return
	}
	slog.Debug("Server.leadsHandler: leads fetched", "count", len(leads))
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

// leadDetail is the GET /leads/{id} payload.
type leadDetail struct {
	Lead          models.Lead           `json:"lead"`
	Notifications []store.OutboxMessage `json:"notifications"`
	Delivered     bool                  `json:"delivered"`
}

// leadHandler returns one lead with its notification delivery state
// (GET /leads/{id}). Delivered is true once every notification was sent.
func (s *Server) leadHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	lead, err := s.leads.GetLead(id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Lead not found"))
		return
	}
	if err != nil {
		slog.Error("Server.leadHandler: failed to load lead", "lead", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch lead"))
		return
	}
	msgs, err := s.leads.ListOutboxMessages(id)
	if err != nil {
		slog.Error("Server.leadHandler: failed to list notifications", "lead", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch lead notifications"))
		return
	}

	detail := leadDetail{Lead: *lead, Notifications: msgs, Delivered: true}
	if detail.Notifications == nil {
		detail.Notifications = []store.OutboxMessage{}
	}
	for _, m := range msgs {
		if m.Status != store.OutboxStatusSent {
			detail.Delivered = false
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(detail))
}

// transition runs a synchronous engine action on a session under its lock.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(*flow.Engine, *flow.Session) error) {
	id := r.PathValue("id")
	unlock := s.locks.lock(id)
	defer unlock()

	sess, ok := s.load(w, r, id)
	if !ok {
		return
	}
	engine := s.sessions.Engine()
	s.apply(w, r, sess, func() error { return fn(engine, sess) })
}

// apply runs fn, saves the session and writes the resulting view. A
// validation failure is saved too so the pending message survives a reload.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, sess *flow.Session, fn func() error) {
	err := fn()
	var verr *flow.ValidationError
	if err != nil && !errors.As(err, &verr) {
		s.writeFlowError(w, sess, err)
		return
	}
	if saveErr := s.sessions.Save(r.Context(), sess); saveErr != nil {
		slog.Error("Server.apply: failed to save session", "session", sess.ID, "error", saveErr)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save session"))
		return
	}
	if err != nil {
		s.writeFlowError(w, sess, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sess.View()))
}

// load fetches a session, writing the error response when it cannot.
func (s *Server) load(w http.ResponseWriter, r *http.Request, id string) (*flow.Session, bool) {
	sess, err := s.sessions.Load(r.Context(), id)
	if err != nil {
		s.writeLoadError(w, id, err)
		return nil, false
	}
	return sess, true
}
