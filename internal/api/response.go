package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

// MaxRequestBodyBytes caps JSON request bodies. Contact notes are the largest
// legitimate payload.
const MaxRequestBodyBytes = 64 << 10

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes response as JSON with the given status code.
// Session views carry personal data, so responses are never cached.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "status", statusCode, "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// decodeJSONBody decodes the request body into dst. An empty body is
// accepted only when allowEmpty is set. On failure the 400 or 413 response
// has already been written and false is returned.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes))
	err := dec.Decode(dst)
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) && allowEmpty {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		slog.Warn("Server.decodeJSONBody: request body too large", "path", r.URL.Path, "limit", tooLarge.Limit)
		writeJSONResponse(w, http.StatusRequestEntityTooLarge, models.Error("Request body too large"))
		return false
	}
	slog.Warn("Server.decodeJSONBody: failed to decode JSON", "path", r.URL.Path, "error", err)
	if errors.Is(err, io.EOF) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Request body is required"))
		return false
	}
	writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
	return false
}

func (s *Server) writeLoadError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("Server.load: session not found", "session", id)
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	slog.Error("Server.load: failed to load session", "session", id, "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
}

// writeFlowError maps engine errors onto HTTP statuses, attaching the
// session view so clients can re-render.
func (s *Server) writeFlowError(w http.ResponseWriter, sess *flow.Session, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		slog.Error("Server.writeFlowError: unexpected engine error", "session", sess.ID, "error", err)
	} else {
		slog.Debug("Server.writeFlowError: action rejected", "session", sess.ID, "status", status, "error", err)
	}
	writeJSONResponse(w, status, models.ErrorWithResult(msg, sess.View()))
}

// statusFor returns the HTTP status and user-facing message for an engine error.
func statusFor(err error) (int, string) {
	var verr *flow.ValidationError
	var serr *flow.SubmissionError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Message
	case errors.As(err, &serr):
		return http.StatusBadGateway, serr.Message
	case errors.Is(err, flow.ErrUnknownQuestion):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, flow.ErrSubmissionInFlight),
		errors.Is(err, flow.ErrAlreadySubmitted),
		errors.Is(err, flow.ErrTerminated),
		errors.Is(err, flow.ErrNotTerminated),
		errors.Is(err, flow.ErrStaleSubmission):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}
