// Package response writes JSON and problem documents for API handlers.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tagwatch/tagwatch/internal/api/middleware"
	"github.com/tagwatch/tagwatch/internal/api/models"
)

// MaxBodyBytes caps request bodies read by DecodeJSON.
const MaxBodyBytes = 64 << 10

var (
	ErrEmptyBody   = errors.New("request body is empty")
	ErrNotAnObject = errors.New("request body must be a JSON object")
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Accepted writes a 202 response with an optional Location header.
func Accepted(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusAccepted, data)
}

// NoContent writes a 204 response.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// Error writes a problem document for the current request.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errs))
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 problem. Detail is shown to clients, so callers
// pass a generic message and log the cause themselves.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}

// BrokerOffline writes a 503 problem naming the broker connection state.
func BrokerOffline(w http.ResponseWriter, r *http.Request, state string) {
	Error(w, r, models.NewBrokerOffline(middleware.GetRequestID(r.Context()), state))
}

// DecodeObject reads a JSON object body into a generic map. Bodies that are
// empty, not JSON, not an object, or larger than MaxBodyBytes are rejected.
func DecodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, ErrEmptyBody
	}
	if !strings.HasPrefix(trimmed, "{") {
		return nil, ErrNotAnObject
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnObject, err.Error())
	}
	return out, nil
}
