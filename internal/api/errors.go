package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// ErrorBody is the error payload.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// respondError maps err to its HTTP status and writes the error payload.
func respondError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	msg := catErr.Message
	if catErr.Cause != nil && catErr.Category != apperrors.CategorySystem {
		msg += ": " + catErr.Cause.Error()
	}
	respondJSON(w, catErr.StatusCode, ErrorResponse{Error: ErrorBody{
		Code:    catErr.Code,
		Message: msg,
		Details: catErr.Details,
	}})
}

// causeMessage returns the underlying reason for err, without the category prefix.
func causeMessage(err error) string {
	catErr := apperrors.Categorize(err)
	if catErr.Cause != nil {
		return catErr.Cause.Error()
	}
	return catErr.Message
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
