package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sats-staker/internal/errors"
	"github.com/sats-staker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// respondServiceError sends the categorized form of a service error.
func respondServiceError(w http.ResponseWriter, err error) {
	catErr := errors.Categorize(err)
	if catErr.Code == errors.CodeInternalError {
		// Internal details stay in the logs
		respondError(w, catErr.StatusCode, catErr.Code, "An internal error occurred", nil)
		return
	}
	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}

// respondJSON sends a JSON response. The body is encoded before the status is
// written so an unencodable value becomes a 500 instead of an empty 200.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to encode response", nil)
			return
		}
		body = append(body, '\n')
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// validationError converts validator failures into an invalid argument error
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.NewInvalidArgumentError(fe.Field(), "failed '"+fe.Tag()+"' validation")
	}
	return errors.NewInvalidArgumentError("request", err.Error())
}

// serviceErrorOf renders an error for embedding in a response body
func serviceErrorOf(err error) *types.ServiceError {
	if err == nil {
		return nil
	}
	catErr := errors.Categorize(err)
	if catErr.Code == errors.CodeInternalError {
		return &types.ServiceError{Code: catErr.Code, Message: "An internal error occurred"}
	}
	return catErr.ToServiceError()
}

// Common error codes
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)
