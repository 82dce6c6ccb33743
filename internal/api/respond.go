package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aisdlc/copilot/pkg/model"
	"github.com/rs/zerolog/log"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Detail string                  `json:"detail"`
	Errors []model.ValidationError `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, ErrorResponse{Detail: detail})
}

func respondValidation(w http.ResponseWriter, errs model.ValidationErrors) {
	respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Detail: errs.Error(),
		Errors: errs,
	})
}

// decodeJSON reads the request body into v. On failure it writes the error
// reply itself and returns false: malformed JSON is a 400, a well-formed body
// with a wrongly typed field is a 422.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			var errs model.ValidationErrors
			errs.Add(typeErr.Field, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
			respondValidation(w, errs)
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}

	return true
}

// validationError reports whether err carries field errors
func validationError(err error) (model.ValidationErrors, bool) {
	var errs model.ValidationErrors
	if errors.As(err, &errs) {
		return errs, true
	}
	return nil, false
}
