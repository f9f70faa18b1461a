package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/me/flowsched/pkg/model"
)

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondDomainError maps a domain error to its HTTP status and error code.
func respondDomainError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidPayload):
		respondError(w, reqID, http.StatusBadRequest,
			model.NewAPIError(model.ErrCodeValidation, "%s", err.Error()))
	case errors.Is(err, model.ErrNotFound):
		respondError(w, reqID, http.StatusNotFound,
			model.NewAPIError(model.ErrCodeNotFound, "%s", err.Error()))
	case errors.Is(err, model.ErrStale):
		respondError(w, reqID, http.StatusConflict,
			model.NewAPIError(model.ErrCodeConflict, "%s", err.Error()))
	case errors.Is(err, model.ErrTimeout):
		respondError(w, reqID, http.StatusRequestTimeout,
			model.NewAPIError(model.ErrCodeTimeout, "%s", err.Error()))
	default:
		respondError(w, reqID, http.StatusInternalServerError,
			model.NewAPIError(model.ErrCodeInternal, "%s", err.Error()))
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
