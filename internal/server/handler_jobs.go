package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/flowsched/pkg/model"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var payload model.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewAPIError(model.ErrCodeValidation, "invalid JSON body: %v", err))
		return
	}

	job, err := s.manager.Submit(r.Context(), payload)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if state := q.Get("state"); state != "" {
		opts.State = state
	}
	if limit := q.Get("limit"); limit != "" {
		opts.Limit, _ = strconv.Atoi(limit)
	}
	if offset := q.Get("offset"); offset != "" {
		opts.Offset, _ = strconv.Atoi(offset)
	}
	opts.Clamp()

	jobs, total, err := s.manager.List(r.Context(), opts)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}

	respondList(w, reqID, jobs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+opts.Limit < total,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	job, err := s.manager.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	cancelled, err := s.manager.Cancel(r.Context(), id)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}

	job, err := s.manager.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{
		"id":        job.ID,
		"state":     job.State,
		"cancelled": cancelled,
	})
}

// handleWaitJob blocks until the job reaches a terminal state or the
// timeout from the query string (default 30s, capped at 10m) elapses.
func (s *Server) handleWaitJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	timeout := 30 * time.Second
	if v := r.URL.Query().Get("timeout"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewAPIError(model.ErrCodeValidation, "invalid timeout %q: %v", v, err))
			return
		}
		timeout = parsed
	}
	if timeout > 10*time.Minute {
		timeout = 10 * time.Minute
	}

	job, err := s.manager.WaitFor(r.Context(), id, timeout)
	if err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, job)
}

func (s *Server) handleEvictJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.manager.Evict(r.Context(), id); err != nil {
		respondDomainError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"id": id, "evicted": true})
}
