package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/loqalabs/loqa-scribe/internal/jobs"
)

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type listResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func (s *Server) models() []modelObject {
	out := make([]modelObject, 0, len(s.cfg.Models))
	for _, m := range s.cfg.Models {
		out = append(out, modelObject{ID: m.ID, Object: "model", OwnedBy: m.OwnedBy})
	}
	return out
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse[modelObject]{Object: "list", Data: s.models()})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, m := range s.models() {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, fmt.Sprintf("Model '%s' not found", id))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeDetail(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	list, err := s.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("failed to list jobs", slogError(err))
		writeDetail(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	writeJSON(w, http.StatusOK, listResponse[jobs.Job]{Object: "list", Data: list})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Job '%s' not found", id))
		return
	}
	if err != nil {
		s.logger.Warn("failed to load job", slogError(err))
		writeDetail(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
