package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type inputRequest struct {
	Value string `json:"value"`
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context(), r.URL.Query().Get("graph_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) getJobLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.jobs.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) getJobOutput(w http.ResponseWriter, r *http.Request) {
	st, err := s.jobs.Output(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) sendInput(w http.ResponseWriter, r *http.Request) {
	var body inputRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	if err := s.jobs.SendInput(r.Context(), chi.URLParam(r, "id"), body.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Stop(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
