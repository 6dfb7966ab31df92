package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/davarch/ci-tracker/internal/application"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
}

type urlRequest struct {
	URL string `json:"url"`
}

type trackResponse struct {
	Item  domain.TrackedItem `json:"item"`
	Added bool               `json:"added"`
}

type autoTrackPatch struct {
	Enabled         *bool `json:"enabled,omitempty"`
	PollingInterval *int  `json:"polling_interval,omitempty"`
}

type repoPatch struct {
	Enabled bool `json:"enabled"`
}

type autoTrackView struct {
	domain.AutoTrackConfig
	Running bool `json:"running"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ce *domain.ClassificationError
		ge *domain.GatewayError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ce):
		status = http.StatusBadRequest
	case errors.As(err, &ge):
		status = http.StatusBadGateway
	case errors.Is(err, application.ErrNotTracked), errors.Is(err, application.ErrRepoIndex):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrDuplicateRepo):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Warn("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.Items())
}

func (s *Server) trackItem(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		badRequest(w, "body must be {\"url\": \"...\"}")
		return
	}

	item, added, err := s.reg.Track(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, trackResponse{Item: item, Added: added})
}

func (s *Server) refreshItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.reg.Refresh(r.Context(), key); err != nil {
		s.writeError(w, err)
		return
	}
	item, ok := s.reg.Get(key)
	if !ok {
		s.writeError(w, application.ErrNotTracked)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	if !s.reg.Remove(chi.URLParam(r, "key")) {
		s.writeError(w, application.ErrNotTracked)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) autoTrackView() autoTrackView {
	return autoTrackView{AutoTrackConfig: s.sched.Config(), Running: s.sched.Running()}
}

func (s *Server) getAutoTrack(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.autoTrackView())
}

func (s *Server) putAutoTrack(w http.ResponseWriter, r *http.Request) {
	var p autoTrackPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if p.PollingInterval != nil {
		if *p.PollingInterval <= 0 {
			badRequest(w, "polling_interval must be positive")
			return
		}
		if err := s.sched.SetInterval(*p.PollingInterval); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if p.Enabled != nil {
		if err := s.sched.SetEnabled(*p.Enabled); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.autoTrackView())
}

func (s *Server) addRepo(w http.ResponseWriter, r *http.Request) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		badRequest(w, "body must be {\"url\": \"...\"}")
		return
	}
	repo, err := s.sched.AddRepo(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (s *Server) removeRepo(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "index must be an integer")
		return
	}
	if err := s.sched.RemoveRepo(idx); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateRepo(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, "index must be an integer")
		return
	}
	var p repoPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		badRequest(w, "invalid body")
		return
	}
	if err := s.sched.SetRepoEnabled(idx, p.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	repos := s.sched.Config().Repos
	if idx >= len(repos) {
		s.writeError(w, application.ErrRepoIndex)
		return
	}
	writeJSON(w, http.StatusOK, repos[idx])
}
