package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/packhost/repod/internal/apierr"
)

type createRepositoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid request body", err))
		return
	}

	repo, err := s.Catalog.CreateRepository(r.Context(), tenantFrom(r), req.Name, s.BucketName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": repo.ID, "name": repo.Name})
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.Catalog.ListRepositories(r.Context(), tenantFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(repos))
	for _, repo := range repos {
		out = append(out, map[string]string{"id": repo.ID, "name": repo.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": out})
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	repo, err := s.Catalog.GetRepository(r.Context(), tenantFrom(r), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": repo.Name})
}

type renameRepositoryRequest struct {
	NewName string `json:"new_name"`
}

func (s *Server) handleRenameRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req renameRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid request body", err))
		return
	}
	if req.NewName == "" {
		writeJSON(w, http.StatusOK, map[string]any{"result": map[string]string{"name": name}})
		return
	}

	repo, err := s.Catalog.RenameRepository(r.Context(), tenantFrom(r), name, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]string{"name": repo.Name}})
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Catalog.DeleteRepository(r.Context(), tenantFrom(r), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
