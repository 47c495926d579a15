package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/packhost/repod/internal/apierr"
)

type createDistributionRequest struct {
	Distribution string `json:"distribution"`
	Suite        string `json:"suite"`
	Codename     string `json:"codename"`
}

func (s *Server) handleCreateDistribution(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	var req createDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid request body", err))
		return
	}

	repo, err := s.Catalog.GetRepository(r.Context(), tenantFrom(r), repoName)
	if err != nil {
		writeError(w, err)
		return
	}

	suite, codename := req.Suite, req.Codename
	if suite == "" {
		suite = req.Distribution
	}
	if codename == "" {
		codename = req.Distribution
	}
	dist, err := s.Catalog.CreateDistribution(r.Context(), repo.ID, req.Distribution, suite, codename)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": dist.ID, "distribution": dist.Distribution})
}

func (s *Server) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	repo, err := s.Catalog.GetRepository(r.Context(), tenantFrom(r), repoName)
	if err != nil {
		writeError(w, err)
		return
	}
	dists, err := s.Catalog.ListDistributions(r.Context(), repo.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(dists))
	for _, d := range dists {
		out = append(out, map[string]string{"id": d.ID, "distribution": d.Distribution})
	}
	writeJSON(w, http.StatusOK, map[string]any{"distributions": out})
}

type editDistributionRequest struct {
	Origin      *string `json:"origin"`
	Label       *string `json:"label"`
	Version     *string `json:"version"`
	Description *string `json:"description"`
}

func (s *Server) handleEditDistribution(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	distName := chi.URLParam(r, "dist")
	var req editDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid request body", err))
		return
	}

	repo, err := s.Catalog.GetRepository(r.Context(), tenantFrom(r), repoName)
	if err != nil {
		writeError(w, err)
		return
	}
	dist, err := s.Catalog.EditDistribution(r.Context(), repo.ID, distName, req.Origin, req.Label, req.Version, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": dist.ID, "distribution": dist.Distribution})
}

func (s *Server) handleDeleteDistribution(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	distName := chi.URLParam(r, "dist")

	repo, err := s.Catalog.GetRepository(r.Context(), tenantFrom(r), repoName)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.Catalog.CascadeDeleteDistribution(r.Context(), repo.ID, distName)
	if err != nil {
		writeError(w, err)
		return
	}

	keys := append(append(result.ReleaseKeys, result.IndexKeys...), result.PoolKeys...)
	if len(keys) > 0 {
		if err := s.Content.Delete(r.Context(), keys); err != nil {
			s.Log.Error().Err(err).Str("repository", repoName).Str("distribution", distName).
				Msg("cascade delete left orphaned content-store objects")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	distName := chi.URLParam(r, "dist")

	inconsistencies, err := s.Checker.Check(r.Context(), tenantFrom(r), repoName, distName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inconsistent_objects": inconsistencies})
}
