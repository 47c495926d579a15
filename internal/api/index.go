package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/packhost/repod/internal/apierr"
	"github.com/packhost/repod/internal/index"
	"github.com/packhost/repod/internal/signcommit"
)

type actionRequest struct {
	Type         string `json:"type"` // "add" or "remove"
	SHA256       string `json:"sha256,omitempty"`
	Name         string `json:"name,omitempty"`
	Version      string `json:"version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
}

func (a actionRequest) toAction() (index.Action, error) {
	switch a.Type {
	case "add":
		if a.SHA256 == "" {
			return index.Action{}, apierr.New(apierr.CouldNotParse, "add action requires sha256")
		}
		return index.Action{Add: true, SHA256: a.SHA256}, nil
	case "remove":
		if a.Name == "" || a.Version == "" || a.Architecture == "" {
			return index.Action{}, apierr.New(apierr.CouldNotParse, "remove action requires name, version, architecture")
		}
		return index.Action{Add: false, Name: a.Name, Version: a.Version, Architecture: a.Architecture}, nil
	default:
		return index.Action{}, apierr.Newf(apierr.CouldNotParse, "unknown action type %q", a.Type)
	}
}

type generateIndexRequest struct {
	Distribution string        `json:"distribution"`
	Component    string        `json:"component"`
	Action       actionRequest `json:"action"`
}

func (s *Server) handleGenerateIndex(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	var req generateIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid request body", err))
		return
	}
	action, err := req.Action.toAction()
	if err != nil {
		writeError(w, err)
		return
	}

	change := index.PackageChange{
		TenantID:     tenantFrom(r),
		Repository:   repoName,
		Distribution: req.Distribution,
		Component:    req.Component,
		Action:       action,
	}
	result, err := s.Engine.GenerateIndex(r.Context(), change, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"release":    string(result.Release),
		"release_ts": result.ReleaseTS.Format(time.RFC3339),
	})
}

type signIndexRequest struct {
	Distribution  string        `json:"distribution"`
	Component     string        `json:"component"`
	Action        actionRequest `json:"action"`
	ReleaseTS     string        `json:"release_ts"`
	Clearsigned   string        `json:"clearsigned"`
	Detachsigned  string        `json:"detachsigned"`
	PublicKeyCert string        `json:"public_key_cert"`
}

func (s *Server) handleSignIndex(w http.ResponseWriter, r *http.Request) {
	repoName := chi.URLParam(r, "name")
	var req signIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid request body", err))
		return
	}
	action, err := req.Action.toAction()
	if err != nil {
		writeError(w, err)
		return
	}
	releaseTS, err := time.Parse(time.RFC3339, req.ReleaseTS)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid release_ts", err))
		return
	}
	detachsigned, err := base64.StdEncoding.DecodeString(req.Detachsigned)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "detachsigned must be base64", err))
		return
	}

	change := index.PackageChange{
		TenantID:     tenantFrom(r),
		Repository:   repoName,
		Distribution: req.Distribution,
		Component:    req.Component,
		Action:       action,
	}
	err = s.Committer.SignIndex(r.Context(), signcommit.Request{
		Change:          change,
		ReleaseTS:       releaseTS,
		Clearsigned:     []byte(req.Clearsigned),
		Detachsigned:    detachsigned,
		PublicKeyCert:   []byte(req.PublicKeyCert),
		ByHashRetention: s.ByHashRetention,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.runCleanup(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
