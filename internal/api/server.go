// Package api is the HTTP surface: a chi router wiring bearer-token
// authentication, request logging, and one handler per route named in
// SPEC_FULL.md §6.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/consistency"
	"github.com/packhost/repod/internal/content"
	"github.com/packhost/repod/internal/index"
	"github.com/packhost/repod/internal/signcommit"
)

// MinAPIVersion is the oldest X-API-Version header the server still accepts
// at all; older clients get "incompatible". CurrentAPIVersion is the latest
// version the server implements; clients between the two get "warn_upgrade".
const (
	MinAPIVersion     = "2025-07-24"
	CurrentAPIVersion = "2025-07-24"
)

// Server holds every dependency a handler needs. Nothing here is mutated
// after it is constructed; handlers read it by reference through the method
// values chi's router holds.
type Server struct {
	Catalog         *catalog.Store
	Content         *content.Store
	Engine          *index.Engine
	Committer       *signcommit.Committer
	Checker         *consistency.Checker
	Log             zerolog.Logger
	TokenSecret     string
	BucketName      string
	ByHashRetention time.Duration
}

// NewRouter builds the chi.Router exposing every /api/v0 route.
func (s *Server) NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/v0/health", s.handleHealth)
	r.Get("/api/v0/compatibility", s.handleCompatibility)

	r.Route("/api/v0", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/repositories", s.handleCreateRepository)
		r.Get("/repositories", s.handleListRepositories)
		r.Get("/repositories/{name}", s.handleGetRepository)
		r.Put("/repositories/{name}", s.handleRenameRepository)
		r.Delete("/repositories/{name}", s.handleDeleteRepository)

		r.Post("/repositories/{name}/distributions", s.handleCreateDistribution)
		r.Get("/repositories/{name}/distributions", s.handleListDistributions)
		r.Put("/repositories/{name}/distributions/{dist}", s.handleEditDistribution)
		r.Delete("/repositories/{name}/distributions/{dist}", s.handleDeleteDistribution)
		r.Get("/repositories/{name}/distributions/{dist}/sync", s.handleSync)

		r.Get("/repositories/{name}/index", s.handleGenerateIndex)
		r.Post("/repositories/{name}/index", s.handleSignIndex)

		r.Post("/packages", s.handleUploadPackage)
		r.Get("/packages/{sha256}", s.handleGetPackage)
		r.Get("/packages", s.handleListPackages)

		r.Post("/cleanup", s.handleCleanup)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := s.Catalog.Ping(r.Context()) == nil
	writeJSON(w, http.StatusOK, map[string]any{"ready": ready})
}
