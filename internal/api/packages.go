package api

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/packhost/repod/internal/apierr"
	"github.com/packhost/repod/internal/catalog"
	"github.com/packhost/repod/internal/content"
	"github.com/packhost/repod/internal/debctl"
)

const maxUploadSize = 512 << 20 // 512MiB, generous for a .deb

// handleUploadPackage accepts a multipart upload under field "file",
// extracts its control paragraph, stores the blob content-addressed by
// SHA-256, and records (or reuses) the catalog row.
func (s *Server) handleUploadPackage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "invalid multipart upload", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "missing \"file\" field", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "reading upload", err))
		return
	}

	paragraph, err := debctl.ExtractControl(data)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.CouldNotParse, "not a valid .deb archive", err))
		return
	}
	name, _ := paragraph.Get("Package")
	version, _ := paragraph.Get("Version")
	architecture, _ := paragraph.Get("Architecture")
	if name == "" || version == "" || architecture == "" {
		writeError(w, apierr.New(apierr.CouldNotParse, "control file missing Package/Version/Architecture"))
		return
	}

	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	sha256Sum := sha256.Sum256(data)
	sha256Hex := hex.EncodeToString(sha256Sum[:])

	if err := s.Content.Put(r.Context(), content.PackageKey(sha256Hex), data); err != nil {
		writeError(w, err)
		return
	}

	pkg, err := s.Catalog.UpsertPackage(r.Context(), tenantFrom(r), paragraph, name, version, architecture,
		int64(len(data)), hex.EncodeToString(md5Sum[:]), hex.EncodeToString(sha1Sum[:]), sha256Hex, s.BucketName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"sha256sum": pkg.SHA256Sum})
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	sha256sum := chi.URLParam(r, "sha256")
	pkg, err := s.Catalog.GetPackageBySHA256(r.Context(), tenantFrom(r), sha256sum)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"package":      pkg.Name,
		"version":      pkg.Version,
		"architecture": pkg.Architecture,
	})
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.PackageFilter{
		Repository:   q.Get("repository"),
		Distribution: q.Get("distribution"),
		Component:    q.Get("component"),
		Name:         q.Get("name"),
		Version:      q.Get("version"),
		Architecture: q.Get("architecture"),
	}

	packages, err := s.Catalog.ListPackages(r.Context(), tenantFrom(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(packages))
	for _, p := range packages {
		out = append(out, map[string]any{
			"sha256sum":    p.SHA256Sum,
			"package":      p.Name,
			"version":      p.Version,
			"architecture": p.Architecture,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"packages": out})
}
