// Package handler turns HTTP requests into service calls and service
// results into JSON. Handlers parse input, call one service method and
// write the response; business rules live in the service package.
package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SPAHandler serves the pre-built browser bundle. Paths that do not match
// a file get index.html so client-side routes survive a reload.
type SPAHandler struct {
	dir    string
	files  http.Handler
	logger *slog.Logger
}

// NewSPAHandler fails when dir has no index.html.
func NewSPAHandler(dir string, logger *slog.Logger) (*SPAHandler, error) {
	if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
		return nil, err
	}
	return &SPAHandler{dir: dir, files: http.FileServer(http.Dir(dir)), logger: logger}, nil
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Route not found"})
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	info, err := os.Stat(filepath.Join(h.dir, filepath.FromSlash(clean)))
	switch {
	case err == nil && !info.IsDir():
		h.files.ServeHTTP(w, r)
		return
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		h.logger.Warn("static lookup failed", slog.String("path", clean), slog.String("error", err.Error()))
	}

	// ServeFile rejects paths containing "..", so index.html is served
	// against the site root.
	root := r.Clone(r.Context())
	root.URL.Path = "/"
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, root, filepath.Join(h.dir, "index.html"))
}
