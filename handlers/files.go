package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/satheeshds/invoicedesk/storage"
)

// Files is the store uploads are served from.
var Files storage.FileStore

// ServeUpload streams a stored upload. Names are random, so the route is
// not behind authentication.
func ServeUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if storage.NameFromPath(storage.PublicPrefix+name) == "" {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	rc, err := Files.Open(r.Context(), name)
	if errors.Is(err, storage.ErrNotExist) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		slog.Error("failed to open upload", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("upload stream interrupted", "file", name, "error", err)
	}
}
