package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxUploadBytes caps profile picture uploads at 5 MiB.
const maxUploadBytes = 5 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// HandleUploadProfilePic stores the uploaded image in the upload dir
// as <userID>-<unix ms><ext> and records the path on the user. The
// disk is a plain sink; no image processing happens here.
func (a *App) HandleUploadProfilePic(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("profilePic")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "profilePic file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExts[ext] {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Unsupported image type")
		return
	}

	if err := os.MkdirAll(a.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store file")
		return
	}
	name := fmt.Sprintf("%d-%d%s", principal.UserID, time.Now().UnixMilli(), ext)
	dst, err := os.Create(filepath.Join(a.UploadDir, name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store file")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store file")
		return
	}

	path := "/uploads/" + name
	if err := a.Store.SetUserAvatar(principal.UserID, path); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record avatar")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file_path": path})
}
