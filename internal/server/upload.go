// upload.go - Multipart upload gateway.
//
// The payload is streamed from the request straight into the object
// store; nothing is buffered in memory beyond the multipart framing.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

// maxUploadBytes reads the FV_MAX_UPLOAD_BYTES environment variable and
// returns the maximum allowed upload size in bytes. Returns 0 if not
// set (meaning no limit).
func maxUploadBytes() (int64, error) {
	raw := os.Getenv("FV_MAX_UPLOAD_BYTES")
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// uploadHandler handles POST /loginHome/folder/{id}/upload. It verifies
// the target folder belongs to the session user, streams the "file"
// multipart field to the object store, records the File row and
// redirects to the folder view.
func (cfg Config) uploadHandler(reg *Registry, store ObjectStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := cfg.Auth.currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		folderID, ok := pathID(r)
		if !ok {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}

		folder, err := reg.FolderByID(r.Context(), folderID, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		limit, err := maxUploadBytes()
		if err != nil {
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
			return
		}
		if limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}

		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}

		var filePart io.Reader
		var fileName string
		var contentType string

		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, "bad multipart", http.StatusBadRequest)
				return
			}
			defer func() { _ = part.Close() }()

			if part.FormName() != "file" {
				continue
			}

			filePart = part
			fileName = part.FileName()
			contentType = part.Header.Get("Content-Type")
			break
		}

		if filePart == nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()

		stored, err := store.Store(ctx, filePart, contentType)
		if err != nil {
			rid := RequestIDFromContext(r.Context())
			slog.Error("upload: store failed", "rid", rid, "folder_id", folderID, "err", err)

			// If MaxBytesReader tripped, surface 413.
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
				return
			}

			writeError(w, r, err)
			return
		}

		file, err := reg.CreateFile(r.Context(), userID, folder.ID, fileName, stored.Ref, stored.Size)
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.Info("file uploaded", "rid", RequestIDFromContext(r.Context()),
			"file_id", file.ID, "folder_id", folder.ID, "size", file.Size)

		if wantsJSON(r) {
			writeJSON(w, http.StatusCreated, file)
			return
		}
		http.Redirect(w, r, "/loginHome/folder/"+folder.ID.String(), http.StatusSeeOther)
	})
}
