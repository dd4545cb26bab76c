// download.go - Streaming download gateway.
package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// downloadHandler handles GET /file/download/{id}. The registry lookup
// happens before any storage I/O; bytes are piped straight from the
// store to the response so large files never sit in memory. The request
// context flows into the fetch, so a client disconnect tears down the
// upstream read.
func (cfg Config) downloadHandler(reg *Registry, store ObjectStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := cfg.Auth.currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		id, ok := pathID(r)
		if !ok {
			http.Error(w, "bad id", http.StatusBadRequest)
			return
		}

		file, err := reg.GetFile(r.Context(), id, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		body, contentType, size, err := store.Fetch(r.Context(), file.StorageRef)
		if err != nil {
			// Single attempt, no retry; logged with a generic message
			// to the caller.
			slog.Error("download: fetch failed", "rid", RequestIDFromContext(r.Context()),
				"file_id", file.ID, "err", err)
			writeError(w, r, err)
			return
		}
		defer func() { _ = body.Close() }()

		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		} else {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		if size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Name))

		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, body); err != nil {
			// Headers are gone; nothing to send but worth recording.
			slog.Warn("download: stream interrupted", "rid", RequestIDFromContext(r.Context()),
				"file_id", file.ID, "err", err)
		}
	})
}
