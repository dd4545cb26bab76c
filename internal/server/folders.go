// folders.go - Folder and file gateway handlers.
//
// All routes here sit behind requireAuth; the registry additionally
// scopes every by-id query to the acting owner, so a caller can never
// rename, delete or read another user's resources.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// pathID parses the {id} route segment.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}

// folderName pulls the folder name from a JSON body or form field.
func folderName(r *http.Request, field string) string {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return ""
		}
		return strings.TrimSpace(body.Name)
	}
	if err := r.ParseForm(); err != nil {
		return ""
	}
	return strings.TrimSpace(r.PostFormValue(field))
}

// listFoldersHandler handles GET /loginHome.
func (cfg Config) listFoldersHandler(reg *Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := cfg.Auth.currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		folders, err := reg.ListFolders(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if folders == nil {
			folders = []Folder{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
	})
}

// createFolderHandler handles POST /loginHome/folder.
func (cfg Config) createFolderHandler(reg *Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := cfg.Auth.currentUser(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		name := folderName(r, "foldername")
		if name == "" {
			http.Error(w, "missing folder name", http.StatusBadRequest)
			return
		}

		folder, err := reg.CreateFolder(r.Context(), userID, name)
		if err != nil {
			writeError(w, r, err)
			return
		}

		slog.Info("folder created", "rid", RequestIDFromContext(r.Context()),
			"folder_id", folder.ID, "owner_id", userID)

		if wantsJSON(r) {
			writeJSON(w, http.StatusCreated, folder)
			return
		}
		http.Redirect(w, r, "/loginHome", http.StatusSeeOther)
	})
}

// renameFolderHandler handles POST /loginHome/edit/{id}.
func (cfg Config) renameFolderHandler(reg *Registry) http.Handler {
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

		newName := folderName(r, "name")
		if newName == "" {
			http.Error(w, "missing folder name", http.StatusBadRequest)
			return
		}

		if err := reg.RenameFolder(r.Context(), id, userID, newName); err != nil {
			writeError(w, r, err)
			return
		}

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		http.Redirect(w, r, "/loginHome", http.StatusSeeOther)
	})
}

// deleteFolderHandler handles GET /loginHome/delete/{id}. Deletion does
// not cascade: file rows in the folder keep their folder_id.
func (cfg Config) deleteFolderHandler(reg *Registry) http.Handler {
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

		if err := reg.DeleteFolder(r.Context(), id, userID); err != nil {
			writeError(w, r, err)
			return
		}

		slog.Info("folder deleted", "rid", RequestIDFromContext(r.Context()),
			"folder_id", id, "owner_id", userID)

		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
			return
		}
		http.Redirect(w, r, "/loginHome", http.StatusSeeOther)
	})
}

// folderDetailHandler handles GET /loginHome/folder/{id}.
func (cfg Config) folderDetailHandler(reg *Registry) http.Handler {
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

		detail, err := reg.GetFolderWithFiles(r.Context(), id, userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if detail.Files == nil {
			detail.Files = []File{}
		}

		writeJSON(w, http.StatusOK, detail)
	})
}

// fileDetailHandler handles GET /loginHome/file/{id}.
func (cfg Config) fileDetailHandler(reg *Registry) http.Handler {
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

		writeJSON(w, http.StatusOK, file)
	})
}
