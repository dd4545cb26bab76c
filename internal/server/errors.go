// errors.go - Domain error taxonomy and HTTP mapping.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound means the referenced folder or file does not exist
	// for the acting owner.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is a unique-constraint violation surfaced as a
	// domain error (username or email already taken).
	ErrDuplicate = errors.New("already exists")

	// ErrAuthFailed is returned for both unknown email and wrong
	// password. The message is deliberately generic so callers cannot
	// enumerate accounts.
	ErrAuthFailed = errors.New("invalid email or password")

	// ErrUnauthorized means no valid session is present.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrUpstream wraps object-storage failures (store or fetch).
	ErrUpstream = errors.New("storage error")
)

// isDuplicateErr reports whether err is a Postgres unique violation.
func isDuplicateErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23505 = unique_violation
		return pgErr.Code == "23505"
	}
	return false
}

// wantsJSON decides whether the caller is an API client or a browser
// submitting a form. Browsers get the original redirect flows.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/html") {
		return false
	}
	ct := r.Header.Get("Content-Type")
	return strings.Contains(ct, "application/json") || strings.Contains(accept, "application/json") || accept == ""
}

// writeError maps a domain error to an HTTP response. Validation and
// duplicate errors carry field detail; everything unclassified is
// logged and reported as a generic server failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	switch {
	case errors.As(err, &verrs):
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": verrs})
	case errors.Is(err, ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]any{"error": ErrDuplicate.Error()})
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrAuthFailed):
		if wantsJSON(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": ErrAuthFailed.Error()})
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, ErrUnauthorized):
		if wantsJSON(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case errors.Is(err, ErrUpstream):
		slog.Error("upstream storage failure", "rid", RequestIDFromContext(r.Context()), "err", err)
		http.Error(w, "storage error", http.StatusBadGateway)
	default:
		slog.Error("unhandled error", "rid", RequestIDFromContext(r.Context()), "err", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
