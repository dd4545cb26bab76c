package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
)

// Config wires the server's collaborators together. Everything is
// constructed explicitly and passed down; there are no process-wide
// singletons.
type Config struct {
	Addr           string // e.g. ":8080"
	DB             *sql.DB
	Store          ObjectStore
	Auth           AuthConfig
	AllowedOrigins []string
}

type Server struct {
	httpServer *http.Server
}

func New(cfg Config) *Server {
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{httpServer: s}
}

// NewHandler assembles the full route table and middleware chain. Split
// out from New so tests can mount it on an httptest server.
func NewHandler(cfg Config) http.Handler {
	reg := NewRegistry(cfg.DB)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	// Credential and session endpoints.
	mux.Handle("POST /signup", cfg.signupHandler(cfg.Auth.Users))
	mux.Handle("POST /login", cfg.Auth.loginHandler())
	mux.Handle("POST /logout", cfg.Auth.requireAuth(cfg.Auth.logoutHandler()))

	// Folder and file routes, all behind the session guard.
	guard := cfg.Auth.requireAuth
	mux.Handle("GET /loginHome", guard(cfg.listFoldersHandler(reg)))
	mux.Handle("POST /loginHome/folder", guard(cfg.createFolderHandler(reg)))
	mux.Handle("POST /loginHome/edit/{id}", guard(cfg.renameFolderHandler(reg)))
	mux.Handle("GET /loginHome/delete/{id}", guard(cfg.deleteFolderHandler(reg)))
	mux.Handle("GET /loginHome/folder/{id}", guard(cfg.folderDetailHandler(reg)))
	mux.Handle("POST /loginHome/folder/{id}/upload", guard(cfg.uploadHandler(reg, cfg.Store)))
	mux.Handle("GET /loginHome/file/{id}", guard(cfg.fileDetailHandler(reg)))
	mux.Handle("GET /file/download/{id}", guard(cfg.downloadHandler(reg, cfg.Store)))

	// Wrap middleware: requestID -> logging -> security headers -> CORS -> mux.
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	})

	var handler http.Handler = mux
	handler = c.Handler(handler)
	handler = securityHeadersMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
