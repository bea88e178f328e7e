// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package admin serves the credential admin API and Prometheus metrics.
//
// Routes:
//
//	GET    /postgresdb/{id}  {"user": "...", "hasPassword": true} or {} when nothing is stored
//	DELETE /postgresdb/{id}  removes stored credentials
//	POST   /postgresdb/{id}  form-encoded user/password merged into stored credentials
//	GET    /health           liveness
//	GET    /metrics          Prometheus text format
//
// The password itself is never returned.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pgmulti/cli/internal/keychain"
	"pgmulti/cli/internal/logging"
	"pgmulti/cli/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/pterm/pterm"
	"github.com/rs/cors"
)

// maxFormBytes caps POST bodies.
const maxFormBytes = 64 << 10

// CredentialStore is the part of the keychain manager the API needs.
type CredentialStore interface {
	Get(id string) (keychain.Credentials, bool, error)
	Delete(id string) error
	Merge(id string, user, password *string) (keychain.Credentials, error)
}

// Options configure the server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// JWTSecret enables bearer token checks on the credential routes.
	JWTSecret []byte
	Metrics   *metrics.Metrics
	Logger    *pterm.Logger
}

// Server is the admin HTTP server.
type Server struct {
	store  CredentialStore
	opts   Options
	logger *pterm.Logger
	http   *http.Server
}

// credentialsView is what GET returns.
type credentialsView struct {
	User        string `json:"user"`
	HasPassword bool   `json:"hasPassword"`
}

// New builds the server; call ListenAndServe to start it.
func New(store CredentialStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{store: store, opts: opts, logger: logger}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)

	creds := r.PathPrefix("/postgresdb").Subrouter()
	creds.HandleFunc("/{id}", s.requirePermission(PermRead, s.handleGet)).Methods(http.MethodGet)
	creds.HandleFunc("/{id}", s.requirePermission(PermWrite, s.handleDelete)).Methods(http.MethodDelete)
	creds.HandleFunc("/{id}", s.requirePermission(PermWrite, s.handlePost)).Methods(http.MethodPost)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost", "http://127.0.0.1"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server listening", s.logger.Args("addr", s.opts.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, ok, err := s.store.Get(id)
	if err != nil {
		s.fail(w, "read", id, err)
		return
	}
	if !ok {
		writeJSONResponse(w, struct{}{}, http.StatusOK)
		return
	}
	writeJSONResponse(w, credentialsView{User: c.User, HasPassword: c.HasPassword()}, http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.Delete(id); err != nil {
		s.fail(w, "delete", id, err)
		return
	}
	s.logger.Info("credentials deleted", s.logger.Args("id", id))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, "invalid form body", http.StatusBadRequest)
		return
	}

	user := formValue(r, "user")
	password := formValue(r, "password")

	c, err := s.store.Merge(id, user, password)
	if err != nil {
		s.fail(w, "update", id, err)
		return
	}
	s.logger.Info("credentials updated", s.logger.Args("id", id, "user", c.User, "hasPassword", c.HasPassword()))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) fail(w http.ResponseWriter, op, id string, err error) {
	s.logger.Error("credential store "+op+" failed", s.logger.Args("id", id, "error", logging.Mask(err.Error())))
	writeJSONError(w, "credential store unavailable", http.StatusInternalServerError)
}

// formValue returns nil when the field was not posted at all.
func formValue(r *http.Request, key string) *string {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

func writeJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, map[string]any{
		"error": map[string]any{
			"code":    statusCode,
			"message": message,
		},
	}, statusCode)
}
