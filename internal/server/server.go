// Package server exposes the submission API: mod submission and status,
// queue inspection, repository configuration, and registry listings. It is
// a collaborator surface over the job executor; no pipeline logic lives
// here.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"levelup/internal/compiler"
	"levelup/internal/config"
	"levelup/internal/edits"
	"levelup/internal/gitws"
	"levelup/internal/jobs"
	"levelup/internal/logging"
	"levelup/internal/oracle"
)

// Server wires HTTP handlers to the executor and the repo registry.
type Server struct {
	exec  *jobs.Executor
	repos *config.RepoRegistry
	log   *zap.Logger
}

// New builds the server.
func New(exec *jobs.Executor, repos *config.RepoRegistry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{exec: exec, repos: repos, log: log}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/mods", s.submitMod)
	mux.HandleFunc("GET /api/mods/{id}/status", s.modStatus)
	mux.HandleFunc("GET /api/queue/status", s.queueStatus)

	mux.HandleFunc("GET /api/repos", s.listRepos)
	mux.HandleFunc("POST /api/repos", s.addRepo)
	mux.HandleFunc("DELETE /api/repos/{id}", s.deleteRepo)

	mux.HandleFunc("GET /api/available/mods", s.availableMods)
	mux.HandleFunc("GET /api/available/validators", s.availableValidators)
	mux.HandleFunc("GET /api/available/compilers", s.availableCompilers)

	return mux
}

type modSubmission struct {
	RepoURL     string `json:"repo_url"`
	Type        string `json:"type"`
	Description string `json:"description"`
	ModType     string `json:"mod_type"`
	CommitHash  string `json:"commit_hash"`
}

func (s *Server) submitMod(w http.ResponseWriter, r *http.Request) {
	var body modSubmission
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	req := jobs.Request{
		ID:          uuid.NewString(),
		RepoURL:     body.RepoURL,
		Source:      jobs.SourceType(body.Type),
		Description: body.Description,
		ModID:       body.ModType,
		CommitHash:  body.CommitHash,
	}
	if err := s.exec.Submit(req); err != nil {
		s.error(w, http.StatusBadRequest, err)
		return
	}

	s.log.Info("mod submitted",
		zap.String("id", req.ID),
		zap.String("repo", req.RepoURL),
		zap.String("type", body.Type))
	logging.Server("Submitted mod %s (%s)", req.ID, body.Type)

	resp := map[string]interface{}{
		"id":          req.ID,
		"repo_url":    body.RepoURL,
		"type":        body.Type,
		"description": body.Description,
		"timestamp":   time.Now().Format(time.RFC3339),
	}
	switch req.Source {
	case jobs.SourceBuiltin:
		resp["mod_type"] = body.ModType
	case jobs.SourceCommit:
		resp["commit_hash"] = body.CommitHash
	}
	s.json(w, http.StatusOK, resp)
}

func (s *Server) modStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok := s.exec.Result(id)
	if !ok {
		s.json(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return
	}
	s.json(w, http.StatusOK, res)
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, map[string]interface{}{
		"queue_size": s.exec.QueueDepth(),
		"results":    s.exec.All(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

type repoSubmission struct {
	URL             string `json:"url"`
	PostCheckout    string `json:"post_checkout"`
	BuildCommand    string `json:"build_command"`
	SingleTUCommand string `json:"single_tu_command"`
}

func (s *Server) addRepo(w http.ResponseWriter, r *http.Request) {
	var body repoSubmission
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.error(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if body.URL == "" {
		s.error(w, http.StatusBadRequest, fmt.Errorf("url required"))
		return
	}

	cfg := config.RepoConfig{
		ID:              uuid.NewString(),
		Name:            gitws.RepoName(body.URL),
		URL:             body.URL,
		PostCheckout:    body.PostCheckout,
		BuildCommand:    body.BuildCommand,
		SingleTUCommand: body.SingleTUCommand,
		Timestamp:       time.Now().Format(time.RFC3339),
	}
	if err := s.repos.Add(cfg); err != nil {
		s.error(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("repo added", zap.String("name", cfg.Name), zap.String("url", cfg.URL))
	s.json(w, http.StatusOK, cfg)
}

func (s *Server) listRepos(w http.ResponseWriter, r *http.Request) {
	configs, err := s.repos.List()
	if err != nil {
		s.error(w, http.StatusInternalServerError, err)
		return
	}
	s.json(w, http.StatusOK, configs)
}

func (s *Server) deleteRepo(w http.ResponseWriter, r *http.Request) {
	removed, err := s.repos.Remove(r.PathValue("id"))
	if err != nil {
		s.error(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		s.json(w, http.StatusNotFound, map[string]bool{"success": false})
		return
	}
	s.json(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) availableMods(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, edits.Available())
}

func (s *Server) availableValidators(w http.ResponseWriter, r *http.Request) {
	type info struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	var out []info
	for _, p := range oracle.Profiles() {
		out = append(out, info{ID: p.ID, Name: p.Name})
	}
	s.json(w, http.StatusOK, out)
}

func (s *Server) availableCompilers(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, compiler.Available())
}

func (s *Server) json(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) error(w http.ResponseWriter, status int, err error) {
	s.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	s.json(w, status, map[string]string{"error": err.Error()})
}
