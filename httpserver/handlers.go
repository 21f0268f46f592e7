package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/pool"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // headers are already sent
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Handlers ---

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{
		"message":        "Remote Code Execution API",
		"version":        "1.0.0",
		"authentication": "required",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"languages": s.config.SupportedLanguages(),
	})
}

func (s *Server) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

type executeRequest struct {
	Code       string   `json:"code"`
	Language   string   `json:"language"`
	Libraries  []string `json:"libraries"`
	TimeoutSec int      `json:"timeout"`
	SessionID  string   `json:"session_id"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code cannot be empty")
		return
	}
	language := req.Language
	if language == "" {
		language = "python"
	}
	if _, ok := s.config.Languages[language]; !ok {
		writeError(w, http.StatusBadRequest, "unsupported language: "+language)
		return
	}

	result, err := s.executor.Execute(r.Context(), pool.ExecuteRequest{
		Language:  language,
		Code:      req.Code,
		Libraries: req.Libraries,
		Timeout:   time.Duration(req.TimeoutSec) * time.Second,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.logger.Error("execute request failed", zap.String("language", language), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	Language  string    `json:"language"`
	Libraries []string  `json:"libraries"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	language := query.Get("language")
	if language == "" {
		language = "python"
	}
	if _, ok := s.config.Languages[language]; !ok {
		writeError(w, http.StatusBadRequest, "unsupported language: "+language)
		return
	}
	libraries := query["libraries"]

	session, err := s.pool.Acquire(r.Context(), language, libraries, "")
	if err != nil {
		s.logger.Error("session creation failed", zap.String("language", language), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	libs := session.Libraries
	if libs == nil {
		libs = []string{}
	}
	writeJSON(w, http.StatusOK, createSessionResponse{
		SessionID: session.ID,
		Language:  session.Language,
		Libraries: libs,
		CreatedAt: session.CreatedAt,
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.pool.CloseByID(r.Context(), id) {
		writeError(w, http.StatusNotFound, "session "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session " + id + " closed"})
}
