package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/storage"
)

type askRequest struct {
	Question string  `json:"question"`
	Image    *string `json:"image"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if max := s.config.Server.MaxBodyBytes; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max)
	}
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, apperr.InvalidInput.Category(), "request body too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, apperr.InvalidInput.Category(), "invalid request body")
		return
	}
	image := ""
	if req.Image != nil {
		image = *req.Image
	}
	result, err := s.answerer.AnswerQuestion(r.Context(), req.Question, image)
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"loaded":   false,
		"embedder": s.embedder,
	}
	if snap, release, err := s.kb.Acquire(); err == nil {
		chunkCount, countErr := snap.Store.CountChunks(r.Context())
		resp["loaded"] = true
		resp["version"] = snap.Version
		resp["loaded_at"] = snap.LoadedAt.UTC().Format(time.RFC3339)
		resp["vector_index"] = map[string]interface{}{
			"type":       snap.Index.Type(),
			"size":       snap.Index.Size(),
			"metric":     string(snap.Index.Metric()),
			"dimensions": snap.Index.Dimensions(),
		}
		release()
		if countErr != nil {
			s.logger.Error("status: count chunks failed", zap.Error(countErr))
			s.respondAppError(w, apperr.Wrap(apperr.Internal, "count chunks", countErr))
			return
		}
		resp["chunks"] = chunkCount
	}

	if s.cacheStats != nil {
		resp["embedding_cache"] = s.cacheStats()
	}

	st := s.config.Storage
	if diskBytes, err := storage.DiskUsageBytes(storage.KnowledgeBaseFiles(&st)...); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = map[string]interface{}{
		"top_k":           s.config.Retrieval.TopK,
		"generation":      s.config.Generation.Provider + "/" + s.config.Generation.Model,
		"citation_policy": s.config.Generation.CitationPolicy,
		"context_budget":  s.config.Generation.ContextBudget,
		"database_path":   st.DatabasePath,
		"index_path":      st.IndexPath,
		"id_map_path":     st.IDMapPath,
		"watch_enabled":   s.config.Watch.Enabled,
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.kb.Reload(r.Context()); err != nil {
		s.logger.Error("reload failed", zap.Error(err))
		s.respondAppError(w, apperr.Wrap(apperr.IndexUnavailable, "reload", err))
		return
	}
	snap, release, err := s.kb.Acquire()
	if err != nil {
		s.respondAppError(w, err)
		return
	}
	defer release()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reloaded",
		"version": snap.Version,
		"vectors": snap.Index.Size(),
	})
}

// statusFor maps an error category to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.ModelUnavailable, apperr.GenerationUnavailable, apperr.IndexUnavailable:
		return http.StatusServiceUnavailable
	case apperr.Canceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	message := err.Error()
	if kind == apperr.Internal {
		s.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	s.respondError(w, statusFor(kind), kind.Category(), message)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

func (s *Server) respondError(w http.ResponseWriter, status int, category, message string) {
	s.respondJSON(w, status, map[string]errorBody{"error": {Category: category, Message: message}})
}
