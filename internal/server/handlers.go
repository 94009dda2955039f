package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/recommender"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommender.Request
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		s.respondError(w, http.StatusBadRequest, recommender.CodeInvalidQuery, msg)
		return
	}

	s.logger.Debug("recommend request", zap.String("query", req.Query), zap.Int("k", req.K))
	resp, err := s.engine.Recommend(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, "recommend failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Rebuild(r.Context()); err != nil {
		s.respondEngineError(w, "reindex failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "reindexed", "index": s.engine.Stats()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) respondEngineError(w http.ResponseWriter, msg string, err error) {
	code := recommender.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("code", string(code)), zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.String("code", string(code)), zap.Error(err))
	}
	s.respondError(w, status, code, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code recommender.Code, message string) {
	s.respondJSON(w, status, errorResponse{Error: message, Code: string(code)})
}
