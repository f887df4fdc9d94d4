package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/zsiec/tsingest/internal/errors"
	"github.com/zsiec/tsingest/internal/ingestion/registry"
	"github.com/zsiec/tsingest/pkg/version"
)

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, http.StatusOK, version.GetInfo())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		s.errorHandler.HandleError(w, r, errors.NewNotFoundError("pipeline"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.progress.Progress())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireLedger(w, r) {
		return
	}
	run, err := s.ledger.GetRun(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.ledgerError(w, r, err, "run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	if !s.requireLedger(w, r) {
		return
	}
	chunks, err := s.ledger.ListChunks(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.ledgerError(w, r, err, "run")
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Chunks []*registry.ChunkRecord `json:"chunks"`
		Count  int                     `json:"count"`
	}{
		Chunks: chunks,
		Count:  len(chunks),
	})
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	if !s.requireLedger(w, r) {
		return
	}
	vars := mux.Vars(r)
	offset, err := strconv.ParseInt(vars["offset"], 10, 64)
	if err != nil {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("invalid chunk offset"))
		return
	}
	chunk, err := s.ledger.GetChunk(r.Context(), vars["id"], offset)
	if err != nil {
		s.ledgerError(w, r, err, "chunk")
		return
	}
	s.writeJSON(w, http.StatusOK, chunk)
}

func (s *Server) requireLedger(w http.ResponseWriter, r *http.Request) bool {
	if s.ledger == nil {
		s.errorHandler.HandleError(w, r, errors.NewNotFoundError("ledger"))
		return false
	}
	return true
}

func (s *Server) ledgerError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	if stderrors.Is(err, registry.ErrRunNotFound) || stderrors.Is(err, registry.ErrChunkNotFound) {
		s.errorHandler.HandleError(w, r, errors.NewNotFoundError(resource))
		return
	}
	s.errorHandler.HandleError(w, r, errors.WrapInternalError(err, "ledger lookup failed"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
