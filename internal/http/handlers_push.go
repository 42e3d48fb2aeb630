package http

import (
	"fmt"
	"net/http"
	"strings"

	"pairledger/internal/core"
)

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleAddPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeServiceError(w, r, fmt.Errorf("token required: %w", core.ErrInvalidArgument))
		return
	}

	if err := s.accounts.AddPushToken(r.Context(), callerID(r), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemovePushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeServiceError(w, r, fmt.Errorf("token required: %w", core.ErrInvalidArgument))
		return
	}

	if err := s.accounts.RemovePushToken(r.Context(), callerID(r), token); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
