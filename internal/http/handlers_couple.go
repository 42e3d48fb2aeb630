package http

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"pairledger/internal/core"
)

var joinCodePattern = regexp.MustCompile(`^\d{6}$`)

func (s *Server) handleCreateCouple(w http.ResponseWriter, r *http.Request) {
	couple, err := s.registry.CreateCouple(r.Context(), callerID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCoupleView(couple))
}

type joinRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleJoinCouple(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	code := strings.TrimSpace(req.Code)
	if !joinCodePattern.MatchString(code) {
		writeServiceError(w, r, fmt.Errorf("code must be 6 digits: %w", core.ErrInvalidArgument))
		return
	}

	couple, err := s.registry.JoinCouple(r.Context(), callerID(r), code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoupleView(couple))
}

func (s *Server) handleGetCouple(w http.ResponseWriter, r *http.Request) {
	couple, err := s.registry.GetCouple(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCoupleView(couple))
}

type recalcRequest struct {
	CoupleID string `json:"coupleId"`
}

// handleRecalc forces a reconciliation outside the event pipeline.
func (s *Server) handleRecalc(w http.ResponseWriter, r *http.Request) {
	var req recalcRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(req.CoupleID) == "" {
		writeServiceError(w, r, fmt.Errorf("coupleId required: %w", core.ErrInvalidArgument))
		return
	}

	// partner check before touching the status
	if _, err := s.registry.GetCouple(r.Context(), callerID(r), req.CoupleID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	status, err := s.recon.Recalculate(r.Context(), req.CoupleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusView(*status))
}
