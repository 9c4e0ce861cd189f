package rest

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// requestTokenHandler issues an emergency access token for the caller
func (s *Server) requestTokenHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := GetPrincipal(r.Context())
	if err != nil {
		respondUnauthorized(w, err.Error())
		return
	}

	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}
	if req.PatientID == "" || req.Reason == "" {
		WriteError(w, http.StatusBadRequest, "patient_id and reason are required", nil)
		return
	}

	result, err := s.engine.IssueToken(r.Context(), principal, req.PatientID, req.Reason)
	if err != nil {
		s.logger.Warn("Emergency token request rejected",
			zap.String("principal", principal.ID),
			zap.String("patient_id", req.PatientID),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}
	WriteJSON(w, status, result)
}

// validateTokenHandler validates one of the caller's tokens
func (s *Server) validateTokenHandler(w http.ResponseWriter, r *http.Request) {
	principal, tokenID, ok := s.tokenRequest(w, r)
	if !ok {
		return
	}

	result, err := s.engine.ValidateToken(r.Context(), tokenID, principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// revokeTokenHandler revokes one of the caller's tokens
func (s *Server) revokeTokenHandler(w http.ResponseWriter, r *http.Request) {
	principal, tokenID, ok := s.tokenRequest(w, r)
	if !ok {
		return
	}

	result, err := s.engine.RevokeToken(r.Context(), tokenID, principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// listTokensHandler lists the caller's tokens, newest first
func (s *Server) listTokensHandler(w http.ResponseWriter, r *http.Request) {
	principal, err := GetPrincipal(r.Context())
	if err != nil {
		respondUnauthorized(w, err.Error())
		return
	}

	tokens, err := s.engine.ListTokens(r.Context(), principal.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tokens == nil {
		tokens = []*types.EmergencyToken{}
	}
	WriteJSON(w, http.StatusOK, TokenListResponse{Tokens: tokens})
}

// tokenRequest decodes a TokenRequest body and returns the caller's id
func (s *Server) tokenRequest(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	principal, err := GetPrincipal(r.Context())
	if err != nil {
		respondUnauthorized(w, err.Error())
		return "", "", false
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return "", "", false
	}
	if req.TokenID == "" {
		WriteError(w, http.StatusBadRequest, "token_id is required", nil)
		return "", "", false
	}
	return principal.ID, req.TokenID, true
}
