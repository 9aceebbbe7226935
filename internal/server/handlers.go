package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"github.com/xela07ax/spaceai-permission-authority/internal/engine"
	"github.com/xela07ax/spaceai-permission-authority/internal/infra/auth"
)

type permissionRequestDTO struct {
	ToolID     string                 `json:"tool_id"`
	AgentID    string                 `json:"agent_id"`
	Parameters map[string]interface{} `json:"parameters"`
	TrustLevel string                 `json:"trust_level"`
}

type decideDTO struct {
	Reasoning string `json:"reasoning"`
}

type verifyDTO struct {
	Token      *domain.ToolCallToken  `json:"token"`
	Parameters map[string]interface{} `json:"parameters"`
}

type consumeDTO struct {
	TokenID string `json:"token_id"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Message    string   `json:"message,omitempty"`
	RiskScore  float64  `json:"risk_score,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// handleLogin — POST /auth/token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authService == nil {
		writeError(w, http.StatusServiceUnavailable, errorResponse{Error: "auth_disabled", Message: "no operator database configured"})
		return
	}

	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	resp, err := s.authService.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errorResponse{Error: "invalid_credentials"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRequestPermission — POST /v1/permissions/request
// Главный вход для агентов: возвращает токен синхронно либо подвисает
// до решения оператора для destructive/admin tier'ов.
func (s *Server) handleRequestPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}
	if req.ToolID == "" || req.AgentID == "" {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "tool_id and agent_id are required"})
		return
	}

	trust, err := domain.ParseTrustLevel(req.TrustLevel)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	// Edge-лимит для политик с rate_limit (сам лимит исполнения — на исполнителе)
	if pol, ok := s.authority.GetPolicy(req.ToolID); ok && !s.limits.Allow(pol) {
		writeError(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "tool rate limit exceeded"})
		return
	}

	token, err := s.authority.RequestPermission(r.Context(), req.ToolID, req.AgentID, req.Parameters, trust)
	if err != nil {
		s.writePermissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// handlePendingApprovals — GET /v1/approvals
func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.authority.PendingApprovals())
}

// handleListPolicies — GET /v1/policies
func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.authority.ListPolicies())
}

// handleApprove — POST /v1/approvals/{id}/approve
// Идентичность и роль апрувера берутся из проверенного JWT, не из тела.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, true)
}

// handleReject — POST /v1/approvals/{id}/reject
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, false)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, approve bool) {
	id := chi.URLParam(r, "id")

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var body decideDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}

	var err error
	if approve {
		err = s.authority.Approve(r.Context(), id, claims.UserID, claims.Role, body.Reasoning)
	} else {
		err = s.authority.Reject(r.Context(), id, claims.UserID, claims.Role, body.Reasoning)
	}

	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, engine.ErrUnauthorizedApprover):
		writeError(w, http.StatusForbidden, errorResponse{Error: "unauthorized_approver", Message: err.Error()})
	case errors.Is(err, engine.ErrNoPendingRequest):
		// Опоздавшее решение: запрос уже разрешен или истек
		writeError(w, http.StatusConflict, errorResponse{Error: "no_pending_request", Message: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error()})
	}
}

// handleVerifyToken — POST /v1/tokens/verify
// Не мутирует состояние: токен можно проверять спекулятивно.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == nil {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "token is required"})
		return
	}

	if err := s.authority.VerifyToken(req.Token, req.Parameters); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"valid": false, "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// handleConsumeToken — POST /v1/tokens/consume
func (s *Server) handleConsumeToken(w http.ResponseWriter, r *http.Request) {
	var req consumeDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TokenID == "" {
		writeError(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "token_id is required"})
		return
	}

	if err := s.authority.MarkTokenUsed(req.TokenID); err != nil {
		writeError(w, http.StatusConflict, errorResponse{Error: "token_consumed", Message: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writePermissionError переводит таксономию ядра в HTTP-статусы.
func (s *Server) writePermissionError(w http.ResponseWriter, err error) {
	var denied *engine.PermissionDeniedError
	var rejected *engine.ApprovalRejectedError

	switch {
	case errors.Is(err, engine.ErrPolicyNotFound):
		writeError(w, http.StatusNotFound, errorResponse{Error: "policy_not_found", Message: err.Error()})
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, errorResponse{
			Error:      "permission_denied",
			Message:    err.Error(),
			RiskScore:  denied.RiskScore,
			Violations: denied.Violations,
		})
	case errors.As(err, &rejected):
		writeError(w, http.StatusForbidden, errorResponse{Error: "approval_rejected", Message: err.Error()})
	case errors.Is(err, engine.ErrApprovalTimeout):
		writeError(w, http.StatusRequestTimeout, errorResponse{Error: "approval_timeout", Message: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	writeJSON(w, status, resp)
}
