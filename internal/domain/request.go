package domain

import (
	"errors"
	"time"
)

// Статусы State Machine запроса на подтверждение
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
	StatusExpired  RequestStatus = "EXPIRED"
)

var (
	ErrInvalidTransition = errors.New("invalid request status transition")
	ErrAlreadyResolved   = errors.New("permission request already resolved")
)

// PermissionRequest — один зависший вызов, ожидающий решения оператора.
// Терминален после разрешения, повторно не используется.
type PermissionRequest struct {
	ID         string                 `json:"request_id"`
	ToolID     string                 `json:"tool_id"`
	AgentID    string                 `json:"agent_id"`
	Parameters map[string]interface{} `json:"parameters"`
	Trust      TrustLevel             `json:"trust_level"`

	RequestedAt time.Time     `json:"requested_at"`
	Status      RequestStatus `json:"status"`

	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
}

// CanTransitionTo проверяет правила конечного автомата:
// только PENDING -> {APPROVED, REJECTED, EXPIRED}, один раз, без отката.
func (r *PermissionRequest) CanTransitionTo(next RequestStatus) error {
	if r.Status != StatusPending {
		return ErrAlreadyResolved
	}
	if next == StatusPending {
		return ErrInvalidTransition
	}
	return nil
}

// Resolve фиксирует терминальное состояние запроса.
func (r *PermissionRequest) Resolve(next RequestStatus, by string, reason string) error {
	if err := r.CanTransitionTo(next); err != nil {
		return err
	}
	now := time.Now()
	r.Status = next
	r.ResolvedAt = &now
	if by != "" {
		r.ResolvedBy = &by
	}
	if next == StatusRejected && reason != "" {
		r.RejectionReason = &reason
	}
	return nil
}
