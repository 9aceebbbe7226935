package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Таксономия отказов ядра. Никаких ретраев внутри: любой отказ терминален,
// повторная попытка — это всегда новый запрос от вызывающего.
var (
	ErrPolicyNotFound = errors.New("no policy registered for tool")

	// ErrNoPendingRequest — попытка разрешить уже разрешенный (или никогда
	// не существовавший) запрос. Защита от Double Decision.
	ErrNoPendingRequest = errors.New("no such pending permission request")

	// ErrUnauthorizedApprover возвращается ДО какого-либо изменения
	// состояния: исходный запрос остается PENDING.
	ErrUnauthorizedApprover = errors.New("approver is not on the designated approver list")

	ErrApprovalTimeout = errors.New("approval request expired without resolution")
)

// Отказы верификации токена. Для диагностики различимы,
// но все означают одно: не исполнять.
var (
	ErrTokenConsumed  = errors.New("token already consumed")
	ErrTokenExpired   = errors.New("token expired")
	ErrParamsMismatch = errors.New("parameters do not match token parameters hash")
	ErrBadSignature   = errors.New("token signature verification failed")
)

// PermissionDeniedError несет полный список нарушений и risk score,
// чтобы вызывающий видел каждую причину отказа, а не первую попавшуюся.
type PermissionDeniedError struct {
	ToolID     string
	AgentID    string
	RiskScore  float64
	Violations []string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied for %s on %s (risk %.2f): %s",
		e.AgentID, e.ToolID, e.RiskScore, strings.Join(e.Violations, "; "))
}

// ApprovalRejectedError — явный отказ оператора.
type ApprovalRejectedError struct {
	RequestID  string
	RejectedBy string
	Reason     string
}

func (e *ApprovalRejectedError) Error() string {
	return fmt.Sprintf("approval request %s rejected by %s: %s", e.RequestID, e.RejectedBy, e.Reason)
}
