package audit

import "time"

// Действия — по одной записи на каждую точку принятия решения.
const (
	ActionPolicyRegistered = "policy_registered"
	ActionConfigLoaded     = "config_loaded"
	ActionChecked          = "checked"
	ActionDenied           = "denied"
	ActionApprovalRequired = "approval_required"
	ActionGranted          = "granted"
	ActionApproved         = "approved"
	ActionRejected         = "rejected"
	ActionExpired          = "expired"
)

// DecisionEvent — структурированная запись аудита.
// Authority относится к стоку как к fire-and-forget: его корректность
// не зависит от успеха записи.
type DecisionEvent struct {
	ID      string `json:"id"`       // UUID события
	TraceID string `json:"trace_id"` // Сквозной ID запроса
	Action  string `json:"action"`   // Что за точка решения
	Actor   string `json:"actor"`    // Кто инициировал (agent_id или оператор)
	Trust   string `json:"trust_level,omitempty"`

	// Детали: ids, причины, risk score — произвольная полезная нагрузка
	Details map[string]interface{} `json:"details,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
