package domain

import "time"

// ToolCallToken — одноразовое криптографическое доказательство того, что
// конкретный агент может выполнить конкретный инструмент с конкретными
// параметрами. Исполнитель обязан предъявить его перед действием.
type ToolCallToken struct {
	TokenID string `json:"token_id"`
	ToolID  string `json:"tool_id"`
	AgentID string `json:"agent_id"`

	// Parameters — копия параметров, на которые выдано разрешение.
	// ParametersHash — дайджест их канонической сериализации; именно он
	// (а не сами параметры) входит в подпись.
	Parameters     map[string]interface{} `json:"parameters"`
	ParametersHash string                 `json:"parameters_hash"`

	Tier  PermissionTier `json:"permission_tier"`
	Trust TrustLevel     `json:"trust_level"`

	// ApprovedBy == nil означает авто-грант без участия оператора.
	ApprovedBy        *string `json:"approved_by,omitempty"`
	ApprovalReasoning string  `json:"approval_reasoning,omitempty"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Signature string `json:"signature"`

	// Used — информативный флаг. Авторитетное одноразовое состояние живет
	// в consumption set верификатора, а не здесь.
	Used bool `json:"used"`
}
