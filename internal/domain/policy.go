package domain

// ToolPolicy представляет собой правило доступа для одного инструмента.
// После регистрации политика неизменяема: обновление — это полная замена
// записи под тем же ToolID.
type ToolPolicy struct {
	ToolID        string         `json:"tool_id"`
	Tier          PermissionTier `json:"permission_tier"`
	RequiredTrust TrustLevel     `json:"required_trust_level"`

	// AllowedAgents — allowlist агентов. Пустой список означает
	// «без ограничения по списку», а не «никому нельзя».
	AllowedAgents []string `json:"allowed_agents,omitempty"`

	// RateLimit — запросов в минуту, 0 = без лимита.
	// Само ограничение применяет исполнитель (или edge шлюза), не ядро.
	RateLimit int `json:"rate_limit,omitempty"`

	Description string `json:"description,omitempty"`
}

// AgentAllowed проверяет агента против allowlist политики.
func (p ToolPolicy) AgentAllowed(agentID string) bool {
	if len(p.AllowedAgents) == 0 {
		return true
	}
	for _, a := range p.AllowedAgents {
		if a == agentID {
			return true
		}
	}
	return false
}
