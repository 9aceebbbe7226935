package domain

import "fmt"

// TrustLevel классифицирует происхождение запроса: от системных компонентов
// до заведомо враждебных источников.
type TrustLevel string

const (
	TrustSystem    TrustLevel = "system"
	TrustOperator  TrustLevel = "operator"
	TrustVerified  TrustLevel = "verified"
	TrustStandard  TrustLevel = "standard"
	TrustUntrusted TrustLevel = "untrusted"
	TrustHostile   TrustLevel = "hostile"
)

// PermissionTier классифицирует чувствительность инструмента (tool).
type PermissionTier string

const (
	TierReadOnly         PermissionTier = "READ_ONLY"
	TierWriteSafe        PermissionTier = "WRITE_SAFE"
	TierWriteDestructive PermissionTier = "WRITE_DESTRUCTIVE"
	TierAdmin            PermissionTier = "ADMIN"
)

// riskMultipliers — калибровка множителя риска по уровню доверия.
// Чем ниже доверие, тем сильнее раздувается итоговый risk score.
var riskMultipliers = map[TrustLevel]float64{
	TrustSystem:    0.5,
	TrustOperator:  0.6,
	TrustVerified:  0.75,
	TrustStandard:  1.0,
	TrustUntrusted: 1.5,
	TrustHostile:   2.0,
}

// trustScores — независимая монотонная шкала для проверки порога доверия.
// Это НЕ та же ось, что множитель риска: здесь важен только порядок.
var trustScores = map[TrustLevel]int{
	TrustSystem:    100,
	TrustOperator:  80,
	TrustVerified:  60,
	TrustStandard:  40,
	TrustUntrusted: 20,
	TrustHostile:   0,
}

// baseSeverity — базовая тяжесть операции по уровню чувствительности.
var baseSeverity = map[PermissionTier]float64{
	TierReadOnly:         0.1,
	TierWriteSafe:        0.3,
	TierWriteDestructive: 0.6,
	TierAdmin:            0.9,
}

func (t TrustLevel) Valid() bool {
	_, ok := trustScores[t]
	return ok
}

// RiskMultiplier возвращает множитель риска для расчета risk score.
func (t TrustLevel) RiskMultiplier() float64 {
	return riskMultipliers[t]
}

// Score возвращает сравнимую оценку доверия для порогового контроля.
func (t TrustLevel) Score() int {
	return trustScores[t]
}

func (p PermissionTier) Valid() bool {
	_, ok := baseSeverity[p]
	return ok
}

// BaseSeverity возвращает базовую тяжесть операции данного уровня.
func (p PermissionTier) BaseSeverity() float64 {
	return baseSeverity[p]
}

// NeedsApproval сообщает, требует ли уровень обязательного HITL-подтверждения
// (даже при пройденных проверках доступа).
func (p PermissionTier) NeedsApproval() bool {
	return p == TierWriteDestructive || p == TierAdmin
}

// ParseTrustLevel валидирует строку из конфига или HTTP-запроса.
func ParseTrustLevel(s string) (TrustLevel, error) {
	t := TrustLevel(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown trust level: %q", s)
	}
	return t, nil
}

// ParsePermissionTier валидирует строку из конфига.
func ParsePermissionTier(s string) (PermissionTier, error) {
	p := PermissionTier(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission tier: %q", s)
	}
	return p, nil
}
