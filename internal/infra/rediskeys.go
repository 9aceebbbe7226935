package infra

// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
const RedisNamespace = "authority"

// Каналы Pub/Sub (события)
const (
	// RedisChanDecisions — трансляция всех точек решения фасада
	// (checked, denied, approval_required, granted, approved, rejected, expired).
	RedisChanDecisions = RedisNamespace + ":decisions"

	// RedisChanApprovalDecisions — входящий канал решений оператора (HITL):
	// внешние консоли публикуют сюда approve/reject по request_id.
	RedisChanApprovalDecisions = RedisNamespace + ":approvals:decide"
)
