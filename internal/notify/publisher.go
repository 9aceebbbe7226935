package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Event — одно уведомление на точку решения. Имена действий совпадают
// с действиями аудита, чтобы наблюдатели (дашборды, approval-промпты)
// могли реагировать единообразно.
type Event struct {
	Action    string                 `json:"action"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Actor     string                 `json:"actor"`
	Trust     string                 `json:"trust_level,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Bus — контракт фасада с шиной уведомлений. Fire-and-forget:
// корректность Authority не зависит от доставки.
type Bus interface {
	Publish(ctx context.Context, e Event)
}

// RedisBus транслирует события в Pub/Sub канал. Вызовы обернуты
// в Circuit Breaker: лежащий Redis не должен тормозить Hot Path.
type RedisBus struct {
	rdb     *redis.Client
	channel string
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewRedisBus(rdb *redis.Client, channel string, logger *zap.Logger) *RedisBus {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-bus",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		cb:      cb,
		logger:  logger.Named("notify"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}

	_, err = b.cb.Execute(func() (interface{}, error) {
		pubCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return nil, b.rdb.Publish(pubCtx, b.channel, payload).Err()
	})
	if err != nil {
		// Потеря уведомления допустима, потеря решения — нет
		b.logger.Warn("notification dropped",
			zap.String("action", e.Action),
			zap.Error(err),
		)
	}
}

// NopBus — заглушка для тестов и запуска без Redis.
type NopBus struct{}

func (NopBus) Publish(context.Context, Event) {}
