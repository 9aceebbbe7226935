package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DecisionMessage — формат решения оператора, приходящего по Pub/Sub.
// Внешние консоли (approval-промпты, дашборды) публикуют его, реагируя
// на событие approval_required.
type DecisionMessage struct {
	RequestID    string `json:"request_id"`
	Approved     bool   `json:"approved"`
	ReviewerID   string `json:"reviewer_id"`
	ReviewerRole string `json:"reviewer_role"`
	Comment      string `json:"comment"`
}

// DecisionListener — «живучая» подписка на канал решений Redis.
// Обрабатывает переподключения и разбор сообщений; позволяет держать
// human-approval UI вне процесса Authority.
type DecisionListener struct {
	authority *Authority
	rdb       *redis.Client
	channel   string
	logger    *zap.Logger
}

func NewDecisionListener(a *Authority, rdb *redis.Client, channel string, logger *zap.Logger) *DecisionListener {
	return &DecisionListener{
		authority: a,
		rdb:       rdb,
		channel:   channel,
		logger:    logger.Named("decision-listener"),
	}
}

// Listen крутит цикл подписки до отмены контекста.
func (l *DecisionListener) Listen(ctx context.Context) {
	for {
		pubsub := l.rdb.Subscribe(ctx, l.channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("failed to subscribe", zap.String("chan", l.channel), zap.Error(err))
			time.Sleep(5 * time.Second)
			continue
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}
				l.handle(ctx, msg.Payload)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}

func (l *DecisionListener) handle(ctx context.Context, payload string) {
	var msg DecisionMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		l.logger.Error("invalid decision message", zap.String("payload", payload), zap.Error(err))
		return
	}

	var err error
	if msg.Approved {
		err = l.authority.Approve(ctx, msg.RequestID, msg.ReviewerID, msg.ReviewerRole, msg.Comment)
	} else {
		err = l.authority.Reject(ctx, msg.RequestID, msg.ReviewerID, msg.ReviewerRole, msg.Comment)
	}

	if err != nil {
		// Опоздавшее или неавторизованное решение — штатная ситуация,
		// запрос мог истечь или быть разрешен через HTTP
		if errors.Is(err, ErrNoPendingRequest) || errors.Is(err, ErrUnauthorizedApprover) {
			l.logger.Warn("decision not applied",
				zap.String("request_id", msg.RequestID),
				zap.String("reviewer", msg.ReviewerID),
				zap.Error(err),
			)
			return
		}
		l.logger.Error("failed to apply decision", zap.String("request_id", msg.RequestID), zap.Error(err))
	}
}
