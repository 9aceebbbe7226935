package audit

/*
Файл trail.go реализует асинхронный сборщик записей аудита (Decision Trail).

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят из Hot Path фасада через буферизованный
  канал; задержки хранилища не влияют на время принятия решения.
- Batching: накопление в памяти и пакетная запись по таймеру или при
  достижении лимита пачки.
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается, воркер
  вычитывает остатки и делает финальный flush — записи не теряются при
  штатной перезагрузке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются записи.
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []DecisionEvent) error
}

type Auditor interface {
	Log(event DecisionEvent)
}

type Trail struct {
	ch     chan DecisionEvent
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// fill — gauge заполненности буфера (backpressure наблюдаемость)
	fill prometheus.Gauge

	// Защита от Log после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewTrail(repo StorageInterface, bufferSize, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan DecisionEvent, bufferSize),
		repo:          repo,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger.With(zap.String("mod", "audit-trail")),
	}
}

// SetFillGauge подключает метрику заполненности буфера.
// Вызывать до Start.
func (t *Trail) SetFillGauge(g prometheus.Gauge) {
	t.fill = g
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — только через закрытие канала
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event DecisionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("action", event.Action))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит хотя бы в лог
	select {
	case t.ch <- event:
		t.trackFill()
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("action", event.Action),
			zap.String("actor", event.Actor),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]DecisionEvent, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст на этом этапе может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
		t.trackFill()
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остатки, финальный flush, выходим
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (t *Trail) trackFill() {
	if t.fill != nil {
		t.fill.Set(float64(len(t.ch)))
	}
}

// ZapStorage — сток-заглушка: пишет записи прямо в логгер.
// Используется в тестах и при запуске без Postgres.
type ZapStorage struct {
	Logger *zap.Logger
}

func (s *ZapStorage) WriteBatch(_ context.Context, events []DecisionEvent) error {
	for _, e := range events {
		s.Logger.Info("audit",
			zap.String("action", e.Action),
			zap.String("actor", e.Actor),
			zap.String("trace_id", e.TraceID),
			zap.Any("details", e.Details),
		)
	}
	return nil
}
