package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"go.uber.org/zap"
)

// DefaultApprovalTimeout — окно ожидания решения оператора.
const DefaultApprovalTimeout = 30 * time.Second

// Resolution — исход ожидания: ровно один на запрос.
type Resolution struct {
	Status     domain.RequestStatus
	ResolvedBy string
	Reasoning  string // обоснование апрува или причина отказа
}

type pendingEntry struct {
	req   *domain.PermissionRequest
	done  chan Resolution // buffered(1): резолвер никогда не блокируется
	timer *time.Timer
}

// ApprovalManager держит транзиентное множество зависших запросов,
// каждый — за отменяемым таймером.
//
// Контракт конкурентности: НЕ БОЛЕЕ ОДНОГО разрешения на запрос.
// Достигается тем, что первый шаг любого пути разрешения (approve,
// reject, timeout) — атомарное изъятие записи из pending-мапы.
// Кто изъял — тот и победил; опоздавшие видят отсутствие записи
// и получают ErrNoPendingRequest.
type ApprovalManager struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry

	timeout       time.Duration
	approverRoles map[string]struct{}

	// onExpired — хук фасада для аудита/событий по таймауту.
	// Вызывается вне мьютекса.
	onExpired func(req domain.PermissionRequest)

	logger *zap.Logger
}

func NewApprovalManager(timeout time.Duration, approverRoles []string, logger *zap.Logger) *ApprovalManager {
	if timeout <= 0 {
		timeout = DefaultApprovalTimeout
	}
	roles := make(map[string]struct{}, len(approverRoles))
	for _, r := range approverRoles {
		roles[r] = struct{}{}
	}
	return &ApprovalManager{
		pending:       make(map[string]*pendingEntry),
		timeout:       timeout,
		approverRoles: roles,
		logger:        logger.Named("approvals"),
	}
}

// SetExpiryHook регистрирует callback на истечение окна ожидания.
func (m *ApprovalManager) SetExpiryHook(f func(req domain.PermissionRequest)) {
	m.onExpired = f
}

// Submit паркует запрос и взводит таймер. Возвращенный канал получит
// ровно одно Resolution: апрув, отказ или истечение.
func (m *ApprovalManager) Submit(req *domain.PermissionRequest) <-chan Resolution {
	entry := &pendingEntry{
		req:  req,
		done: make(chan Resolution, 1),
	}
	entry.timer = time.AfterFunc(m.timeout, func() { m.expire(req.ID) })

	m.mu.Lock()
	m.pending[req.ID] = entry
	m.mu.Unlock()

	m.logger.Info("approval request parked",
		zap.String("request_id", req.ID),
		zap.String("tool_id", req.ToolID),
		zap.String("agent_id", req.AgentID),
		zap.Duration("timeout", m.timeout),
	)
	return entry.done
}

// take атомарно изымает запись — единственная точка, где решается гонка
// approve/reject/timeout.
func (m *ApprovalManager) take(requestID string) (*pendingEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[requestID]
	if ok {
		delete(m.pending, requestID)
	}
	return entry, ok
}

// Approve разрешает запрос от имени оператора.
// Проверка права НА ПЕРВОМ МЕСТЕ и до изъятия записи: неавторизованная
// попытка не трогает состояние, запрос остается PENDING и может быть
// разрешен валидным апрувером или истечь.
func (m *ApprovalManager) Approve(requestID, approverID, approverRole, reasoning string) (domain.PermissionRequest, error) {
	if !m.authorized(approverID, approverRole) {
		m.logger.Warn("unauthorized approval attempt",
			zap.String("request_id", requestID),
			zap.String("approver", approverID),
			zap.String("role", approverRole),
		)
		return domain.PermissionRequest{}, ErrUnauthorizedApprover
	}

	entry, ok := m.take(requestID)
	if !ok {
		return domain.PermissionRequest{}, ErrNoPendingRequest
	}
	entry.timer.Stop() // отменяем таймер, чтобы протухший timeout не стрелял вслед

	if err := entry.req.Resolve(domain.StatusApproved, approverID, ""); err != nil {
		return domain.PermissionRequest{}, err
	}
	entry.done <- Resolution{Status: domain.StatusApproved, ResolvedBy: approverID, Reasoning: reasoning}

	return *entry.req, nil
}

// Reject отклоняет запрос. Право принимать решение проверяется так же,
// как и для Approve.
func (m *ApprovalManager) Reject(requestID, rejectorID, rejectorRole, reason string) (domain.PermissionRequest, error) {
	if !m.authorized(rejectorID, rejectorRole) {
		return domain.PermissionRequest{}, ErrUnauthorizedApprover
	}

	entry, ok := m.take(requestID)
	if !ok {
		return domain.PermissionRequest{}, ErrNoPendingRequest
	}
	entry.timer.Stop()

	if err := entry.req.Resolve(domain.StatusRejected, rejectorID, reason); err != nil {
		return domain.PermissionRequest{}, err
	}
	entry.done <- Resolution{Status: domain.StatusRejected, ResolvedBy: rejectorID, Reasoning: reason}

	return *entry.req, nil
}

// expire — путь таймера. Stop тут бессмыслен (таймер уже сработал),
// достаточно изъять запись: если её нет — победил approve/reject.
func (m *ApprovalManager) expire(requestID string) {
	entry, ok := m.take(requestID)
	if !ok {
		return
	}

	_ = entry.req.Resolve(domain.StatusExpired, "", "")
	entry.done <- Resolution{Status: domain.StatusExpired}

	m.logger.Warn("approval request expired",
		zap.String("request_id", requestID),
		zap.String("tool_id", entry.req.ToolID),
	)
	if m.onExpired != nil {
		m.onExpired(*entry.req)
	}
}

// Cancel снимает запрос, у которого пропал ожидающий вызов (контекст
// вызывающего отменен). Возвращает false, если запись уже разрешена.
func (m *ApprovalManager) Cancel(requestID string) bool {
	entry, ok := m.take(requestID)
	if !ok {
		return false
	}
	entry.timer.Stop()
	_ = entry.req.Resolve(domain.StatusExpired, "", "")
	return true
}

// Pending возвращает снапшот очереди решений, старые сверху.
func (m *ApprovalManager) Pending() []domain.PermissionRequest {
	m.mu.Lock()
	out := make([]domain.PermissionRequest, 0, len(m.pending))
	for _, e := range m.pending {
		out = append(out, *e.req)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

// PendingCount — для gauge-метрики.
func (m *ApprovalManager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// authorized сверяет личность ИЛИ роль с фиксированным allowlist апруверов.
// Список — маленький и статичный (например: operator, admin,
// orchestrator-core), задается в конфиге.
func (m *ApprovalManager) authorized(id, role string) bool {
	if _, ok := m.approverRoles[role]; ok {
		return true
	}
	_, ok := m.approverRoles[id]
	return ok
}
