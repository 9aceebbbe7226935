package policy

import (
	"errors"
	"sort"
	"sync"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"go.uber.org/zap"
)

var ErrEmptyToolID = errors.New("policy: tool_id must not be empty")

// Registry — in-memory реестр политик. Наполняется один раз при старте
// (конфиг-лоадером через фасад), дальше почти только чтение — Hot Path
// авторизации работает исключительно с RAM.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]domain.ToolPolicy
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		policies: make(map[string]domain.ToolPolicy),
		logger:   logger.Named("policy-registry"),
	}
}

// Register вставляет или целиком заменяет политику по ToolID.
// Семантическую валидность (tier/trust) обязан обеспечить вызывающий —
// здесь проверяется только непустой ключ.
func (r *Registry) Register(p domain.ToolPolicy) error {
	if p.ToolID == "" {
		return ErrEmptyToolID
	}

	r.mu.Lock()
	_, replaced := r.policies[p.ToolID]
	r.policies[p.ToolID] = p
	r.mu.Unlock()

	r.logger.Info("policy registered",
		zap.String("tool_id", p.ToolID),
		zap.String("tier", string(p.Tier)),
		zap.Bool("replaced", replaced),
	)
	return nil
}

// Get возвращает политику и флаг наличия.
func (r *Registry) Get(toolID string) (domain.ToolPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[toolID]
	return p, ok
}

// List возвращает снапшот всех политик, отсортированный по ToolID
// для стабильного вывода в API.
func (r *Registry) List() []domain.ToolPolicy {
	r.mu.RLock()
	out := make([]domain.ToolPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}
