package engine

import (
	"sync"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"golang.org/x/time/rate"
)

// RateLimiterRegistry держит по одному лимитеру на инструмент с ненулевым
// rate_limit в политике. Это edge-защита поверхности Authority; лимит
// на фактическое исполнение остается обязанностью исполнителя.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow сверяется с лимитом политики. Политики без лимита (или
// отсутствующие — их отобьет фасад) пропускаются всегда.
func (r *RateLimiterRegistry) Allow(p domain.ToolPolicy) bool {
	if p.RateLimit <= 0 {
		return true
	}

	r.mu.Lock()
	lim, ok := r.limiters[p.ToolID]
	if !ok {
		// RateLimit задан в запросах/минуту; burst — небольшой запас
		burst := p.RateLimit / 6
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(float64(p.RateLimit)/60.0), burst)
		r.limiters[p.ToolID] = lim
	}
	r.mu.Unlock()

	return lim.Allow()
}
