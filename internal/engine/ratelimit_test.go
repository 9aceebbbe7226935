package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
)

func TestRateLimiterUnlimitedByDefault(t *testing.T) {
	r := NewRateLimiterRegistry()
	p := domain.ToolPolicy{ToolID: "free.tool"}

	for i := 0; i < 1000; i++ {
		assert.True(t, r.Allow(p))
	}
}

func TestRateLimiterBurstExhaustion(t *testing.T) {
	r := NewRateLimiterRegistry()
	// 60 rpm -> burst 10; одиннадцатый мгновенный запрос срезается
	p := domain.ToolPolicy{ToolID: "limited.tool", RateLimit: 60}

	allowed := 0
	for i := 0; i < 20; i++ {
		if r.Allow(p) {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)
}

func TestRateLimiterPerToolIsolation(t *testing.T) {
	r := NewRateLimiterRegistry()
	limited := domain.ToolPolicy{ToolID: "a", RateLimit: 6} // burst 1
	other := domain.ToolPolicy{ToolID: "b", RateLimit: 6}

	assert.True(t, r.Allow(limited))
	assert.False(t, r.Allow(limited))
	assert.True(t, r.Allow(other), "лимитеры на инструмент независимы")
}
