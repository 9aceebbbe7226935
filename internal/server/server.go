package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/spaceai-permission-authority/internal/engine"
	"github.com/xela07ax/spaceai-permission-authority/internal/infra/auth"
	"go.uber.org/zap"
)

// Server — HTTP-поверхность Authority: вход для агентов (request),
// консоль решений (approvals) и executor-сторона (verify/consume).
type Server struct {
	router *chi.Mux
	logger *zap.Logger

	authority *engine.Authority
	limits    *engine.RateLimiterRegistry

	// authValidator защищает периметр решений (RS256).
	// authService может быть nil — тогда логин недоступен, а решения
	// приходят только через Redis-канал.
	authValidator auth.TokenValidator
	authService   *AuthService
}

func NewServer(
	authority *engine.Authority,
	limits *engine.RateLimiterRegistry,
	authValidator auth.TokenValidator,
	authService *AuthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		logger:        logger.Named("http"),
		authority:     authority,
		limits:        limits,
		authValidator: authValidator,
		authService:   authService,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TracingMiddleware)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.handleLogin)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Вход агентов и executor-сторона. Аутентификация агентов —
		// забота внешнего шлюза; ядро опирается на trust_level запроса.
		r.Post("/v1/permissions/request", s.handleRequestPermission)
		r.Post("/v1/tokens/verify", s.handleVerifyToken)
		r.Post("/v1/tokens/consume", s.handleConsumeToken)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (решения операторов, RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Get("/v1/policies", s.handleListPolicies)

		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.handlePendingApprovals) // Очередь запросов на решение
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/approve", s.handleApprove)
				r.Post("/reject", s.handleReject)
			})
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
