package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-permission-authority/internal/audit"
	"github.com/xela07ax/spaceai-permission-authority/internal/engine"
	"github.com/xela07ax/spaceai-permission-authority/internal/infra"
	infraauth "github.com/xela07ax/spaceai-permission-authority/internal/infra/auth"
	"github.com/xela07ax/spaceai-permission-authority/internal/notify"
	"github.com/xela07ax/spaceai-permission-authority/internal/policy"
	"github.com/xela07ax/spaceai-permission-authority/internal/repository/postgres"
	"github.com/xela07ax/spaceai-permission-authority/internal/risk"
	"github.com/xela07ax/spaceai-permission-authority/internal/server"
)

func main() {
	// 1. Конфиг и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура: Redis (шина событий + входящие решения)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 3. Сток аудита: Postgres или (без БД) прямая запись в лог
	var auditStorage audit.StorageInterface
	var authService *server.AuthService
	if cfg.Database.URL != "" {
		auditRepo, err := postgres.NewAuditRepo(cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to open audit storage", zap.Error(err))
		}
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := auditRepo.Ping(pingCtx); err != nil {
			logger.Fatal("audit database unreachable", zap.Error(err))
		}
		pingCancel()
		auditStorage = auditRepo

		// Пул для операторов консоли (логин)
		repo, err := postgres.NewRepo(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			logger.Fatal("failed to connect postgres pool", zap.Error(err))
		}
		defer repo.Close()

		privKey, err := infraauth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
		if err != nil {
			logger.Warn("operator login disabled: no private key", zap.Error(err))
		} else {
			authService = server.NewAuthService(repo, privKey, cfg.Auth.TokenTTL)
		}
	} else {
		logger.Warn("no database configured: audit goes to log, operator login disabled")
		auditStorage = &audit.ZapStorage{Logger: logger.Named("audit")}
	}

	// 4. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	trail := audit.NewTrail(
		auditStorage,
		cfg.Authority.AuditBufferSize,
		cfg.Authority.AuditBatchSize,
		cfg.Authority.AuditFlushInterval,
		logger,
	)
	trail.SetFillGauge(metrics.AuditBufferFill)
	trail.Start()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := ":" + strconv.Itoa(cfg.Server.MetricsPort)
		logger.Info("metrics endpoint started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 5. Ключ подписи capability-токенов: из конфига или эфемерный
	signingKey, err := resolveSigningKey(cfg.Authority.SigningKey, logger)
	if err != nil {
		logger.Fatal("invalid signing key", zap.Error(err))
	}

	// 6. Контентный слой: словарь угроз для сканирования параметров.
	// Невалидный словарь фатален, как и невалидные политики; отсутствие
	// файла в конфиге — осознанное отключение слоя.
	var sanitizer *risk.Sanitizer
	if cfg.Authority.ThreatPatternFile != "" {
		doc, s, err := risk.LoadPatternFile(cfg.Authority.ThreatPatternFile)
		if err != nil {
			logger.Fatal("failed to load threat patterns", zap.Error(err))
		}
		sanitizer = s
		logger.Info("threat dictionary loaded",
			zap.String("version", doc.Version),
			zap.Int("patterns", len(doc.Patterns)),
		)
	} else {
		logger.Warn("authority.threat_pattern_file not set: parameter content scanning disabled")
	}

	// 7. Сборка ядра
	registry := policy.NewRegistry(logger)
	checker := risk.NewChecker(sanitizer)
	tokens := engine.NewTokenService(signingKey, cfg.Authority.TokenTTL, logger)
	approvals := engine.NewApprovalManager(cfg.Authority.ApprovalTimeout, cfg.Authority.ApproverRoles, logger)
	bus := notify.NewRedisBus(rdb, infra.RedisChanDecisions, logger)

	authority := engine.NewAuthority(registry, checker, approvals, tokens, trail, bus, metrics, logger)

	// 8. Загрузка политик: всё или ничего
	if err := authority.LoadPolicies(appCtx, cfg.Authority.PolicyFile); err != nil {
		logger.Fatal("failed to load policy configuration", zap.Error(err))
	}

	// 9. Входящие решения операторов по Pub/Sub (внешние консоли)
	listener := engine.NewDecisionListener(authority, rdb, infra.RedisChanApprovalDecisions, logger)
	go listener.Listen(appCtx)

	// 10. HTTP-поверхность
	pubKey, err := infraauth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key required for the decision perimeter", zap.Error(err))
	}
	validator := infraauth.NewBaseValidator(pubKey)

	limits := engine.NewRateLimiterRegistry()
	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      server.NewServer(authority, limits, validator, authService, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // должен вмещать окно ожидания approval
	}

	go func() {
		logger.Info("permission authority started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 11. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("permission authority stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel()      // останавливаем слушателей
	trail.Stop()  // финальный flush аудита — последним
	logger.Info("permission authority exited properly")
}

// resolveSigningKey декодирует hex-ключ из конфига; при пустом значении
// генерирует случайный на время жизни процесса.
func resolveSigningKey(hexKey string, logger *zap.Logger) ([]byte, error) {
	if hexKey != "" {
		return hex.DecodeString(hexKey)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	logger.Warn("authority.signing_key not set: generated ephemeral key, issued tokens will not survive restart")
	return key, nil
}
