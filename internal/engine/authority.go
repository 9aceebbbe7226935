package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-permission-authority/internal/audit"
	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"github.com/xela07ax/spaceai-permission-authority/internal/notify"
	"github.com/xela07ax/spaceai-permission-authority/internal/policy"
	"github.com/xela07ax/spaceai-permission-authority/internal/risk"
	"go.uber.org/zap"
)

// Authority — фасад ядра: единственная точка, которая решает, может ли
// агент выполнить чувствительную операцию, и выдает криптографическое
// доказательство решения.
//
// Оркестрирует реестр политик, проверку доступа, HITL-воркфлоу и выпуск
// токенов; на каждую точку решения — одна запись аудита и одно событие.
type Authority struct {
	registry  *policy.Registry
	checker   *risk.Checker
	approvals *ApprovalManager
	tokens    *TokenService
	auditor   audit.Auditor
	bus       notify.Bus
	metrics   *Metrics
	logger    *zap.Logger
}

func NewAuthority(
	registry *policy.Registry,
	checker *risk.Checker,
	approvals *ApprovalManager,
	tokens *TokenService,
	auditor audit.Auditor,
	bus notify.Bus,
	metrics *Metrics,
	logger *zap.Logger,
) *Authority {
	a := &Authority{
		registry:  registry,
		checker:   checker,
		approvals: approvals,
		tokens:    tokens,
		auditor:   auditor,
		bus:       bus,
		metrics:   metrics,
		logger:    logger.Named("authority"),
	}

	// Таймаут — третий путь разрешения; аудит по нему идет из хука,
	// потому что ждущий вызов мог уже отвалиться по своему контексту.
	approvals.SetExpiryHook(func(req domain.PermissionRequest) {
		a.emit(context.Background(), audit.ActionExpired, req.AgentID, req.Trust, map[string]interface{}{
			"request_id": req.ID,
			"tool_id":    req.ToolID,
			"reason":     "approval window elapsed",
		})
		a.metrics.PendingApprovals.Set(float64(approvals.PendingCount()))
	})

	return a
}

// RegisterPolicy вставляет/заменяет политику и фиксирует факт в аудите.
func (a *Authority) RegisterPolicy(ctx context.Context, p domain.ToolPolicy) error {
	if err := a.registry.Register(p); err != nil {
		return err
	}
	a.emit(ctx, audit.ActionPolicyRegistered, "config-loader", "", map[string]interface{}{
		"tool_id":        p.ToolID,
		"tier":           string(p.Tier),
		"required_trust": string(p.RequiredTrust),
		"allowed_agents": len(p.AllowedAgents),
	})
	return nil
}

// LoadPolicies читает документ с политиками и регистрирует весь набор.
// Валидация — всё или ничего: ни одна запись не регистрируется, если
// документ содержит хотя бы одну невалидную.
func (a *Authority) LoadPolicies(ctx context.Context, path string) error {
	doc, policies, err := policy.LoadFile(path)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := a.RegisterPolicy(ctx, p); err != nil {
			return err
		}
	}
	a.emit(ctx, audit.ActionConfigLoaded, "config-loader", "", map[string]interface{}{
		"version":  doc.Version,
		"policies": len(policies),
		"path":     path,
	})
	a.logger.Info("policy configuration loaded",
		zap.String("version", doc.Version),
		zap.Int("policies", len(policies)),
	)
	return nil
}

// RequestPermission — главный вход: (tool, agent, параметры, доверие) ->
// токен или терминальный отказ. Для tier'ов с обязательным подтверждением
// вызов подвисает до решения оператора, отказа или таймаута; чужие
// запросы при этом не блокируются.
func (a *Authority) RequestPermission(
	ctx context.Context,
	toolID, agentID string,
	params map[string]interface{},
	trust domain.TrustLevel,
) (tok *domain.ToolCallToken, err error) {
	start := time.Now()
	outcome := "denied"
	defer func() {
		a.metrics.RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	// 1. Политика обязана существовать
	pol, ok := a.registry.Get(toolID)
	if !ok {
		outcome = "not_found"
		a.emit(ctx, audit.ActionDenied, agentID, trust, map[string]interface{}{
			"tool_id": toolID,
			"reason":  "policy_not_found",
		})
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, toolID)
	}

	// 2. Послойная проверка (без short-circuit: все нарушения сразу)
	dec := a.checker.Check(agentID, trust, pol, params)
	checkedDetails := map[string]interface{}{
		"tool_id":           toolID,
		"risk_score":        dec.RiskScore,
		"allowed":           dec.Allowed,
		"requires_approval": dec.RequiresApproval,
		"violations":        dec.Violations,
	}
	if len(dec.Threats) > 0 {
		checkedDetails["threats"] = threatCategories(dec.Threats)
	}
	a.emit(ctx, audit.ActionChecked, agentID, trust, checkedDetails)

	if !dec.Allowed {
		a.emit(ctx, audit.ActionDenied, agentID, trust, map[string]interface{}{
			"tool_id":    toolID,
			"risk_score": dec.RiskScore,
			"violations": dec.Violations,
		})
		return nil, &PermissionDeniedError{
			ToolID:     toolID,
			AgentID:    agentID,
			RiskScore:  dec.RiskScore,
			Violations: dec.Violations,
		}
	}

	// 3. Авто-грант для безопасных tier'ов
	if !dec.RequiresApproval {
		tok, err = a.grant(ctx, pol, agentID, params, trust, nil, dec.Reason)
		if err != nil {
			return nil, err
		}
		outcome = "granted"
		return tok, nil
	}

	// 4. HITL: паркуем запрос за таймером и подвисаем до исхода
	req := &domain.PermissionRequest{
		ID:          uuid.New().String(),
		ToolID:      toolID,
		AgentID:     agentID,
		Parameters:  params,
		Trust:       trust,
		RequestedAt: time.Now(),
		Status:      domain.StatusPending,
	}
	done := a.approvals.Submit(req)
	a.metrics.PendingApprovals.Set(float64(a.approvals.PendingCount()))

	a.emit(ctx, audit.ActionApprovalRequired, agentID, trust, map[string]interface{}{
		"request_id": req.ID,
		"tool_id":    toolID,
		"risk_score": dec.RiskScore,
		"reason":     dec.Reason,
	})

	select {
	case res := <-done:
		tok, err = a.finishResolved(ctx, pol, req, res, params, trust)
	case <-ctx.Done():
		if a.approvals.Cancel(req.ID) {
			a.emit(ctx, audit.ActionExpired, agentID, trust, map[string]interface{}{
				"request_id": req.ID,
				"tool_id":    toolID,
				"reason":     "caller context cancelled",
			})
			a.metrics.PendingApprovals.Set(float64(a.approvals.PendingCount()))
			outcome = "cancelled"
			return nil, ctx.Err()
		}
		// Запись уже изъял резолвер — дочитываем его исход (канал buffered)
		tok, err = a.finishResolved(ctx, pol, req, <-done, params, trust)
	}

	a.metrics.PendingApprovals.Set(float64(a.approvals.PendingCount()))
	if err == nil {
		outcome = "granted"
	} else if errors.Is(err, ErrApprovalTimeout) {
		outcome = "expired"
	} else {
		outcome = "rejected"
	}
	return tok, err
}

// finishResolved превращает исход ожидания в токен или терминальную ошибку.
func (a *Authority) finishResolved(
	ctx context.Context,
	pol domain.ToolPolicy,
	req *domain.PermissionRequest,
	res Resolution,
	params map[string]interface{},
	trust domain.TrustLevel,
) (*domain.ToolCallToken, error) {
	switch res.Status {
	case domain.StatusApproved:
		approver := res.ResolvedBy
		return a.grant(ctx, pol, req.AgentID, params, trust, &approver, res.Reasoning)
	case domain.StatusRejected:
		return nil, &ApprovalRejectedError{
			RequestID:  req.ID,
			RejectedBy: res.ResolvedBy,
			Reason:     res.Reasoning,
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrApprovalTimeout, req.ID)
	}
}

// grant выпускает токен и фиксирует грант.
func (a *Authority) grant(
	ctx context.Context,
	pol domain.ToolPolicy,
	agentID string,
	params map[string]interface{},
	trust domain.TrustLevel,
	approvedBy *string,
	reasoning string,
) (*domain.ToolCallToken, error) {
	tok, err := a.tokens.Issue(pol.ToolID, agentID, params, pol.Tier, trust, approvedBy, reasoning)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{
		"token_id":   tok.TokenID,
		"tool_id":    pol.ToolID,
		"expires_at": tok.ExpiresAt,
	}
	if approvedBy != nil {
		details["approved_by"] = *approvedBy
	} else {
		details["auto_granted"] = true
	}
	a.emit(ctx, audit.ActionGranted, agentID, trust, details)
	return tok, nil
}

// Approve — вход для оператора или делегированного высокодоверенного
// агента. Право проверяется до изменения состояния.
func (a *Authority) Approve(ctx context.Context, requestID, approverID, approverRole, reasoning string) error {
	req, err := a.approvals.Approve(requestID, approverID, approverRole, reasoning)
	if err != nil {
		return err
	}
	a.emit(ctx, audit.ActionApproved, approverID, req.Trust, map[string]interface{}{
		"request_id": requestID,
		"tool_id":    req.ToolID,
		"agent_id":   req.AgentID,
		"reasoning":  reasoning,
	})
	return nil
}

// Reject — явный отказ; ждущий вызов получает причину.
func (a *Authority) Reject(ctx context.Context, requestID, rejectorID, rejectorRole, reason string) error {
	req, err := a.approvals.Reject(requestID, rejectorID, rejectorRole, reason)
	if err != nil {
		return err
	}
	a.emit(ctx, audit.ActionRejected, rejectorID, req.Trust, map[string]interface{}{
		"request_id": requestID,
		"tool_id":    req.ToolID,
		"agent_id":   req.AgentID,
		"reason":     reason,
	})
	return nil
}

// PendingApprovals — очередь решений для консоли.
func (a *Authority) PendingApprovals() []domain.PermissionRequest {
	return a.approvals.Pending()
}

// ListPolicies — снапшот реестра для консоли.
func (a *Authority) ListPolicies() []domain.ToolPolicy {
	return a.registry.List()
}

// GetPolicy отдает политику инструмента (для edge-ограничителей и консоли).
func (a *Authority) GetPolicy(toolID string) (domain.ToolPolicy, bool) {
	return a.registry.Get(toolID)
}

// VerifyToken — проверка исполнителем непосредственно перед действием.
// Не тратит токен.
func (a *Authority) VerifyToken(token *domain.ToolCallToken, params map[string]interface{}) error {
	err := a.tokens.Verify(token, params)
	a.metrics.TokenVerifications.WithLabelValues(verifyResultLabel(err)).Inc()
	if err != nil {
		a.logger.Warn("token verification failed",
			zap.String("token_id", tokenID(token)),
			zap.Error(err),
		)
	}
	return err
}

// MarkTokenUsed — явное потребление токена после успешного использования.
func (a *Authority) MarkTokenUsed(tokenID string) error {
	return a.tokens.Consume(tokenID)
}

// emit — одна точка решения: одна запись аудита + одно событие + счетчик.
// Оба стока fire-and-forget.
func (a *Authority) emit(ctx context.Context, action, actor string, trust domain.TrustLevel, details map[string]interface{}) {
	traceID := TraceIDFromContext(ctx)

	a.auditor.Log(audit.DecisionEvent{
		ID:      uuid.New().String(),
		TraceID: traceID,
		Action:  action,
		Actor:   actor,
		Trust:   string(trust),
		Details: details,
	})
	a.bus.Publish(ctx, notify.Event{
		Action:  action,
		TraceID: traceID,
		Actor:   actor,
		Trust:   string(trust),
		Details: details,
	})
	a.metrics.DecisionsTotal.WithLabelValues(action).Inc()
}

func verifyResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTokenConsumed):
		return "consumed"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrParamsMismatch):
		return "mismatch"
	default:
		return "bad_signature"
	}
}

func tokenID(t *domain.ToolCallToken) string {
	if t == nil {
		return ""
	}
	return t.TokenID
}

func threatCategories(threats []risk.ThreatPattern) []string {
	out := make([]string, 0, len(threats))
	for _, t := range threats {
		out = append(out, t.Category)
	}
	return out
}
