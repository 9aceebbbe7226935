package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/spaceai-permission-authority/internal/domain"
	"go.uber.org/zap"
)

// DefaultTokenTTL — фиксированный срок жизни токена, не зависит от политики.
const DefaultTokenTTL = 5 * time.Minute

// TokenService выпускает и проверяет capability-токены.
//
// Ключ подписи инжектируется при конструировании (arena-style: им владеет
// Authority). Если оператор не задал ключ в конфиге, main генерирует
// случайный — тогда токены не переживут рестарт процесса.
type TokenService struct {
	key []byte
	ttl time.Duration

	mu       sync.Mutex
	consumed map[string]struct{}

	logger *zap.Logger
}

func NewTokenService(signingKey []byte, ttl time.Duration, logger *zap.Logger) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		key:      signingKey,
		ttl:      ttl,
		consumed: make(map[string]struct{}),
		logger:   logger.Named("tokens"),
	}
}

// HashParameters считает дайджест канонической сериализации параметров.
// encoding/json сортирует ключи мап при маршалинге, поэтому результат
// детерминирован для любого порядка вставки.
func HashParameters(params map[string]interface{}) (string, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("canonicalize parameters: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Issue выпускает подписанный токен на точные параметры гранта.
// approvedBy == nil означает авто-грант.
func (s *TokenService) Issue(
	toolID, agentID string,
	params map[string]interface{},
	tier domain.PermissionTier,
	trust domain.TrustLevel,
	approvedBy *string,
	reasoning string,
) (*domain.ToolCallToken, error) {
	paramsHash, err := HashParameters(params)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &domain.ToolCallToken{
		TokenID:           uuid.New().String(),
		ToolID:            toolID,
		AgentID:           agentID,
		Parameters:        cloneParams(params),
		ParametersHash:    paramsHash,
		Tier:              tier,
		Trust:             trust,
		ApprovedBy:        approvedBy,
		ApprovalReasoning: reasoning,
		IssuedAt:          now,
		ExpiresAt:         now.Add(s.ttl),
	}
	t.Signature = s.sign(t)

	s.logger.Debug("token issued",
		zap.String("token_id", t.TokenID),
		zap.String("tool_id", toolID),
		zap.String("agent_id", agentID),
		zap.Time("expires_at", t.ExpiresAt),
	)
	return t, nil
}

// Verify проверяет токен против предъявленных параметров. Метод НЕ мутирует
// состояние: токен можно проверить «спекулятивно», не потратив его.
// Потребление — отдельный явный шаг Consume.
func (s *TokenService) Verify(t *domain.ToolCallToken, params map[string]interface{}) error {
	if t == nil {
		return ErrBadSignature
	}

	// 1. Одноразовость (consumption set — источник правды, не t.Used)
	s.mu.Lock()
	_, used := s.consumed[t.TokenID]
	s.mu.Unlock()
	if used {
		return ErrTokenConsumed
	}

	// 2. Срок жизни
	if time.Now().After(t.ExpiresAt) {
		return ErrTokenExpired
	}

	// 3. Привязка к точным параметрам вызова
	presented, err := HashParameters(params)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(presented), []byte(t.ParametersHash)) {
		return ErrParamsMismatch
	}

	// 4. Подпись пересчитывается из полей самого токена: подмена любого
	// поля из MAC-входа ломает проверку
	if !hmac.Equal([]byte(s.sign(t)), []byte(t.Signature)) {
		return ErrBadSignature
	}

	return nil
}

// Consume помечает токен потраченным. Вызывается исполнителем сразу после
// успешного использования.
func (s *TokenService) Consume(tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.consumed[tokenID]; used {
		return ErrTokenConsumed
	}
	s.consumed[tokenID] = struct{}{}
	return nil
}

// sign считает HMAC-SHA256 над упорядоченной конкатенацией полей токена.
// Времена берем в UnixNano: стабильный формат без тонкостей таймзон.
func (s *TokenService) sign(t *domain.ToolCallToken) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(strings.Join([]string{
		t.TokenID,
		t.ToolID,
		t.AgentID,
		t.ParametersHash,
		strconv.FormatInt(t.IssuedAt.UnixNano(), 10),
		strconv.FormatInt(t.ExpiresAt.UnixNano(), 10),
	}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

func cloneParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
