package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/xela07ax/spaceai-permission-authority/internal/audit"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// AuditRepo — сток для батчевой записи decision trail.
// Кратковременные сбои БД гасятся ретраями с бэкоффом: терять решения
// из-за моргнувшего соединения непозволительно.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) (*AuditRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open audit db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}, nil
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WriteBatch вставляет пачку событий одним запросом.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_decisions
	const numFields = 7
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7)

		details, _ := json.Marshal(e.Details)
		vals = append(vals,
			e.ID, e.TraceID, e.Action, e.Actor, e.Trust, details, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_decisions (id, trace_id, action, actor, trust_level, details, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	return retry.New(
		retry.Context(ctx),
		retry.Attempts(3),
	).Do(func() error {
		_, err := r.db.ExecContext(ctx, query, vals...)
		return err
	})
}
