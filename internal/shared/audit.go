// Package shared holds cross-module infrastructure: the audit trail that
// ledger postings and period closes write to.
package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Audited entities. Kept as constants so the trail stays queryable by
// entity name.
const (
	EntityJournalEntry = "journal_entry"
	EntityFiscalPeriod = "fiscal_period"
)

// ErrIncompleteAuditLog is returned when a record lacks the fields the
// trail is indexed on.
var ErrIncompleteAuditLog = errors.New("shared: audit log requires action, entity and entity id")

// AuditLog is one row of the audit trail: who did what to which entity,
// with free-form metadata (amounts, references) attached as JSON.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// AuditLogger appends to the audit_logs table. Rows are never updated or
// deleted.
type AuditLogger struct {
	pool *pgxpool.Pool
}

func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record appends one row. A zero At is stamped with the current UTC time.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return ErrIncompleteAuditLog
	}
	if l == nil || l.pool == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	meta := []byte("{}")
	if len(entry.Meta) > 0 {
		var err error
		meta, err = json.Marshal(entry.Meta)
		if err != nil {
			return err
		}
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.Action, entry.Entity, entry.EntityID, meta, entry.At)
	return err
}
