package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in document_audit. One entry is
// appended per document transition; the log is never truncated.
type AuditLog struct {
	DocumentID int64
	ActorID    int64
	ActorName  string
	FromState  string
	ToState    string
	Meta       map[string]any
	At         time.Time
}

// AuditLogger writes records into document_audit.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.DocumentID == 0 || log.ToState == "" {
		return errors.New("audit log requires document_id/to_state")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO document_audit (document_id, actor_id, actor_name, from_state, to_state, meta, at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.DocumentID, log.ActorID, log.ActorName, log.FromState, log.ToState, metaJSON, log.At)
	return err
}

// List returns the audit trail for one document in append order.
func (l *AuditLogger) List(ctx context.Context, documentID int64) ([]AuditLog, error) {
	if l == nil {
		return nil, errors.New("audit logger not initialised")
	}
	rows, err := l.pool.Query(ctx, `SELECT document_id, actor_id, actor_name, from_state, to_state, meta, at
FROM document_audit WHERE document_id=$1 ORDER BY at ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var metaJSON []byte
		if err := rows.Scan(&entry.DocumentID, &entry.ActorID, &entry.ActorName, &entry.FromState, &entry.ToState, &metaJSON, &entry.At); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &entry.Meta)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
