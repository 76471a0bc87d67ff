package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type AuditEntry struct {
	ID          int64          `json:"id"`
	Actor       string         `json:"actor"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entityType"`
	EntityLabel string         `json:"entityLabel"`
	BeforeJSON  sql.NullString `json:"-"`
	AfterJSON   sql.NullString `json:"-"`
	Before      string         `json:"before,omitempty"`
	After       string         `json:"after,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

type auditRecord struct {
	Actor       string
	Action      string
	EntityType  string
	EntityLabel string
	Before      any
	After       any
}

func auditActor(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Actor"))
	if actor == "" {
		actor = c.ClientIP()
	}
	if actor == "" {
		actor = "unknown"
	}
	return actor
}

func writeAudit(db *sql.DB, c *gin.Context, record auditRecord) {
	if strings.TrimSpace(record.Actor) == "" {
		record.Actor = auditActor(c)
	}
	if err := insertAuditRecord(db, record); err != nil {
		log.Printf("audit log error: %v", err)
	}
}

func insertAuditRecord(db *sql.DB, record auditRecord) error {
	before, err := marshalAuditPayload(record.Before)
	if err != nil {
		return err
	}
	after, err := marshalAuditPayload(record.After)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO audit_log(actor, action, entity_type, entity_label, before_json, after_json, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		record.Actor,
		record.Action,
		record.EntityType,
		record.EntityLabel,
		nullStringToAny(before),
		nullStringToAny(after),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func listAuditEntries(db *sql.DB) ([]AuditEntry, error) {
	rows, err := db.Query(`
		SELECT id, actor, action, entity_type, entity_label, before_json, after_json, created_at
		FROM audit_log
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var entry AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Actor,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityLabel,
			&entry.BeforeJSON,
			&entry.AfterJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Before = nullString(entry.BeforeJSON)
		entry.After = nullString(entry.AfterJSON)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func marshalAuditPayload(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullString(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}

func nullStringToAny(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
