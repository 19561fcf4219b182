package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertAuditEvent records a discrete import event. The payload is marshaled
// to JSON; delivery is fire-and-forget from the importer's point of view.
func (db *DB) InsertAuditEvent(projectID int64, actionType, recordType string, recordID int64, payload map[string]any) (AuditEvent, error) {
	encoded := ""
	if len(payload) > 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			return AuditEvent{}, fmt.Errorf("marshal audit payload: %w", err)
		}
		encoded = string(raw)
	}

	var projID, recID sql.NullInt64
	if projectID != 0 {
		projID = sql.NullInt64{Int64: projectID, Valid: true}
	}
	if recordID != 0 {
		recID = sql.NullInt64{Int64: recordID, Valid: true}
	}

	var out AuditEvent
	err := db.QueryRow(
		`INSERT INTO audit_event (project_id, action_type, record_type, record_id, payload)
		 VALUES (?, ?, ?, ?, ?)
		 RETURNING id, project_id, action_type, record_type, record_id, payload, created_at`,
		projID, actionType, recordType, recID, encoded,
	).Scan(&out.ID, &out.ProjectID, &out.ActionType, &out.RecordType, &out.RecordID, &out.Payload, &out.CreatedAt)
	if err != nil {
		return AuditEvent{}, fmt.Errorf("insert audit event: %w", err)
	}
	return out, nil
}

// ListAuditEvents returns the most recent audit events for a project.
func (db *DB) ListAuditEvents(projectID int64, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT id, project_id, action_type, record_type, record_id, payload, created_at
		   FROM audit_event WHERE project_id = ? ORDER BY id DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.ActionType, &ev.RecordType, &ev.RecordID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
