package db

import (
	"fmt"
)

const evidenceColumns = `id, project_id, host_id, port_id, filename, caption, mime, size, sha256, stored_path, source, source_file, imported_at, created_at`

// InsertEvidence appends an evidence row. Evidence is never updated or
// replaced by imports; the dedup gate suppresses duplicates up front.
func (db *DB) InsertEvidence(ev Evidence) (Evidence, error) {
	var out Evidence
	err := db.QueryRow(
		`INSERT INTO evidence (project_id, host_id, port_id, filename, caption, mime, size, sha256, stored_path, source, source_file, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+evidenceColumns,
		ev.ProjectID, ev.HostID, ev.PortID, ev.Filename, ev.Caption, ev.MIME, ev.Size, ev.SHA256, ev.StoredPath, ev.Source, ev.SourceFile, ev.ImportedAt,
	).Scan(&out.ID, &out.ProjectID, &out.HostID, &out.PortID, &out.Filename, &out.Caption, &out.MIME, &out.Size, &out.SHA256, &out.StoredPath, &out.Source, &out.SourceFile, &out.ImportedAt, &out.CreatedAt)
	if err != nil {
		return Evidence{}, fmt.Errorf("insert evidence: %w", err)
	}
	return out, nil
}

// HasEvidenceWithHash reports whether a binary evidence row with the same
// content hash from the same source already exists for the port. Rows created
// by hand (empty source) are never considered.
func (db *DB) HasEvidenceWithHash(portID int64, source, sha256 string) (bool, error) {
	if sha256 == "" || source == "" {
		return false, nil
	}
	var n int
	err := db.QueryRow(
		`SELECT COUNT(1) FROM evidence WHERE port_id = ? AND source = ? AND sha256 = ?`,
		portID, source, sha256,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("evidence hash lookup: %w", err)
	}
	return n > 0, nil
}

// HasEvidenceWithCaptionPrefix reports whether a text-only evidence row from
// the same source whose caption starts with the given prefix exists for the
// port. Manual rows (empty source) are invisible to this check.
func (db *DB) HasEvidenceWithCaptionPrefix(portID int64, source, prefix string) (bool, error) {
	if prefix == "" || source == "" {
		return false, nil
	}
	var n int
	err := db.QueryRow(
		`SELECT COUNT(1) FROM evidence
		  WHERE port_id = ? AND source = ? AND stored_path = ''
		    AND caption LIKE ? ESCAPE '\'`,
		portID, source, likePrefix(prefix),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("evidence caption lookup: %w", err)
	}
	return n > 0, nil
}

func likePrefix(prefix string) string {
	escaped := make([]byte, 0, len(prefix)+2)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			escaped = append(escaped, '\\')
		}
		escaped = append(escaped, c)
	}
	return string(escaped) + "%"
}

// ListEvidenceForPort returns evidence rows for a port, oldest first.
func (db *DB) ListEvidenceForPort(portID int64) ([]Evidence, error) {
	return db.listEvidence(`SELECT `+evidenceColumns+` FROM evidence WHERE port_id = ? ORDER BY id`, portID)
}

// ListEvidenceForHost returns evidence rows for a host, oldest first.
func (db *DB) ListEvidenceForHost(hostID int64) ([]Evidence, error) {
	return db.listEvidence(`SELECT `+evidenceColumns+` FROM evidence WHERE host_id = ? ORDER BY id`, hostID)
}

func (db *DB) listEvidence(query string, arg int64) ([]Evidence, error) {
	rows, err := db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var items []Evidence
	for rows.Next() {
		var ev Evidence
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.HostID, &ev.PortID, &ev.Filename, &ev.Caption, &ev.MIME, &ev.Size, &ev.SHA256, &ev.StoredPath, &ev.Source, &ev.SourceFile, &ev.ImportedAt, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
