package db

import (
	"database/sql"
	"fmt"
)

const hostColumns = `id, project_id, subnet_id, ip_address, hostname, status, whois_json, notes, created_at, updated_at`

func scanHost(row *sql.Row) (Host, bool, error) {
	var h Host
	err := row.Scan(&h.ID, &h.ProjectID, &h.SubnetID, &h.IPAddress, &h.Hostname, &h.Status, &h.WhoisJSON, &h.Notes, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Host{}, false, nil
		}
		return Host{}, false, err
	}
	return h, true, nil
}

// InsertHost creates a new host row.
func (db *DB) InsertHost(h Host) (Host, error) {
	var out Host
	err := db.QueryRow(
		`INSERT INTO host (project_id, subnet_id, ip_address, hostname, status, whois_json, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+hostColumns,
		h.ProjectID, h.SubnetID, h.IPAddress, h.Hostname, h.Status, h.WhoisJSON, h.Notes,
	).Scan(&out.ID, &out.ProjectID, &out.SubnetID, &out.IPAddress, &out.Hostname, &out.Status, &out.WhoisJSON, &out.Notes, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Host{}, fmt.Errorf("insert host: %w", err)
	}
	return out, nil
}

// UpdateHost rewrites the mutable columns of an existing host.
func (db *DB) UpdateHost(h Host) (Host, error) {
	var out Host
	err := db.QueryRow(
		`UPDATE host
		    SET subnet_id = ?, ip_address = ?, hostname = ?, status = ?, whois_json = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?
		 RETURNING `+hostColumns,
		h.SubnetID, h.IPAddress, h.Hostname, h.Status, h.WhoisJSON, h.Notes, h.ID,
	).Scan(&out.ID, &out.ProjectID, &out.SubnetID, &out.IPAddress, &out.Hostname, &out.Status, &out.WhoisJSON, &out.Notes, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Host{}, fmt.Errorf("update host: %w", err)
	}
	return out, nil
}

// GetHostByID fetches a host by id.
func (db *DB) GetHostByID(id int64) (Host, bool, error) {
	h, ok, err := scanHost(db.QueryRow(`SELECT `+hostColumns+` FROM host WHERE id = ?`, id))
	if err != nil {
		return Host{}, false, fmt.Errorf("get host by id: %w", err)
	}
	return h, ok, nil
}

// GetHostByIdentity fetches the host matching the full identity key
// (project, ip, hostname). An empty hostname only matches rows with an empty
// hostname, so virtual hosts on a shared IP stay distinct.
func (db *DB) GetHostByIdentity(projectID int64, ip, hostname string) (Host, bool, error) {
	h, ok, err := scanHost(db.QueryRow(
		`SELECT `+hostColumns+` FROM host WHERE project_id = ? AND ip_address = ? AND hostname = ?`,
		projectID, ip, hostname,
	))
	if err != nil {
		return Host{}, false, fmt.Errorf("get host by identity: %w", err)
	}
	return h, ok, nil
}

// GetHostByIP returns the first host with the given IP regardless of
// hostname. Used by hostname-less sources (masscan, whois).
func (db *DB) GetHostByIP(projectID int64, ip string) (Host, bool, error) {
	h, ok, err := scanHost(db.QueryRow(
		`SELECT `+hostColumns+` FROM host WHERE project_id = ? AND ip_address = ? ORDER BY id LIMIT 1`,
		projectID, ip,
	))
	if err != nil {
		return Host{}, false, fmt.Errorf("get host by ip: %w", err)
	}
	return h, ok, nil
}

// GetHostByHostname returns the first host with the given hostname,
// whatever its IP.
func (db *DB) GetHostByHostname(projectID int64, hostname string) (Host, bool, error) {
	h, ok, err := scanHost(db.QueryRow(
		`SELECT `+hostColumns+` FROM host WHERE project_id = ? AND hostname = ? ORDER BY id LIMIT 1`,
		projectID, hostname,
	))
	if err != nil {
		return Host{}, false, fmt.Errorf("get host by hostname: %w", err)
	}
	return h, ok, nil
}

// GetUnresolvedHostByHostname returns the hostname-only host still carrying
// the sentinel IP, if any. These rows are candidates for promotion.
func (db *DB) GetUnresolvedHostByHostname(projectID int64, hostname string) (Host, bool, error) {
	h, ok, err := scanHost(db.QueryRow(
		`SELECT `+hostColumns+` FROM host WHERE project_id = ? AND ip_address = ? AND hostname = ? ORDER BY id LIMIT 1`,
		projectID, SentinelIP, hostname,
	))
	if err != nil {
		return Host{}, false, fmt.Errorf("get unresolved host: %w", err)
	}
	return h, ok, nil
}

// ListHosts returns hosts for a project ordered by ip_address then hostname.
func (db *DB) ListHosts(projectID int64) ([]Host, error) {
	rows, err := db.Query(
		`SELECT `+hostColumns+` FROM host WHERE project_id = ? ORDER BY ip_address, hostname`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var hosts []Host
	for rows.Next() {
		var h Host
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.SubnetID, &h.IPAddress, &h.Hostname, &h.Status, &h.WhoisJSON, &h.Notes, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hosts, nil
}

// DeleteHost removes a host by ID.
func (db *DB) DeleteHost(id int64) error {
	res, err := db.Exec(`DELETE FROM host WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete host: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateHostStatus sets only the status column.
func (db *DB) UpdateHostStatus(id int64, status string) error {
	_, err := db.Exec(`UPDATE host SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update host status: %w", err)
	}
	return nil
}

// UpdateHostNotes updates the notes for a host.
func (db *DB) UpdateHostNotes(id int64, notes string) error {
	_, err := db.Exec(`UPDATE host SET notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("update host notes: %w", err)
	}
	return nil
}
