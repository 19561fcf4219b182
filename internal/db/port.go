package db

import (
	"database/sql"
	"fmt"
)

const portColumns = `id, host_id, port_number, protocol, state, service_name, service_version, banner, discovered_by, scan_metadata, scanned_at, notes, created_at, updated_at`

// InsertPort creates a new port row. The caller handles UNIQUE violations on
// (host_id, port_number, protocol) by re-reading and merging.
func (db *DB) InsertPort(p Port) (Port, error) {
	var out Port
	err := db.QueryRow(
		`INSERT INTO port (host_id, port_number, protocol, state, service_name, service_version, banner, discovered_by, scan_metadata, scanned_at, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+portColumns,
		p.HostID, p.PortNumber, p.Protocol, p.State, p.ServiceName, p.ServiceVersion, p.Banner, p.DiscoveredBy, p.ScanMetadata, p.ScannedAt, p.Notes,
	).Scan(&out.ID, &out.HostID, &out.PortNumber, &out.Protocol, &out.State, &out.ServiceName, &out.ServiceVersion, &out.Banner, &out.DiscoveredBy, &out.ScanMetadata, &out.ScannedAt, &out.Notes, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Port{}, fmt.Errorf("insert port: %w", err)
	}
	return out, nil
}

// UpdatePort rewrites the mutable columns of an existing port.
func (db *DB) UpdatePort(p Port) (Port, error) {
	var out Port
	err := db.QueryRow(
		`UPDATE port
		    SET state = ?, service_name = ?, service_version = ?, banner = ?, discovered_by = ?, scan_metadata = ?, scanned_at = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		  WHERE id = ?
		 RETURNING `+portColumns,
		p.State, p.ServiceName, p.ServiceVersion, p.Banner, p.DiscoveredBy, p.ScanMetadata, p.ScannedAt, p.Notes, p.ID,
	).Scan(&out.ID, &out.HostID, &out.PortNumber, &out.Protocol, &out.State, &out.ServiceName, &out.ServiceVersion, &out.Banner, &out.DiscoveredBy, &out.ScanMetadata, &out.ScannedAt, &out.Notes, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Port{}, fmt.Errorf("update port: %w", err)
	}
	return out, nil
}

// GetPortByKey fetches a port by host/number/protocol.
func (db *DB) GetPortByKey(hostID int64, portNumber int, protocol string) (Port, bool, error) {
	var p Port
	err := db.QueryRow(
		`SELECT `+portColumns+` FROM port WHERE host_id = ? AND port_number = ? AND protocol = ?`,
		hostID, portNumber, protocol,
	).Scan(&p.ID, &p.HostID, &p.PortNumber, &p.Protocol, &p.State, &p.ServiceName, &p.ServiceVersion, &p.Banner, &p.DiscoveredBy, &p.ScanMetadata, &p.ScannedAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Port{}, false, nil
		}
		return Port{}, false, fmt.Errorf("get port: %w", err)
	}
	return p, true, nil
}

// GetPortByID fetches a port by ID.
func (db *DB) GetPortByID(id int64) (Port, bool, error) {
	var p Port
	err := db.QueryRow(
		`SELECT `+portColumns+` FROM port WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.HostID, &p.PortNumber, &p.Protocol, &p.State, &p.ServiceName, &p.ServiceVersion, &p.Banner, &p.DiscoveredBy, &p.ScanMetadata, &p.ScannedAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Port{}, false, nil
		}
		return Port{}, false, fmt.Errorf("get port by id: %w", err)
	}
	return p, true, nil
}

// ListPorts returns ports for a host ordered by port_number then protocol.
func (db *DB) ListPorts(hostID int64) ([]Port, error) {
	rows, err := db.Query(
		`SELECT `+portColumns+` FROM port WHERE host_id = ? ORDER BY port_number, protocol`,
		hostID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	defer rows.Close()

	var ports []Port
	for rows.Next() {
		var p Port
		if err := rows.Scan(&p.ID, &p.HostID, &p.PortNumber, &p.Protocol, &p.State, &p.ServiceName, &p.ServiceVersion, &p.Banner, &p.DiscoveredBy, &p.ScanMetadata, &p.ScannedAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan port: %w", err)
		}
		ports = append(ports, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ports, nil
}

// DeletePort removes a port by ID.
func (db *DB) DeletePort(id int64) error {
	res, err := db.Exec(`DELETE FROM port WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete port: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdatePortNotes updates the notes for a port.
func (db *DB) UpdatePortNotes(id int64, notes string) error {
	_, err := db.Exec(`UPDATE port SET notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, notes, id)
	if err != nil {
		return fmt.Errorf("update port notes: %w", err)
	}
	return nil
}
