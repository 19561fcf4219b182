package db

import (
	"database/sql"
	"fmt"
	"net/netip"
	"strings"
)

// CIDRForIP derives the canonical containing network for an address:
// /24 for IPv4, /64 for IPv6. Returns false for the sentinel or invalid input.
func CIDRForIP(ip string) (string, bool) {
	ip = strings.ToLower(strings.TrimSpace(ip))
	if ip == "" || ip == SentinelIP {
		return "", false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", false
	}
	bits := 64
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "", false
	}
	return prefix.String(), true
}

// FindOrCreateSubnetForIP resolves the bucket subnet for an IP within a
// project, creating it on first sight. Idempotent: the same project+IP always
// yields the same subnet. Returns an invalid NullInt64 for sentinel/invalid IPs.
func (db *DB) FindOrCreateSubnetForIP(projectID int64, ip string) (sql.NullInt64, error) {
	cidr, ok := CIDRForIP(ip)
	if !ok {
		return sql.NullInt64{}, nil
	}

	var id int64
	err := db.QueryRow(
		`INSERT INTO subnet (project_id, cidr)
		 VALUES (?, ?)
		 ON CONFLICT(project_id, cidr) DO UPDATE SET cidr = excluded.cidr
		 RETURNING id`,
		projectID, cidr,
	).Scan(&id)
	if err != nil {
		return sql.NullInt64{}, fmt.Errorf("find or create subnet: %w", err)
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

// GetSubnetByCIDR fetches a subnet by project and CIDR.
func (db *DB) GetSubnetByCIDR(projectID int64, cidr string) (Subnet, bool, error) {
	var s Subnet
	err := db.QueryRow(
		`SELECT id, project_id, cidr, name, created_at FROM subnet WHERE project_id = ? AND cidr = ?`,
		projectID, cidr,
	).Scan(&s.ID, &s.ProjectID, &s.CIDR, &s.Name, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Subnet{}, false, nil
		}
		return Subnet{}, false, fmt.Errorf("get subnet: %w", err)
	}
	return s, true, nil
}

// GetSubnetByID fetches a subnet by id.
func (db *DB) GetSubnetByID(id int64) (Subnet, bool, error) {
	var s Subnet
	err := db.QueryRow(
		`SELECT id, project_id, cidr, name, created_at FROM subnet WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.ProjectID, &s.CIDR, &s.Name, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Subnet{}, false, nil
		}
		return Subnet{}, false, fmt.Errorf("get subnet by id: %w", err)
	}
	return s, true, nil
}

// ListSubnets returns subnets for a project ordered by CIDR.
func (db *DB) ListSubnets(projectID int64) ([]Subnet, error) {
	rows, err := db.Query(
		`SELECT id, project_id, cidr, name, created_at FROM subnet WHERE project_id = ? ORDER BY cidr`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subnets: %w", err)
	}
	defer rows.Close()

	var subnets []Subnet
	for rows.Next() {
		var s Subnet
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.CIDR, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subnet: %w", err)
		}
		subnets = append(subnets, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subnets, nil
}
