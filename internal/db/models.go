package db

import (
	"database/sql"
	"time"
)

// SentinelIP is the placeholder stored in host.ip_address when only a
// hostname is known. It is promoted to a real address at most once.
const SentinelIP = "unresolved"

// Host status values. Imports may raise a status but never lower it.
const (
	HostStatusUnknown    = "unknown"
	HostStatusOnline     = "online"
	HostStatusOffline    = "offline"
	HostStatusUnresolved = "unresolved"
)

// Project represents the top-level grouping.
type Project struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subnet is an auto-created network bucket, unique per (project, cidr).
type Subnet struct {
	ID        int64
	ProjectID int64
	CIDR      string
	Name      string
	CreatedAt time.Time
}

// Host represents an asset. The identity key is (project, ip, hostname):
// the same IP with two different hostnames is two distinct hosts.
type Host struct {
	ID        int64
	ProjectID int64
	SubnetID  sql.NullInt64
	IPAddress string
	Hostname  string
	Status    string
	WhoisJSON string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Port represents a service observation, unique per (host, number, protocol).
// An empty DiscoveredBy marks data entered by hand.
type Port struct {
	ID             int64
	HostID         int64
	PortNumber     int
	Protocol       string
	State          string
	ServiceName    string
	ServiceVersion string
	Banner         string
	DiscoveredBy   string
	ScanMetadata   string
	ScannedAt      sql.NullTime
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Evidence is an append-only artifact attached to a host/port. StoredPath is
// empty for text-only rows; Source is empty for rows created by hand.
type Evidence struct {
	ID         int64
	ProjectID  int64
	HostID     int64
	PortID     sql.NullInt64
	Filename   string
	Caption    string
	MIME       string
	Size       int64
	SHA256     string
	StoredPath string
	Source     string
	SourceFile string
	ImportedAt sql.NullTime
	CreatedAt  time.Time
}

// AuditEvent records a discrete import action with a small JSON payload.
type AuditEvent struct {
	ID         int64
	ProjectID  sql.NullInt64
	ActionType string
	RecordType string
	RecordID   sql.NullInt64
	Payload    string
	CreatedAt  time.Time
}
