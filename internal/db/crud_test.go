package db

import (
	"database/sql"
	"testing"

	"github.com/cyberheisen/redopsync/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(testutil.TempDBPath(t))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func TestProjectCRUD(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p1, err := db.CreateProject("Alpha", "first")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	p2, err := db.CreateProject("Beta", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	projects, err := db.ListProjects()
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	if projects[0].Name != "Alpha" || projects[1].Name != "Beta" {
		t.Fatalf("projects not sorted by name: %#v", projects)
	}

	got, found, err := db.GetProjectByName("Alpha")
	if err != nil || !found {
		t.Fatalf("get project by name: found=%v err=%v", found, err)
	}
	if got.ID != p1.ID || got.Description != "first" {
		t.Fatalf("unexpected project: %#v", got)
	}

	if err := db.DeleteProject(p1.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	projects, err = db.ListProjects()
	if err != nil {
		t.Fatalf("list projects after delete: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != p2.ID {
		t.Fatalf("unexpected projects after delete: %#v", projects)
	}
}

func TestHostIdentityLookups(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p, err := db.CreateProject("hosts", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	web1, err := db.InsertHost(Host{ProjectID: p.ID, IPAddress: "10.0.0.5", Hostname: "app.example.com", Status: HostStatusOnline})
	if err != nil {
		t.Fatalf("insert host: %v", err)
	}
	if _, err := db.InsertHost(Host{ProjectID: p.ID, IPAddress: "10.0.0.5", Hostname: "admin.example.com", Status: HostStatusOnline}); err != nil {
		t.Fatalf("insert second virtual host: %v", err)
	}

	// The same identity twice must hit the unique constraint.
	_, err = db.InsertHost(Host{ProjectID: p.ID, IPAddress: "10.0.0.5", Hostname: "app.example.com"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got: %v", err)
	}

	got, found, err := db.GetHostByIdentity(p.ID, "10.0.0.5", "app.example.com")
	if err != nil || !found {
		t.Fatalf("get by identity: found=%v err=%v", found, err)
	}
	if got.ID != web1.ID {
		t.Fatalf("expected host %d, got %d", web1.ID, got.ID)
	}

	// Identity with empty hostname matches nothing yet.
	_, found, err = db.GetHostByIdentity(p.ID, "10.0.0.5", "")
	if err != nil {
		t.Fatalf("get by identity: %v", err)
	}
	if found {
		t.Fatalf("empty hostname must not match named hosts")
	}

	byIP, found, err := db.GetHostByIP(p.ID, "10.0.0.5")
	if err != nil || !found {
		t.Fatalf("get by ip: found=%v err=%v", found, err)
	}
	if byIP.ID != web1.ID {
		t.Fatalf("expected first host by id, got %d", byIP.ID)
	}
}

func TestUnresolvedHostLookup(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p, err := db.CreateProject("sentinel", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	pending, err := db.InsertHost(Host{ProjectID: p.ID, IPAddress: SentinelIP, Hostname: "hidden.example.com", Status: HostStatusUnresolved})
	if err != nil {
		t.Fatalf("insert sentinel host: %v", err)
	}
	if _, err := db.InsertHost(Host{ProjectID: p.ID, IPAddress: "10.1.1.1", Hostname: "resolved.example.com", Status: HostStatusOnline}); err != nil {
		t.Fatalf("insert resolved host: %v", err)
	}

	got, found, err := db.GetUnresolvedHostByHostname(p.ID, "hidden.example.com")
	if err != nil || !found {
		t.Fatalf("get unresolved: found=%v err=%v", found, err)
	}
	if got.ID != pending.ID {
		t.Fatalf("expected host %d, got %d", pending.ID, got.ID)
	}

	_, found, err = db.GetUnresolvedHostByHostname(p.ID, "resolved.example.com")
	if err != nil {
		t.Fatalf("get unresolved: %v", err)
	}
	if found {
		t.Fatalf("host with a real IP must not match the sentinel lookup")
	}
}

func TestPortKeyLookupAndUpdate(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p, err := db.CreateProject("ports", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	host, err := db.InsertHost(Host{ProjectID: p.ID, IPAddress: "10.0.0.9"})
	if err != nil {
		t.Fatalf("insert host: %v", err)
	}

	created, err := db.InsertPort(Port{HostID: host.ID, PortNumber: 443, Protocol: "tcp", State: "open", DiscoveredBy: "nmap"})
	if err != nil {
		t.Fatalf("insert port: %v", err)
	}

	_, err = db.InsertPort(Port{HostID: host.ID, PortNumber: 443, Protocol: "tcp"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got: %v", err)
	}
	if _, err := db.InsertPort(Port{HostID: host.ID, PortNumber: 443, Protocol: "udp"}); err != nil {
		t.Fatalf("same number different protocol must insert: %v", err)
	}

	created.ServiceName = "https"
	updated, err := db.UpdatePort(created)
	if err != nil {
		t.Fatalf("update port: %v", err)
	}
	if updated.ServiceName != "https" || updated.ID != created.ID {
		t.Fatalf("unexpected updated port: %#v", updated)
	}

	got, found, err := db.GetPortByKey(host.ID, 443, "tcp")
	if err != nil || !found {
		t.Fatalf("get port by key: found=%v err=%v", found, err)
	}
	if got.ServiceName != "https" {
		t.Fatalf("expected refreshed service name, got %q", got.ServiceName)
	}
}

func TestEvidenceDedupLookups(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p, err := db.CreateProject("evidence", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	host, err := db.InsertHost(Host{ProjectID: p.ID, IPAddress: "10.0.0.3"})
	if err != nil {
		t.Fatalf("insert host: %v", err)
	}
	port, err := db.InsertPort(Port{HostID: host.ID, PortNumber: 80, Protocol: "tcp"})
	if err != nil {
		t.Fatalf("insert port: %v", err)
	}

	portRef := sql.NullInt64{Int64: port.ID, Valid: true}
	if _, err := db.InsertEvidence(Evidence{
		ProjectID: p.ID, HostID: host.ID, PortID: portRef,
		Filename: "shot.png", Caption: "Screenshot of http://10.0.0.3",
		SHA256: "abc123", StoredPath: "gowitness/1/shot.png", Source: "gowitness",
	}); err != nil {
		t.Fatalf("insert binary evidence: %v", err)
	}
	if _, err := db.InsertEvidence(Evidence{
		ProjectID: p.ID, HostID: host.ID, PortID: portRef,
		Filename: "", Caption: "Server: nginx/1.24.0", Source: "nmap",
	}); err != nil {
		t.Fatalf("insert text evidence: %v", err)
	}
	// Manual row, must stay invisible to dedup.
	if _, err := db.InsertEvidence(Evidence{
		ProjectID: p.ID, HostID: host.ID, PortID: portRef,
		Filename: "", Caption: "Server: handwritten note", Source: "",
	}); err != nil {
		t.Fatalf("insert manual evidence: %v", err)
	}

	if ok, err := db.HasEvidenceWithHash(port.ID, "gowitness", "abc123"); err != nil || !ok {
		t.Fatalf("expected hash hit, ok=%v err=%v", ok, err)
	}
	if ok, err := db.HasEvidenceWithHash(port.ID, "nmap", "abc123"); err != nil || ok {
		t.Fatalf("hash from another source must not match, ok=%v err=%v", ok, err)
	}
	if ok, err := db.HasEvidenceWithHash(port.ID, "", "abc123"); err != nil || ok {
		t.Fatalf("empty source must never match, ok=%v err=%v", ok, err)
	}

	if ok, err := db.HasEvidenceWithCaptionPrefix(port.ID, "nmap", "Server:"); err != nil || !ok {
		t.Fatalf("expected caption prefix hit, ok=%v err=%v", ok, err)
	}
	if ok, err := db.HasEvidenceWithCaptionPrefix(port.ID, "nmap", "Response code:"); err != nil || ok {
		t.Fatalf("unrelated prefix must not match, ok=%v err=%v", ok, err)
	}
	if ok, err := db.HasEvidenceWithCaptionPrefix(port.ID, "", "Server:"); err != nil || ok {
		t.Fatalf("manual rows must be invisible to dedup, ok=%v err=%v", ok, err)
	}
	// LIKE metacharacters in the prefix must be treated literally.
	if ok, err := db.HasEvidenceWithCaptionPrefix(port.ID, "nmap", "S_rver:"); err != nil || ok {
		t.Fatalf("underscore must not act as a wildcard, ok=%v err=%v", ok, err)
	}
}

func TestAuditEventRoundTrip(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p, err := db.CreateProject("audit", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := db.InsertAuditEvent(p.ID, "nmap_import_started", "import", 0, map[string]any{"source_file": "scan.xml"}); err != nil {
		t.Fatalf("insert audit event: %v", err)
	}
	if _, err := db.InsertAuditEvent(p.ID, "nmap_import_completed", "import", 0, nil); err != nil {
		t.Fatalf("insert audit event: %v", err)
	}

	events, err := db.ListAuditEvents(p.ID, 10)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Most recent first.
	if events[0].ActionType != "nmap_import_completed" {
		t.Fatalf("unexpected ordering: %#v", events)
	}
	if events[1].Payload == "" {
		t.Fatalf("expected JSON payload on first event")
	}
}
