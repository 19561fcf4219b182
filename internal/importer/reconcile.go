package importer

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/cyberheisen/redopsync/internal/db"
)

var (
	errHostUnidentifiable = errors.New("host has neither ip nor hostname")
	errPortVanished       = errors.New("port row disappeared during merge")
)

// statusRank orders host statuses by how much certainty they carry. Imports
// may raise a host along this scale but never lower it.
func statusRank(status string) int {
	switch status {
	case db.HostStatusOnline:
		return 3
	case db.HostStatusOffline:
		return 2
	case db.HostStatusUnresolved:
		return 1
	default:
		return 0
	}
}

func mergeStatus(current, incoming string) string {
	if statusRank(incoming) > statusRank(current) {
		return incoming
	}
	return current
}

// hostObservation is what a parser learned about one host. An empty IP with a
// hostname means the scanner never resolved the name.
type hostObservation struct {
	IP       string
	Hostname string
	Status   string
}

// reconcileHost maps an observation onto the store's host identity rules and
// returns the up-to-date row. The second return is true when a new host row
// was created.
//
// Identity is (project, ip, hostname). A source that reports no hostname
// merges into whichever host already owns the IP rather than spawning a
// hostname-less twin. A hostname observed without an address lands on the
// sentinel IP until some later import resolves it, at which point the row is
// promoted in place exactly once.
func (imp *Importer) reconcileHost(projectID int64, obs hostObservation) (db.Host, bool, error) {
	ip := strings.TrimSpace(obs.IP)
	hostname := strings.ToLower(strings.TrimSpace(obs.Hostname))
	status := strings.ToLower(strings.TrimSpace(obs.Status))

	if ip == "" || ip == sentinelIP {
		return imp.reconcileUnresolvedHost(projectID, hostname, status)
	}

	if hostname == "" {
		host, ok, err := imp.db.GetHostByIP(projectID, ip)
		if err != nil {
			return db.Host{}, false, err
		}
		if ok {
			return imp.touchHostStatus(host, status)
		}
		return imp.createHost(projectID, ip, "", status)
	}

	host, ok, err := imp.db.GetHostByIdentity(projectID, ip, hostname)
	if err != nil {
		return db.Host{}, false, err
	}
	if ok {
		return imp.touchHostStatus(host, status)
	}

	// A sentinel row for this hostname gets promoted to the real address
	// instead of duplicated. Promotion is one-way: once the sentinel is gone
	// this branch can never match again.
	sentinel, ok, err := imp.db.GetUnresolvedHostByHostname(projectID, hostname)
	if err != nil {
		return db.Host{}, false, err
	}
	if ok {
		return imp.promoteHost(sentinel, ip, status)
	}

	return imp.createHost(projectID, ip, hostname, status)
}

func (imp *Importer) reconcileUnresolvedHost(projectID int64, hostname, status string) (db.Host, bool, error) {
	if hostname == "" {
		return db.Host{}, false, errHostUnidentifiable
	}

	// Any existing host already carrying the hostname, resolved or not,
	// absorbs the observation.
	host, ok, err := imp.db.GetHostByHostname(projectID, hostname)
	if err != nil {
		return db.Host{}, false, err
	}
	if ok {
		return imp.touchHostStatus(host, status)
	}

	created, err := imp.db.InsertHost(db.Host{
		ProjectID: projectID,
		IPAddress: db.SentinelIP,
		Hostname:  hostname,
		Status:    db.HostStatusUnresolved,
	})
	if err != nil {
		return db.Host{}, false, err
	}
	return created, true, nil
}

func (imp *Importer) createHost(projectID int64, ip, hostname, status string) (db.Host, bool, error) {
	subnetID, err := imp.db.FindOrCreateSubnetForIP(projectID, ip)
	if err != nil {
		return db.Host{}, false, err
	}
	if status == "" {
		status = db.HostStatusUnknown
	}
	created, err := imp.db.InsertHost(db.Host{
		ProjectID: projectID,
		SubnetID:  subnetID,
		IPAddress: ip,
		Hostname:  hostname,
		Status:    status,
	})
	if err != nil {
		return db.Host{}, false, err
	}
	return created, true, nil
}

// promoteHost swaps the sentinel address for a real one, files the host into
// its subnet, and clears a lingering unresolved status when the incoming
// observation carries nothing stronger.
func (imp *Importer) promoteHost(host db.Host, ip, status string) (db.Host, bool, error) {
	subnetID, err := imp.db.FindOrCreateSubnetForIP(host.ProjectID, ip)
	if err != nil {
		return db.Host{}, false, err
	}

	next := mergeStatus(host.Status, status)
	if next == db.HostStatusUnresolved {
		next = db.HostStatusUnknown
	}

	host.IPAddress = ip
	host.SubnetID = subnetID
	host.Status = next
	updated, err := imp.db.UpdateHost(host)
	if err != nil {
		return db.Host{}, false, err
	}
	imp.audit(host.ProjectID, "host_promoted", "host", host.ID, map[string]any{
		"hostname": host.Hostname,
		"ip":       ip,
	})
	return updated, false, nil
}

func (imp *Importer) touchHostStatus(host db.Host, status string) (db.Host, bool, error) {
	next := mergeStatus(host.Status, status)
	if next == host.Status {
		return host, false, nil
	}
	if err := imp.db.UpdateHostStatus(host.ID, next); err != nil {
		return db.Host{}, false, err
	}
	host.Status = next
	return host, false, nil
}

// portObservation is what a parser learned about one service.
type portObservation struct {
	Number         int
	Protocol       string
	State          string
	ServiceName    string
	ServiceVersion string
	Banner         string
	ScanMetadata   string
	ScannedAt      sql.NullTime
	Source         string
}

// reconcilePort upserts a service observation under (host, number, protocol).
// The second return is true when a new port row was created.
//
// Merge policy on an existing row: a field is overwritten only when it is
// empty or the row was last written by the same tool. Rows with an empty
// discovered_by were entered by hand and only ever gain missing fields.
func (imp *Importer) reconcilePort(host db.Host, obs portObservation) (db.Port, bool, error) {
	current, ok, err := imp.db.GetPortByKey(host.ID, obs.Number, obs.Protocol)
	if err != nil {
		return db.Port{}, false, err
	}
	if !ok {
		created, err := imp.db.InsertPort(db.Port{
			HostID:         host.ID,
			PortNumber:     obs.Number,
			Protocol:       obs.Protocol,
			State:          obs.State,
			ServiceName:    obs.ServiceName,
			ServiceVersion: obs.ServiceVersion,
			Banner:         obs.Banner,
			DiscoveredBy:   obs.Source,
			ScanMetadata:   obs.ScanMetadata,
			ScannedAt:      obs.ScannedAt,
		})
		if err == nil {
			return created, true, nil
		}
		if !db.IsUniqueViolation(err) {
			return db.Port{}, false, err
		}
		// Lost a race with a concurrent writer; fall through to merge.
		current, ok, err = imp.db.GetPortByKey(host.ID, obs.Number, obs.Protocol)
		if err != nil {
			return db.Port{}, false, err
		}
		if !ok {
			return db.Port{}, false, errPortVanished
		}
	}

	sameSource := current.DiscoveredBy == obs.Source && obs.Source != ""
	changed := false
	setField := func(dst *string, incoming string) {
		if incoming == "" {
			return
		}
		if *dst == "" || sameSource {
			if *dst != incoming {
				*dst = incoming
				changed = true
			}
		}
	}

	setField(&current.State, obs.State)
	setField(&current.ServiceName, obs.ServiceName)
	setField(&current.ServiceVersion, obs.ServiceVersion)
	setField(&current.Banner, obs.Banner)
	setField(&current.ScanMetadata, obs.ScanMetadata)
	if obs.ScannedAt.Valid && (!current.ScannedAt.Valid || sameSource) {
		if !current.ScannedAt.Valid || !current.ScannedAt.Time.Equal(obs.ScannedAt.Time) {
			current.ScannedAt = obs.ScannedAt
			changed = true
		}
	}

	if !changed {
		return current, false, nil
	}
	updated, err := imp.db.UpdatePort(current)
	if err != nil {
		return db.Port{}, false, err
	}
	return updated, false, nil
}
