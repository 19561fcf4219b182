package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberheisen/redopsync/internal/db"
)

const nmapSampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -sV -oX scan.xml 10.0.0.0/28" version="7.94" startstr="Mon Aug 24 10:00:00 2026">
  <taskbegin task="SYN Stealth Scan" time="1756029600"/>
  <taskend task="SYN Stealth Scan" time="1756029700"/>
  <host starttime="1756029600" endtime="1756029710">
    <status state="up" reason="echo-reply"/>
    <address addr="10.0.0.5" addrtype="ipv4"/>
    <hostnames><hostname name="app.example.com" type="PTR"/></hostnames>
    <ports>
      <port protocol="tcp" portid="443">
        <state state="open" reason="syn-ack" reason_ttl="63"/>
        <service name="http" product="nginx" version="1.24.0" tunnel="ssl" method="probed" conf="10"/>
        <script id="http-headers" output="  HTTP/1.1 200 OK&#10;  Server: nginx/1.24.0&#10;  X-Frame-Options: DENY&#10;"/>
        <script id="ssl-cert" output="Subject: commonName=app.example.com"/>
      </port>
      <port protocol="tcp" portid="22">
        <state state="open" reason="syn-ack" reason_ttl="63"/>
        <service name="ssh" product="OpenSSH" version="9.6" method="probed" conf="10"/>
        <script id="banner" output="SSH-2.0-OpenSSH_9.6"/>
      </port>
    </ports>
  </host>
  <runstats><finished time="1756029720" timestr="Mon Aug 24 10:02:00 2026" exit="success"/></runstats>
</nmaprun>`

func TestNmapImportThenReimportIsIdempotent(t *testing.T) {
	imp, database, projectID := newTestImporter(t)

	first := imp.importNmap(projectID, []byte(nmapSampleXML), "scan.xml")
	require.Empty(t, first.Errors)
	assert.Equal(t, 1, first.HostsCreated)
	assert.Equal(t, 0, first.HostsUpdated)
	assert.Equal(t, 2, first.PortsCreated)
	assert.Greater(t, first.EvidenceCreated, 0)

	second := imp.importNmap(projectID, []byte(nmapSampleXML), "scan.xml")
	require.Empty(t, second.Errors)
	assert.Equal(t, 0, second.HostsCreated)
	assert.Equal(t, 1, second.HostsUpdated)
	assert.Equal(t, 0, second.PortsCreated)
	assert.Equal(t, 2, second.PortsUpdated)
	assert.Equal(t, 0, second.EvidenceCreated, "re-import must not duplicate evidence")
	assert.Greater(t, second.Skipped, 0)

	hosts, err := database.ListHosts(projectID)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "10.0.0.5", hosts[0].IPAddress)
	assert.Equal(t, "app.example.com", hosts[0].Hostname)
	assert.Equal(t, db.HostStatusOnline, hosts[0].Status)
	assert.True(t, hosts[0].SubnetID.Valid)

	ports, err := database.ListPorts(hosts[0].ID)
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "https", ports[1].ServiceName, "ssl tunnel folds http into https")
	assert.Equal(t, "nginx 1.24.0", ports[1].ServiceVersion)
	assert.Equal(t, SourceNmap, ports[1].DiscoveredBy)
	assert.True(t, ports[1].ScannedAt.Valid)
}

func TestVirtualHostsStayDistinct(t *testing.T) {
	imp, database, projectID := newTestImporter(t)

	_, created, err := imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.5", Hostname: "app.example.com", Status: db.HostStatusOnline})
	require.NoError(t, err)
	require.True(t, created)

	_, created, err = imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.5", Hostname: "admin.example.com", Status: db.HostStatusOnline})
	require.NoError(t, err)
	assert.True(t, created, "same IP with a different hostname is a distinct host")

	hosts, err := database.ListHosts(projectID)
	require.NoError(t, err)
	assert.Len(t, hosts, 2)
}

func TestHostnameLessSourceMergesIntoExistingHost(t *testing.T) {
	imp, database, projectID := newTestImporter(t)

	named, created, err := imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.5", Hostname: "app.example.com", Status: db.HostStatusUnknown})
	require.NoError(t, err)
	require.True(t, created)

	merged, created, err := imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.5", Status: db.HostStatusOnline})
	require.NoError(t, err)
	assert.False(t, created, "a hostname-less source must merge into the IP's existing host")
	assert.Equal(t, named.ID, merged.ID)
	assert.Equal(t, db.HostStatusOnline, merged.Status)

	hosts, err := database.ListHosts(projectID)
	require.NoError(t, err)
	assert.Len(t, hosts, 1)
}

func TestSentinelPromotionHappensOnce(t *testing.T) {
	imp, database, projectID := newTestImporter(t)

	pending, created, err := imp.reconcileHost(projectID, hostObservation{Hostname: "hidden.example.com"})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, db.SentinelIP, pending.IPAddress)
	assert.Equal(t, db.HostStatusUnresolved, pending.Status)
	assert.False(t, pending.SubnetID.Valid)

	promoted, created, err := imp.reconcileHost(projectID, hostObservation{IP: "10.2.3.4", Hostname: "hidden.example.com", Status: db.HostStatusUnknown})
	require.NoError(t, err)
	assert.False(t, created, "promotion reuses the sentinel row")
	assert.Equal(t, pending.ID, promoted.ID)
	assert.Equal(t, "10.2.3.4", promoted.IPAddress)
	assert.Equal(t, db.HostStatusUnknown, promoted.Status, "lingering unresolved status clears on promotion")
	require.True(t, promoted.SubnetID.Valid)

	subnet, found, err := database.GetSubnetByID(promoted.SubnetID.Int64)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "10.2.3.0/24", subnet.CIDR)

	// A different IP for the same hostname is a new host, not a second
	// promotion.
	again, created, err := imp.reconcileHost(projectID, hostObservation{IP: "10.9.9.9", Hostname: "hidden.example.com"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, promoted.ID, again.ID)
}

func TestManualPortFieldsAreProtected(t *testing.T) {
	imp, database, projectID := newTestImporter(t)

	host, _, err := imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.8"})
	require.NoError(t, err)

	// Operator-entered port: empty discovered_by.
	manual, err := database.InsertPort(db.Port{
		HostID:      host.ID,
		PortNumber:  8080,
		Protocol:    "tcp",
		State:       "open",
		ServiceName: "custom-agent",
	})
	require.NoError(t, err)

	merged, created, err := imp.reconcilePort(host, portObservation{
		Number:      8080,
		Protocol:    "tcp",
		State:       "filtered",
		ServiceName: "http-proxy",
		Banner:      "squid",
		Source:      SourceNmap,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, manual.ID, merged.ID)
	assert.Equal(t, "custom-agent", merged.ServiceName, "a scanner never overwrites a hand-entered field")
	assert.Equal(t, "open", merged.State)
	assert.Equal(t, "squid", merged.Banner, "empty fields still gain values")
	assert.Equal(t, "", merged.DiscoveredBy, "the row stays marked as manual")
}

func TestForeignToolOnlyFillsEmptyFields(t *testing.T) {
	imp, _, projectID := newTestImporter(t)

	host, _, err := imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.12"})
	require.NoError(t, err)

	_, created, err := imp.reconcilePort(host, portObservation{
		Number: 443, Protocol: "tcp", State: "open", ServiceName: "https", Source: SourceNmap,
	})
	require.NoError(t, err)
	require.True(t, created)

	merged, _, err := imp.reconcilePort(host, portObservation{
		Number: 443, Protocol: "tcp", State: "closed", ServiceName: "http", Banner: "masscan-banner", Source: SourceMasscan,
	})
	require.NoError(t, err)
	assert.Equal(t, "open", merged.State, "foreign tool must not overwrite")
	assert.Equal(t, "https", merged.ServiceName)
	assert.Equal(t, "masscan-banner", merged.Banner)

	refreshed, _, err := imp.reconcilePort(host, portObservation{
		Number: 443, Protocol: "tcp", State: "closed", ServiceName: "http-alt", Source: SourceNmap,
	})
	require.NoError(t, err)
	assert.Equal(t, "closed", refreshed.State, "same source refreshes its own fields")
	assert.Equal(t, "http-alt", refreshed.ServiceName)
}

func TestStatusIsNeverDowngraded(t *testing.T) {
	imp, _, projectID := newTestImporter(t)

	host, _, err := imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.20", Status: db.HostStatusOnline})
	require.NoError(t, err)
	require.Equal(t, db.HostStatusOnline, host.Status)

	host, _, err = imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.20", Status: db.HostStatusOffline})
	require.NoError(t, err)
	assert.Equal(t, db.HostStatusOnline, host.Status)

	host, _, err = imp.reconcileHost(projectID, hostObservation{IP: "10.0.0.20", Status: db.HostStatusUnknown})
	require.NoError(t, err)
	assert.Equal(t, db.HostStatusOnline, host.Status)
}
