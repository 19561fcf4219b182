package importer

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cyberheisen/redopsync/internal/db"
)

var (
	httpResponseLine = regexp.MustCompile(`(?m)^\s*HTTP/[\d.]+\s+(\d{3})`)
	serverHeaderLine = regexp.MustCompile(`(?mi)^\s*Server:\s*(\S.*?)\s*$`)
)

// securityHeaders are probed in http-headers output and recorded as separate
// evidence rows. The canonical name doubles as the dedup caption prefix.
var securityHeaders = []string{
	"X-Frame-Options",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"Strict-Transport-Security",
	"X-XSS-Protection",
}

// importNmap writes a parsed Nmap XML document into the project. Script
// outputs are mined for structured evidence; whatever does not match a known
// probe is kept as a raw banner row so nothing the scanner saw is lost.
func (imp *Importer) importNmap(projectID int64, data []byte, filename string) Summary {
	summary := Summary{Format: string(FormatNmap), Errors: []string{}}
	imp.audit(projectID, "nmap_import_started", "import", 0, map[string]any{
		"source_file": filename,
	})

	parsed := ParseNmapXML(data, filename)
	summary.Errors = append(summary.Errors, parsed.Errors...)
	if len(parsed.Hosts) == 0 {
		return summary
	}

	for _, parsedHost := range parsed.Hosts {
		host, created, err := imp.reconcileHost(projectID, hostObservation{
			IP:       parsedHost.IP,
			Hostname: parsedHost.Hostname,
			Status:   nmapHostStatus(parsedHost),
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: %v", parsedHost.IP, err))
			continue
		}
		if created {
			summary.HostsCreated++
			imp.audit(projectID, "nmap_host_created", "host", host.ID, map[string]any{
				"ip":       host.IPAddress,
				"hostname": host.Hostname,
			})
		} else {
			summary.HostsUpdated++
		}

		scannedAt := nmapScannedAt(parsedHost, parsed.Info)
		for _, parsedPort := range parsedHost.Ports {
			port, portCreated, err := imp.reconcilePort(host, portObservation{
				Number:         parsedPort.Number,
				Protocol:       parsedPort.Protocol,
				State:          parsedPort.State,
				ServiceName:    nmapServiceName(parsedPort),
				ServiceVersion: nmapServiceVersion(parsedPort),
				Banner:         parsedPort.ExtraInfo,
				ScanMetadata:   nmapScanMetadata(parsedPort, parsed.Info),
				ScannedAt:      scannedAt,
				Source:         SourceNmap,
			})
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s port %d/%s: %v",
					parsedHost.IP, parsedPort.Number, parsedPort.Protocol, err))
				continue
			}
			if portCreated {
				summary.PortsCreated++
				imp.audit(projectID, "nmap_port_created", "port", port.ID, map[string]any{
					"ip":       host.IPAddress,
					"port":     parsedPort.Number,
					"protocol": parsedPort.Protocol,
				})
			} else {
				summary.PortsUpdated++
			}

			imp.extractScriptEvidence(projectID, host, port, parsedPort, filename, &summary)
		}
	}

	imp.audit(projectID, "nmap_import_completed", "import", 0, map[string]any{
		"source_file":      filename,
		"hosts_created":    summary.HostsCreated,
		"hosts_updated":    summary.HostsUpdated,
		"ports_created":    summary.PortsCreated,
		"ports_updated":    summary.PortsUpdated,
		"evidence_created": summary.EvidenceCreated,
		"skipped":          summary.Skipped,
	})
	return summary
}

func nmapHostStatus(h NmapHost) string {
	if h.Unresolved {
		return db.HostStatusUnresolved
	}
	switch h.Status {
	case "up":
		return db.HostStatusOnline
	case "down":
		return db.HostStatusOffline
	default:
		return db.HostStatusUnknown
	}
}

// nmapServiceName folds the tunnel attribute in: nmap reports an ssl-wrapped
// http service as name=http tunnel=ssl, which operators read as https.
func nmapServiceName(p NmapPort) string {
	if p.Tunnel == "ssl" && p.ServiceName == "http" {
		return "https"
	}
	if p.Tunnel == "ssl" && p.ServiceName != "" && !strings.HasPrefix(p.ServiceName, "ssl") {
		return "ssl/" + p.ServiceName
	}
	return p.ServiceName
}

func nmapServiceVersion(p NmapPort) string {
	return strings.TrimSpace(strings.Join(trimEmpty(p.Product, p.Version), " "))
}

func trimEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// nmapScannedAt prefers the host's own end time, then its start time, then
// the latest task epoch from the run.
func nmapScannedAt(h NmapHost, info NmapRunInfo) sql.NullTime {
	for _, raw := range []string{h.EndTime, h.StartTime} {
		if epoch, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && epoch > 0 {
			return sql.NullTime{Time: time.Unix(epoch, 0).UTC(), Valid: true}
		}
	}
	if n := len(info.TaskTimes); n > 0 {
		return sql.NullTime{Time: time.Unix(info.TaskTimes[n-1], 0).UTC(), Valid: true}
	}
	return sql.NullTime{}
}

func nmapScanMetadata(p NmapPort, info NmapRunInfo) string {
	meta := map[string]any{}
	if info.Version != "" {
		meta["nmap_version"] = info.Version
	}
	if info.Args != "" {
		meta["args"] = info.Args
	}
	if info.ScanStart != "" {
		meta["scan_start"] = info.ScanStart
	}
	if info.ScanEnd != "" {
		meta["scan_end"] = info.ScanEnd
	}
	if p.StateReason != "" {
		meta["state_reason"] = p.StateReason
	}
	if p.StateReasonTTL != 0 {
		meta["reason_ttl"] = p.StateReasonTTL
	}
	if p.ServiceMethod != "" {
		meta["service_method"] = p.ServiceMethod
	}
	if p.ServiceConf != 0 {
		meta["service_conf"] = p.ServiceConf
	}
	if p.DeviceType != "" {
		meta["device_type"] = p.DeviceType
	}
	if p.Tunnel != "" {
		meta["tunnel"] = p.Tunnel
	}
	if len(meta) == 0 {
		return ""
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(raw)
}

// extractScriptEvidence mines NSE output for the structured rows operators
// filter on. http-headers yields response code, server header, and the
// security headers; ssl-cert yields the TLS block; every other script lands
// as a raw banner row.
func (imp *Importer) extractScriptEvidence(projectID int64, host db.Host, port db.Port, p NmapPort, sourceFile string, summary *Summary) {
	for _, script := range p.Scripts {
		if script.Output == "" {
			continue
		}
		switch script.ID {
		case "http-headers":
			if m := httpResponseLine.FindStringSubmatch(script.Output); m != nil {
				imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
					"Response code:", "Response code: "+m[1], summary)
			}
			if m := serverHeaderLine.FindStringSubmatch(script.Output); m != nil {
				imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
					"Server:", "Server: "+m[1], summary)
			}
			for _, header := range securityHeaders {
				re := regexp.MustCompile(`(?mi)^\s*` + regexp.QuoteMeta(header) + `:\s*(\S.*?)\s*$`)
				if m := re.FindStringSubmatch(script.Output); m != nil {
					imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
						header+":", header+": "+m[1], summary)
				}
			}
		case "http-server-header":
			imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
				"Server:", "Server: "+strings.TrimSpace(script.Output), summary)
		case "http-title":
			imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
				"Page title:", "Page title: "+strings.TrimSpace(script.Output), summary)
		case "ssl-cert":
			imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
				"TLS", "TLS certificate:\n"+script.Output, summary)
		default:
			imp.addMetadataEvidence(projectID, host, port.ID, SourceNmap, sourceFile,
				"Raw banner ("+script.ID+")", fmt.Sprintf("Raw banner (%s):\n%s", script.ID, script.Output), summary)
		}
	}
}

// addMetadataEvidence appends a text-only evidence row unless a row from the
// same tool with the same caption prefix already exists on the port. A
// suppressed duplicate counts as skipped; the old row is never rewritten.
func (imp *Importer) addMetadataEvidence(projectID int64, host db.Host, portID int64, source, sourceFile, prefix, caption string, summary *Summary) {
	exists, err := imp.db.HasEvidenceWithCaptionPrefix(portID, source, prefix)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: evidence lookup: %v", host.IPAddress, err))
		return
	}
	if exists {
		summary.Skipped++
		return
	}

	_, err = imp.db.InsertEvidence(db.Evidence{
		ProjectID:  projectID,
		HostID:     host.ID,
		PortID:     sql.NullInt64{Int64: portID, Valid: true},
		Caption:    caption,
		MIME:       "text/plain",
		Source:     source,
		SourceFile: sourceFile,
		ImportedAt: sql.NullTime{Time: time.Now().UTC(), Valid: true},
	})
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: evidence insert: %v", host.IPAddress, err))
		return
	}
	summary.EvidenceCreated++
	summary.MetadataRecordsImported++
}
