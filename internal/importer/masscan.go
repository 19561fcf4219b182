package importer

import (
	"bufio"
	"bytes"
	"database/sql"
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cyberheisen/redopsync/internal/db"
)

// masscanLine matches masscan -oL records:
//
//	open tcp 443 203.0.113.7 1679574000
var masscanLine = regexp.MustCompile(`^\s*(open|closed|open\|filtered|closed\|filtered)\s+(tcp|udp)\s+(\d+)\s+([0-9a-fA-F.:]+)\s+(\d+)\s*$`)

// IsMasscanList sniffs whether the content has masscan list shape: every
// non-blank, non-comment line in the head must match the record format, and
// at least one must be present.
func IsMasscanList(data []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	matched := 0
	checked := 0
	for scanner.Scan() && checked < 50 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		checked++
		if !masscanLine.MatchString(line) {
			return false
		}
		matched++
	}
	return matched > 0
}

// MasscanRecord is one parsed list line.
type MasscanRecord struct {
	Port      int
	Protocol  string
	State     string
	Timestamp int64
}

// MasscanHost groups the records observed for one address.
type MasscanHost struct {
	IP      string
	Records []MasscanRecord
}

// MasscanParseResult is the canonical output of the masscan list parser.
type MasscanParseResult struct {
	Hosts      []MasscanHost
	Errors     []string
	Skipped    int
	SourceFile string
}

// ParseMasscanList parses masscan -oL output. Lines that do not match the
// record shape are skipped and reported; hosts come out sorted by address so
// import order is stable.
func ParseMasscanList(data []byte, sourceFile string) *MasscanParseResult {
	result := &MasscanParseResult{SourceFile: sourceFile}

	byIP := make(map[string][]MasscanRecord)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := masscanLine.FindStringSubmatch(line)
		if m == nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: not a masscan list record", lineNo))
			continue
		}

		number, err := strconv.Atoi(m[3])
		if err != nil || number < 1 || number > 65535 {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: invalid port %q", lineNo, m[3]))
			continue
		}
		if _, err := netip.ParseAddr(m[4]); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: invalid address %q", lineNo, m[4]))
			continue
		}
		ts, _ := strconv.ParseInt(m[5], 10, 64)

		byIP[m[4]] = append(byIP[m[4]], MasscanRecord{
			Port:      number,
			Protocol:  m[2],
			State:     m[1],
			Timestamp: ts,
		})
	}
	if err := scanner.Err(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Read error: %v", err))
	}

	ips := make([]string, 0, len(byIP))
	for ip := range byIP {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	for _, ip := range ips {
		records := byIP[ip]
		sort.Slice(records, func(i, j int) bool {
			if records[i].Port != records[j].Port {
				return records[i].Port < records[j].Port
			}
			return records[i].Protocol < records[j].Protocol
		})
		result.Hosts = append(result.Hosts, MasscanHost{IP: ip, Records: records})
	}
	return result
}

// importMasscan writes a parsed masscan list into the project. Masscan only
// reports addresses that answered, so every host it names is online.
func (imp *Importer) importMasscan(projectID int64, data []byte, filename string) Summary {
	summary := Summary{Format: string(FormatMasscan), Errors: []string{}}
	imp.audit(projectID, "masscan_import_started", "import", 0, map[string]any{
		"source_file": filename,
	})

	parsed := ParseMasscanList(data, filename)
	summary.Errors = append(summary.Errors, parsed.Errors...)
	summary.Skipped += parsed.Skipped

	for _, parsedHost := range parsed.Hosts {
		host, created, err := imp.reconcileHost(projectID, hostObservation{
			IP:     parsedHost.IP,
			Status: db.HostStatusOnline,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: %v", parsedHost.IP, err))
			continue
		}
		if created {
			summary.HostsCreated++
			imp.audit(projectID, "masscan_host_created", "host", host.ID, map[string]any{"ip": host.IPAddress})
		} else {
			summary.HostsUpdated++
		}

		for _, record := range parsedHost.Records {
			var scannedAt sql.NullTime
			if record.Timestamp > 0 {
				scannedAt = sql.NullTime{Time: time.Unix(record.Timestamp, 0).UTC(), Valid: true}
			}
			port, portCreated, err := imp.reconcilePort(host, portObservation{
				Number:    record.Port,
				Protocol:  record.Protocol,
				State:     record.State,
				ScannedAt: scannedAt,
				Source:    SourceMasscan,
			})
			if err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s port %d/%s: %v", parsedHost.IP, record.Port, record.Protocol, err))
				continue
			}
			if portCreated {
				summary.PortsCreated++
				imp.audit(projectID, "masscan_port_created", "port", port.ID, map[string]any{
					"ip":       host.IPAddress,
					"port":     record.Port,
					"protocol": record.Protocol,
				})
			} else {
				summary.PortsUpdated++
			}
		}
	}

	imp.audit(projectID, "masscan_import_completed", "import", 0, map[string]any{
		"source_file":   filename,
		"hosts_created": summary.HostsCreated,
		"hosts_updated": summary.HostsUpdated,
		"ports_created": summary.PortsCreated,
		"ports_updated": summary.PortsUpdated,
		"skipped":       summary.Skipped,
	})
	return summary
}
