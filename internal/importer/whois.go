package importer

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"

	"github.com/cyberheisen/redopsync/internal/db"
)

// whoisAllowedKeys is the closed set of attributes kept from a whois/RDAP
// record. Everything else in the input object is ignored.
var whoisAllowedKeys = []string{
	"asn",
	"asn_description",
	"asn_country",
	"country",
	"network_name",
	"cidr",
	"network_type",
	"asn_registry",
}

// WhoisRecord is one parsed lookup result.
type WhoisRecord struct {
	IP         string
	Attributes map[string]string
}

// WhoisParseResult is the canonical output of the whois/RDAP JSON parser.
type WhoisParseResult struct {
	Records    []WhoisRecord
	Errors     []string
	Skipped    int
	SourceFile string
}

// ParseWhoisJSON parses an array of whois/RDAP objects. A record missing a
// valid ip is a per-record error; duplicate IPs collapse, first wins.
func ParseWhoisJSON(data []byte, sourceFile string) *WhoisParseResult {
	result := &WhoisParseResult{SourceFile: sourceFile}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		result.Errors = append(result.Errors, "JSON must be an array of whois/RDAP record objects")
		return result
	}

	seen := make(map[string]struct{})
	for i, obj := range raw {
		ipRaw, _ := obj["ip"].(string)
		addr, err := netip.ParseAddr(strings.TrimSpace(ipRaw))
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Record %d: missing or invalid ip", i+1))
			continue
		}
		ip := addr.String()
		if _, dup := seen[ip]; dup {
			result.Skipped++
			continue
		}
		seen[ip] = struct{}{}

		attrs := make(map[string]string)
		for _, key := range whoisAllowedKeys {
			value, ok := obj[key]
			if !ok || value == nil {
				continue
			}
			switch v := value.(type) {
			case string:
				if v != "" {
					attrs[key] = v
				}
			case float64:
				attrs[key] = strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
			}
		}
		result.Records = append(result.Records, WhoisRecord{IP: ip, Attributes: attrs})
	}
	return result
}

// importWhois writes parsed whois records into the project. Whois data says
// nothing about liveness, so it never raises host status; attributes merge
// into the host's whois_json, new values winning over old ones.
func (imp *Importer) importWhois(projectID int64, data []byte, filename string) Summary {
	summary := Summary{Format: string(FormatWhois), Errors: []string{}}
	imp.audit(projectID, "whois_import_started", "import", 0, map[string]any{
		"source_file": filename,
	})

	parsed := ParseWhoisJSON(data, filename)
	summary.Errors = append(summary.Errors, parsed.Errors...)
	summary.Skipped += parsed.Skipped

	for _, record := range parsed.Records {
		host, created, err := imp.reconcileHost(projectID, hostObservation{
			IP:     record.IP,
			Status: db.HostStatusUnknown,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: %v", record.IP, err))
			continue
		}
		if created {
			summary.HostsCreated++
			imp.audit(projectID, "whois_host_created", "host", host.ID, map[string]any{"ip": host.IPAddress})
		} else {
			summary.HostsUpdated++
		}

		if len(record.Attributes) == 0 {
			continue
		}
		merged, changed := mergeWhoisJSON(host.WhoisJSON, record.Attributes)
		if changed {
			host.WhoisJSON = merged
			if _, err := imp.db.UpdateHost(host); err != nil {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: %v", record.IP, err))
				continue
			}
		}
		summary.MetadataRecordsImported++
	}

	imp.audit(projectID, "whois_import_completed", "import", 0, map[string]any{
		"source_file":               filename,
		"hosts_created":             summary.HostsCreated,
		"hosts_updated":             summary.HostsUpdated,
		"metadata_records_imported": summary.MetadataRecordsImported,
		"skipped":                   summary.Skipped,
	})
	return summary
}

// mergeWhoisJSON overlays incoming attributes onto the stored blob. The
// second return is false when the overlay changes nothing.
func mergeWhoisJSON(stored string, incoming map[string]string) (string, bool) {
	existing := make(map[string]string)
	if stored != "" {
		// A blob we cannot decode is replaced outright.
		_ = json.Unmarshal([]byte(stored), &existing)
	}

	changed := false
	for key, value := range incoming {
		if existing[key] != value {
			existing[key] = value
			changed = true
		}
	}
	if !changed {
		return stored, false
	}
	raw, err := json.Marshal(existing)
	if err != nil {
		return stored, false
	}
	return string(raw), true
}
