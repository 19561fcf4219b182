package importer

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"strings"

	"github.com/cyberheisen/redopsync/internal/db"
)

// TextHost is one parsed host-list line.
type TextHost struct {
	IP       string
	Hostname string
}

// TextParseResult is the canonical output of the plain-text host parser.
type TextParseResult struct {
	Hosts      []TextHost
	Errors     []string
	Skipped    int
	SourceFile string
}

// ParseTextHosts parses a plain host list, one `IP [hostname]` per line.
// Invalid addresses are per-line errors; duplicate IPs within the file are
// collapsed, first occurrence wins.
func ParseTextHosts(data []byte, sourceFile string) *TextParseResult {
	result := &TextParseResult{SourceFile: sourceFile}

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Line %d: invalid IP address %q", lineNo, fields[0]))
			continue
		}
		ip := addr.String()

		if _, dup := seen[ip]; dup {
			result.Skipped++
			continue
		}
		seen[ip] = struct{}{}

		hostname := ""
		if len(fields) > 1 {
			hostname = strings.ToLower(fields[1])
		}
		result.Hosts = append(result.Hosts, TextHost{IP: ip, Hostname: hostname})
	}
	if err := scanner.Err(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Read error: %v", err))
	}
	return result
}

// importText writes a parsed host list into the project. A host list says
// nothing about liveness, so hosts are created with status unknown.
func (imp *Importer) importText(projectID int64, data []byte, filename string) Summary {
	summary := Summary{Format: string(FormatText), Errors: []string{}}
	imp.audit(projectID, "text_import_started", "import", 0, map[string]any{
		"source_file": filename,
	})

	parsed := ParseTextHosts(data, filename)
	summary.Errors = append(summary.Errors, parsed.Errors...)
	summary.Skipped += parsed.Skipped

	for _, parsedHost := range parsed.Hosts {
		host, created, err := imp.reconcileHost(projectID, hostObservation{
			IP:       parsedHost.IP,
			Hostname: parsedHost.Hostname,
			Status:   db.HostStatusUnknown,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Host %s: %v", parsedHost.IP, err))
			continue
		}
		if created {
			summary.HostsCreated++
			imp.audit(projectID, "text_host_created", "host", host.ID, map[string]any{"ip": host.IPAddress})
		} else {
			summary.HostsUpdated++
		}
	}

	imp.audit(projectID, "text_import_completed", "import", 0, map[string]any{
		"source_file":   filename,
		"hosts_created": summary.HostsCreated,
		"hosts_updated": summary.HostsUpdated,
		"skipped":       summary.Skipped,
	})
	return summary
}
