package importer

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cyberheisen/redopsync/internal/db"
)

// importGoWitness writes an extracted gowitness output tree into the project.
// A capture is proof of liveness: every host it names goes online no matter
// what earlier scans claimed.
func (imp *Importer) importGoWitness(projectID int64, dir, sourceFile string) Summary {
	summary := Summary{Format: string(FormatGoWitness), Errors: []string{}}
	imp.audit(projectID, "gowitness_import_started", "import", 0, map[string]any{
		"source_file": sourceFile,
	})

	parsed := ParseGoWitnessDir(dir, sourceFile)
	summary.Errors = append(summary.Errors, parsed.Errors...)
	if len(parsed.Records) == 0 {
		return summary
	}

	for _, record := range parsed.Records {
		obs := hostObservation{Status: db.HostStatusOnline}
		if record.IsIP {
			obs.IP = record.Host
		} else {
			obs.Hostname = record.Host
		}

		host, created, err := imp.reconcileHost(projectID, obs)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: %v", record.URL, err))
			continue
		}
		if created {
			summary.HostsCreated++
			imp.audit(projectID, "gowitness_host_created", "host", host.ID, map[string]any{
				"ip":       host.IPAddress,
				"hostname": host.Hostname,
			})
		} else {
			summary.HostsUpdated++
		}

		port, portCreated, err := imp.reconcilePort(host, portObservation{
			Number:      record.Port,
			Protocol:    "tcp",
			State:       "open",
			ServiceName: record.Scheme,
			Source:      SourceGoWitness,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: %v", record.URL, err))
			continue
		}
		if portCreated {
			summary.PortsCreated++
			imp.audit(projectID, "gowitness_port_created", "port", port.ID, map[string]any{
				"ip":       host.IPAddress,
				"port":     record.Port,
				"protocol": "tcp",
			})
		} else {
			summary.PortsUpdated++
		}

		if record.ImagePath != "" {
			imp.storeScreenshot(projectID, host, port, record, sourceFile, &summary)
		}
		imp.recordCaptureMetadata(projectID, host, port, record, sourceFile, &summary)
	}

	imp.audit(projectID, "gowitness_import_completed", "import", 0, map[string]any{
		"source_file":          sourceFile,
		"hosts_created":        summary.HostsCreated,
		"hosts_updated":        summary.HostsUpdated,
		"ports_created":        summary.PortsCreated,
		"ports_updated":        summary.PortsUpdated,
		"screenshots_imported": summary.ScreenshotsImported,
		"evidence_created":     summary.EvidenceCreated,
		"skipped":              summary.Skipped,
	})
	return summary
}

// storeScreenshot copies the image under the evidence directory and appends
// an evidence row, unless identical bytes from gowitness already exist on the
// port.
func (imp *Importer) storeScreenshot(projectID int64, host db.Host, port db.Port, record GoWitnessRecord, sourceFile string, summary *Summary) {
	payload, err := os.ReadFile(record.ImagePath)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: read screenshot: %v", record.URL, err))
		return
	}
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])

	exists, err := imp.db.HasEvidenceWithHash(port.ID, SourceGoWitness, digest)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: evidence lookup: %v", record.URL, err))
		return
	}
	if exists {
		summary.Skipped++
		return
	}

	ext := strings.ToLower(filepath.Ext(record.ImagePath))
	relPath := filepath.Join("gowitness", fmt.Sprintf("%d", port.ID), uuid.NewString()+ext)
	destPath := filepath.Join(imp.evidenceDir, relPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: store screenshot: %v", record.URL, err))
		return
	}
	if err := os.WriteFile(destPath, payload, 0o644); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: store screenshot: %v", record.URL, err))
		return
	}

	_, err = imp.db.InsertEvidence(db.Evidence{
		ProjectID:  projectID,
		HostID:     host.ID,
		PortID:     sql.NullInt64{Int64: port.ID, Valid: true},
		Filename:   filepath.Base(record.ImagePath),
		Caption:    "Screenshot of " + record.URL,
		MIME:       imageMIME(ext),
		Size:       int64(len(payload)),
		SHA256:     digest,
		StoredPath: relPath,
		Source:     SourceGoWitness,
		SourceFile: sourceFile,
		ImportedAt: sql.NullTime{Time: time.Now().UTC(), Valid: true},
	})
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("Capture %s: evidence insert: %v", record.URL, err))
		return
	}
	summary.EvidenceCreated++
	summary.ScreenshotsImported++
}

// recordCaptureMetadata turns the capture's response metadata into text-only
// evidence rows behind the caption-prefix dedup gate.
func (imp *Importer) recordCaptureMetadata(projectID int64, host db.Host, port db.Port, record GoWitnessRecord, sourceFile string, summary *Summary) {
	if record.ResponseCode != 0 {
		imp.addMetadataEvidence(projectID, host, port.ID, SourceGoWitness, sourceFile,
			"Response code:", fmt.Sprintf("Response code: %d", record.ResponseCode), summary)
	}
	if record.ServerHeader != "" {
		imp.addMetadataEvidence(projectID, host, port.ID, SourceGoWitness, sourceFile,
			"Server:", "Server: "+record.ServerHeader, summary)
	}
	if record.Title != "" {
		imp.addMetadataEvidence(projectID, host, port.ID, SourceGoWitness, sourceFile,
			"Page title:", "Page title: "+record.Title, summary)
	}
	if len(record.Technologies) > 0 {
		imp.addMetadataEvidence(projectID, host, port.ID, SourceGoWitness, sourceFile,
			"Technologies:", "Technologies: "+strings.Join(record.Technologies, ", "), summary)
	}
	if len(record.RedirectChain) > 0 {
		imp.addMetadataEvidence(projectID, host, port.ID, SourceGoWitness, sourceFile,
			"Redirect chain:", "Redirect chain: "+strings.Join(record.RedirectChain, " -> "), summary)
	}
}

func imageMIME(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
