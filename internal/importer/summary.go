package importer

// Summary is the per-file import result. All orchestrators fill the same
// shape; counters that do not apply to a format stay zero.
type Summary struct {
	Format                  string   `json:"format"`
	HostsCreated            int      `json:"hosts_created"`
	HostsUpdated            int      `json:"hosts_updated"`
	PortsCreated            int      `json:"ports_created"`
	PortsUpdated            int      `json:"ports_updated"`
	EvidenceCreated         int      `json:"evidence_created"`
	ScreenshotsImported     int      `json:"screenshots_imported"`
	MetadataRecordsImported int      `json:"metadata_records_imported"`
	Skipped                 int      `json:"skipped"`
	Errors                  []string `json:"errors"`
}

// BatchSummary aggregates per-file summaries for a multi-file upload.
type BatchSummary struct {
	Summary
	FilesProcessed int `json:"files_processed"`
}

// Aggregate sums numeric fields across per-file results and concatenates
// their error lists. Format becomes "mixed" when the batch spans more than
// one detected format, "unknown" when the batch is empty.
func Aggregate(results []Summary) BatchSummary {
	agg := BatchSummary{Summary: Summary{Format: "unknown", Errors: []string{}}}
	if len(results) == 0 {
		return agg
	}

	formats := make(map[string]struct{})
	for _, r := range results {
		agg.HostsCreated += r.HostsCreated
		agg.HostsUpdated += r.HostsUpdated
		agg.PortsCreated += r.PortsCreated
		agg.PortsUpdated += r.PortsUpdated
		agg.EvidenceCreated += r.EvidenceCreated
		agg.ScreenshotsImported += r.ScreenshotsImported
		agg.MetadataRecordsImported += r.MetadataRecordsImported
		agg.Skipped += r.Skipped
		agg.Errors = append(agg.Errors, r.Errors...)
		formats[r.Format] = struct{}{}
	}

	if len(formats) == 1 {
		agg.Format = results[0].Format
	} else {
		agg.Format = "mixed"
	}
	agg.FilesProcessed = len(results)
	return agg
}
