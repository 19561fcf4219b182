package importer

import "github.com/cyberheisen/redopsync/internal/db"

// Tool tags recorded in port.discovered_by and evidence.source. They double
// as merge keys for same-source refresh, so they live here instead of ad hoc
// string literals per importer. An empty tag means data entered by hand.
const (
	SourceNmap      = "nmap"
	SourceMasscan   = "masscan"
	SourceGoWitness = "gowitness"
	SourceText      = "text file import"
	SourceWhois     = "whois"
)

// sentinelIP marks hosts known only by hostname until a scan resolves them.
const sentinelIP = db.SentinelIP
