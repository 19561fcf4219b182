package importer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Internal parsing structs matching nmap XML. Numeric attributes are decoded
// as strings so one malformed host cannot fail the whole document.
type nmapHostXML struct {
	StartTime string         `xml:"starttime,attr"`
	EndTime   string         `xml:"endtime,attr"`
	Addresses []nmapAddress  `xml:"address"`
	Status    nmapHostState  `xml:"status"`
	Hostnames []nmapHostname `xml:"hostnames>hostname"`
	Ports     []nmapPortXML  `xml:"ports>port"`
}

type nmapHostState struct {
	State string `xml:"state,attr"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
}

type nmapPortXML struct {
	Protocol string        `xml:"protocol,attr"`
	PortID   string        `xml:"portid,attr"`
	State    nmapPortState `xml:"state"`
	Service  nmapService   `xml:"service"`
	Scripts  []nmapScript  `xml:"script"`
}

type nmapPortState struct {
	State     string `xml:"state,attr"`
	Reason    string `xml:"reason,attr"`
	ReasonTTL string `xml:"reason_ttl,attr"`
}

type nmapService struct {
	Name      string `xml:"name,attr"`
	Product   string `xml:"product,attr"`
	Version   string `xml:"version,attr"`
	ExtraInfo string `xml:"extrainfo,attr"`
	OSType    string `xml:"ostype,attr"`
	Tunnel    string `xml:"tunnel,attr"`
	Method    string `xml:"method,attr"`
	Conf      string `xml:"conf,attr"`
	DevType   string `xml:"devicetype,attr"`
}

type nmapScript struct {
	ID     string `xml:"id,attr"`
	Output string `xml:"output,attr"`
	Text   string `xml:",chardata"`
}

type nmapFinished struct {
	Time    string `xml:"time,attr"`
	TimeStr string `xml:"timestr,attr"`
}

type nmapRunStats struct {
	Finished nmapFinished `xml:"finished"`
}

// NmapScript is a preserved NSE script output block, keyed by probe id.
type NmapScript struct {
	ID     string
	Output string
}

// NmapPort is a parsed port/service from Nmap XML.
type NmapPort struct {
	Number         int
	Protocol       string
	State          string
	StateReason    string
	StateReasonTTL int
	ServiceName    string
	Product        string
	Version        string
	ExtraInfo      string
	OSType         string
	Tunnel         string
	ServiceMethod  string
	ServiceConf    int
	DeviceType     string
	Scripts        []NmapScript
}

// NmapHost is a parsed host from Nmap XML. A host with a hostname but no
// address carries the sentinel IP and Unresolved=true.
type NmapHost struct {
	IP         string
	Hostname   string
	Hostnames  []string
	Status     string
	StartTime  string
	EndTime    string
	Unresolved bool
	Ports      []NmapPort
}

// NmapRunInfo captures scan-run metadata for audit and port scan_metadata.
type NmapRunInfo struct {
	Version   string
	Args      string
	ScanStart string
	ScanEnd   string
	TaskTimes []int64
}

// NmapParseResult is the canonical output of the Nmap XML parser.
type NmapParseResult struct {
	Hosts      []NmapHost
	Errors     []string
	Info       NmapRunInfo
	SourceFile string
}

// ParseNmapXML walks an Nmap XML document host by host. A malformed host or
// port is recorded as a non-fatal error; the rest of the file still parses.
func ParseNmapXML(data []byte, sourceFile string) *NmapParseResult {
	result := &NmapParseResult{SourceFile: sourceFile}

	dec := xml.NewDecoder(bytes.NewReader(data))
	rootSeen := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Malformed XML: %v", err))
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !rootSeen {
			if start.Name.Local != "nmaprun" {
				result.Errors = append(result.Errors, "XML root is not nmaprun; not a valid Nmap XML file")
				return result
			}
			rootSeen = true
			for _, attr := range start.Attr {
				switch attr.Name.Local {
				case "version":
					result.Info.Version = attr.Value
				case "args":
					result.Info.Args = strings.TrimSpace(attr.Value)
				case "startstr":
					result.Info.ScanStart = attr.Value
				}
			}
			continue
		}

		switch start.Name.Local {
		case "host":
			var raw nmapHostXML
			if err := dec.DecodeElement(&raw, &start); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Error parsing host block: %v", err))
				continue
			}
			if host, ok := hostFromXML(raw, result); ok {
				result.Hosts = append(result.Hosts, host)
			}
		case "taskbegin", "taskend":
			for _, attr := range start.Attr {
				if attr.Name.Local == "time" {
					if epoch, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
						result.Info.TaskTimes = append(result.Info.TaskTimes, epoch)
					}
				}
			}
		case "runstats":
			var stats nmapRunStats
			if err := dec.DecodeElement(&stats, &start); err == nil {
				if stats.Finished.Time != "" {
					result.Info.ScanEnd = stats.Finished.Time
				} else {
					result.Info.ScanEnd = stats.Finished.TimeStr
				}
			}
		}
	}

	sort.Slice(result.Info.TaskTimes, func(i, j int) bool {
		return result.Info.TaskTimes[i] < result.Info.TaskTimes[j]
	})

	if !rootSeen && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "XML root is not nmaprun; not a valid Nmap XML file")
	}
	if rootSeen && len(result.Hosts) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "No host blocks found in Nmap XML")
	}
	return result
}

// hostFromXML converts one decoded host element. Hosts with neither address
// nor hostname are dropped; invalid ports are recorded and skipped.
func hostFromXML(raw nmapHostXML, result *NmapParseResult) (NmapHost, bool) {
	var ipv4, ipv6 string
	for _, addr := range raw.Addresses {
		if addr.Addr == "" {
			continue
		}
		switch strings.ToLower(addr.AddrType) {
		case "ipv4":
			ipv4 = addr.Addr
		case "ipv6":
			ipv6 = addr.Addr
		}
	}
	ip := ipv4
	if ip == "" {
		ip = ipv6
	}

	var hostnames []string
	for _, hn := range raw.Hostnames {
		if hn.Name != "" {
			hostnames = append(hostnames, hn.Name)
		}
	}
	hostname := ""
	if len(hostnames) > 0 {
		hostname = hostnames[0]
	}

	unresolved := false
	if ip == "" {
		if hostname == "" {
			return NmapHost{}, false
		}
		unresolved = true
		ip = sentinelIP
	}

	status := strings.ToLower(strings.TrimSpace(raw.Status.State))
	if status == "" {
		status = "unknown"
	}

	host := NmapHost{
		IP:         ip,
		Hostname:   hostname,
		Hostnames:  hostnames,
		Status:     status,
		StartTime:  raw.StartTime,
		EndTime:    raw.EndTime,
		Unresolved: unresolved,
	}

	for _, rawPort := range raw.Ports {
		port, err := portFromXML(rawPort)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Host %s: %v", ip, err))
			continue
		}
		host.Ports = append(host.Ports, port)
	}
	return host, true
}

func portFromXML(raw nmapPortXML) (NmapPort, error) {
	number, err := strconv.Atoi(strings.TrimSpace(raw.PortID))
	if err != nil || number < 1 || number > 65535 {
		return NmapPort{}, fmt.Errorf("invalid port id %q", raw.PortID)
	}

	protocol := strings.ToLower(raw.Protocol)
	if protocol != "tcp" && protocol != "udp" {
		protocol = "tcp"
	}

	state := raw.State.State
	if state == "" {
		state = "unknown"
	}

	port := NmapPort{
		Number:        number,
		Protocol:      protocol,
		State:         state,
		StateReason:   raw.State.Reason,
		ServiceName:   raw.Service.Name,
		Product:       raw.Service.Product,
		Version:       raw.Service.Version,
		ExtraInfo:     raw.Service.ExtraInfo,
		OSType:        raw.Service.OSType,
		Tunnel:        strings.ToLower(strings.TrimSpace(raw.Service.Tunnel)),
		ServiceMethod: raw.Service.Method,
		DeviceType:    raw.Service.DevType,
	}
	if ttl, err := strconv.Atoi(raw.State.ReasonTTL); err == nil {
		port.StateReasonTTL = ttl
	}
	if conf, err := strconv.Atoi(raw.Service.Conf); err == nil {
		port.ServiceConf = conf
	}

	for _, script := range raw.Scripts {
		if script.ID == "" {
			continue
		}
		output := script.Output
		if output == "" {
			output = strings.TrimSpace(script.Text)
		}
		port.Scripts = append(port.Scripts, NmapScript{ID: script.ID, Output: output})
	}
	return port, nil
}
