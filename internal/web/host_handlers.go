package web

import (
	"net/http"
	"time"

	"github.com/cyberheisen/redopsync/internal/db"
)

type subnetResponse struct {
	ID   int64  `json:"id"`
	CIDR string `json:"cidr"`
	Name string `json:"name"`
}

type hostResponse struct {
	ID        int64  `json:"id"`
	SubnetID  *int64 `json:"subnet_id"`
	IPAddress string `json:"ip_address"`
	Hostname  string `json:"hostname"`
	Status    string `json:"status"`
	WhoisJSON string `json:"whois_json,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type portResponse struct {
	ID             int64  `json:"id"`
	PortNumber     int    `json:"port_number"`
	Protocol       string `json:"protocol"`
	State          string `json:"state"`
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Banner         string `json:"banner,omitempty"`
	DiscoveredBy   string `json:"discovered_by"`
	ScanMetadata   string `json:"scan_metadata,omitempty"`
	ScannedAt      string `json:"scanned_at,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

type evidenceResponse struct {
	ID         int64  `json:"id"`
	HostID     int64  `json:"host_id"`
	PortID     *int64 `json:"port_id"`
	Filename   string `json:"filename,omitempty"`
	Caption    string `json:"caption"`
	MIME       string `json:"mime"`
	Size       int64  `json:"size,omitempty"`
	SHA256     string `json:"sha256,omitempty"`
	StoredPath string `json:"stored_path,omitempty"`
	Source     string `json:"source"`
	SourceFile string `json:"source_file,omitempty"`
}

func mapHost(h db.Host) hostResponse {
	resp := hostResponse{
		ID:        h.ID,
		IPAddress: h.IPAddress,
		Hostname:  h.Hostname,
		Status:    h.Status,
		WhoisJSON: h.WhoisJSON,
		Notes:     h.Notes,
	}
	if h.SubnetID.Valid {
		id := h.SubnetID.Int64
		resp.SubnetID = &id
	}
	return resp
}

func mapPort(p db.Port) portResponse {
	resp := portResponse{
		ID:             p.ID,
		PortNumber:     p.PortNumber,
		Protocol:       p.Protocol,
		State:          p.State,
		ServiceName:    p.ServiceName,
		ServiceVersion: p.ServiceVersion,
		Banner:         p.Banner,
		DiscoveredBy:   p.DiscoveredBy,
		ScanMetadata:   p.ScanMetadata,
		Notes:          p.Notes,
	}
	if p.ScannedAt.Valid {
		resp.ScannedAt = p.ScannedAt.Time.UTC().Format(time.RFC3339)
	}
	return resp
}

func mapEvidence(ev db.Evidence) evidenceResponse {
	resp := evidenceResponse{
		ID:         ev.ID,
		HostID:     ev.HostID,
		Filename:   ev.Filename,
		Caption:    ev.Caption,
		MIME:       ev.MIME,
		Size:       ev.Size,
		SHA256:     ev.SHA256,
		StoredPath: ev.StoredPath,
		Source:     ev.Source,
		SourceFile: ev.SourceFile,
	}
	if ev.PortID.Valid {
		id := ev.PortID.Int64
		resp.PortID = &id
	}
	return resp
}

// projectHost loads the host and verifies it belongs to the project in the
// URL, so host ids cannot be probed across projects.
func (s *Server) projectHost(w http.ResponseWriter, r *http.Request) (db.Host, bool) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return db.Host{}, false
	}
	hostID, err := urlID(r, "hostID")
	if err != nil {
		s.badRequest(w, err)
		return db.Host{}, false
	}

	host, found, err := s.DB.GetHostByID(hostID)
	if err != nil {
		s.serverError(w, err)
		return db.Host{}, false
	}
	if !found || host.ProjectID != projectID {
		s.notFound(w, "host")
		return db.Host{}, false
	}
	return host, true
}

func (s *Server) apiListSubnets(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	subnets, err := s.DB.ListSubnets(projectID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	items := make([]subnetResponse, 0, len(subnets))
	for _, sn := range subnets {
		items = append(items, subnetResponse{ID: sn.ID, CIDR: sn.CIDR, Name: sn.Name})
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

func (s *Server) apiListHosts(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	hosts, err := s.DB.ListHosts(projectID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	items := make([]hostResponse, 0, len(hosts))
	for _, h := range hosts {
		items = append(items, mapHost(h))
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

func (s *Server) apiGetHost(w http.ResponseWriter, r *http.Request) {
	host, ok := s.projectHost(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, mapHost(host), http.StatusOK)
}

func (s *Server) apiListPorts(w http.ResponseWriter, r *http.Request) {
	host, ok := s.projectHost(w, r)
	if !ok {
		return
	}
	ports, err := s.DB.ListPorts(host.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	items := make([]portResponse, 0, len(ports))
	for _, p := range ports {
		items = append(items, mapPort(p))
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

func (s *Server) apiListHostEvidence(w http.ResponseWriter, r *http.Request) {
	host, ok := s.projectHost(w, r)
	if !ok {
		return
	}
	evidence, err := s.DB.ListEvidenceForHost(host.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}

	items := make([]evidenceResponse, 0, len(evidence))
	for _, ev := range evidence {
		items = append(items, mapEvidence(ev))
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

func (s *Server) apiListPortEvidence(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	portID, err := urlID(r, "portID")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	port, found, err := s.DB.GetPortByID(portID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !found {
		s.notFound(w, "port")
		return
	}
	host, found, err := s.DB.GetHostByID(port.HostID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !found || host.ProjectID != projectID {
		s.notFound(w, "port")
		return
	}

	evidence, err := s.DB.ListEvidenceForPort(port.ID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	items := make([]evidenceResponse, 0, len(evidence))
	for _, ev := range evidence {
		items = append(items, mapEvidence(ev))
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

func (s *Server) apiListAuditEvents(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	events, err := s.DB.ListAuditEvents(projectID, 200)
	if err != nil {
		s.serverError(w, err)
		return
	}

	type eventResponse struct {
		ID         int64  `json:"id"`
		ActionType string `json:"action_type"`
		RecordType string `json:"record_type"`
		RecordID   *int64 `json:"record_id"`
		Payload    string `json:"payload,omitempty"`
		CreatedAt  string `json:"created_at"`
	}
	items := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		mapped := eventResponse{
			ID:         ev.ID,
			ActionType: ev.ActionType,
			RecordType: ev.RecordType,
			Payload:    ev.Payload,
			CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339),
		}
		if ev.RecordID.Valid {
			id := ev.RecordID.Int64
			mapped.RecordID = &id
		}
		items = append(items, mapped)
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}
