package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cyberheisen/redopsync/internal/db"
	"github.com/cyberheisen/redopsync/internal/importer"
)

// Server wires the JSON API handlers and dependencies.
type Server struct {
	DB       *db.DB
	Importer *importer.Importer
	Log      zerolog.Logger
	Router   chi.Router
}

// NewServer constructs the router and registers routes.
func NewServer(database *db.DB, imp *importer.Importer, log zerolog.Logger) *Server {
	server := &Server{DB: database, Importer: imp, Log: log}

	r := chi.NewRouter()
	r.Get("/api/projects", server.apiListProjects)
	r.Post("/api/projects", server.apiCreateProject)
	r.Get("/api/projects/{id}", server.apiGetProject)
	r.Put("/api/projects/{id}", server.apiUpdateProject)
	r.Delete("/api/projects/{id}", server.apiDeleteProject)

	r.Post("/api/projects/{id}/import", server.apiImport)

	r.Get("/api/projects/{id}/subnets", server.apiListSubnets)
	r.Get("/api/projects/{id}/hosts", server.apiListHosts)
	r.Get("/api/projects/{id}/hosts/{hostID}", server.apiGetHost)
	r.Get("/api/projects/{id}/hosts/{hostID}/ports", server.apiListPorts)
	r.Get("/api/projects/{id}/hosts/{hostID}/evidence", server.apiListHostEvidence)
	r.Get("/api/projects/{id}/ports/{portID}/evidence", server.apiListPortEvidence)
	r.Get("/api/projects/{id}/events", server.apiListAuditEvents)

	server.Router = r
	return server
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.Router
}
