package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cyberheisen/redopsync/internal/db"
)

type projectResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func mapProject(p db.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) apiListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.DB.ListProjects()
	if err != nil {
		s.serverError(w, err)
		return
	}

	items := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		items = append(items, mapProject(p))
	}
	s.jsonResponse(w, map[string]any{"items": items, "total": len(items)}, http.StatusOK)
}

func (s *Server) apiCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.badRequest(w, errors.New("name is required"))
		return
	}

	if _, exists, err := s.DB.GetProjectByName(req.Name); err != nil {
		s.serverError(w, err)
		return
	} else if exists {
		s.errorResponse(w, fmt.Errorf("project %q already exists", req.Name), http.StatusConflict)
		return
	}

	project, err := s.DB.CreateProject(req.Name, req.Description)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, mapProject(project), http.StatusCreated)
}

func (s *Server) apiGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	project, found, err := s.DB.GetProjectByID(projectID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	if !found {
		s.notFound(w, "project")
		return
	}
	s.jsonResponse(w, mapProject(project), http.StatusOK)
}

func (s *Server) apiUpdateProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.badRequest(w, errors.New("name is required"))
		return
	}

	if err := s.DB.UpdateProject(projectID, req.Name, req.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.notFound(w, "project")
			return
		}
		s.serverError(w, err)
		return
	}

	project, _, err := s.DB.GetProjectByID(projectID)
	if err != nil {
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, mapProject(project), http.StatusOK)
}

func (s *Server) apiDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.DB.DeleteProject(projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.notFound(w, "project")
			return
		}
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "deleted"}, http.StatusOK)
}
