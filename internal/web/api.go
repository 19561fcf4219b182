package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, err error, status int) {
	s.jsonResponse(w, map[string]string{"error": err.Error()}, status)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.errorResponse(w, err, http.StatusBadRequest)
}

func (s *Server) notFound(w http.ResponseWriter, what string) {
	s.errorResponse(w, fmt.Errorf("%s not found", what), http.StatusNotFound)
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	s.errorResponse(w, err, http.StatusInternalServerError)
}

func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
