package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/cyberheisen/redopsync/internal/importer"
)

// maxUploadBytes caps a whole multipart upload. Screenshot archives run large.
const maxUploadBytes = 512 << 20

// apiImport accepts one or more files under the multipart field "files" and
// returns the aggregated batch summary. Per-file failures come back inside
// the summary's errors list with a 200, not as a request failure.
func (s *Server) apiImport(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.badRequest(w, errors.New("expected multipart form upload"))
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.badRequest(w, errors.New("no files uploaded; use the \"files\" form field"))
		return
	}

	files := make([]importer.UploadedFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			s.badRequest(w, err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.badRequest(w, err)
			return
		}
		files = append(files, importer.UploadedFile{Name: header.Filename, Data: data})
	}

	summary, err := s.Importer.ImportBatch(projectID, files)
	if err != nil {
		if errors.Is(err, importer.ErrProjectNotFound) {
			s.notFound(w, "project")
			return
		}
		s.serverError(w, err)
		return
	}
	s.jsonResponse(w, summary, http.StatusOK)
}
