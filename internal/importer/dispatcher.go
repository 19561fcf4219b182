package importer

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrProjectNotFound is returned when an import targets a project id that
// does not exist.
var ErrProjectNotFound = errors.New("project not found")

// UploadedFile is one file of a batch as received from the web handler or
// the CLI.
type UploadedFile struct {
	Name string
	Data []byte
}

// ImportBatch sniffs and imports each file, then aggregates the per-file
// summaries. One bad file yields a zero-counter summary with errors and never
// blocks the rest. The whole batch holds the project's import lock so two
// batches into the same project cannot interleave their find-then-create
// reconciliation.
func (imp *Importer) ImportBatch(projectID int64, files []UploadedFile) (BatchSummary, error) {
	_, ok, err := imp.db.GetProjectByID(projectID)
	if err != nil {
		return BatchSummary{}, err
	}
	if !ok {
		return BatchSummary{}, ErrProjectNotFound
	}

	lock := imp.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	results := make([]Summary, 0, len(files))
	for _, file := range files {
		summary := imp.importOne(projectID, file)
		for i := range summary.Errors {
			summary.Errors[i] = file.Name + ": " + summary.Errors[i]
		}
		imp.log.Info().
			Int64("project_id", projectID).
			Str("file", file.Name).
			Str("format", summary.Format).
			Int("hosts_created", summary.HostsCreated).
			Int("ports_created", summary.PortsCreated).
			Int("errors", len(summary.Errors)).
			Msg("file imported")
		results = append(results, summary)
	}
	return Aggregate(results), nil
}

// importOne routes a single file to its orchestrator. Fatal-to-file problems
// come back as a zero-counter summary carrying the rejection message.
func (imp *Importer) importOne(projectID int64, file UploadedFile) Summary {
	rejected := func(msg string) Summary {
		return Summary{Format: "unknown", Errors: []string{msg}}
	}

	if len(bytes.TrimSpace(file.Data)) == 0 {
		return rejected("File is empty.")
	}
	if !AllowedExtension(file.Name) {
		return rejected(ErrUnsupportedExtension.Error())
	}

	format, err := DetectFormat(file.Data, file.Name)
	if err != nil {
		return rejected(err.Error())
	}

	switch format {
	case FormatNmap:
		data := file.Data
		if strings.HasSuffix(strings.ToLower(file.Name), ".zip") {
			data, err = embeddedNmapXML(file.Data)
			if err != nil {
				return rejected(err.Error())
			}
		}
		return imp.importNmap(projectID, data, file.Name)

	case FormatMasscan:
		return imp.importMasscan(projectID, file.Data, file.Name)

	case FormatText:
		return imp.importText(projectID, file.Data, file.Name)

	case FormatWhois:
		return imp.importWhois(projectID, file.Data, file.Name)

	case FormatGoWitness:
		dir, err := os.MkdirTemp("", "gowitness-import-*")
		if err != nil {
			return rejected(fmt.Sprintf("Could not unpack archive: %v", err))
		}
		defer os.RemoveAll(dir)
		if err := extractZip(file.Data, dir); err != nil {
			return rejected(err.Error())
		}
		return imp.importGoWitness(projectID, dir, file.Name)
	}

	return rejected("Unsupported file format.")
}

// embeddedNmapXML returns the first nmap-shaped XML member of an archive.
func embeddedNmapXML(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.New("Invalid or corrupted ZIP file.")
	}
	for _, member := range zr.File {
		if !strings.HasSuffix(strings.ToLower(member.Name), ".xml") {
			continue
		}
		payload, err := readZipMember(member)
		if err != nil {
			continue
		}
		if looksLikeNmapXML(payload) {
			return payload, nil
		}
	}
	return nil, errors.New("ZIP no longer contains a valid Nmap XML member.")
}

// extractZip unpacks an archive under dest, refusing members whose paths
// would escape it.
func extractZip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.New("Invalid or corrupted ZIP file.")
	}

	for _, member := range zr.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := filepath.Clean(member.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			continue
		}
		target := filepath.Join(dest, name)
		if !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("unpack archive: %w", err)
		}
		if err := writeZipMember(member, target); err != nil {
			return fmt.Errorf("unpack archive: %w", err)
		}
	}
	return nil
}

func writeZipMember(member *zip.File, target string) error {
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
