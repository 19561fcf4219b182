package importer

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies which parser handles a file. The sniffer returns exactly
// one of these or a diagnosable rejection; it never guesses.
type Format string

const (
	FormatNmap      Format = "nmap"
	FormatMasscan   Format = "masscan"
	FormatText      Format = "text"
	FormatGoWitness Format = "gowitness"
	FormatWhois     Format = "whois"
)

var allowedExtensions = []string{".xml", ".zip", ".txt", ".json", ".masscan", ".lst"}

// ErrUnsupportedExtension rejects files before any parsing happens.
var ErrUnsupportedExtension = errors.New(
	"Unsupported file type. Use Nmap XML (.xml), GoWitness ZIP (.zip), plain text (.txt), Masscan list (.masscan or .lst), or whois/RDAP JSON (.json).")

// AllowedExtension reports whether the filename carries one of the accepted
// upload extensions.
func AllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

var imageExtensions = []string{".png", ".jpg", ".jpeg"}

func hasImageExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// looksLikeNmapXML checks the head of the content for an nmaprun root.
func looksLikeNmapXML(data []byte) bool {
	head := data
	if len(head) > 2000 {
		head = head[:2000]
	}
	text := string(head)
	if strings.Contains(text, "<nmaprun") {
		return true
	}
	return strings.Contains(text, "<?xml") && strings.Contains(strings.ToLower(text), "nmap")
}

// looksLikeNmapGrepable checks for -oG output so we can reject it by name.
func looksLikeNmapGrepable(data []byte) bool {
	head := data
	if len(head) > 5000 {
		head = head[:5000]
	}
	text := string(head)
	return strings.Contains(text, "Host:") &&
		(strings.Contains(text, "Ports:") || strings.Contains(text, "Status:")) &&
		strings.Contains(text, "\t")
}

// looksLikeNmapNormal checks for -oN output so we can reject it by name.
func looksLikeNmapNormal(data []byte) bool {
	head := data
	if len(head) > 2000 {
		head = head[:2000]
	}
	text := string(head)
	return strings.Contains(text, "Nmap scan report") && strings.Contains(text, "Starting Nmap")
}

// DetectFormat inspects filename and content and picks exactly one parser,
// or returns a human-readable rejection explaining what was expected and why
// the file did not match. It never silently defaults to the wrong parser.
func DetectFormat(data []byte, filename string) (Format, error) {
	fn := strings.ToLower(strings.TrimSpace(filename))

	switch {
	case strings.HasSuffix(fn, ".xml"):
		if looksLikeNmapXML(data) {
			return FormatNmap, nil
		}
		head := data
		if len(head) > 500 {
			head = head[:500]
		}
		if bytes.Contains(head, []byte("<?xml")) || bytes.Contains(bytes.TrimSpace(head), []byte("<")) {
			return "", errors.New("File appears to be XML but not valid Nmap format. Ensure it is Nmap XML output (-oX).")
		}
		return "", errors.New("Invalid or unsupported XML file. Nmap XML (-oX) is required.")

	case strings.HasSuffix(fn, ".zip"):
		return detectZipFormat(data)

	case strings.HasSuffix(fn, ".masscan"), strings.HasSuffix(fn, ".lst"):
		return FormatMasscan, nil

	case strings.HasSuffix(fn, ".txt"):
		// Masscan list output is routinely saved as .txt; the line shape is
		// unambiguous, so sniff before falling back to the plain host list.
		if IsMasscanList(data) {
			return FormatMasscan, nil
		}
		return FormatText, nil

	case strings.HasSuffix(fn, ".json"):
		return FormatWhois, nil

	case strings.HasSuffix(fn, ".gnmap"):
		return "", errors.New("Grepable format (-oG) is not yet supported. Use XML output (-oX).")

	case strings.HasSuffix(fn, ".nmap"):
		return "", errors.New("Normal format (-oN) is not yet supported. Use XML output (-oX).")
	}

	// Content sniffing when the extension is absent or unknown.
	if looksLikeNmapXML(data) {
		return FormatNmap, nil
	}
	if looksLikeNmapGrepable(data) {
		return "", errors.New("Grepable format (-oG) is not yet supported. Use XML output (-oX).")
	}
	if looksLikeNmapNormal(data) {
		return "", errors.New("Normal format (-oN) is not yet supported. Use XML output (-oX).")
	}
	if IsMasscanList(data) {
		return FormatMasscan, nil
	}

	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return "", errors.New("XML content is not a recognized scanner schema. Nmap XML (-oX) is the only supported XML format.")
	}
	if bytes.HasPrefix(trimmed, []byte("[")) || bytes.HasPrefix(trimmed, []byte("{")) {
		return "", errors.New("JSON content must be a whois/RDAP record array uploaded with a .json extension.")
	}
	return "", errors.New("Unsupported file format. Use Nmap XML (.xml), GoWitness ZIP (.zip), plain text (.txt), Masscan list (.masscan or .lst), or whois/RDAP JSON (.json).")
}

// detectZipFormat opens the archive and routes on its members: an embedded
// Nmap XML wins, otherwise screenshots and/or JSONL mean GoWitness output.
func detectZipFormat(data []byte) (Format, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.New("Invalid or corrupted ZIP file.")
	}

	hasImage := false
	hasJSONL := false
	for _, member := range zr.File {
		name := member.Name
		if strings.HasPrefix(filepath.Base(name), "__") {
			continue
		}
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".xml") {
			payload, err := readZipMember(member)
			if err != nil {
				continue
			}
			if looksLikeNmapXML(payload) {
				return FormatNmap, nil
			}
		}
		if hasImageExtension(lower) {
			hasImage = true
		}
		if strings.HasSuffix(lower, ".jsonl") {
			hasJSONL = true
		}
	}

	if hasImage || hasJSONL {
		return FormatGoWitness, nil
	}
	return "", fmt.Errorf("ZIP contents not recognized. Expected: Nmap XML (.xml), or GoWitness output (PNG/JPEG screenshots and/or .jsonl).")
}

func readZipMember(member *zip.File) ([]byte, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
