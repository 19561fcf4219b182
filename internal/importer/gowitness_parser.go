package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// GoWitnessRecord is one capture: a screenshot file, a JSONL entry, or both.
// ImagePath is empty for metadata-only records.
type GoWitnessRecord struct {
	ImagePath     string
	URL           string
	Host          string
	Port          int
	Scheme        string
	IsIP          bool
	ResponseCode  int
	Title         string
	ServerHeader  string
	Technologies  []string
	RedirectChain []string
}

// GoWitnessParseResult is the canonical output of the screenshot-directory
// parser.
type GoWitnessParseResult struct {
	Records    []GoWitnessRecord
	Errors     []string
	SourceFile string
}

// gowitnessMeta mirrors the per-capture JSON gowitness writes, tolerating the
// shape drift between its releases (headers as list or map, technologies as
// strings or objects).
type gowitnessMeta struct {
	URL          string            `json:"url"`
	FinalURL     string            `json:"final_url"`
	ResponseCode int               `json:"response_code"`
	Title        string            `json:"title"`
	Filename     string            `json:"filename"`
	FileName     string            `json:"file_name"`
	Headers      json.RawMessage   `json:"headers"`
	Technologies []json.RawMessage `json:"technologies"`
	Redirects    []json.RawMessage `json:"redirects"`
}

func (m *gowitnessMeta) bestURL() string {
	if m.FinalURL != "" {
		return m.FinalURL
	}
	return m.URL
}

func (m *gowitnessMeta) serverHeader() string {
	if len(m.Headers) == 0 {
		return ""
	}
	var list []struct {
		Key   string `json:"key"`
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(m.Headers, &list); err == nil {
		for _, h := range list {
			name := h.Key
			if name == "" {
				name = h.Name
			}
			if strings.EqualFold(name, "server") {
				return h.Value
			}
		}
		return ""
	}
	var asMap map[string]string
	if err := json.Unmarshal(m.Headers, &asMap); err == nil {
		for name, value := range asMap {
			if strings.EqualFold(name, "server") {
				return value
			}
		}
	}
	return ""
}

func (m *gowitnessMeta) technologyList() []string {
	return stringsFromRaw(m.Technologies)
}

func (m *gowitnessMeta) redirectList() []string {
	return stringsFromRaw(m.Redirects)
}

// stringsFromRaw flattens entries that are plain strings or objects carrying
// a value/url field.
func stringsFromRaw(raw []json.RawMessage) []string {
	var out []string
	for _, entry := range raw {
		var s string
		if err := json.Unmarshal(entry, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Value string `json:"value"`
			URL   string `json:"url"`
			Name  string `json:"name"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil {
			switch {
			case obj.Value != "":
				out = append(out, obj.Value)
			case obj.URL != "":
				out = append(out, obj.URL)
			case obj.Name != "":
				out = append(out, obj.Name)
			}
		}
	}
	return out
}

// ParseGoWitnessDir walks an extracted gowitness output tree. Metadata for an
// image comes from a same-basename JSON sidecar, else a JSONL entry matched
// by filename or stem, else the URL is reconstructed from the filename
// convention scheme-host[-port].ext. JSONL entries without an image still
// yield records.
func ParseGoWitnessDir(root, sourceFile string) *GoWitnessParseResult {
	result := &GoWitnessParseResult{SourceFile: sourceFile}

	var images []string
	var jsonlFiles []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Walk error at %s: %v", path, err))
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "__") {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case hasImageExtension(d.Name()):
			images = append(images, path)
		case strings.HasSuffix(strings.ToLower(d.Name()), ".jsonl"):
			jsonlFiles = append(jsonlFiles, path)
		}
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Walk error: %v", err))
	}
	sort.Strings(images)
	sort.Strings(jsonlFiles)

	// Index JSONL entries by declared filename and by stem so images match
	// whichever the writing tool used.
	byName := make(map[string]*gowitnessMeta)
	var metaOrder []*gowitnessMeta
	for _, path := range jsonlFiles {
		for _, meta := range readJSONLines(path, result) {
			metaOrder = append(metaOrder, meta)
			for _, name := range []string{meta.Filename, meta.FileName} {
				if name == "" {
					continue
				}
				base := filepath.Base(name)
				byName[base] = meta
				byName[strings.TrimSuffix(base, filepath.Ext(base))] = meta
			}
		}
	}

	matched := make(map[*gowitnessMeta]bool)
	for _, imagePath := range images {
		base := filepath.Base(imagePath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))

		meta := readSidecar(imagePath)
		if meta == nil {
			if m, ok := byName[base]; ok {
				meta = m
			} else if m, ok := byName[stem]; ok {
				meta = m
			}
		}

		rawURL := ""
		if meta != nil {
			matched[meta] = true
			rawURL = meta.bestURL()
		}
		if rawURL == "" {
			rawURL = urlFromImageName(stem)
		}
		if rawURL == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: no metadata and filename does not encode a URL", base))
			continue
		}

		record, err := recordFromURL(rawURL)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", base, err))
			continue
		}
		record.ImagePath = imagePath
		applyMeta(&record, meta)
		result.Records = append(result.Records, record)
	}

	// JSONL-only captures, in file order.
	for _, meta := range metaOrder {
		if matched[meta] || meta.bestURL() == "" {
			continue
		}
		record, err := recordFromURL(meta.bestURL())
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("JSONL entry %q: %v", meta.bestURL(), err))
			continue
		}
		applyMeta(&record, meta)
		result.Records = append(result.Records, record)
	}
	return result
}

func readSidecar(imagePath string) *gowitnessMeta {
	sidecar := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".json"
	raw, err := os.ReadFile(sidecar)
	if err != nil {
		return nil
	}
	var meta gowitnessMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil
	}
	return &meta
}

func readJSONLines(path string, result *GoWitnessParseResult) []*gowitnessMeta {
	f, err := os.Open(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
		return nil
	}
	defer f.Close()

	var metas []*gowitnessMeta
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var meta gowitnessMeta
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: invalid JSON", filepath.Base(path), lineNo))
			continue
		}
		metas = append(metas, &meta)
	}
	if err := scanner.Err(); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
	}
	return metas
}

func applyMeta(record *GoWitnessRecord, meta *gowitnessMeta) {
	if meta == nil {
		return
	}
	record.ResponseCode = meta.ResponseCode
	record.Title = meta.Title
	record.ServerHeader = meta.serverHeader()
	record.Technologies = meta.technologyList()
	record.RedirectChain = meta.redirectList()
}

// urlFromImageName reconstructs a URL from the scheme-host[-port].ext naming
// convention, where dashes stand in for the dots of an address:
// https-10-0-0-9.png, http-example-com-8080.jpeg.
func urlFromImageName(stem string) string {
	tokens := strings.Split(stem, "-")
	if len(tokens) < 2 {
		return ""
	}
	scheme := strings.ToLower(tokens[0])
	if scheme != "http" && scheme != "https" {
		return ""
	}
	rest := tokens[1:]

	port := 0
	if len(rest) > 1 {
		last := rest[len(rest)-1]
		if n, err := strconv.Atoi(last); err == nil && n >= 1 && n <= 65535 {
			// A trailing 0-255 octet after exactly three others is part of an
			// IPv4 address, not a port.
			if !(len(rest) == 4 && n <= 255 && allNumeric(rest)) {
				port = n
				rest = rest[:len(rest)-1]
			}
		}
	}
	if len(rest) == 0 {
		return ""
	}

	host := strings.Join(rest, ".")
	if port == 0 {
		return scheme + "://" + host
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func allNumeric(tokens []string) bool {
	for _, tok := range tokens {
		if _, err := strconv.Atoi(tok); err != nil {
			return false
		}
	}
	return true
}

// recordFromURL fills the host/port/scheme identity fields from a capture URL.
func recordFromURL(rawURL string) (GoWitnessRecord, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return GoWitnessRecord{}, fmt.Errorf("unparseable URL %q", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	port := 0
	if p := parsed.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}
	if port == 0 {
		switch scheme {
		case "https":
			port = 443
		default:
			port = 80
		}
	}

	host := strings.ToLower(parsed.Hostname())
	_, err = netip.ParseAddr(host)
	return GoWitnessRecord{
		URL:    rawURL,
		Host:   host,
		Port:   port,
		Scheme: scheme,
		IsIP:   err == nil,
	}, nil
}
