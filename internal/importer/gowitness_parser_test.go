package importer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestURLFromImageName(t *testing.T) {
	cases := []struct {
		stem string
		want string
	}{
		{"https-10-0-0-9", "https://10.0.0.9"},
		{"http-10-0-0-9-8080", "http://10.0.0.9:8080"},
		{"https-example-com", "https://example.com"},
		{"http-example-com-8443", "http://example.com:8443"},
		{"ftp-10-0-0-9", ""},
		{"noscheme", ""},
	}
	for _, tc := range cases {
		if got := urlFromImageName(tc.stem); got != tc.want {
			t.Fatalf("urlFromImageName(%q) = %q, want %q", tc.stem, got, tc.want)
		}
	}
}

func TestParseGoWitnessDirFilenameOnly(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "https-10-0-0-9.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	result := ParseGoWitnessDir(dir, "shots.zip")
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}

	record := result.Records[0]
	if record.Host != "10.0.0.9" || record.Port != 443 || record.Scheme != "https" || !record.IsIP {
		t.Fatalf("unexpected record: %#v", record)
	}
	if record.ImagePath == "" {
		t.Fatalf("expected image path on record")
	}
}

func TestParseGoWitnessDirSidecarWins(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "capture.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	sidecar := `{"url": "https://app.example.com:8443", "response_code": 200, "title": "Login", "headers": [{"key": "Server", "value": "nginx/1.24.0"}], "technologies": [{"value": "nginx"}, "PHP"]}`
	if err := os.WriteFile(filepath.Join(dir, "capture.json"), []byte(sidecar), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	result := ParseGoWitnessDir(dir, "shots.zip")
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %#v (errors: %v)", result.Records, result.Errors)
	}

	record := result.Records[0]
	if record.Host != "app.example.com" || record.Port != 8443 || record.IsIP {
		t.Fatalf("unexpected identity: %#v", record)
	}
	if record.ResponseCode != 200 || record.Title != "Login" || record.ServerHeader != "nginx/1.24.0" {
		t.Fatalf("metadata not applied: %#v", record)
	}
	if len(record.Technologies) != 2 || record.Technologies[0] != "nginx" || record.Technologies[1] != "PHP" {
		t.Fatalf("technologies not flattened: %#v", record.Technologies)
	}
}

func TestParseGoWitnessDirJSONLOnly(t *testing.T) {
	dir := t.TempDir()
	jsonl := `{"url": "http://10.0.0.9", "response_code": 302, "redirects": ["http://10.0.0.9", "https://10.0.0.9"]}
not-json
{"url": "https://admin.example.com", "response_code": 401}
`
	if err := os.WriteFile(filepath.Join(dir, "results.jsonl"), []byte(jsonl), 0o644); err != nil {
		t.Fatalf("write jsonl: %v", err)
	}

	result := ParseGoWitnessDir(dir, "results.zip")
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %#v", result.Records)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one bad-line error, got %v", result.Errors)
	}
	if result.Records[0].Port != 80 || !result.Records[0].IsIP {
		t.Fatalf("unexpected first record: %#v", result.Records[0])
	}
	if len(result.Records[0].RedirectChain) != 2 {
		t.Fatalf("redirect chain not kept: %#v", result.Records[0])
	}
	if result.Records[1].Host != "admin.example.com" || result.Records[1].Port != 443 {
		t.Fatalf("unexpected second record: %#v", result.Records[1])
	}
}

func TestParseGoWitnessDirJSONLMatchesImageByStem(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shot-1.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	jsonl := `{"url": "https://10.0.0.4", "file_name": "shot-1.png", "response_code": 200}`
	if err := os.WriteFile(filepath.Join(dir, "results.jsonl"), []byte(jsonl), 0o644); err != nil {
		t.Fatalf("write jsonl: %v", err)
	}

	result := ParseGoWitnessDir(dir, "shots.zip")
	if len(result.Records) != 1 {
		t.Fatalf("expected the image and JSONL entry to merge: %#v", result.Records)
	}
	record := result.Records[0]
	if record.ImagePath == "" || record.Host != "10.0.0.4" || record.ResponseCode != 200 {
		t.Fatalf("unexpected merged record: %#v", record)
	}
}
