package importer

import (
	"strings"
	"testing"
)

func TestParseWhoisJSON(t *testing.T) {
	input := `[
  {"ip": "10.0.0.7", "asn": "AS65000", "asn_description": "EXAMPLE-NET", "country": "US", "cidr": "10.0.0.0/8", "irrelevant_key": "dropped"},
  {"ip": "10.0.0.7", "asn": "AS65001"},
  {"asn": "AS65002"},
  {"ip": "10.0.0.8", "asn": 65003, "network_name": "corp"}
]`
	result := ParseWhoisJSON([]byte(input), "lookups.json")
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %#v", result.Records)
	}
	if result.Skipped != 2 {
		t.Fatalf("expected duplicate and invalid records skipped, got %d", result.Skipped)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "missing or invalid ip") {
		t.Fatalf("expected one per-record error, got %v", result.Errors)
	}

	first := result.Records[0]
	if first.IP != "10.0.0.7" || first.Attributes["asn"] != "AS65000" {
		t.Fatalf("first record wrong or duplicate did not collapse: %#v", first)
	}
	if _, ok := first.Attributes["irrelevant_key"]; ok {
		t.Fatalf("non-allow-listed keys must be dropped: %#v", first.Attributes)
	}

	second := result.Records[1]
	if second.Attributes["asn"] != "65003" {
		t.Fatalf("numeric attributes must stringify: %#v", second.Attributes)
	}
	if second.Attributes["network_name"] != "corp" {
		t.Fatalf("unexpected attributes: %#v", second.Attributes)
	}
}

func TestParseWhoisJSONNotAnArray(t *testing.T) {
	result := ParseWhoisJSON([]byte(`{"ip": "10.0.0.7"}`), "lookups.json")
	if len(result.Records) != 0 || len(result.Errors) != 1 {
		t.Fatalf("expected fatal shape error, got %#v", result)
	}
}

func TestMergeWhoisJSON(t *testing.T) {
	merged, changed := mergeWhoisJSON("", map[string]string{"asn": "AS65000"})
	if !changed || !strings.Contains(merged, "AS65000") {
		t.Fatalf("expected fresh merge: %q %v", merged, changed)
	}

	again, changed := mergeWhoisJSON(merged, map[string]string{"asn": "AS65000"})
	if changed || again != merged {
		t.Fatalf("identical overlay must be a no-op: %q %v", again, changed)
	}

	updated, changed := mergeWhoisJSON(merged, map[string]string{"asn": "AS65001", "country": "US"})
	if !changed || !strings.Contains(updated, "AS65001") || !strings.Contains(updated, "US") {
		t.Fatalf("new values must win: %q", updated)
	}
}
