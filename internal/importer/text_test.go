package importer

import (
	"strings"
	"testing"
)

func TestParseTextHosts(t *testing.T) {
	input := "# targets\n" +
		"10.0.0.7 legacy-web\n" +
		"10.0.0.7 legacy-web\n" +
		"10.0.0.8 DB01.Example.COM\n" +
		"10.0.0.9\n" +
		"nonsense-line\n"

	result := ParseTextHosts([]byte(input), "targets.txt")
	if len(result.Hosts) != 3 {
		t.Fatalf("expected 3 hosts, got %#v", result.Hosts)
	}
	if result.Skipped != 2 {
		t.Fatalf("expected duplicate and invalid lines skipped, got %d", result.Skipped)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "invalid IP address") {
		t.Fatalf("expected one per-line error, got %v", result.Errors)
	}

	if result.Hosts[0].IP != "10.0.0.7" || result.Hosts[0].Hostname != "legacy-web" {
		t.Fatalf("unexpected first host: %#v", result.Hosts[0])
	}
	if result.Hosts[1].Hostname != "db01.example.com" {
		t.Fatalf("hostnames must be lowercased: %#v", result.Hosts[1])
	}
	if result.Hosts[2].Hostname != "" {
		t.Fatalf("bare IP line must have empty hostname: %#v", result.Hosts[2])
	}
}

func TestParseTextHostsFirstOccurrenceWins(t *testing.T) {
	input := "10.0.0.7 first-name\n10.0.0.7 second-name\n"
	result := ParseTextHosts([]byte(input), "targets.txt")
	if len(result.Hosts) != 1 || result.Hosts[0].Hostname != "first-name" {
		t.Fatalf("first occurrence must win: %#v", result.Hosts)
	}
}
