package db

import "testing"

func TestCIDRForIP(t *testing.T) {
	cases := []struct {
		ip   string
		want string
		ok   bool
	}{
		{"10.0.0.5", "10.0.0.0/24", true},
		{"10.0.0.200", "10.0.0.0/24", true},
		{"10.0.1.1", "10.0.1.0/24", true},
		{"2001:db8::1", "2001:db8::/64", true},
		{" 192.168.1.77 ", "192.168.1.0/24", true},
		{SentinelIP, "", false},
		{"", "", false},
		{"not-an-ip", "", false},
	}
	for _, tc := range cases {
		got, ok := CIDRForIP(tc.ip)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("CIDRForIP(%q) = %q, %v; want %q, %v", tc.ip, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFindOrCreateSubnetIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	p, err := db.CreateProject("subnets", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	first, err := db.FindOrCreateSubnetForIP(p.ID, "10.0.0.5")
	if err != nil {
		t.Fatalf("resolve subnet: %v", err)
	}
	if !first.Valid {
		t.Fatalf("expected a subnet for a real IP")
	}

	for _, ip := range []string{"10.0.0.200", "10.0.0.1"} {
		got, err := db.FindOrCreateSubnetForIP(p.ID, ip)
		if err != nil {
			t.Fatalf("resolve subnet for %s: %v", ip, err)
		}
		if got.Int64 != first.Int64 {
			t.Fatalf("expected %s to land in subnet %d, got %d", ip, first.Int64, got.Int64)
		}
	}

	other, err := db.FindOrCreateSubnetForIP(p.ID, "10.0.1.1")
	if err != nil {
		t.Fatalf("resolve subnet: %v", err)
	}
	if other.Int64 == first.Int64 {
		t.Fatalf("10.0.1.1 must land in a different /24")
	}

	sentinel, err := db.FindOrCreateSubnetForIP(p.ID, SentinelIP)
	if err != nil {
		t.Fatalf("resolve sentinel: %v", err)
	}
	if sentinel.Valid {
		t.Fatalf("sentinel IP must not get a subnet")
	}

	subnets, err := db.ListSubnets(p.ID)
	if err != nil {
		t.Fatalf("list subnets: %v", err)
	}
	if len(subnets) != 2 {
		t.Fatalf("expected 2 subnets, got %d", len(subnets))
	}
}
