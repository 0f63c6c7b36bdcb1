package whitelist

import "testing"

func TestGuardContains(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		source  string
		want    bool
	}{
		{name: "exact match", entries: []string{"10.0.0.5"}, source: "10.0.0.5", want: true},
		{name: "exact miss", entries: []string{"10.0.0.5"}, source: "10.0.0.6", want: false},
		{name: "range match", entries: []string{"192.168.0.0/16"}, source: "192.168.3.4", want: true},
		{name: "range miss", entries: []string{"192.168.0.0/16"}, source: "192.169.3.4", want: false},
		{name: "mixed entries", entries: []string{"10.0.0.5", "172.16.0.0/12"}, source: "172.20.1.1", want: true},
		{name: "garbage source", entries: []string{"10.0.0.5"}, source: "not-an-ip", want: false},
		{name: "empty guard", entries: nil, source: "10.0.0.5", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.entries)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}

			if got := g.Contains(tt.source); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}

func TestGuardRejectsMalformedEntries(t *testing.T) {
	for _, entry := range []string{"", "  ", "300.1.2.3", "10.0.0.0/33", "bastion.example"} {
		if _, err := New([]string{entry}); err == nil {
			t.Errorf("New(%q) accepted a malformed entry", entry)
		}
	}
}

func TestGuardRuntimeEdits(t *testing.T) {
	g, err := New([]string{"10.0.0.5"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := g.Add("172.16.0.0/12"); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if !g.Contains("172.16.8.1") {
		t.Errorf("Contains() = false for an address inside an added range")
	}

	if !g.Remove("10.0.0.5") {
		t.Fatalf("Remove() did not find an existing entry")
	}
	if g.Contains("10.0.0.5") {
		t.Errorf("Contains() = true after Remove()")
	}
	if g.Remove("10.0.0.5") {
		t.Errorf("Remove() of an absent entry reported true")
	}

	entries := g.Entries()
	if len(entries) != 1 || entries[0] != "172.16.0.0/12" {
		t.Errorf("Entries() = %v, want only the added range", entries)
	}
}
