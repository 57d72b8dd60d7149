package types

import (
	"testing"

	"github.com/krokicki/cluster-art/internal/errors"
)

func TestParseRawSnapshot(t *testing.T) {
	raw, err := ParseRawSnapshot([]byte(`{
		"fetchedAt": "2024-03-15T10:00:00Z",
		"hostDetails": [{"hostname": "h1", "cpuSlots": ["alice"]}, "garbage", {"hostname": 7}],
		"hardwareGroups": {"cpu": ["h1", 3], "broken": "h2"},
		"motd": "hello",
		"raw": {"jobs": {"all": [1], "gpu_jobs": [2]}, "hosts": [], "gpu_attribution": {}}
	}`))
	if err != nil {
		t.Fatalf("ParseRawSnapshot: %v", err)
	}

	if raw.FetchedAt != "2024-03-15T10:00:00Z" {
		t.Errorf("unexpected fetchedAt %q", raw.FetchedAt)
	}
	if len(raw.HostDetails) != 2 {
		t.Fatalf("expected 2 object hosts, got %d", len(raw.HostDetails))
	}
	if raw.HostDetails[0].Hostname() != "h1" || raw.HostDetails[1].Hostname() != "" {
		t.Errorf("unexpected hostnames %q %q", raw.HostDetails[0].Hostname(), raw.HostDetails[1].Hostname())
	}
	if got := raw.HardwareGroups["cpu"]; len(got) != 1 || got[0] != "h1" {
		t.Errorf("expected cpu group [h1], got %v", got)
	}
	if _, ok := raw.HardwareGroups["broken"]; ok {
		t.Error("non-array group should be dropped")
	}
	if string(raw.Raw.Jobs.All) != "[1]" || string(raw.Raw.Jobs.GPUJobs) != "[2]" {
		t.Errorf("unexpected jobs %s %s", raw.Raw.Jobs.All, raw.Raw.Jobs.GPUJobs)
	}
}

func TestParseRawSnapshot_Lenient(t *testing.T) {
	raw, err := ParseRawSnapshot([]byte(`{"fetchedAt": 1710496800, "hostDetails": {}, "hardwareGroups": []}`))
	if err != nil {
		t.Fatalf("ParseRawSnapshot: %v", err)
	}
	if raw.FetchedAt != "" || string(raw.FetchedAtRaw) != "1710496800" {
		t.Errorf("non-string fetchedAt: got %q raw %s", raw.FetchedAt, raw.FetchedAtRaw)
	}
	if raw.HostDetails != nil || raw.HardwareGroups != nil {
		t.Errorf("wrong-typed fields should read as absent: %+v", raw)
	}
}

func TestParseRawSnapshot_NotObject(t *testing.T) {
	for _, input := range []string{`[]`, `"x"`, `null`, ``, `{`} {
		if _, err := ParseRawSnapshot([]byte(input)); !errors.Is(err, errors.ErrMalformedSnapshot) {
			t.Errorf("%q: expected ErrMalformedSnapshot, got %v", input, err)
		}
	}
}

func TestCacheEntryBetter(t *testing.T) {
	hierGz := CacheEntry{Timestamp: 1, Path: "/c/197001/01/1.json.gz", Ext: ExtGzip, Layout: LayoutHierarchical}
	hierJSON := CacheEntry{Timestamp: 1, Path: "/c/197001/01/1.json", Ext: ExtJSON, Layout: LayoutHierarchical}
	flatGz := CacheEntry{Timestamp: 1, Path: "/c/1.json.gz", Ext: ExtGzip, Layout: LayoutFlat}
	misplaced := CacheEntry{Timestamp: 1, Path: "/c/202001/01/1.json.gz", Ext: ExtGzip, Layout: LayoutHierarchical}

	tests := []struct {
		name string
		a, b CacheEntry
		want bool
	}{
		{"hierarchical over flat", hierJSON, flatGz, true},
		{"flat under hierarchical", flatGz, hierJSON, false},
		{"gzip over json", hierGz, hierJSON, true},
		{"json under gzip", hierJSON, hierGz, false},
		{"smaller path", hierGz, misplaced, true},
		{"larger path", misplaced, hierGz, false},
	}

	for _, tt := range tests {
		if got := tt.a.Better(tt.b); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestCacheEntryTime(t *testing.T) {
	e := CacheEntry{Timestamp: 1710496800}
	if got := e.Time(); got.Location().String() != "UTC" || got.Hour() != 10 {
		t.Errorf("expected 10:00 UTC, got %v", got)
	}
}

func TestExt(t *testing.T) {
	if !ExtGzip.Compressed() || ExtJSON.Compressed() {
		t.Error("only .json.gz is compressed")
	}
	if exts := AllExts(); len(exts) != 2 || exts[0] != ExtGzip {
		t.Errorf("unexpected preference order %v", exts)
	}
	if LayoutFlat.String() != "flat" || LayoutHierarchical.String() != "hierarchical" {
		t.Error("unexpected layout names")
	}
}
