package transform

import (
	"testing"

	json "github.com/goccy/go-json"

	"github.com/krokicki/cluster-art/internal/storage/types"
)

const upstreamPayload = `{
	"hosts": ["h01", "h02", "h03"],
	"cpus": 96,
	"gpus": 8,
	"hostDetails": [
		{"hostname": "h01", "status": "ok", "cpuSlots": ["alice", null, "", "bob"], "gpuSlots": [null, "carol"]},
		{"hostname": "h02", "status": "closed", "cpuSlots": [null, null], "gpuSlots": []},
		{"hostname": "h03", "cpuSlots": ["dave"]}
	],
	"hardwareGroups": {"cpu-std": ["h01"], "gpu-a100": ["h02"]},
	"activeUsers": ["alice", "bob", "carol", "dave"],
	"userJobStats": {"alice": {"running": 2}},
	"motd": "maintenance friday",
	"fetchedAt": "2024-03-15T10:00:00Z",
	"raw": {
		"hosts": [{"name": "h01"}],
		"metadata": {"version": 3},
		"jobs": {"all": [{"id": 1}], "gpu_jobs": [{"id": 1}]},
		"gpu_attribution": [{"host": "h01", "gpu": 1, "user": "carol"}]
	}
}`

func parse(t *testing.T, payload string) *types.RawSnapshot {
	t.Helper()
	raw, err := types.ParseRawSnapshot([]byte(payload))
	if err != nil {
		t.Fatalf("ParseRawSnapshot: %v", err)
	}
	return raw
}

func slots(t *testing.T, h types.Host, field string) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(h[field], &m); err != nil {
		t.Fatalf("decode %s: %v", field, err)
	}
	return m
}

func TestOptimize_SparseSlots(t *testing.T) {
	opt := Optimize(parse(t, upstreamPayload))

	if len(opt.HostDetails) != 3 {
		t.Fatalf("expected 3 hosts, got %d", len(opt.HostDetails))
	}

	cpu := slots(t, opt.HostDetails[0], types.FieldCPUSlots)
	if len(cpu) != 2 || cpu["0"] != "alice" || cpu["3"] != "bob" {
		t.Errorf("unexpected cpuSlots: %v", cpu)
	}

	gpu := slots(t, opt.HostDetails[0], types.FieldGPUSlots)
	if len(gpu) != 1 || gpu["1"] != "carol" {
		t.Errorf("unexpected gpuSlots: %v", gpu)
	}

	if got := slots(t, opt.HostDetails[1], types.FieldCPUSlots); len(got) != 0 {
		t.Errorf("empty host should have no cpu occupants, got %v", got)
	}

	// h03 has no gpuSlots at all
	if got := slots(t, opt.HostDetails[2], types.FieldGPUSlots); len(got) != 0 {
		t.Errorf("missing gpuSlots should become empty map, got %v", got)
	}
}

func TestOptimize_HardwareGroup(t *testing.T) {
	opt := Optimize(parse(t, upstreamPayload))

	expected := []string{"cpu-std", "gpu-a100", types.UnknownGroup}
	for i, want := range expected {
		if got := opt.HostDetails[i].HardwareGroup(); got != want {
			t.Errorf("host %d: expected group %q, got %q", i, want, got)
		}
	}
}

func TestOptimize_KeepsHostFields(t *testing.T) {
	opt := Optimize(parse(t, upstreamPayload))

	if string(opt.HostDetails[1]["status"]) != `"closed"` {
		t.Errorf("status not passed through: %s", opt.HostDetails[1]["status"])
	}
	if opt.HostDetails[0].Hostname() != "h01" {
		t.Errorf("hostname lost: %q", opt.HostDetails[0].Hostname())
	}
}

func TestOptimize_DropsRedundantSections(t *testing.T) {
	opt := Optimize(parse(t, upstreamPayload))

	data, err := json.Marshal(opt)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	for _, dropped := range []string{"hosts", "cpus", "gpus", "hardwareGroups"} {
		if _, ok := top[dropped]; ok {
			t.Errorf("%s should be dropped", dropped)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(top["raw"], &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if _, ok := raw["hosts"]; ok {
		t.Error("raw.hosts should be dropped")
	}
	if _, ok := raw["metadata"]; ok {
		t.Error("raw.metadata should be dropped")
	}

	var jobs map[string]json.RawMessage
	if err := json.Unmarshal(raw["jobs"], &jobs); err != nil {
		t.Fatalf("decode raw.jobs: %v", err)
	}
	if _, ok := jobs["gpu_jobs"]; ok {
		t.Error("raw.jobs.gpu_jobs should be dropped")
	}
	if _, ok := jobs["all"]; !ok {
		t.Error("raw.jobs.all should be kept")
	}

	if string(opt.Motd) != `"maintenance friday"` {
		t.Errorf("motd lost: %s", opt.Motd)
	}
	if string(opt.FetchedAt) != `"2024-03-15T10:00:00Z"` {
		t.Errorf("fetchedAt lost: %s", opt.FetchedAt)
	}
}

func TestOptimize_EmptySnapshot(t *testing.T) {
	opt := Optimize(parse(t, `{}`))

	if opt.HostDetails == nil || len(opt.HostDetails) != 0 {
		t.Errorf("expected empty host list, got %v", opt.HostDetails)
	}
	if string(opt.Motd) != "null" || string(opt.ActiveUsers) != "null" {
		t.Errorf("absent fields should be null, got motd=%s activeUsers=%s", opt.Motd, opt.ActiveUsers)
	}
	if string(opt.Raw.Jobs.All) != "[]" || string(opt.Raw.GPUAttribution) != "[]" {
		t.Errorf("absent raw sections should be empty arrays")
	}

	if got := Optimize(nil); got == nil {
		t.Error("Optimize(nil) should not return nil")
	}
}

func TestOptimize_WrongTypesTreatedAsAbsent(t *testing.T) {
	opt := Optimize(parse(t, `{"hostDetails": {"not": "a list"}, "hardwareGroups": [1, 2], "raw": "x"}`))

	if len(opt.HostDetails) != 0 {
		t.Errorf("expected no hosts, got %d", len(opt.HostDetails))
	}
	if string(opt.Raw.Jobs.All) != "[]" {
		t.Errorf("expected empty jobs, got %s", opt.Raw.Jobs.All)
	}
}

func TestSparseSlots_OnlyTruthyOccupants(t *testing.T) {
	sparse := SparseSlots(json.RawMessage(`["a", null, "", 0, false, [], {}, "0", 1, true]`))

	expected := map[string]bool{"0": true, "7": true, "8": true, "9": true}
	if len(sparse) != len(expected) {
		t.Fatalf("expected %d occupants, got %d: %v", len(expected), len(sparse), sparse)
	}
	for index, occupant := range sparse {
		if !expected[index] {
			t.Errorf("unexpected index %s", index)
		}
		if !Truthy(occupant) {
			t.Errorf("index %s holds empty occupant %s", index, occupant)
		}
	}
}

func TestSparseSlots_Idempotent(t *testing.T) {
	first := SparseSlots(json.RawMessage(`["alice", null, "bob", null, null, null, null, null, null, null, "eve"]`))

	encoded, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second := SparseSlots(encoded)

	if len(first) != len(second) {
		t.Fatalf("expected %d entries, got %d", len(first), len(second))
	}
	for k, v := range first {
		if string(second[k]) != string(v) {
			t.Errorf("index %s: expected %s, got %s", k, v, second[k])
		}
	}
	if string(second["10"]) != `"eve"` {
		t.Errorf("index 10 should be keyed as \"10\", got %v", second)
	}
}

func TestGroupIndex_Deterministic(t *testing.T) {
	groups := map[string][]string{
		"zeta":  {"h1"},
		"alpha": {"h1", "h2"},
	}

	for i := 0; i < 20; i++ {
		index := GroupIndex(groups)
		if index["h1"] != "alpha" {
			t.Fatalf("expected h1 in alpha, got %q", index["h1"])
		}
		if index["h2"] != "alpha" {
			t.Fatalf("expected h2 in alpha, got %q", index["h2"])
		}
	}
}
