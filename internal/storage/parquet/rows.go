package parquet

import (
	"sort"

	json "github.com/goccy/go-json"

	"github.com/krokicki/cluster-art/internal/storage/transform"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// HostRow is one host of one snapshot in Parquet format.
type HostRow struct {
	Timestamp     int64    `parquet:"timestamp"`
	Hostname      string   `parquet:"hostname,zstd"`
	HardwareGroup string   `parquet:"hardware_group,zstd"`
	CPUSlotsUsed  int32    `parquet:"cpu_slots_used"`
	GPUSlotsUsed  int32    `parquet:"gpu_slots_used"`
	Users         []string `parquet:"users"`
}

// SnapshotToRows flattens an optimized snapshot captured at ts into one row
// per host. Users are the distinct string occupants of the host's CPU and
// GPU slots, sorted.
func SnapshotToRows(ts int64, snap *types.OptimizedSnapshot) []HostRow {
	if snap == nil {
		return nil
	}

	rows := make([]HostRow, 0, len(snap.HostDetails))
	for _, host := range snap.HostDetails {
		cpu := transform.SparseSlots(host[types.FieldCPUSlots])
		gpu := transform.SparseSlots(host[types.FieldGPUSlots])

		rows = append(rows, HostRow{
			Timestamp:     ts,
			Hostname:      host.Hostname(),
			HardwareGroup: host.HardwareGroup(),
			CPUSlotsUsed:  int32(len(cpu)),
			GPUSlotsUsed:  int32(len(gpu)),
			Users:         occupants(cpu, gpu),
		})
	}
	return rows
}

func occupants(slotMaps ...map[string]json.RawMessage) []string {
	seen := make(map[string]bool)
	for _, slots := range slotMaps {
		for _, raw := range slots {
			var user string
			if err := json.Unmarshal(raw, &user); err == nil && user != "" {
				seen[user] = true
			}
		}
	}

	users := make([]string, 0, len(seen))
	for user := range seen {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}
