// Package transform converts upstream snapshots into the compact form the
// cache persists.
//
// The conversion is a pure projection:
//   - dense cpuSlots/gpuSlots arrays become sparse maps holding only occupied
//     slots, keyed by the decimal slot index
//   - each host gets its hardwareGroup (inverse of hardwareGroups)
//   - redundant top-level and raw.* sections are dropped
//
// No occupied slot, user attribution or MOTD is lost.
package transform

import (
	"bytes"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/krokicki/cluster-art/internal/storage/types"
)

// Optimize returns the persisted form of raw. It never fails: missing
// sections are replaced by empty containers or null.
func Optimize(raw *types.RawSnapshot) *types.OptimizedSnapshot {
	if raw == nil {
		raw = &types.RawSnapshot{}
	}

	groups := GroupIndex(raw.HardwareGroups)

	hosts := make([]types.Host, 0, len(raw.HostDetails))
	for _, h := range raw.HostDetails {
		hosts = append(hosts, optimizeHost(h, groups))
	}

	return &types.OptimizedSnapshot{
		HostDetails:  hosts,
		ActiveUsers:  orDefault(raw.ActiveUsers, types.Null),
		UserJobStats: orDefault(raw.UserJobStats, types.Null),
		Motd:         orDefault(raw.Motd, types.Null),
		FetchedAt:    orDefault(raw.FetchedAtRaw, types.Null),
		Raw: types.OptimizedRaw{
			Jobs: types.OptimizedJobs{
				All: orDefault(raw.Raw.Jobs.All, types.EmptyArray),
			},
			GPUAttribution: orDefault(raw.Raw.GPUAttribution, types.EmptyArray),
		},
	}
}

// GroupIndex inverts hardwareGroups into hostname -> group. Group names are
// visited in sorted order and the first group listing a host wins, so the
// result does not depend on map iteration order.
func GroupIndex(groups map[string][]string) map[string]string {
	names := make([]string, 0, len(groups))
	total := 0
	for name, hostnames := range groups {
		names = append(names, name)
		total += len(hostnames)
	}
	sort.Strings(names)

	index := make(map[string]string, total)
	for _, name := range names {
		for _, hostname := range groups[name] {
			if _, seen := index[hostname]; !seen {
				index[hostname] = name
			}
		}
	}
	return index
}

// optimizeHost copies h with sparse slots and its hardware group.
func optimizeHost(h types.Host, groups map[string]string) types.Host {
	out := make(types.Host, len(h)+1)
	for k, v := range h {
		out[k] = v
	}

	out[types.FieldCPUSlots] = encodeSlots(SparseSlots(h[types.FieldCPUSlots]))
	out[types.FieldGPUSlots] = encodeSlots(SparseSlots(h[types.FieldGPUSlots]))

	group, ok := groups[h.Hostname()]
	if !ok {
		group = types.UnknownGroup
	}
	out[types.FieldHardwareGroup] = encodeString(group)

	return out
}

// SparseSlots converts a slot array into a map from decimal index to
// occupant, keeping only truthy occupants. A value that is already a sparse
// map is filtered the same way, so applying SparseSlots to its own output
// changes nothing. Anything else yields an empty map.
func SparseSlots(raw json.RawMessage) map[string]json.RawMessage {
	sparse := make(map[string]json.RawMessage)

	if items, ok := types.DecodeArray(raw); ok {
		for i, occupant := range items {
			if Truthy(occupant) {
				sparse[strconv.Itoa(i)] = occupant
			}
		}
		return sparse
	}

	if items, ok := types.DecodeObject(raw); ok {
		for index, occupant := range items {
			if Truthy(occupant) {
				sparse[index] = occupant
			}
		}
	}

	return sparse
}

// Truthy reports whether a JSON value counts as an occupant. null, false,
// zero, the empty string, the empty array and the empty object do not.
func Truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}

	switch v[0] {
	case 'n': // null
		return false
	case 'f': // false
		return false
	case 't': // true
		return true
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return false
		}
		return s != ""
	case '[':
		items, ok := types.DecodeArray(v)
		return ok && len(items) > 0
	case '{':
		fields, ok := types.DecodeObject(v)
		return ok && len(fields) > 0
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		return err == nil && f != 0
	}
}

func encodeSlots(sparse map[string]json.RawMessage) json.RawMessage {
	data, err := json.Marshal(sparse)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func encodeString(s string) json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return data
}

func orDefault(raw json.RawMessage, def json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return def
	}
	return raw
}
