package types

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/krokicki/cluster-art/internal/errors"
)

// Host is one entry of hostDetails. Hosts carry an open set of fields; only
// hostname, cpuSlots, gpuSlots and hardwareGroup are interpreted, everything
// else passes through untouched.
type Host map[string]json.RawMessage

// Host field names.
const (
	FieldHostname      = "hostname"
	FieldCPUSlots      = "cpuSlots"
	FieldGPUSlots      = "gpuSlots"
	FieldHardwareGroup = "hardwareGroup"
)

// UnknownGroup is the hardware group of hosts absent from hardwareGroups.
const UnknownGroup = "Unknown"

// Hostname returns the host's name, or "" when the field is missing or not a
// string.
func (h Host) Hostname() string {
	return h.stringField(FieldHostname)
}

// HardwareGroup returns the denormalized group of an optimized host.
func (h Host) HardwareGroup() string {
	return h.stringField(FieldHardwareGroup)
}

func (h Host) stringField(name string) string {
	raw, ok := h[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// RawJobs is raw.jobs of the upstream payload.
type RawJobs struct {
	All     json.RawMessage
	GPUJobs json.RawMessage
}

// RawData is the nested raw section of the upstream payload.
type RawData struct {
	Jobs           RawJobs
	GPUAttribution json.RawMessage
	Hosts          json.RawMessage
	Metadata       json.RawMessage
}

// RawSnapshot is one upstream cluster-status payload.
//
// Decoding is lenient: a field of the wrong JSON type is treated as absent
// rather than failing the whole snapshot. Only a payload that is not a JSON
// object is rejected.
type RawSnapshot struct {
	HostDetails    []Host
	HardwareGroups map[string][]string
	ActiveUsers    json.RawMessage
	UserJobStats   json.RawMessage
	Motd           json.RawMessage

	// FetchedAt is the capture time as sent upstream, "" when missing or not
	// a string. FetchedAtRaw keeps the original JSON value for pass-through.
	FetchedAt    string
	FetchedAtRaw json.RawMessage

	Raw RawData
}

// ParseRawSnapshot decodes an upstream payload.
func ParseRawSnapshot(data []byte) (*RawSnapshot, error) {
	var s RawSnapshot
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &s, nil
}

// UnmarshalJSON implements json.Unmarshaler. Fields of the wrong type read
// as absent.
func (s *RawSnapshot) UnmarshalJSON(data []byte) error {
	top, ok := DecodeObject(data)
	if !ok {
		return fmt.Errorf("snapshot is not a JSON object: %w", errors.ErrMalformedSnapshot)
	}

	*s = RawSnapshot{
		ActiveUsers:  top["activeUsers"],
		UserJobStats: top["userJobStats"],
		Motd:         top["motd"],
		FetchedAtRaw: top["fetchedAt"],
	}

	if raw, ok := top["fetchedAt"]; ok {
		var v string
		if json.Unmarshal(raw, &v) == nil {
			s.FetchedAt = v
		}
	}

	if items, ok := DecodeArray(top["hostDetails"]); ok {
		s.HostDetails = make([]Host, 0, len(items))
		for _, item := range items {
			if host, ok := DecodeObject(item); ok {
				s.HostDetails = append(s.HostDetails, Host(host))
			}
		}
	}

	if groups, ok := DecodeObject(top["hardwareGroups"]); ok {
		s.HardwareGroups = make(map[string][]string, len(groups))
		for name, raw := range groups {
			members, ok := DecodeArray(raw)
			if !ok {
				continue
			}
			hostnames := make([]string, 0, len(members))
			for _, m := range members {
				var hostname string
				if json.Unmarshal(m, &hostname) == nil {
					hostnames = append(hostnames, hostname)
				}
			}
			s.HardwareGroups[name] = hostnames
		}
	}

	if nested, ok := DecodeObject(top["raw"]); ok {
		s.Raw.GPUAttribution = nested["gpu_attribution"]
		s.Raw.Hosts = nested["hosts"]
		s.Raw.Metadata = nested["metadata"]
		if jobs, ok := DecodeObject(nested["jobs"]); ok {
			s.Raw.Jobs.All = jobs["all"]
			s.Raw.Jobs.GPUJobs = jobs["gpu_jobs"]
		}
	}

	return nil
}

// OptimizedJobs is raw.jobs of the persisted form.
type OptimizedJobs struct {
	All json.RawMessage `json:"all"`
}

// OptimizedRaw is the raw section of the persisted form: only job and GPU
// attribution data survive.
type OptimizedRaw struct {
	Jobs           OptimizedJobs   `json:"jobs"`
	GPUAttribution json.RawMessage `json:"gpu_attribution"`
}

// OptimizedSnapshot is the compact form written to disk. Slot arrays are
// sparse maps keyed by decimal slot index and each host carries its
// hardwareGroup.
type OptimizedSnapshot struct {
	HostDetails  []Host          `json:"hostDetails"`
	ActiveUsers  json.RawMessage `json:"activeUsers"`
	UserJobStats json.RawMessage `json:"userJobStats"`
	Motd         json.RawMessage `json:"motd"`
	FetchedAt    json.RawMessage `json:"fetchedAt"`
	Raw          OptimizedRaw    `json:"raw"`
}

// Null is the JSON null literal. Absent optional fields are persisted as null.
var Null = json.RawMessage("null")

// EmptyArray is the JSON empty array literal.
var EmptyArray = json.RawMessage("[]")

// DecodeObject decodes raw as a JSON object. Missing, null or non-object
// values report false.
func DecodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

// DecodeArray decodes raw as a JSON array.
func DecodeArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var a []json.RawMessage
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, false
	}
	return a, true
}
