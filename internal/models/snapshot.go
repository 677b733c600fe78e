package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is the current shape of denormalized profile snapshots.
//
// Version history:
//   - 1: untyped map {displayName, photoURL, stats{...}} with optional or string-valued stats.
//   - 2: typed stat block, explicit version and capture time.
const SnapshotVersion = 2

// Snapshot is the profile data copied onto applications, participants and waitlist entries.
type Snapshot struct {
	Version     int       `json:"v"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Stats       StatBlock `json:"stats"`
	TakenAt     time.Time `json:"takenAt"`
}

type legacySnapshot struct {
	Version     int            `json:"v"`
	DisplayName string         `json:"displayName"`
	PhotoURL    string         `json:"photoURL"`
	Stats       map[string]any `json:"stats"`
}

// DecodeSnapshot reads a stored snapshot of any known version and upgrades it to SnapshotVersion.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	if len(raw) == 0 {
		return Snapshot{Version: SnapshotVersion, DisplayName: DefaultDisplayName}, nil
	}
	var probe struct {
		Version int `json:"v"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	switch {
	case probe.Version == SnapshotVersion:
		var s Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot v%d: %w", SnapshotVersion, err)
		}
		return s, nil
	case probe.Version <= 1:
		var l legacySnapshot
		if err := json.Unmarshal(raw, &l); err != nil {
			return Snapshot{}, fmt.Errorf("decode snapshot v1: %w", err)
		}
		return upgradeV1(l), nil
	default:
		return Snapshot{}, fmt.Errorf("decode snapshot: unknown version %d", probe.Version)
	}
}

func upgradeV1(l legacySnapshot) Snapshot {
	name := l.DisplayName
	if name == "" {
		name = DefaultDisplayName
	}
	return Snapshot{
		Version:     SnapshotVersion,
		DisplayName: name,
		PhotoURL:    l.PhotoURL,
		Stats:       lenientStats(l.Stats),
	}
}

// Encode marshals the snapshot, stamping the current version.
func (s Snapshot) Encode() ([]byte, error) {
	s.Version = SnapshotVersion
	return json.Marshal(s)
}
