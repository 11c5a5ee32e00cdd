// Package registry is the controller-side saved-device list: persistence,
// discovery-driven reconciliation, reachability probing, and the HTTP
// client used to talk to agents (spec.md §4.7).
package registry

import (
	"path/filepath"
	"time"

	"github.com/lanreach/lanreach/configstore"
)

const fileName = "devices.json"

// SavedDevice is one row of the controller's persisted device list
// (spec.md §3 "SavedDevice"). ip/port are advisory: refreshed from
// discovery whenever they change, never treated as the device's identity.
type SavedDevice struct {
	UUID string `json:"uuid"`

	// DisplayID is the legacy fully-qualified mDNS instance name used to
	// match this device when it (or its discovered record) carries no
	// uuid -- the pre-uuid agents spec.md §4.7 calls out.
	DisplayID string `json:"display_id,omitempty"`

	Name       string `json:"name"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	CustomName string `json:"custom_name,omitempty"`

	AuthRequired bool `json:"auth_required"`

	CreatedAt     time.Time  `json:"created_at"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
}

// matchKey mirrors discovery.recordKey's precedence: uuid when present,
// else the legacy fully-qualified name.
func (d SavedDevice) matchKey() string {
	if d.UUID != "" {
		return d.UUID
	}
	return d.DisplayID
}

// DisplayName prefers an operator-assigned custom name over the device-
// reported one.
func (d SavedDevice) DisplayName() string {
	if d.CustomName != "" {
		return d.CustomName
	}
	return d.Name
}

// Document is the on-disk shape of devices.json.
type Document struct {
	Devices []SavedDevice `json:"devices"`
}

// Store opens (or seeds) devices.json under dir.
func Store(dir string) (*configstore.Store[Document], error) {
	return configstore.Open(filepath.Join(dir, fileName), Document{Devices: []SavedDevice{}})
}
