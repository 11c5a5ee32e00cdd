// Package identity manages DeviceIdentity: the 128-bit UUID that uniquely
// and stably names this install, persisted to a plain file. The load/
// generate/persist shape is adapted from the teacher's
// ha.GenerateAgentID, retargeted from a Nomad-allocation env override to
// spec.md §3's "generated on first launch, persisted atomically, never
// rotated unless the file is destroyed" lifecycle.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// fileName is the name, within the config directory, of the file holding
// the agent's UUID (spec.md §6: "device-id").
const fileName = "device-id"

// DeviceIdentity is the agent's singleton identity.
type DeviceIdentity struct {
	// UUID is a 128-bit random identifier, stable across restarts and
	// network changes.
	UUID string

	// DisplayName defaults to the host name.
	DisplayName string

	// ProtocolVersion identifies the wire protocol this identity speaks.
	ProtocolVersion string
}

// ProtocolVersion is the current protocol version advertised over mDNS and
// in the agent's TXT record.
const ProtocolVersion = "1"

// Load reads the device-id file from dir, generating and persisting a new
// UUID if it is absent or unparsable. Per spec.md §4.2, a malformed file is
// treated the same as a missing one -- load must never lock an operator
// out.
func Load(dir string) (*DeviceIdentity, error) {
	path := filepath.Join(dir, fileName)

	id, err := loadExisting(path)
	if err == nil {
		return &DeviceIdentity{
			UUID:            id,
			DisplayName:     defaultDisplayName(),
			ProtocolVersion: ProtocolVersion,
		}, nil
	}

	newID, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("identity: generating uuid: %w", err)
	}
	if err := persist(path, newID); err != nil {
		return nil, fmt.Errorf("identity: persisting uuid: %w", err)
	}

	return &DeviceIdentity{
		UUID:            newID,
		DisplayName:     defaultDisplayName(),
		ProtocolVersion: ProtocolVersion,
	}, nil
}

func loadExisting(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	id := strings.ToLower(strings.TrimSpace(string(raw)))
	if _, err := uuid.ParseUUID(id); err != nil {
		return "", fmt.Errorf("identity: %s does not contain a valid uuid: %w", path, err)
	}
	return id, nil
}

func persist(path, id string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write([]byte(id)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func defaultDisplayName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "lanreach-agent"
	}
	return name
}

// ShortPrefix returns the short UUID prefix used to build an mDNS instance
// name, so that serial restarts on the same subnet never collide with a
// cached TTL'd record (spec.md §4.1, §9).
func (d *DeviceIdentity) ShortPrefix() string {
	clean := strings.ReplaceAll(d.UUID, "-", "")
	if len(clean) < 8 {
		return clean
	}
	return clean[:8]
}
