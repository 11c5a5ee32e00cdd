// Package discovery implements zero-configuration LAN discovery (spec.md
// §4.1, §6): the agent-side mDNS advertiser and the controller-side mDNS
// browser.
package discovery

import (
	"fmt"
	"strconv"
)

// ServiceType is the mDNS service type agents advertise under.
const ServiceType = "_lan-device._tcp"

// LegacyServiceType MAY also be browsed for backwards compatibility with
// older agents (spec.md §6).
const LegacyServiceType = "_lanmanager._tcp"

// Domain is the mDNS domain used for all lookups.
const Domain = "local"

// TXT record keys (spec.md §6).
const (
	txtKeyUUID         = "uuid"
	txtKeyDeviceName    = "device_name"
	txtKeyVersion       = "version"
	txtKeyPort          = "port"
	txtKeyAuthRequired  = "auth_required"
)

// Record is a decoded advertisement: one agent's identity and reachability
// facts as published over mDNS.
type Record struct {
	UUID         string
	DeviceName   string
	Version      string
	Host         string
	Port         int
	AuthRequired bool

	// Legacy is set when the record's TXT data had no uuid field, whichever
	// service type it arrived under, so registry reconciliation must fall back to
	// matching on the fully-qualified instance name (spec.md §4.7).
	Legacy        bool
	InstanceName  string
}

// encodeTXT builds the TXT record strings for an advertisement.
func encodeTXT(uuid, deviceName, version string, port int, authRequired bool) []string {
	return []string{
		fmt.Sprintf("%s=%s", txtKeyUUID, uuid),
		fmt.Sprintf("%s=%s", txtKeyDeviceName, deviceName),
		fmt.Sprintf("%s=%s", txtKeyVersion, version),
		fmt.Sprintf("%s=%d", txtKeyPort, port),
		fmt.Sprintf("%s=%s", txtKeyAuthRequired, strconv.FormatBool(authRequired)),
	}
}

// decodeTXT parses TXT record fields into a partially filled Record. Port
// and AuthRequired default to zero values on malformed input rather than
// erroring, since a single bad field should not sink an otherwise usable
// advertisement.
func decodeTXT(fields []string) Record {
	kv := make(map[string]string, len(fields))
	for _, f := range fields {
		for i := 0; i < len(f); i++ {
			if f[i] == '=' {
				kv[f[:i]] = f[i+1:]
				break
			}
		}
	}

	rec := Record{
		UUID:       kv[txtKeyUUID],
		DeviceName: kv[txtKeyDeviceName],
		Version:    kv[txtKeyVersion],
	}
	if p, err := strconv.Atoi(kv[txtKeyPort]); err == nil {
		rec.Port = p
	}
	if b, err := strconv.ParseBool(kv[txtKeyAuthRequired]); err == nil {
		rec.AuthRequired = b
	}
	if rec.UUID == "" {
		rec.Legacy = true
	}
	return rec
}
