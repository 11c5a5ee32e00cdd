package registry

import (
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lanreach/lanreach/configstore"
	"github.com/lanreach/lanreach/discovery"
)

// Registry reconciles mDNS discovery events against the saved-device list
// (spec.md §4.7). One Registry exists per running controller.
type Registry struct {
	log   hclog.Logger
	store *configstore.Store[Document]

	mu           sync.Mutex
	discoverable map[string]discovery.Record
}

// New creates a Registry backed by store.
func New(log hclog.Logger, store *configstore.Store[Document]) *Registry {
	return &Registry{
		log:          log.Named("registry"),
		store:        store,
		discoverable: make(map[string]discovery.Record),
	}
}

func recordMatchKey(rec discovery.Record) string {
	if rec.UUID != "" {
		return rec.UUID
	}
	return rec.InstanceName
}

// Observe reconciles one discovery event (spec.md §4.7, §8 invariant 11):
// a matched saved device has its ip/port updated in place and persisted;
// an unmatched one is recorded as discoverable for the user to explicitly
// add. It reports whether the record matched an existing saved device.
func (r *Registry) Observe(rec discovery.Record) (matched bool, err error) {
	key := recordMatchKey(rec)
	if key == "" {
		return false, nil
	}

	found := false
	err = r.store.Mutate(func(doc *Document) error {
		for i := range doc.Devices {
			if doc.Devices[i].matchKey() != key {
				continue
			}
			found = true
			if doc.Devices[i].IP != rec.Host || doc.Devices[i].Port != rec.Port {
				doc.Devices[i].IP = rec.Host
				doc.Devices[i].Port = rec.Port
				doc.Devices[i].AuthRequired = rec.AuthRequired
			}
			return nil
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("registry: reconciling %s: %w", key, err)
	}

	if found {
		r.mu.Lock()
		delete(r.discoverable, key)
		r.mu.Unlock()
		return true, nil
	}

	r.mu.Lock()
	r.discoverable[key] = rec
	r.mu.Unlock()
	return false, nil
}

// Forget drops key from the discoverable set when discovery reports it has
// disappeared from the LAN. It never touches the persisted saved-device
// list -- a device going offline is not the same as it being deleted.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.discoverable, key)
}

// Discoverable returns a snapshot of devices seen on the LAN that do not
// match any saved device yet.
func (r *Registry) Discoverable() []discovery.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]discovery.Record, 0, len(r.discoverable))
	for _, rec := range r.discoverable {
		out = append(out, rec)
	}
	return out
}

// AddDevice explicitly saves a discovered record as a SavedDevice
// (spec.md §4.7 "on explicit add, persist it with its uuid").
func (r *Registry) AddDevice(rec discovery.Record, displayName string) error {
	key := recordMatchKey(rec)
	if key == "" {
		return fmt.Errorf("registry: cannot add a record with no uuid or instance name")
	}

	if displayName == "" {
		displayName = rec.DeviceName
	}

	err := r.store.Mutate(func(doc *Document) error {
		for _, d := range doc.Devices {
			if d.matchKey() == key {
				return fmt.Errorf("registry: device %s is already saved", key)
			}
		}
		doc.Devices = append(doc.Devices, SavedDevice{
			UUID:         rec.UUID,
			DisplayID:    rec.InstanceName,
			Name:         displayName,
			IP:           rec.Host,
			Port:         rec.Port,
			AuthRequired: rec.AuthRequired,
			CreatedAt:    time.Now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.discoverable, key)
	r.mu.Unlock()
	return nil
}

// DeleteDevice removes the saved-device row matching key (a uuid or legacy
// name) from the persisted list (spec.md §4.7, §8 invariant 12). Callers
// are responsible for also clearing the device's cached credential and
// in-memory token via CredentialCache -- Registry only owns the device
// list itself.
func (r *Registry) DeleteDevice(key string) error {
	return r.store.Mutate(func(doc *Document) error {
		out := doc.Devices[:0]
		removed := false
		for _, d := range doc.Devices {
			if d.matchKey() == key {
				removed = true
				continue
			}
			out = append(out, d)
		}
		if !removed {
			return fmt.Errorf("registry: no saved device matches %s", key)
		}
		doc.Devices = out
		return nil
	})
}

// Devices returns a snapshot of the persisted saved-device list.
func (r *Registry) Devices() []SavedDevice {
	return r.store.Snapshot().Devices
}

// Touch records that key was just successfully connected to, advancing
// its last_connected timestamp (spec.md §3 "SavedDevice").
func (r *Registry) Touch(key string) error {
	return r.store.Mutate(func(doc *Document) error {
		for i := range doc.Devices {
			if doc.Devices[i].matchKey() == key {
				now := time.Now()
				doc.Devices[i].LastConnected = &now
				return nil
			}
		}
		return fmt.Errorf("registry: no saved device matches %s", key)
	})
}
