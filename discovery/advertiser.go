package discovery

import (
	"fmt"
	"sync"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/mdns"
)

// unregisterSettle is the pause taken after the current mDNS server has
// been shut down: in Stop before returning, and in Reconfigure before the
// new parameters are published. It guards against the "stale port" bug the
// teacher's Consul lifecycle also guarded against: a browser that is
// mid-read of the old advertisement sees it disappear before the new one
// appears (spec.md §4.1, scenario S5). No separate unregistration message
// is sent before the server is shut down.
const unregisterSettle = 100 * time.Millisecond

// Advertiser publishes this agent's presence over mDNS and can reconfigure
// (e.g. on a port change) or stop advertising.
type Advertiser struct {
	log hclog.Logger

	uuid         string
	instanceName string
	displayName  string
	version      string

	mu     sync.Mutex
	server *mdns.Server
	port   int
}

// New creates an Advertiser. instanceName should be unique on the LAN;
// identity.ShortPrefix() is the intended source.
func New(log hclog.Logger, uuid, instanceName, displayName, version string) *Advertiser {
	return &Advertiser{
		log:          log.Named("discovery_advertiser"),
		uuid:         uuid,
		instanceName: instanceName,
		displayName:  displayName,
		version:      version,
	}
}

// Start publishes the initial advertisement on port for a service that
// requires authentication iff authRequired.
func (a *Advertiser) Start(port int, authRequired bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.publishLocked(port, authRequired)
}

func (a *Advertiser) publishLocked(port int, authRequired bool) error {
	svc, err := mdns.NewMDNSService(
		a.instanceName,
		ServiceType,
		Domain+".",
		"",
		port,
		nil,
		encodeTXT(a.uuid, a.displayName, a.version, port, authRequired),
	)
	if err != nil {
		return fmt.Errorf("discovery: building mdns service: %w", err)
	}

	srv, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("discovery: starting mdns server: %w", err)
	}

	a.server = srv
	a.port = port
	a.log.Info("advertising on mdns", "uuid", a.uuid, "port", port)
	return nil
}

// Reconfigure republishes under a new port/auth state, shutting the old
// mDNS server down first and pausing unregisterSettle before the new one
// goes live (spec.md §4.1, scenario S5: "reconfigures to 9090 and
// restarts its server").
func (a *Advertiser) Reconfigure(port int, authRequired bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.log.Warn("error shutting down previous mdns server", "error", err)
		}
		a.server = nil
		time.Sleep(unregisterSettle)
	}

	return a.publishLocked(port, authRequired)
}

// Stop shuts the mDNS server down, then pauses unregisterSettle before
// returning.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	time.Sleep(unregisterSettle)
	return err
}

// Port reports the port currently being advertised.
func (a *Advertiser) Port() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.port
}
