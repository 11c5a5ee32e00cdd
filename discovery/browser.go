package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/hashicorp/mdns"
)

// queryInterval is how often the browser re-polls the LAN. missedRounds
// controls how many consecutive empty rounds an entry may survive before
// being reported removed; queryInterval*missedRounds approximates the
// "within 2s" bound in spec.md §8 scenario S1.
const (
	queryInterval = time.Second
	queryTimeout  = 800 * time.Millisecond
	missedRounds  = 2
)

// restartSettle is the pause Restart waits before rebuilding the query
// loop, matching the ">= 500ms teardown/rebuild pause" called out in
// spec.md §9 for the discovery subsystem's controller side.
const restartSettle = 500 * time.Millisecond

type trackedEntry struct {
	record     Record
	lastSeen   time.Time
	missed     int
}

// Browser periodically polls the LAN for lan-device advertisements,
// calling onFound for new or changed records and onRemoved when a
// previously seen record stops appearing.
type Browser struct {
	log       hclog.Logger
	onFound   func(Record)
	onRemoved func(key string)

	mu      sync.Mutex
	entries map[string]*trackedEntry

	restart chan struct{}
}

// NewBrowser creates a Browser. The key passed to onRemoved is the
// record's uuid, or its instance name for legacy records without one.
func NewBrowser(log hclog.Logger, onFound func(Record), onRemoved func(key string)) *Browser {
	return &Browser{
		log:       log.Named("discovery_browser"),
		onFound:   onFound,
		onRemoved: onRemoved,
		entries:   make(map[string]*trackedEntry),
		restart:   make(chan struct{}, 1),
	}
}

func recordKey(r Record) string {
	if r.UUID != "" {
		return r.UUID
	}
	return r.InstanceName
}

// Run polls until ctx is cancelled. It is meant to be run from its own
// goroutine.
func (b *Browser) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = 30 * time.Second

	ticker := time.NewTicker(queryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.restart:
			time.Sleep(restartSettle)
			bo.Reset()
			continue
		case <-ticker.C:
			if err := b.pollOnce(); err != nil {
				b.log.Warn("mdns query failed", "error", err)
				time.Sleep(bo.NextBackOff())
				continue
			}
			bo.Reset()
		}
	}
}

// Restart tears down and rebuilds the query loop's backoff state after a
// settle pause, used when the browser's own network interface set
// changes.
func (b *Browser) Restart() {
	select {
	case b.restart <- struct{}{}:
	default:
	}
}

func (b *Browser) pollOnce() error {
	seenThisRound := make(map[string]bool)

	for _, svcType := range []string{ServiceType, LegacyServiceType} {
		entriesCh := make(chan *mdns.ServiceEntry, 32)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for e := range entriesCh {
				rec := decodeTXT(e.InfoFields)
				rec.Host = e.Host
				rec.Port = e.Port
				rec.InstanceName = strings.TrimSuffix(e.Name, "."+svcType+"."+Domain+".")

				b.observe(rec)
				seenThisRound[recordKey(rec)] = true
			}
		}()

		err := mdns.Query(&mdns.QueryParam{
			Service: svcType,
			Domain:  Domain,
			Timeout: queryTimeout,
			Entries: entriesCh,
		})
		close(entriesCh)
		<-done

		if err != nil {
			return err
		}
	}

	b.reapUnseen(seenThisRound)
	return nil
}

func (b *Browser) observe(rec Record) {
	key := recordKey(rec)
	if key == "" {
		return
	}

	b.mu.Lock()
	existing, ok := b.entries[key]
	changed := !ok || existing.record != rec
	b.entries[key] = &trackedEntry{record: rec, lastSeen: time.Now()}
	b.mu.Unlock()

	if changed {
		b.onFound(rec)
	}
}

func (b *Browser) reapUnseen(seenThisRound map[string]bool) {
	var removed []string

	b.mu.Lock()
	for key, entry := range b.entries {
		if seenThisRound[key] {
			entry.missed = 0
			continue
		}
		entry.missed++
		if entry.missed >= missedRounds {
			delete(b.entries, key)
			removed = append(removed, key)
		}
	}
	b.mu.Unlock()

	for _, key := range removed {
		b.onRemoved(key)
	}
}
