package registry

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Status is a saved device's last-known reachability (spec.md §4.7).
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// defaultProbeConcurrency is the default bound on simultaneous reachability
// probes (spec.md §5 "Concurrent probe fan-out on the controller: bounded
// (configurable; default 16)").
const defaultProbeConcurrency = 16

const probeTimeout = 2 * time.Second

// Prober classifies saved devices as online/offline with a bounded-
// concurrency fan-out of lightweight health probes.
type Prober struct {
	sem    *semaphore.Weighted
	probe  func(ctx context.Context, d SavedDevice) bool
}

// NewProber creates a Prober bounded to maxConcurrency simultaneous probes
// (defaultProbeConcurrency if <= 0), using client to reach each device.
func NewProber(client *Client, maxConcurrency int64) *Prober {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultProbeConcurrency
	}
	return &Prober{
		sem: semaphore.NewWeighted(maxConcurrency),
		probe: func(ctx context.Context, d SavedDevice) bool {
			ctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			_, _, err := client.Health(ctx, d)
			return err == nil
		},
	}
}

// ProbeAll classifies every device in devices, bounded by the Prober's
// concurrency limit (spec.md §4.7 "reachability loop").
func (p *Prober) ProbeAll(ctx context.Context, devices []SavedDevice) map[string]Status {
	results := make(map[string]Status, len(devices))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, d := range devices {
		d := d
		if err := p.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[d.matchKey()] = StatusUnknown
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.sem.Release(1)

			status := StatusOffline
			if p.probe(ctx, d) {
				status = StatusOnline
			}

			mu.Lock()
			results[d.matchKey()] = status
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
