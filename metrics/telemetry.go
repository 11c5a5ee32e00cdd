// Package metrics wires up the process-wide metrics sink set up by the
// agent: an in-memory sink (queryable for diagnostics) fanned out to a
// Prometheus sink that the agent exposes at GET /api/metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	gometrics "github.com/armon/go-metrics"
	gometricsprom "github.com/armon/go-metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	setupOnce sync.Once
	setupSink *gometrics.InmemSink
	setupErr  error
)

// Setup initialises the global metrics sink for serviceName, returning the
// in-memory sink so callers can query it directly. Only the first call in a
// process does the work; later calls return its result, since the
// Prometheus sink can be registered only once.
func Setup(serviceName string) (*gometrics.InmemSink, error) {
	setupOnce.Do(func() { setupSink, setupErr = setup(serviceName) })
	return setupSink, setupErr
}

func setup(serviceName string) (*gometrics.InmemSink, error) {
	inm := gometrics.NewInmemSink(10*time.Second, time.Minute)
	gometrics.DefaultInmemSignal(inm)

	cfg := gometrics.DefaultConfig(serviceName)
	cfg.EnableHostname = true

	promSink, err := gometricsprom.NewPrometheusSink()
	if err != nil {
		return nil, err
	}

	fanout := gometrics.FanoutSink{inm, promSink}
	if _, err := gometrics.NewGlobal(cfg, fanout); err != nil {
		return nil, err
	}
	return inm, nil
}

var (
	promHandler http.Handler
	promOnce    sync.Once
)

// PrometheusHandler returns the shared promhttp handler for the default
// registerer, created once on first use.
func PrometheusHandler() http.Handler {
	promOnce.Do(func() {
		promHandler = promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorHandling:      promhttp.ContinueOnError,
			DisableCompression: true,
		})
	})
	return promHandler
}
