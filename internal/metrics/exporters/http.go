// Package exporters publishes collected metrics over Prometheus scrape
// and Server-Sent Events surfaces.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves the default Prometheus registry, which holds every
// promauto-registered gauge and counter in the process.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
