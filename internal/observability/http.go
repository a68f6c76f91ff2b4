package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsPath is where the scrape endpoint is mounted, outside the authenticated API group.
const MetricsPath = "/metrics"

var (
	lifecycleStatuses = []string{"created", "in-progress", "completed"}
	cacheResults      = []string{"hit", "miss"}
)

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber. Lifecycle and cache series
// are pre-seeded so a fresh process reports zeros instead of absent series.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	for _, status := range lifecycleStatuses {
		interviewTransitions.WithLabelValues(status)
	}
	for _, result := range cacheResults {
		statusCacheLookups.WithLabelValues(result)
	}

	handler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
	return adaptor.HTTPHandler(handler)
}
