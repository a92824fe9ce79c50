package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docverify/internal/service"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Service service.VerificationService
	Pinger  Pinger
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// MetricsPath is where Prometheus metrics are exposed.
const MetricsPath = "/metrics"

// RegisterRoutes attaches the API under prefix and the operational endpoints at the root.
func RegisterRoutes(app *fiber.App, prefix string, d Deps) {
	app.Get("/health", HealthCheck(d.Pinger))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get(MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group(prefix)
	api.Get("/health", HealthCheck(d.Pinger))
	api.Post("/upload", UploadDocuments(d.Service))
	api.Get("/documents", ListDocuments(d.Service))
	api.Get("/document/:id", GetDocument(d.Service))
	api.Get("/document/:id/file", DocumentFile(d.Service))
	api.Get("/statistics", GetStatistics(d.Service))
}
