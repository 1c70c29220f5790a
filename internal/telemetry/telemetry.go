package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/nikmy/graphtx/pkg/errors"
	"github.com/nikmy/graphtx/pkg/logger"
)

type Config struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Telemetry exports OTel metrics through a Prometheus registry. A disabled
// Telemetry hands out a no-op meter provider and no handler.
type Telemetry struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider
}

func New(ctx context.Context, cfg Config, log logger.Logger) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	log = log.With("telemetry")
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg))),
	)
	if err != nil {
		return nil, errors.WrapFail(err, "build telemetry resource")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, errors.WrapFail(err, "start prometheus exporter")
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn(errors.Wrap(err, "otel"))
	}))

	log.Infof("metrics enabled for %s", serviceName(cfg))
	return &Telemetry{registry: registry, provider: provider}, nil
}

func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.provider == nil {
		return noop.NewMeterProvider()
	}
	return t.provider
}

// Handler serves the registry in the Prometheus text format, or returns nil
// when metrics are disabled.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return errors.WrapFail(t.provider.Shutdown(ctx), "shutdown meter provider")
}

func serviceName(cfg Config) string {
	if cfg.ServiceName == "" {
		return "graphtx"
	}
	return cfg.ServiceName
}
