// Package telemetry is the OTLP metric/log emitter: one process-wide
// instrument registry keyed by (source, metricName), a gauge aggregator
// with atomically-swapped observation caches, and the self-telemetry
// instruments the runner and engine report against.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/allaspectsdev/otel-api-scraper/internal/config"
)

// Emitter owns the process-wide meter/logger providers, the instrument
// registry, and the gauge aggregator cache. One Emitter serves every
// source.
type Emitter struct {
	log zerolog.Logger

	meterProvider *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	meter         metric.Meter
	logger        otellog.Logger

	dryRun              bool
	enableSelfTelemetry bool

	instruments *registry
	gauges      *gaugeRegistry
	self        *selfInstruments
}

// New builds an Emitter from scraper-wide settings. In dry-run mode the
// OTLP exporters are replaced with structured log-sink equivalents that
// summarize counts instead of shipping a separate OTLP pipeline.
func New(ctx context.Context, cfg config.ScraperSettings, log zerolog.Logger) (*Emitter, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceNameOrDefault(cfg.ServiceName)),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	e := &Emitter{
		log:                 log,
		dryRun:              cfg.DryRun,
		enableSelfTelemetry: cfg.EnableSelfTelemetry,
		instruments:         newRegistry(),
		gauges:              newGaugeRegistry(),
	}

	if cfg.DryRun {
		e.meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		e.loggerProvider = sdklog.NewLoggerProvider(sdklog.WithResource(res))
	} else {
		metricExporter, err := newMetricExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logExporter, err := newLogExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		e.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		)
		e.loggerProvider = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		)
	}

	otel.SetMeterProvider(e.meterProvider)
	global.SetLoggerProvider(e.loggerProvider)
	e.meter = e.meterProvider.Meter("otel-api-scraper")
	e.logger = e.loggerProvider.Logger("otel-api-scraper")

	if cfg.EnableSelfTelemetry && !cfg.DryRun {
		self, err := newSelfInstruments(e.meter)
		if err != nil {
			return nil, err
		}
		e.self = self
	}

	return e, nil
}

func serviceNameOrDefault(name string) string {
	if name == "" {
		return "otel-api-scraper"
	}
	return name
}

func newMetricExporter(ctx context.Context, cfg config.ScraperSettings) (sdkmetric.Exporter, error) {
	if cfg.OtelTransport == "http" {
		return otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.OtelCollectorEndpoint),
			insecureHTTPMetricOpt(cfg.EnforceTLS),
		)
	}
	return otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OtelCollectorEndpoint),
		insecureGRPCMetricOpt(cfg.EnforceTLS),
	)
}

func newLogExporter(ctx context.Context, cfg config.ScraperSettings) (sdklog.Exporter, error) {
	if cfg.OtelTransport == "http" {
		return otlploghttp.New(ctx,
			otlploghttp.WithEndpoint(cfg.OtelCollectorEndpoint),
			insecureHTTPLogOpt(cfg.EnforceTLS),
		)
	}
	return otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(cfg.OtelCollectorEndpoint),
		insecureGRPCLogOpt(cfg.EnforceTLS),
	)
}

func insecureGRPCMetricOpt(enforceTLS bool) otlpmetricgrpc.Option {
	if enforceTLS {
		return otlpmetricgrpc.WithTimeout(30 * time.Second)
	}
	return otlpmetricgrpc.WithInsecure()
}

func insecureHTTPMetricOpt(enforceTLS bool) otlpmetrichttp.Option {
	if enforceTLS {
		return otlpmetrichttp.WithTimeout(30 * time.Second)
	}
	return otlpmetrichttp.WithInsecure()
}

func insecureGRPCLogOpt(enforceTLS bool) otlploggrpc.Option {
	if enforceTLS {
		return otlploggrpc.WithTimeout(30 * time.Second)
	}
	return otlploggrpc.WithInsecure()
}

func insecureHTTPLogOpt(enforceTLS bool) otlploghttp.Option {
	if enforceTLS {
		return otlploghttp.WithTimeout(30 * time.Second)
	}
	return otlploghttp.WithInsecure()
}

// ForceFlush flushes both providers. Emit calls this after every
// batch's metric and log emission so a crash between ticks never silently
// loses a completed batch's telemetry.
func (e *Emitter) ForceFlush(ctx context.Context) error {
	if err := e.meterProvider.ForceFlush(ctx); err != nil {
		return err
	}
	return e.loggerProvider.ForceFlush(ctx)
}

// Shutdown flushes and stops both providers. Called once at process
// shutdown.
func (e *Emitter) Shutdown(ctx context.Context) error {
	if err := e.meterProvider.Shutdown(ctx); err != nil {
		return err
	}
	return e.loggerProvider.Shutdown(ctx)
}
