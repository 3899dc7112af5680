package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
)

const meterName = "checkin-gateway"

type AppMetrics struct {
	authLoginCounter      metric.Int64Counter
	authLogoutCounter     metric.Int64Counter
	sessionLookupCounter  metric.Int64Counter
	repositoryOpCounter   metric.Int64Counter
	rateLimitCounter      metric.Int64Counter
	rateLimitRetryAfter   metric.Float64Histogram
	submissionCounter     metric.Int64Counter
	workflowLatency       metric.Float64Histogram
	geocodeCounter        metric.Int64Counter
	tokenIssuedCounter    metric.Int64Counter
	storeSweepRowsCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	if m.authLoginCounter, err = meter.Int64Counter("auth.login.attempts"); err != nil {
		return nil, err
	}
	if m.authLogoutCounter, err = meter.Int64Counter("auth.logout.attempts"); err != nil {
		return nil, err
	}
	if m.sessionLookupCounter, err = meter.Int64Counter("session.lookups"); err != nil {
		return nil, err
	}
	if m.repositoryOpCounter, err = meter.Int64Counter("repository.operations"); err != nil {
		return nil, err
	}
	if m.rateLimitCounter, err = meter.Int64Counter("rate_limit.decisions"); err != nil {
		return nil, err
	}
	if m.rateLimitRetryAfter, err = meter.Float64Histogram("rate_limit.retry_after", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.submissionCounter, err = meter.Int64Counter("checkin.submissions"); err != nil {
		return nil, err
	}
	if m.workflowLatency, err = meter.Float64Histogram("checkin.workflow.duration", metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.geocodeCounter, err = meter.Int64Counter("geocode.lookups"); err != nil {
		return nil, err
	}
	if m.tokenIssuedCounter, err = meter.Int64Counter("token.issued"); err != nil {
		return nil, err
	}
	if m.storeSweepRowsCounter, err = meter.Int64Counter("store.sweep.rows"); err != nil {
		return nil, err
	}
	return &m, nil
}

func newResource(ctx context.Context, cfg config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, provider, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

func RecordAuthLogout(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSessionLookup(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionLookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRepositoryOperation(ctx context.Context, repository, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, category, outcome, mode string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, category string, retryAfter time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, retryAfter.Seconds(), metric.WithAttributes(attribute.String("category", category)))
}

func RecordSubmission(ctx context.Context, phase, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.submissionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}

func RecordWorkflowLatency(ctx context.Context, phase string, d time.Duration) {
	m := current()
	if m == nil {
		return
	}
	m.workflowLatency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attribute.String("phase", phase)))
}

func RecordGeocodeLookup(ctx context.Context, source, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.geocodeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func RecordTokenIssued(ctx context.Context, algorithm, purpose string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenIssuedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("algorithm", algorithm),
		attribute.String("purpose", purpose),
	))
}

func RecordStoreSweep(ctx context.Context, backend string, rows int64) {
	m := current()
	if m == nil {
		return
	}
	m.storeSweepRowsCounter.Add(ctx, rows, metric.WithAttributes(attribute.String("backend", backend)))
}
