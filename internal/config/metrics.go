package config

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
	problemCounter  metric.Int64Counter
)

var knownEnvironments = map[string]bool{
	"development": true,
	"test":        true,
	"staging":     true,
	"production":  true,
}

// recordConfigLoad counts one load outcome and one problem event per
// failure class, so dashboards can tell a missing OAuth secret from a bad
// JWT key.
func recordConfigLoad(ctx context.Context, environment string, err error) {
	loadMetricsOnce.Do(func() {
		meter := otel.Meter("checkin-gateway/config")
		if c, cerr := meter.Int64Counter("config.load.events"); cerr == nil {
			loadCounter = c
		}
		if c, cerr := meter.Int64Counter("config.load.problems"); cerr == nil {
			problemCounter = c
		}
	})
	env := environmentLabel(environment)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if loadCounter != nil {
		loadCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("environment", env),
			attribute.String("outcome", outcome),
		))
	}
	if problemCounter == nil {
		return
	}
	for _, class := range loadErrorClasses(err) {
		problemCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("environment", env),
			attribute.String("error_class", class),
		))
	}
}

// environmentLabel keeps the metric label set bounded.
func environmentLabel(environment string) string {
	v := normalizeEnvironment(environment)
	switch {
	case v == "":
		return "unknown"
	case knownEnvironments[v]:
		return v
	default:
		return "other"
	}
}

func normalizeEnvironment(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

// loadErrorClasses maps a Load error onto its failure classes. A nil error
// has none; an unrecognised error is "load".
func loadErrorClasses(err error) []string {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		if len(verr.Classes) == 0 {
			return []string{"validation"}
		}
		return verr.Classes
	}
	if errors.Is(err, ErrParseEnv) {
		return []string{ClassParse}
	}
	return []string{"load"}
}
