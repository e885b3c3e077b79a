package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegisterRequestsTotal     metric.Int64Counter
	RegisterDurationSeconds   metric.Float64Histogram
	ProvisioningFailuresTotal metric.Int64Counter
	ProfileSyncsTotal         metric.Int64Counter
	PasswordValidationsTotal  metric.Int64Counter
	ValidationCacheHitsTotal  metric.Int64Counter
	ValidationCacheMissTotal  metric.Int64Counter
	BreachChecksTotal         metric.Int64Counter
	DbQueryErrorsTotal        metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments ONLY ONCE.
// It gets the Meter from the globally configured MeterProvider, so the
// tracer package must install its provider first for the data to be kept.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("GearGuard")
		m := &AppMetrics{}

		m.RegisterRequestsTotal = int64Counter(meter, "register_requests_total",
			"Total number of registrations attempted", "{request}")
		m.ProvisioningFailuresTotal = int64Counter(meter, "provisioning_failures_total",
			"Registrations rolled back because the profile step failed", "{request}")
		m.ProfileSyncsTotal = int64Counter(meter, "profile_syncs_total",
			"Profiles created or updated to match their identity", "{profile}")
		m.PasswordValidationsTotal = int64Counter(meter, "password_validations_total",
			"Password validations performed", "{validation}")
		m.ValidationCacheHitsTotal = int64Counter(meter, "password_validation_cache_hits_total",
			"Password validations served from cache", "{validation}")
		m.ValidationCacheMissTotal = int64Counter(meter, "password_validation_cache_misses_total",
			"Password validations computed because the cache had no entry", "{validation}")
		m.BreachChecksTotal = int64Counter(meter, "password_breach_checks_total",
			"Breach database lookups", "{request}")
		m.DbQueryErrorsTotal = int64Counter(meter, "db_query_errors_total",
			"Total number of database query errors", "{error}")

		var err error
		m.RegisterDurationSeconds, err = meter.Float64Histogram(
			"register_duration_seconds",
			metric.WithDescription("Duration of registrations in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create register_duration_seconds: %v", err)
		}

		appMetrics = m
	})
}

func int64Counter(meter metric.Meter, name, description, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

// Get returns the globally initialized AppMetrics instance.
// Panics if InitAppMetrics was not called first.
func Get() *AppMetrics {
	if appMetrics == nil {
		panic("metrics instruments not initialized. Call metrics.InitAppMetrics() first.")
	}
	return appMetrics
}
