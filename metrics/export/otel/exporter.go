package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/forgefit/authguard"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// metricsSource is the slice of the engine the exporter observes.
type metricsSource interface {
	MetricsSnapshot() map[authguard.MetricID]uint64
	AuditDropped() uint64
}

type counterDef struct {
	id   authguard.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{id: authguard.MetricLoginSuccess, name: "authguard_login_success_total", help: "Successful login attempts."},
	{id: authguard.MetricLoginFailure, name: "authguard_login_failure_total", help: "Failed login attempts."},
	{id: authguard.MetricLoginBlocked, name: "authguard_login_blocked_total", help: "Login attempts rejected by the throttle."},
	{id: authguard.MetricSecondFactorRequired, name: "authguard_second_factor_required_total", help: "Logins requiring a second factor."},
	{id: authguard.MetricSecondFactorSuccess, name: "authguard_second_factor_success_total", help: "Successful second-factor verifications."},
	{id: authguard.MetricSecondFactorFailure, name: "authguard_second_factor_failure_total", help: "Failed second-factor verifications."},
	{id: authguard.MetricBackupCodeUsed, name: "authguard_backup_code_used_total", help: "Successful backup-code authentications."},
	{id: authguard.MetricBackupCodeFailed, name: "authguard_backup_code_failed_total", help: "Failed backup-code authentications."},
	{id: authguard.MetricBackupCodeRegenerated, name: "authguard_backup_code_regenerated_total", help: "Backup-code regeneration operations."},
	{id: authguard.MetricRefreshSuccess, name: "authguard_refresh_success_total", help: "Successful refresh rotations."},
	{id: authguard.MetricRefreshFailure, name: "authguard_refresh_failure_total", help: "Failed refresh rotations."},
	{id: authguard.MetricTokenRevoked, name: "authguard_token_revoked_total", help: "Access tokens placed on the blacklist."},
	{id: authguard.MetricTwoFactorEnabled, name: "authguard_two_factor_enabled_total", help: "Second-factor enrollments completed."},
	{id: authguard.MetricTwoFactorDisabled, name: "authguard_two_factor_disabled_total", help: "Second-factor enrollments removed."},
	{id: authguard.MetricLogout, name: "authguard_logout_total", help: "Logout operations."},
}

type observedCounter struct {
	id         authguard.MetricID
	instrument metric.Int64ObservableCounter
}

// OTelExporter bridges the engine's counters into an OpenTelemetry meter via
// observable instruments; values are pulled on collection, not pushed.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable counters for engine on meter.
func NewOTelExporter(meter metric.Meter, engine *authguard.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is NewOTelExporter generalized over any source,
// mainly for tests.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		source:   source,
		counters: make([]observedCounter, 0, len(counterDefs)),
	}

	observables := make([]metric.Observable, 0, len(counterDefs)+1)

	for _, def := range counterDefs {
		ins, err := meter.Int64ObservableCounter(def.name, metric.WithDescription(def.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.id, instrument: ins})
		observables = append(observables, ins)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"authguard_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		snapshot := exporter.source.MetricsSnapshot()
		for _, c := range exporter.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot[c.id]))
		}
		observer.ObserveInt64(exporter.auditDropped, int64(exporter.source.AuditDropped()))
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
