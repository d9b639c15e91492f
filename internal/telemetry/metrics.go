package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/impacthq/impactos"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Authentication metrics
	LoginsTotal            metric.Int64Counter
	LoginErrorsTotal       metric.Int64Counter
	SignupsTotal           metric.Int64Counter
	SessionsRevoked        metric.Int64Counter
	SessionResolveDuration metric.Float64Histogram

	// Organization metrics
	OrgsCreatedTotal   metric.Int64Counter
	OrgsDeletedTotal   metric.Int64Counter
	OrgSwitchesTotal   metric.Int64Counter
	MembershipsCreated metric.Int64Counter

	// Invitation metrics
	InvitationsIssuedTotal   metric.Int64Counter
	InvitationsAcceptedTotal metric.Int64Counter
	InvitationsRejectedTotal metric.Int64Counter

	// Authorization metrics
	AccessDeniedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.LoginsTotal, _ = meter.Int64Counter(
		"impactos.auth.logins.total",
		metric.WithDescription("Total number of successful logins"),
		metric.WithUnit("{login}"),
	)

	m.LoginErrorsTotal, _ = meter.Int64Counter(
		"impactos.auth.login_errors.total",
		metric.WithDescription("Total number of failed login attempts"),
		metric.WithUnit("{error}"),
	)

	m.SignupsTotal, _ = meter.Int64Counter(
		"impactos.auth.signups.total",
		metric.WithDescription("Total number of user signups"),
		metric.WithUnit("{signup}"),
	)

	m.SessionsRevoked, _ = meter.Int64Counter(
		"impactos.auth.sessions_revoked.total",
		metric.WithDescription("Total number of sessions revoked on logout or expiry sweep"),
		metric.WithUnit("{session}"),
	)

	m.SessionResolveDuration, _ = meter.Float64Histogram(
		"impactos.auth.session_resolve.duration",
		metric.WithDescription("Duration of session and active organization resolution"),
		metric.WithUnit("ms"),
	)

	m.OrgsCreatedTotal, _ = meter.Int64Counter(
		"impactos.orgs.created.total",
		metric.WithDescription("Total number of organizations created"),
		metric.WithUnit("{organization}"),
	)

	m.OrgsDeletedTotal, _ = meter.Int64Counter(
		"impactos.orgs.deleted.total",
		metric.WithDescription("Total number of organizations deleted"),
		metric.WithUnit("{organization}"),
	)

	m.OrgSwitchesTotal, _ = meter.Int64Counter(
		"impactos.orgs.switches.total",
		metric.WithDescription("Total number of active organization switches"),
		metric.WithUnit("{switch}"),
	)

	m.MembershipsCreated, _ = meter.Int64Counter(
		"impactos.orgs.memberships_created.total",
		metric.WithDescription("Total number of memberships created"),
		metric.WithUnit("{membership}"),
	)

	m.InvitationsIssuedTotal, _ = meter.Int64Counter(
		"impactos.invitations.issued.total",
		metric.WithDescription("Total number of invitations issued"),
		metric.WithUnit("{invitation}"),
	)

	m.InvitationsAcceptedTotal, _ = meter.Int64Counter(
		"impactos.invitations.accepted.total",
		metric.WithDescription("Total number of invitations accepted"),
		metric.WithUnit("{invitation}"),
	)

	m.InvitationsRejectedTotal, _ = meter.Int64Counter(
		"impactos.invitations.rejected.total",
		metric.WithDescription("Total number of invitation acceptance attempts rejected"),
		metric.WithUnit("{invitation}"),
	)

	m.AccessDeniedTotal, _ = meter.Int64Counter(
		"impactos.authz.access_denied.total",
		metric.WithDescription("Total number of requests denied by the authorization gate"),
		metric.WithUnit("{request}"),
	)

	return m
}
