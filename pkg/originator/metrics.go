package originator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsOriginated counts admitted session-creation requests that
	// resolved into a created session.
	SessionsOriginated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callstorm_sessions_originated_total",
			Help: "Total sessions originated by the engine",
		},
	)

	// ActiveSessions tracks the live session count aggregated from the pool.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callstorm_active_sessions",
			Help: "Currently active sessions across the pool",
		},
	)

	// Bursts counts burst-loop invocations that admitted at least one session.
	Bursts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callstorm_bursts_total",
			Help: "Burst loop invocations that issued work",
		},
	)

	// AdmissionSkips counts burst-loop invocations that found no headroom.
	AdmissionSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "callstorm_admission_skips_total",
			Help: "Burst loop invocations skipped for lack of rate/limit headroom",
		},
	)

	// ConfiguredRate mirrors the configured offer rate.
	ConfiguredRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callstorm_configured_rate",
			Help: "Configured session offer rate (cps)",
		},
	)

	// ConfiguredLimit mirrors the configured concurrency ceiling.
	ConfiguredLimit = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callstorm_configured_limit",
			Help: "Configured concurrent session limit",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionsOriginated)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(Bursts)
	prometheus.MustRegister(AdmissionSkips)
	prometheus.MustRegister(ConfiguredRate)
	prometheus.MustRegister(ConfiguredLimit)
}
