package obs

import (
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess   = "success"
	OutcomeDenied    = "denied"
	OutcomeThrottled = "throttled"
	OutcomeFailed    = "failed"

	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

var (
	initOnce sync.Once

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	accessChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_auth_access_checks_total",
			Help: "Access decisions returned by the engine.",
		},
		[]string{"decision"},
	)

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_auth_mutations_total",
			Help: "Gated mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	sessionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_auth_sessions_issued_total",
		Help: "Access tokens issued.",
	})
)

// Init registers the auth collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(loginAttempts, accessChecks, mutations, sessionsIssued)
	})
}

// ObserveLogin counts a login attempt.
func ObserveLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveAccess counts an access decision.
func ObserveAccess(allowed bool) {
	if allowed {
		accessChecks.WithLabelValues(DecisionAllow).Inc()
		return
	}
	accessChecks.WithLabelValues(DecisionDeny).Inc()
}

// ObserveMutation counts a gated mutation attempt.
func ObserveMutation(operation, outcome string) {
	mutations.WithLabelValues(operation, outcome).Inc()
}

// ObserveSession counts an issued access token.
func ObserveSession() {
	sessionsIssued.Inc()
}

// WriteText dumps every metric family of the gatherer in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
