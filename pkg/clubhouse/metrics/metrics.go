// Package metrics exposes prometheus counters for membership operations.
package metrics

import (
	"errors"
	"net/http"

	"github.com/mikepea/clubhouse/pkg/clubhouse/membership"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder counts membership operations by outcome. It implements
// membership.Observer.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	logins     *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubhouse",
			Name:      "membership_operations_total",
			Help:      "Membership operations by operation and outcome.",
		}, []string{"operation", "outcome", "reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clubhouse",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(
		r.operations,
		r.logins,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Observe records the outcome of one membership operation.
func (r *Recorder) Observe(op string, err error) {
	outcome, reason := classify(err)
	r.operations.WithLabelValues(op, outcome, reason).Inc()
}

// ObserveLogin records a login attempt.
func (r *Recorder) ObserveLogin(ok bool) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeRejected
	}
	r.logins.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var reasons = map[error]string{
	membership.ErrInvalidCode:       "invalid_code",
	membership.ErrAlreadyMember:     "already_member",
	membership.ErrNotAMember:        "not_a_member",
	membership.ErrAdminCannotLeave:  "admin_cannot_leave",
	membership.ErrNotAdmin:          "not_admin",
	membership.ErrNotFound:          "not_found",
	membership.ErrAlreadyInGroup:    "already_in_group",
	membership.ErrGroupNameRequired: "name_required",
}

func classify(err error) (outcome, reason string) {
	if err == nil {
		return OutcomeOK, ""
	}
	if !membership.IsOutcome(err) {
		return OutcomeError, ""
	}
	for sentinel, reason := range reasons {
		if errors.Is(err, sentinel) {
			return OutcomeRejected, reason
		}
	}
	return OutcomeRejected, "other"
}
