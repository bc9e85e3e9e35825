package nat

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/imamik/edgefip/internal/gateway"
)

const metricsNamespace = "edgefip"

// Metrics instruments NAT rule requests, task waits and configuration commits.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ruleRequests *prometheus.CounterVec
	taskWaits    *prometheus.HistogramVec
	taskPolls    prometheus.Histogram
	commits      *prometheus.CounterVec
	publicIPs    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ruleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "nat",
			Name:      "rule_requests_total",
			Help:      "Number of NAT rule create/delete requests by direction and outcome",
		}, []string{"action", "direction", "result"}),
		taskWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "task",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for remote gateway tasks",
			Buckets:   []float64{1, 3, 10, 30, 60, 180, 600},
		}, []string{"result"}),
		taskPolls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "task",
			Name:      "polls",
			Help:      "Number of status reads per remote gateway task",
			Buckets:   prometheus.LinearBuckets(1, 2, 10),
		}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "config_commits_total",
			Help:      "Number of gateway services configuration commits by outcome",
		}, []string{"result"}),
		publicIPs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "public_ip_requests_total",
			Help:      "Number of on-demand public ip allocations and releases by outcome",
		}, []string{"action", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.ruleRequests, m.taskWaits, m.taskPolls, m.commits, m.publicIPs)
	}
	return m
}

// ObserveTaskWait implements task.Observer.
func (m *Metrics) ObserveTaskWait(polls int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case gateway.IsTimeout(err):
		result = "timeout"
	case err != nil:
		result = "error"
	}
	m.taskWaits.WithLabelValues(result).Observe(elapsed.Seconds())
	m.taskPolls.Observe(float64(polls))
}

func (m *Metrics) ruleRequest(action string, direction gateway.RuleType, err error) {
	if m == nil {
		return
	}
	result := "applied"
	switch {
	case errors.Is(err, gateway.ErrNATRuleRequestRejected):
		result = "rejected"
	case err != nil:
		result = "failed"
	}
	m.ruleRequests.WithLabelValues(action, string(direction), result).Inc()
}

func (m *Metrics) commit(applied bool, err error) {
	if m == nil {
		return
	}
	result := "applied"
	switch {
	case err != nil:
		result = "failed"
	case !applied:
		result = "busy"
	}
	m.commits.WithLabelValues(result).Inc()
}

func (m *Metrics) publicIPRequest(action string, err error) {
	if m == nil {
		return
	}
	result := "applied"
	switch {
	case errors.Is(err, gateway.ErrRemoteOperationFailed):
		result = "failed"
	case errors.Is(err, gateway.ErrPublicIPRequest):
		result = "rejected"
	case err != nil:
		result = "failed"
	}
	m.publicIPs.WithLabelValues(action, result).Inc()
}
