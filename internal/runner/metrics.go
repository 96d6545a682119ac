package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricNamespace = "update_branch"

type resultLabelVal string

const (
	resultSuccess resultLabelVal = "success"
	resultFailure resultLabelVal = "failure"
	resultLocked  resultLabelVal = "locked"
)

type metricCollector struct {
	runs *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "runs_total",
				Help:      "count of runs by result",
			},
			[]string{"result"},
		),
	}
}

func (m *metricCollector) RunInc(result resultLabelVal) {
	m.runs.WithLabelValues(string(result)).Inc()
}
