package merger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/update-branch/internal/logfields"
)

const metricNamespace = "update_branch"

const actionsMetricName = "coordinator_actions_total"

const actionLabel = "action"

type actionLabelVal string

const (
	actionMerge        actionLabelVal = "merge"
	actionUpdateBranch actionLabelVal = "update_branch"
	actionWait         actionLabelVal = "wait"
	actionNone         actionLabelVal = "none"
)

type metricCollector struct {
	logger  *zap.Logger
	actions *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		actions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      actionsMetricName,
				Help:      "count of actions executed by the merge coordinator",
			},
			[]string{actionLabel},
		),
	}
}

func (m *metricCollector) ActionInc(action actionLabelVal) {
	cnt, err := m.actions.GetMetricWith(prometheus.Labels{actionLabel: string(action)})
	if err != nil {
		m.logger.Warn(
			"could not record metric",
			zap.String("metric", actionsMetricName),
			logfields.Event("recording_metric_failed"),
			zap.Error(err),
		)
		return
	}

	cnt.Inc()
}
