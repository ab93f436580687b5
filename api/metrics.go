package api

import (
	"log/slog"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/badhabitcaps/poker-web/domain"
)

// metricFamilies renders the relay counters in Prometheus form.
func metricFamilies(s domain.Stats) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		family("relay_connected_clients", "Websocket clients currently registered.", dto.MetricType_GAUGE, float64(s.Clients)),
		family("relay_connections_total", "Websocket clients registered since start.", dto.MetricType_COUNTER, float64(s.Connections)),
		family("relay_events_broadcast_total", "Events fanned out since start.", dto.MetricType_COUNTER, float64(s.Events)),
		family("relay_deliveries_total", "Frames handed to client send queues.", dto.MetricType_COUNTER, float64(s.Deliveries)),
		family("relay_evictions_total", "Clients dropped after a failed send.", dto.MetricType_COUNTER, float64(s.Evictions)),
	}
}

func family(name, help string, typ dto.MetricType, v float64) *dto.MetricFamily {
	m := &dto.Metric{}
	switch typ {
	case dto.MetricType_COUNTER:
		m.Counter = &dto.Counter{Value: &v}
	default:
		m.Gauge = &dto.Gauge{Value: &v}
	}
	return &dto.MetricFamily{
		Name:   &name,
		Help:   &help,
		Type:   typ.Enum(),
		Metric: []*dto.Metric{m},
	}
}

func metricsHandler(stats StatsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		for _, mf := range metricFamilies(stats.Stats()) {
			if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
				slog.Debug("metrics write failed", "metric", mf.GetName(), "error", err)
				return
			}
		}
	}
}
