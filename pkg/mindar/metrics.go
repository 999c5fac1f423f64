package mindar

import (
	"strconv"

	"github.com/navikt/mindar/pkg/errs"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests      *prometheus.CounterVec
	exportedBytes prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mindar_requests_total",
			Help:      "Requests made to the mindar API by operation and status code.",
		}, []string{"operation", "code"}),
		exportedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mindar_exported_bytes_total",
			Help:      "Bytes of table records written to disk by exports.",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.requests, m.exportedBytes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// observeRequest records a request; code 0 means no response was received.
func (m *Metrics) observeRequest(op errs.Op, code int) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(string(op), strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeExport(n int64) {
	if m == nil {
		return
	}

	m.exportedBytes.Add(float64(n))
}
