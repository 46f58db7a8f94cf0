package relayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SettlementAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "relayer",
	Subsystem: "settlement",
	Name:      "attempts_total",
	Help:      "Settlement attempt outcomes, including deferred and failed attempts.",
}, []string{"result"})
