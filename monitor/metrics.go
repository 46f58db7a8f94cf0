package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LatestHeadBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "latest_head_block",
		Help:      "Chain head minus the configured confirmation depth.",
	}, []string{"chain_id"})

	LatestFetchedBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "latest_fetched_block",
		Help:      "Last block whose logs were fetched and dispatched.",
	}, []string{"chain_id"})

	RequestsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "requests_discovered_total",
		Help:      "Confirmed BridgeRequested events handed to the pipeline.",
	}, []string{"chain_id"})

	MalformedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relayer",
		Subsystem: "monitor",
		Name:      "malformed_events_total",
		Help:      "BridgeRequested events dropped for violating invariants.",
	}, []string{"chain_id"})
)
