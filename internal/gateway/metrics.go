package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leancoffee_ws_connections",
		Help: "Number of active WebSocket connections.",
	})
	metricRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leancoffee_ws_rooms",
		Help: "Number of board rooms with at least one connection.",
	})
	metricIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leancoffee_intents_total",
		Help: "Client intents processed, by intent name and outcome.",
	}, []string{"intent", "status"})
	metricBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leancoffee_broadcasts_total",
		Help: "Events broadcast to rooms, by event name.",
	}, []string{"event"})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leancoffee_broadcasts_dropped_total",
		Help: "Broadcasts dropped because the broadcast queue was full.",
	})
)
