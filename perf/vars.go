package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DispatchLatency = metric.NewHistogram("1m1s")
	FramesPerSecond = metric.NewCounter("10s1s")
)

var (
	FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_frames_sent_total",
		Help: "Frames handed to the link layer, by node and port.",
	}, []string{"node", "port"})
	FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_frames_received_total",
		Help: "Frames accepted by the radio, by node and port.",
	}, []string{"node", "port"})
	AnnouncementsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_announcements_dropped_total",
		Help: "Announcements from new neighbours ignored because the table was full.",
	}, []string{"node"})
	NeighbourEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_neighbour_evictions_total",
		Help: "Neighbours removed after their timeout expired.",
	}, []string{"node"})
	Neighbours = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tpwsn_neighbours",
		Help: "Live entries in the neighbour table.",
	}, []string{"node"})
	Relays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_relays_total",
		Help: "Multihop messages by outcome (forwarded, dropped, delivered).",
	}, []string{"node", "outcome"})
	TokenTx = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_token_tx_total",
		Help: "Trickle transmission slots by outcome (sent, suppressed).",
	}, []string{"node", "outcome"})
	TokenRx = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_token_rx_total",
		Help: "Received tokens by comparison outcome (consistent, newer, older).",
	}, []string{"node", "outcome"})
	Restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tpwsn_restarts_total",
		Help: "Completed simulated crash and restart cycles.",
	}, []string{"node"})
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("tpwsn:DispatchLatency (µs)", DispatchLatency)
	expvar.Publish("tpwsn:Frames/s", FramesPerSecond)

	prometheus.MustRegister(
		FramesSent,
		FramesReceived,
		AnnouncementsDropped,
		NeighbourEvictions,
		Neighbours,
		Relays,
		TokenTx,
		TokenRx,
		Restarts,
	)
}

// Serve exposes prometheus metrics and the expvar debug handlers on addr
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	mux.Handle("/debug/vars", expvar.Handler())
	return http.ListenAndServe(addr, mux)
}
