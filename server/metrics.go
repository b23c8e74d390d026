package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var flowsInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "colino_auth_flows_initiated_total",
	Help: "Total number of authorization flows started.",
})

var callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "colino_auth_callbacks_total",
	Help: "Total number of provider callbacks by outcome.",
}, []string{"outcome"})

var pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "colino_auth_polls_total",
	Help: "Total number of poll requests by reported session status.",
}, []string{"status"})

var refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "colino_auth_refreshes_total",
	Help: "Total number of token refresh requests by outcome.",
}, []string{"outcome"})

// RunMetrics exposes Prometheus metrics on a separate listener.
func (s *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}
