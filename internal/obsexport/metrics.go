// Package obsexport registers the process-wide gauges that sit alongside
// internal/stream's per-stream counters. Exposing them over HTTP (the
// /metrics handler) is out of scope; Handler returns the one promhttp call a
// route layer would mount.
package obsexport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var budgetUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "rate_budget_utilization_percent",
	Help: "Current weight-per-minute utilization of the shared exchange rate budget, by priority class.",
}, []string{"priority"})

func init() {
	prometheus.MustRegister(budgetUtilization)
}

// ReportBudgetUtilization updates the per-priority utilization gauges from a
// budget.Stats snapshot. main.go calls it from a loop that samples the
// scheduler every 5 seconds.
func ReportBudgetUtilization(userPct, pollingPct, backfillPct int) {
	budgetUtilization.WithLabelValues("user").Set(float64(userPct))
	budgetUtilization.WithLabelValues("polling").Set(float64(pollingPct))
	budgetUtilization.WithLabelValues("backfill").Set(float64(backfillPct))
}

// Handler returns the default-registry exposition handler. Mounting it on a
// route is left to the (out of scope) HTTP server.
func Handler() http.Handler {
	return promhttp.Handler()
}
