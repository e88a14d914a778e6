// Package services – engine metrics.
//
// Prometheus collectors for the billing engine. HTTP-level metrics live in
// the middleware package; these cover what happens between ticks: wallet
// mutations, billing outcomes, and how many sessions are live right now.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	walletCredits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattalk_wallet_credits_total",
		Help: "Successful wallet credit operations.",
	})

	walletDebits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chattalk_wallet_debits_total",
		Help: "Successful wallet debit operations.",
	})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chattalk_active_sessions",
		Help: "Number of currently active chat sessions (live billing timers).",
	})

	// billingTicks counts timer fires by result: billed, exhausted, error.
	billingTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chattalk_billing_ticks_total",
		Help: "Billing clock ticks by outcome.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(walletCredits, walletDebits, activeSessions, billingTicks)
}
