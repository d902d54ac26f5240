package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Claim submission outcomes
	ClaimDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcover_claim_decisions_total",
			Help: "Claim submissions by eligibility outcome and denial code",
		},
		[]string{"outcome", "denial_code"}, // outcome: eligible, ineligible
	)

	ClaimReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcover_claim_reviews_total",
			Help: "Reviewer decisions by action and denial code",
		},
		[]string{"action", "denial_code"}, // action: review, approve, deny
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcover_payouts_total",
			Help: "Payouts made by plan tier",
		},
		[]string{"plan"},
	)

	PayoutAmountDollars = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketcover_payout_amount_dollars",
			Help:    "Distribution of payout amounts",
			Buckets: []float64{0, 10, 25, 50, 75, 100, 150, 200, 300, 500},
		},
		[]string{"plan"},
	)

	JurisdictionWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcover_jurisdiction_warnings_total",
			Help: "Eligible claims flagged for reviewer attention on jurisdiction",
		},
	)

	CancellationChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcover_cancellation_checks_total",
			Help: "Subscription cancellation checks by outcome",
		},
		[]string{"outcome"}, // allowed, blocked
	)

	LedgerRolloversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketcover_ledger_rollovers_total",
			Help: "Coverage ledgers reset at the end of their annual period",
		},
	)

	PlanChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketcover_plan_changes_total",
			Help: "Plan changes by source and target tier",
		},
		[]string{"from", "to"},
	)
)

// RecordSubmission records the evaluator outcome for one submission
func RecordSubmission(eligible bool, denialCode string, warnings int) {
	outcome := "eligible"
	if !eligible {
		outcome = "ineligible"
	}
	ClaimDecisionsTotal.WithLabelValues(outcome, denialCode).Inc()
	if warnings > 0 {
		JurisdictionWarningsTotal.Inc()
	}
}

// RecordReview records a reviewer action
func RecordReview(action, denialCode string) {
	ClaimReviewsTotal.WithLabelValues(action, denialCode).Inc()
}

// RecordPayout records a payout and its amount
func RecordPayout(plan string, amount float64) {
	PayoutsTotal.WithLabelValues(plan).Inc()
	PayoutAmountDollars.WithLabelValues(plan).Observe(amount)
}

// RecordCancellationCheck records whether cancellation was allowed
func RecordCancellationCheck(allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "blocked"
	}
	CancellationChecksTotal.WithLabelValues(outcome).Inc()
}

// RecordRollovers adds n ledger rollovers
func RecordRollovers(n int) {
	if n > 0 {
		LedgerRolloversTotal.Add(float64(n))
	}
}

// RecordPlanChange records a plan switch
func RecordPlanChange(from, to string) {
	PlanChangesTotal.WithLabelValues(from, to).Inc()
}
