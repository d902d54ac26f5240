/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	members and claims. Every scenario goes through claims.Service, so the
	coverage ledgers and transaction logs are exactly what live traffic
	would produce. Dates are relative to the handler's Clock.

AVAILABLE SCENARIOS:

	basic-first-claim:   Basic member, one $85 ticket paid at $68.00
	pro-cap-exhaustion:  Pro member, three claims use the whole $350 cap
	cancellation-lock:   Recent payout keeps the subscription locked in
	reviewer-queue:      Professional member with claims in every review state

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Register members
 3. Submit, review and decide claims at past dates

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "pro-cap-exhaustion"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Claim and member handlers
  - claims/service.go: Operations the loaders drive
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-first-claim",
		Name:        "Basic: First Claim",
		Description: "Basic member submits an $85 expired meter ticket; 20% deductible pays $68.00",
	},
	{
		ID:          "pro-cap-exhaustion",
		Name:        "Pro: Cap Exhaustion",
		Description: "Three $200 tickets pay $170, $170 and $10; the next claim is denied CAP_EXCEEDED",
	},
	{
		ID:          "cancellation-lock",
		Name:        "Cancellation Lock",
		Description: "Claim paid 20 days ago; cancellation blocked for another 70 days",
	},
	{
		ID:          "reviewer-queue",
		Name:        "Reviewer Queue",
		Description: "Professional member with submitted, under review, paid and denied claims",
	},
}

type scenarioLoader func(ctx context.Context, svc *claims.Service, today generic.TimePoint) error

var scenarioLoaders = map[string]scenarioLoader{
	"basic-first-claim":  loadBasicFirstClaim,
	"pro-cap-exhaustion": loadProCapExhaustion,
	"cancellation-lock":  loadCancellationLock,
	"reviewer-queue":     loadReviewerQueue,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Scenarios are disabled", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, h.Service, h.Clock()); err != nil {
		log.Error().Err(err).Str("scenario", req.ScenarioID).Msg("Scenario load failed")
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	log.Info().Str("scenario", req.ScenarioID).Msg("Scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(w, http.StatusNotImplemented, "Reset is disabled", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// LOADERS
// =============================================================================

func loadBasicFirstClaim(ctx context.Context, svc *claims.Service, today generic.TimePoint) error {
	if err := registerDemoMember(ctx, svc, "alex", "Alex Rivera", policy.TierBasic, "CA", today.AddDays(-120)); err != nil {
		return err
	}

	ticketDay := today.AddDays(-3)
	claim, err := submitDemoClaim(ctx, svc, "alex", demoTicket("SF-48213", ticketDay, "San Francisco", "CA", policy.ViolationExpiredMeter, "85.00"), ticketDay.AddDays(1))
	if err != nil {
		return err
	}
	_, err = svc.ApproveClaim(ctx, claim.ID, "Meter receipt verified", ticketDay.AddDays(2))
	return err
}

func loadProCapExhaustion(ctx context.Context, svc *claims.Service, today generic.TimePoint) error {
	if err := registerDemoMember(ctx, svc, "jordan", "Jordan Lee", policy.TierPro, "NY", today.AddDays(-200)); err != nil {
		return err
	}

	tickets := []struct {
		number    string
		daysAgo   int
		violation policy.ViolationType
	}{
		{"NYC-1001", 90, policy.ViolationStreetCleaning},
		{"NYC-1002", 60, policy.ViolationTimeLimit},
		{"NYC-1003", 30, policy.ViolationNoParkingZone},
	}
	for _, tk := range tickets {
		day := today.AddDays(-tk.daysAgo)
		claim, err := submitDemoClaim(ctx, svc, "jordan", demoTicket(tk.number, day, "New York", "NY", tk.violation, "200.00"), day)
		if err != nil {
			return err
		}
		if _, err := svc.ApproveClaim(ctx, claim.ID, "", day.AddDays(3)); err != nil {
			return err
		}
	}
	return nil
}

func loadCancellationLock(ctx context.Context, svc *claims.Service, today generic.TimePoint) error {
	if err := registerDemoMember(ctx, svc, "sam", "Sam Patel", policy.TierBasic, "TX", today.AddDays(-180)); err != nil {
		return err
	}

	paidOn := today.AddDays(-20)
	claim, err := submitDemoClaim(ctx, svc, "sam", demoTicket("AUS-7731", paidOn.AddDays(-2), "Austin", "TX", policy.ViolationLoadingZone, "60.00"), paidOn.AddDays(-1))
	if err != nil {
		return err
	}
	_, err = svc.ApproveClaim(ctx, claim.ID, "", paidOn)
	return err
}

func loadReviewerQueue(ctx context.Context, svc *claims.Service, today generic.TimePoint) error {
	if err := registerDemoMember(ctx, svc, "casey", "Casey Morgan", policy.TierProfessional, "NJ", today.AddDays(-300)); err != nil {
		return err
	}

	// Paid: $250 less 10% is $225, capped at $200 per claim.
	day := today.AddDays(-40)
	paid, err := submitDemoClaim(ctx, svc, "casey", demoTicket("NWK-501", day, "Newark", "NJ", policy.ViolationPermitZone, "250.00"), day)
	if err != nil {
		return err
	}
	if _, err := svc.ApproveClaim(ctx, paid.ID, "", day.AddDays(2)); err != nil {
		return err
	}

	// Denied after review.
	day = today.AddDays(-25)
	denied, err := submitDemoClaim(ctx, svc, "casey", demoTicket("NYC-88120", day, "New York", "NY", policy.ViolationCommercialVehicle, "115.00"), day)
	if err != nil {
		return err
	}
	if _, err := svc.StartReview(ctx, denied.ID, day.AddDays(1)); err != nil {
		return err
	}
	if _, err := svc.DenyClaim(ctx, denied.ID, policy.DenialNotWorkRelated, "Personal trip", day.AddDays(2)); err != nil {
		return err
	}

	// Under review.
	day = today.AddDays(-4)
	reviewing, err := submitDemoClaim(ctx, svc, "casey", demoTicket("JC-3307", day, "Jersey City", "NJ", policy.ViolationNoStanding, "45.00"), day)
	if err != nil {
		return err
	}
	if _, err := svc.StartReview(ctx, reviewing.ID, today.AddDays(-1)); err != nil {
		return err
	}

	// Submitted, waiting for a reviewer.
	day = today.AddDays(-1)
	_, err = submitDemoClaim(ctx, svc, "casey", demoTicket("PHL-2290", day, "Philadelphia", "PA", policy.ViolationExpiredMeter, "36.00"), today)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func registerDemoMember(ctx context.Context, svc *claims.Service, id, name string, tier policy.Tier, state string, since generic.TimePoint) error {
	_, err := svc.RegisterUser(ctx, claims.User{
		ID:                    generic.EntityID(id),
		Name:                  name,
		MembershipStartedAt:   since,
		CurrentPlan:           tier,
		HasActiveSubscription: true,
		State:                 state,
	}, since)
	if err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	return nil
}

func demoTicket(number string, day generic.TimePoint, city, state string, v policy.ViolationType, amount string) claims.SubmissionPayload {
	return claims.SubmissionPayload{
		TicketNumber:  number,
		TicketDate:    day.String(),
		City:          city,
		State:         state,
		ViolationType: string(v),
		Amount:        amount,
	}
}

// submitDemoClaim submits a claim that the scenario expects to be eligible.
func submitDemoClaim(ctx context.Context, svc *claims.Service, userID string, p claims.SubmissionPayload, at generic.TimePoint) (*claims.Claim, error) {
	res, err := svc.SubmitClaim(ctx, generic.EntityID(userID), p, at)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", p.TicketNumber, err)
	}
	if res.Claim == nil {
		return nil, fmt.Errorf("submit %s: %s (%s)", p.TicketNumber, res.Eligibility.Reason, res.Eligibility.DenialCode)
	}
	return res.Claim, nil
}
