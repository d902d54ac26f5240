package claims

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/warp/ticket-cover/coverage"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/metrics"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// SERVICE - Policy engine over persistent state
// =============================================================================

// Service runs the policy engine against a repository.
//
// Every operation that reads a ledger and then writes it holds the
// member's lock AND runs inside WithTx. Two concurrent submissions for the
// same member therefore see each other's ticket consumption, and two
// concurrent approvals cannot jointly overdraw the cap.
//
// Mutations refuse dates after the service clock's today, so a stored
// ledger never rolls into a period that has not started yet. Reads may
// look ahead but never write.
type Service struct {
	repo   TxRepository
	engine *Engine
	usage  coverage.UsagePolicy
	locks  *keyedMutex
	newID  func() string
	clock  func() generic.TimePoint
}

// Option configures a Service.
type Option func(*Service)

// WithUsagePolicy sets what a plan change does to consumption.
func WithUsagePolicy(p coverage.UsagePolicy) Option {
	return func(s *Service) { s.usage = p }
}

// WithIDGenerator replaces the claim id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithClock replaces the source of today's date.
func WithClock(fn func() generic.TimePoint) Option {
	return func(s *Service) { s.clock = fn }
}

// NewService creates a service. A nil engine uses the built-in catalog.
func NewService(repo TxRepository, engine *Engine, opts ...Option) *Service {
	if engine == nil {
		engine = NewEngine(nil)
	}
	s := &Service{
		repo:   repo,
		engine: engine,
		usage:  coverage.CarryOverUsage,
		locks:  newKeyedMutex(),
		newID:  uuid.NewString,
		clock:  generic.Today,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the policy engine.
func (s *Service) Engine() *Engine { return s.engine }

// Catalog returns the plan catalog.
func (s *Service) Catalog() *policy.Catalog { return s.engine.Catalog }

// UsagePolicy returns the configured plan-change usage policy.
func (s *Service) UsagePolicy() coverage.UsagePolicy { return s.usage }

// Today returns the service clock's date.
func (s *Service) Today() generic.TimePoint { return s.clock() }

// notAfterToday rejects an effective date later than the service clock.
func (s *Service) notAfterToday(field string, at generic.TimePoint) error {
	if today := s.clock(); at.After(today) {
		return &InvalidInputError{Field: field, Reason: fmt.Sprintf("%s is after today (%s)", at, today)}
	}
	return nil
}

// =============================================================================
// MEMBERS
// =============================================================================

// RegisterUser stores a new member and opens the ledger for their plan.
// Unknown or empty plans become free. A zero MembershipStartedAt means at.
func (s *Service) RegisterUser(ctx context.Context, u User, at generic.TimePoint) (*User, error) {
	u.ID = generic.EntityID(strings.TrimSpace(string(u.ID)))
	if u.ID == "" {
		return nil, &InvalidInputError{Field: "id", Reason: "required"}
	}
	u.CurrentPlan = policy.NormalizeTier(string(u.CurrentPlan))
	u.State = policy.NormalizeState(u.State)
	if err := s.notAfterToday("effective_date", at); err != nil {
		return nil, err
	}
	if u.MembershipStartedAt.IsZero() {
		u.MembershipStartedAt = at
	}
	if !u.CurrentPlan.IsPaid() {
		u.HasActiveSubscription = false
	}

	plan, err := s.engine.Catalog.PlanConfig(u.CurrentPlan)
	if err != nil {
		return nil, err
	}

	defer s.locks.Lock(string(u.ID))()

	err = s.repo.WithTx(ctx, func(repo Repository) error {
		if _, err := repo.GetUser(ctx, u.ID); err == nil {
			return fmt.Errorf("%w: user %s already registered", generic.ErrStateInconsistency, u.ID)
		} else if !errors.Is(err, generic.ErrUserNotFound) {
			return err
		}

		ledger := coverage.New(u.ID, plan, u.MembershipStartedAt)
		ledger.Rollover(at)

		if err := repo.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		return repo.SaveLedger(ctx, ledger)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", string(u.ID)).
		Str("plan", string(u.CurrentPlan)).
		Bool("active", u.HasActiveSubscription).
		Msg("Member registered")
	return &u, nil
}

// User returns a member.
func (s *Service) User(ctx context.Context, id generic.EntityID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// Users returns every member.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// =============================================================================
// SUBMISSION
// =============================================================================

// SubmitClaim validates and evaluates a claim. When eligible the claim is
// stored as submitted, the ledger's ticket count goes up and a ticket
// transaction is appended. When not, nothing is stored (not even a due
// rollover) and the verdict is returned with a nil error.
//
// A submission dated before the ledger's current period is InvalidInput:
// that period is closed and its consumption can no longer be charged.
func (s *Service) SubmitClaim(ctx context.Context, userID generic.EntityID, p SubmissionPayload, submittedAt generic.TimePoint) (*SubmissionResult, error) {
	if err := s.notAfterToday("submitted_at", submittedAt); err != nil {
		return nil, err
	}
	candidate, err := ValidateSubmission(userID, p, submittedAt)
	if err != nil {
		return nil, err
	}

	defer s.locks.Lock(string(userID))()

	var result SubmissionResult
	err = s.repo.WithTx(ctx, func(repo Repository) error {
		user, ledger, rolled, err := s.loadMember(ctx, repo, userID, submittedAt)
		if err != nil {
			return err
		}
		if !ledger.Period.Contains(submittedAt) {
			return &InvalidInputError{
				Field:  "submitted_at",
				Reason: fmt.Sprintf("%s is outside the current coverage period %s", submittedAt, ledger.Period),
			}
		}

		history, err := repo.ClaimsByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load claim history: %w", err)
		}

		result.Eligibility = s.engine.Evaluate(*user, ledger, candidate, history)
		result.Ledger = View(ledger)
		if !result.Eligibility.Eligible {
			return nil
		}

		plan, err := s.engine.Catalog.PlanConfig(ledger.PlanID)
		if err != nil {
			return err
		}

		claim := candidate
		claim.ID = s.newID()
		claim.Status = StatusSubmitted
		claim.Warnings = result.Eligibility.Warnings
		claim.Plan = plan

		ledger.ConsumeTicket()
		if err := ledger.CheckInvariants(); err != nil {
			return err
		}
		if err := recordRollover(ctx, repo, ledger, rolled); err != nil {
			return err
		}
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		if err := repo.SaveClaim(ctx, claim); err != nil {
			return fmt.Errorf("save claim: %w", err)
		}
		if err := generic.NewLedger(repo).Append(ctx, ticketTransaction(claim, ledger, submittedAt)); err != nil {
			return fmt.Errorf("append ticket transaction: %w", err)
		}

		result.Claim = &claim
		result.Ledger = View(ledger)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubmission(result.Eligibility.Eligible, result.Eligibility.DenialCode, len(result.Eligibility.Warnings))
	if result.Eligibility.Eligible {
		log.Info().
			Str("user_id", string(userID)).
			Str("claim_id", result.Claim.ID).
			Str("violation", string(result.Claim.Violation)).
			Int("tickets_used", result.Ledger.TicketsUsed).
			Strs("warnings", result.Eligibility.Warnings).
			Msg("Claim submitted")
	} else {
		log.Info().
			Str("user_id", string(userID)).
			Str("denial_code", result.Eligibility.DenialCode).
			Msg("Claim rejected at submission")
	}
	return &result, nil
}

// =============================================================================
// REVIEW DECISIONS
// =============================================================================

// StartReview moves a submitted claim to under_review.
func (s *Service) StartReview(ctx context.Context, claimID string, at generic.TimePoint) (*Claim, error) {
	if err := s.notAfterToday("effective_date", at); err != nil {
		return nil, err
	}
	claim, err := s.decide(ctx, claimID, func(repo Repository, c *Claim) error {
		if err := c.transition(StatusUnderReview, "review", at); err != nil {
			return err
		}
		return repo.SaveClaim(ctx, *c)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordReview("review", "")
	return claim, nil
}

// ApprovalResult is the outcome of an approval decision.
type ApprovalResult struct {
	Claim  *Claim
	Ledger LedgerView
}

// ApproveClaim pays a claim. The payout is computed from the claim's plan
// snapshot and the live remaining cap, applied to the ledger, and the
// claim ends paid. Approving a paid or denied claim is a StateError and
// never pays twice.
func (s *Service) ApproveClaim(ctx context.Context, claimID, notes string, at generic.TimePoint) (*ApprovalResult, error) {
	if err := s.notAfterToday("effective_date", at); err != nil {
		return nil, err
	}
	var view LedgerView
	claim, err := s.decide(ctx, claimID, func(repo Repository, c *Claim) error {
		if !CanTransition(c.Status, StatusApproved) {
			return &StateError{ClaimID: c.ID, From: c.Status, Action: "approve"}
		}

		user, ledger, rolled, err := s.loadMember(ctx, repo, c.UserID, at)
		if err != nil {
			return err
		}
		if err := recordRollover(ctx, repo, ledger, rolled); err != nil {
			return err
		}

		payout := s.engine.CalculatePayout(c.Amount, c.Violation, c.Plan, ledger)
		payout = ledger.ApplyPayout(payout)
		if err := ledger.CheckInvariants(); err != nil {
			return err
		}

		if err := c.transition(StatusApproved, "approve", at); err != nil {
			return err
		}
		if err := c.transition(StatusPaid, "pay", at); err != nil {
			return err
		}
		payoutDate := at
		c.PayoutAmount = &payout
		c.PayoutDate = &payoutDate
		c.DecisionNotes = notes

		if err := generic.NewLedger(repo).Append(ctx, payoutTransaction(*c, ledger, at)); err != nil {
			return fmt.Errorf("append payout transaction: %w", err)
		}
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		if err := repo.SaveClaim(ctx, *c); err != nil {
			return fmt.Errorf("save claim: %w", err)
		}

		// A zero payout (cap used up between submission and approval) does
		// not start the cancellation lock.
		if payout.IsPositive() {
			user.LastClaimPayoutDate = &payoutDate
			if err := repo.SaveUser(ctx, *user); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
		}

		view = View(ledger)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordReview("approve", "")
	metrics.RecordPayout(string(claim.Plan.ID), claim.PayoutAmount.Float64())
	log.Info().
		Str("user_id", string(claim.UserID)).
		Str("claim_id", claim.ID).
		Str("payout", claim.PayoutAmount.String()).
		Str("remaining", view.RemainingAmount.String()).
		Msg("Claim paid")
	return &ApprovalResult{Claim: claim, Ledger: view}, nil
}

// DenialResult is the outcome of a denial decision.
type DenialResult struct {
	Claim  *Claim
	Denial policy.DenialCode
}

// DenyClaim denies a claim with a reviewer denial code. The ledger is not
// touched: the ticket slot consumed at submission stays consumed. A code
// missing from the catalog is stored as given and reported as a
// non-appealable unspecified denial.
func (s *Service) DenyClaim(ctx context.Context, claimID, code, notes string, at generic.TimePoint) (*DenialResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, &InvalidInputError{Field: "denial_code", Reason: "required"}
	}
	if err := s.notAfterToday("effective_date", at); err != nil {
		return nil, err
	}

	claim, err := s.decide(ctx, claimID, func(repo Repository, c *Claim) error {
		if err := c.transition(StatusDenied, "deny", at); err != nil {
			return err
		}
		c.DenialReason = code
		c.DecisionNotes = notes
		return repo.SaveClaim(ctx, *c)
	})
	if err != nil {
		return nil, err
	}

	denial := s.engine.Catalog.DenialCodeOrUnspecified(code)
	if _, lookupErr := s.engine.Catalog.DenialCode(code); lookupErr != nil {
		log.Warn().Str("claim_id", claimID).Str("denial_code", code).Msg("Denied with code missing from catalog")
	}

	metrics.RecordReview("deny", code)
	log.Info().
		Str("user_id", string(claim.UserID)).
		Str("claim_id", claim.ID).
		Str("denial_code", code).
		Bool("appealable", denial.Appealable).
		Msg("Claim denied")
	return &DenialResult{Claim: claim, Denial: denial}, nil
}

// decide loads a claim, locks its member and runs fn in a transaction.
func (s *Service) decide(ctx context.Context, claimID string, fn func(Repository, *Claim) error) (*Claim, error) {
	existing, err := s.repo.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}

	defer s.locks.Lock(string(existing.UserID))()

	var claim *Claim
	err = s.repo.WithTx(ctx, func(repo Repository) error {
		c, err := repo.GetClaim(ctx, claimID)
		if err != nil {
			return err
		}
		if err := fn(repo, c); err != nil {
			return err
		}
		claim = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// =============================================================================
// PLAN AND SUBSCRIPTION
// =============================================================================

// PlanChangeResult is the outcome of a plan change.
type PlanChangeResult struct {
	User      *User
	Ledger    LedgerView
	Activated bool
}

// ChangePlan moves the member to tier. The new ledger takes the new caps
// and carries consumption according to the usage policy.
//
// Moving to free ends the subscription, so it is subject to the same
// post-payout lock as a cancellation. The ledger keeps the last paid
// plan's caps and consumption until the period rolls over.
//
// Moving from free (or from an inactive subscription) to a paid tier is an
// activation: the membership restarts at, so the waiting period applies
// again. A member who has never held a paid plan gets a fresh period; a
// returning member keeps the current period and its consumption.
func (s *Service) ChangePlan(ctx context.Context, userID generic.EntityID, tierName string, at generic.TimePoint) (*PlanChangeResult, error) {
	tier := policy.Tier(strings.ToLower(strings.TrimSpace(tierName)))
	plan, err := s.engine.Catalog.PlanConfig(tier)
	if err != nil {
		return nil, err
	}
	if err := s.notAfterToday("effective_date", at); err != nil {
		return nil, err
	}

	defer s.locks.Lock(string(userID))()

	var result PlanChangeResult
	var from policy.Tier
	err = s.repo.WithTx(ctx, func(repo Repository) error {
		user, ledger, rolled, err := s.loadMember(ctx, repo, userID, at)
		if err != nil {
			return err
		}
		from = user.CurrentPlan

		activation := tier.IsPaid() && (!user.HasActiveSubscription || !from.IsPaid())

		var next *coverage.Ledger
		switch {
		case activation:
			user.MembershipStartedAt = at
			user.HasActiveSubscription = true
			if ledger.PlanID.IsPaid() {
				next = ledger.ChangePlan(plan, at, s.usage)
			} else {
				next = coverage.New(userID, plan, at)
			}
		case !tier.IsPaid():
			if user.HasActiveSubscription {
				check := CheckCancellation(*user, at)
				metrics.RecordCancellationCheck(check.CanCancel)
				if !check.CanCancel {
					return fmt.Errorf("%w: cannot move to %s: %s", generic.ErrStateInconsistency, tier, check.Reason)
				}
			}
			user.HasActiveSubscription = false
			next = ledger
		default:
			next = ledger.ChangePlan(plan, at, s.usage)
		}
		user.CurrentPlan = tier

		if err := next.CheckInvariants(); err != nil {
			return err
		}
		if err := recordRollover(ctx, repo, ledger, rolled); err != nil {
			return err
		}
		if err := repo.SaveUser(ctx, *user); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		if err := repo.SaveLedger(ctx, next); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		if err := generic.NewLedger(repo).Append(ctx, planChangeTransaction(from, tier, next, at)); err != nil {
			return fmt.Errorf("append plan change transaction: %w", err)
		}

		result = PlanChangeResult{User: user, Ledger: View(next), Activated: activation}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordPlanChange(string(from), string(tier))
	log.Info().
		Str("user_id", string(userID)).
		Str("from", string(from)).
		Str("to", string(tier)).
		Bool("activated", result.Activated).
		Str("usage_policy", string(s.usage)).
		Msg("Plan changed")
	return &result, nil
}

// ReactivateSubscription turns a lapsed paid subscription back on. The
// membership restarts at, so the waiting period applies again; the ledger
// and its consumption are kept.
func (s *Service) ReactivateSubscription(ctx context.Context, userID generic.EntityID, at generic.TimePoint) (*User, error) {
	if err := s.notAfterToday("effective_date", at); err != nil {
		return nil, err
	}

	defer s.locks.Lock(string(userID))()

	var out *User
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.CurrentPlan.IsPaid() {
			return &InvalidInputError{Field: "plan", Reason: "free plan has no subscription; change plan instead"}
		}
		if user.HasActiveSubscription {
			return fmt.Errorf("%w: subscription already active", generic.ErrStateInconsistency)
		}
		user.HasActiveSubscription = true
		user.MembershipStartedAt = at
		if err := repo.SaveUser(ctx, *user); err != nil {
			return fmt.Errorf("save user: %w", err)
		}
		out = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", string(userID)).Msg("Subscription reactivated")
	return out, nil
}

// CheckCancellation reports whether the member may cancel now.
func (s *Service) CheckCancellation(ctx context.Context, userID generic.EntityID, now generic.TimePoint) (CancellationResult, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return CancellationResult{}, err
	}
	result := CheckCancellation(*user, now)
	metrics.RecordCancellationCheck(result.CanCancel)
	return result, nil
}

// CancelSubscription deactivates the subscription when the cancellation
// check allows it. A blocked cancellation returns the checker's result and
// a StateInconsistency error.
func (s *Service) CancelSubscription(ctx context.Context, userID generic.EntityID, now generic.TimePoint) (CancellationResult, error) {
	if err := s.notAfterToday("effective_date", now); err != nil {
		return CancellationResult{}, err
	}

	defer s.locks.Lock(string(userID))()

	var result CancellationResult
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.HasActiveSubscription {
			return fmt.Errorf("%w: no active subscription", generic.ErrStateInconsistency)
		}

		result = CheckCancellation(*user, now)
		metrics.RecordCancellationCheck(result.CanCancel)
		if !result.CanCancel {
			return fmt.Errorf("%w: %s", generic.ErrStateInconsistency, result.Reason)
		}

		user.HasActiveSubscription = false
		return repo.SaveUser(ctx, *user)
	})
	if err != nil {
		return result, err
	}
	log.Info().Str("user_id", string(userID)).Msg("Subscription cancelled")
	return result, nil
}

// =============================================================================
// COVERAGE
// =============================================================================

// Coverage returns the member's ledger as it would stand on asOf. A
// period that has ended by asOf shows as rolled over, but nothing is
// written: the stored ledger only rolls over through a mutation or
// RolloverDue.
func (s *Service) Coverage(ctx context.Context, userID generic.EntityID, asOf generic.TimePoint) (LedgerView, error) {
	defer s.locks.Lock(string(userID))()

	var view LedgerView
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		_, ledger, _, err := s.loadMember(ctx, repo, userID, asOf)
		if err != nil {
			return err
		}
		view = View(ledger)
		return nil
	})
	return view, err
}

// RolloverDue resets every ledger whose period ended on or before asOf.
// Returns the number of ledgers reset.
func (s *Service) RolloverDue(ctx context.Context, asOf generic.TimePoint) (int, error) {
	if err := s.notAfterToday("as_of", asOf); err != nil {
		return 0, err
	}
	ledgers, err := s.repo.ListLedgers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list ledgers: %w", err)
	}

	count := 0
	for _, l := range ledgers {
		if !l.NeedsRollover(asOf) {
			continue
		}
		rolled, err := s.rolloverOne(ctx, l.UserID, asOf)
		if err != nil {
			return count, err
		}
		if rolled {
			count++
		}
	}

	if count > 0 {
		log.Info().Int("count", count).Str("as_of", asOf.String()).Msg("Coverage ledgers rolled over")
	}
	return count, nil
}

func (s *Service) rolloverOne(ctx context.Context, userID generic.EntityID, asOf generic.TimePoint) (bool, error) {
	defer s.locks.Lock(string(userID))()

	rolled := false
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		ledger, err := repo.GetLedger(ctx, userID)
		if err != nil {
			return err
		}
		n := ledger.Rollover(asOf)
		if n == 0 {
			return nil
		}
		if err := recordRollover(ctx, repo, ledger, n); err != nil {
			return err
		}
		if err := repo.SaveLedger(ctx, ledger); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		rolled = true
		return nil
	})
	return rolled, err
}

// loadMember reads the user and ledger and advances the ledger in memory
// to the period containing asOf, returning how many periods it moved.
// Nothing is written; a caller that saves the ledger calls recordRollover
// first. Must run inside WithTx with the member's lock held.
func (s *Service) loadMember(ctx context.Context, repo Repository, userID generic.EntityID, asOf generic.TimePoint) (*User, *coverage.Ledger, int, error) {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	ledger, err := repo.GetLedger(ctx, userID)
	if err != nil {
		return nil, nil, 0, err
	}
	return user, ledger, ledger.Rollover(asOf), nil
}

// recordRollover appends the rollover transaction for a ledger that moved
// n periods. It does not save the ledger.
func recordRollover(ctx context.Context, repo Repository, ledger *coverage.Ledger, n int) error {
	if n == 0 {
		return nil
	}
	if err := generic.NewLedger(repo).Append(ctx, rolloverTransaction(ledger)); err != nil {
		return fmt.Errorf("append rollover transaction: %w", err)
	}
	metrics.RecordRollovers(1)
	log.Debug().
		Str("user_id", string(ledger.UserID)).
		Str("period", ledger.Period.String()).
		Int("periods", n).
		Msg("Ledger rolled over")
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Claims returns the member's claims, oldest first.
func (s *Service) Claims(ctx context.Context, userID generic.EntityID) ([]Claim, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ClaimsByUser(ctx, userID)
}

// Claim returns one claim.
func (s *Service) Claim(ctx context.Context, id string) (*Claim, error) {
	return s.repo.GetClaim(ctx, id)
}

// Transactions returns the member's coverage transaction log.
func (s *Service) Transactions(ctx context.Context, userID generic.EntityID) ([]generic.Transaction, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return generic.NewLedger(s.repo).Transactions(ctx, userID)
}

// AuditReport compares the stored ledger with a replay of the log.
type AuditReport struct {
	Ledger     LedgerView
	Replayed   generic.Usage
	Consistent bool
}

// Audit replays the current period's transactions and compares the result
// with the stored ledger. A mismatch returns the report together with an
// ErrInvariantViolation.
func (s *Service) Audit(ctx context.Context, userID generic.EntityID) (*AuditReport, error) {
	ledger, err := s.repo.GetLedger(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := generic.NewLedger(s.repo).Replay(ctx, userID, ledger.Period)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	report := &AuditReport{
		Ledger:     View(ledger),
		Replayed:   usage,
		Consistent: usage.Paid.Equal(ledger.UsedAmount) && usage.Tickets == ledger.TicketsUsed,
	}
	if !report.Consistent {
		log.Error().
			Str("user_id", string(userID)).
			Str("ledger_used", ledger.UsedAmount.String()).
			Str("replayed_used", usage.Paid.String()).
			Int("ledger_tickets", ledger.TicketsUsed).
			Int("replayed_tickets", usage.Tickets).
			Msg("Ledger does not match transaction log")
		return report, fmt.Errorf("%w: ledger for %s does not match its transaction log", generic.ErrInvariantViolation, userID)
	}
	return report, nil
}

// View summarizes a ledger.
func View(l *coverage.Ledger) LedgerView {
	return LedgerView{
		PlanID:           l.PlanID,
		AnnualCap:        l.AnnualCap,
		UsedAmount:       l.UsedAmount,
		RemainingAmount:  l.Remaining(),
		TicketsUsed:      l.TicketsUsed,
		MaxTickets:       l.MaxTickets,
		TicketsRemaining: l.TicketsRemaining(),
		Period:           l.Period,
	}
}

// =============================================================================
// TRANSACTION BUILDERS
// =============================================================================

// effectiveAt keeps log entries inside the ledger's current period.
func effectiveAt(l *coverage.Ledger, at generic.TimePoint) generic.TimePoint {
	if at.Before(l.Period.Start) {
		return l.Period.Start
	}
	return at
}

func ticketTransaction(c Claim, l *coverage.Ledger, at generic.TimePoint) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       c.UserID,
		PolicyID:       generic.PolicyID(l.PlanID),
		EffectiveAt:    effectiveAt(l, at),
		Delta:          generic.NewAmountFromInt(1, generic.UnitTickets),
		Type:           generic.TxTicket,
		ReferenceID:    c.ID,
		Reason:         "claim submitted: " + string(c.Violation),
		IdempotencyKey: "ticket:" + c.ID,
		CreatedBy:      "member",
		CreatedAt:      at,
	}
}

func payoutTransaction(c Claim, l *coverage.Ledger, at generic.TimePoint) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       c.UserID,
		PolicyID:       generic.PolicyID(c.Plan.ID),
		EffectiveAt:    effectiveAt(l, at),
		Delta:          *c.PayoutAmount,
		Type:           generic.TxPayout,
		ReferenceID:    c.ID,
		Reason:         "claim approved",
		IdempotencyKey: "payout:" + c.ID,
		CreatedBy:      "reviewer",
		CreatedAt:      at,
	}
}

func rolloverTransaction(l *coverage.Ledger) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       l.UserID,
		PolicyID:       generic.PolicyID(l.PlanID),
		EffectiveAt:    l.Period.Start,
		Delta:          generic.NewAmountFromInt(0, generic.UnitUSD),
		Type:           generic.TxRollover,
		Reason:         "annual period " + l.Period.String(),
		IdempotencyKey: "rollover:" + string(l.UserID) + ":" + l.Period.Start.String(),
		CreatedBy:      "system",
		CreatedAt:      l.Period.Start,
	}
}

// planChangeTransaction records the consumption the ledger carries after a
// move from one tier to another. On a move to free the ledger keeps the
// last paid plan, so to and l.PlanID differ.
func planChangeTransaction(from, to policy.Tier, l *coverage.Ledger, at generic.TimePoint) generic.Transaction {
	return generic.Transaction{
		ID:          generic.TransactionID(uuid.NewString()),
		EntityID:    l.UserID,
		PolicyID:    generic.PolicyID(l.PlanID),
		EffectiveAt: effectiveAt(l, at),
		Delta:       generic.NewAmountFromInt(0, generic.UnitUSD),
		Type:        generic.TxPlanChange,
		Reason:      "plan " + string(from) + " -> " + string(to),
		Metadata: map[string]string{
			"from":            string(from),
			"to":              string(to),
			"carried_used":    l.UsedAmount.Value.String(),
			"carried_tickets": strconv.Itoa(l.TicketsUsed),
		},
		CreatedBy: "member",
		CreatedAt: at,
	}
}
