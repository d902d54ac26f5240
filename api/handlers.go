/*
handlers.go - HTTP API handlers for the claims engine

PURPOSE:
  Exposes the claims service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to claims.Service.

ENDPOINTS:
  Catalog:
    GET    /api/plans                       Plan catalog
    GET    /api/denial-codes                Denial catalog

  Members:
    GET    /api/users                       List members
    POST   /api/users                       Register member
    GET    /api/users/{id}                  Member details
    POST   /api/users/{id}/plan             Change plan
    POST   /api/users/{id}/subscription     Cancel / reactivate
    GET    /api/users/{id}/coverage         Coverage ledger
    GET    /api/users/{id}/cancellation     Cancellation eligibility
    GET    /api/users/{id}/transactions     Coverage transaction log
    GET    /api/users/{id}/audit            Ledger vs. log replay

  Claims:
    GET    /api/users/{id}/claims           Claim history
    POST   /api/users/{id}/claims           Submit claim
    GET    /api/claims/{id}                 Claim details
    POST   /api/claims/{id}/review          Start review
    POST   /api/claims/{id}/approve         Approve and pay
    POST   /api/claims/{id}/deny            Deny

  Admin:
    POST   /api/admin/rollover              Run annual rollover now

DATES:
  Member and reviewer actions take effect on the handler's Clock, never on
  a date from the request. Only reads (coverage ?as_of) and the admin
  rollover accept a date, and the service refuses a rollover date after
  today. Backdated history is built through the scenario loaders.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unknown plan
  - 404: Member or claim not found
  - 409: Conflict (impossible claim transition, blocked cancellation)
  - 500: Internal errors

  An ineligible claim is NOT an error: it is 200 with eligible=false and
  the denial code. An eligible claim is 201.

SECURITY NOTE:
  No authentication or authorization. Reviewer endpoints (approve, deny,
  admin) must sit behind an authenticating proxy in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/factory"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/logging"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all stored data (demo scenarios).
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *claims.Service

	// Store is reset before a scenario loads. Nil disables scenarios.
	Store Resetter

	// Clock supplies today for every mutation. Defaults to the service clock.
	Clock func() generic.TimePoint

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler around the claims service.
func NewHandler(svc *claims.Service, store Resetter) *Handler {
	return &Handler{
		Service: svc,
		Store:   store,
		Clock:   svc.Today,
	}
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListPlans returns the plan catalog.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON(h.Service.Catalog()).Plans)
}

// ListDenialCodes returns the denial catalog.
func (h *Handler) ListDenialCodes(w http.ResponseWriter, r *http.Request) {
	codes := h.Service.Catalog().DenialCodes()
	dtos := make([]DenialCodeDTO, len(codes))
	for i, d := range codes {
		dtos[i] = toDenialCodeDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListUsers returns all members.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.Users(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list members", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single member.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Service.User(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// RegisterUser creates a member and opens their coverage ledger.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	today := h.Clock()
	started := today
	if req.MembershipStartedAt != "" {
		d, err := generic.ParseDate(req.MembershipStartedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid membership_started_at (use YYYY-MM-DD)", err)
			return
		}
		started = d
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	user, err := h.Service.RegisterUser(r.Context(), claims.User{
		ID:                    generic.EntityID(req.ID),
		Name:                  req.Name,
		MembershipStartedAt:   started,
		CurrentPlan:           policy.Tier(req.Plan),
		HasActiveSubscription: active,
		State:                 req.State,
	}, today)
	if err != nil {
		writeDomainError(w, r, "Failed to register member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*user))
}

// ChangePlan switches a member's tier.
func (h *Handler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	var req ChangePlanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Service.ChangePlan(r.Context(), userID(r), req.Plan, h.Clock())
	if err != nil {
		writeDomainError(w, r, "Failed to change plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanChangeResponse{
		User:      toUserDTO(*res.User),
		Coverage:  toCoverageDTO(res.Ledger),
		Activated: res.Activated,
	})
}

// SetSubscription cancels ({"active": false}) or reactivates
// ({"active": true}) a subscription as of today. A cancellation blocked by
// the post-payout lock is 409 with the checker's verdict.
func (h *Handler) SetSubscription(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at := h.Clock()
	ctx := r.Context()
	id := userID(r)

	if req.Active {
		user, err := h.Service.ReactivateSubscription(ctx, id, at)
		if err != nil {
			writeDomainError(w, r, "Failed to reactivate subscription", err)
			return
		}
		writeJSON(w, http.StatusOK, SubscriptionResponse{User: toUserDTO(*user)})
		return
	}

	result, err := h.Service.CancelSubscription(ctx, id, at)
	verdict := toCancellationDTO(result)
	if err != nil {
		if errors.Is(err, generic.ErrStateInconsistency) && !result.CanCancel && result.Reason != "" {
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:        "Cancellation not allowed",
				Details:      err.Error(),
				Cancellation: &verdict,
			})
			return
		}
		writeDomainError(w, r, "Failed to cancel subscription", err)
		return
	}

	user, err := h.Service.User(ctx, id)
	if err != nil {
		writeDomainError(w, r, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, SubscriptionResponse{User: toUserDTO(*user), Cancellation: &verdict})
}

// GetCoverage returns the member's coverage ledger.
// Query: ?as_of=YYYY-MM-DD
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.effectiveDate(w, r.URL.Query().Get("as_of"))
	if !ok {
		return
	}

	view, err := h.Service.Coverage(r.Context(), userID(r), asOf)
	if err != nil {
		writeDomainError(w, r, "Failed to get coverage", err)
		return
	}
	writeJSON(w, http.StatusOK, toCoverageDTO(view))
}

// GetCancellation reports whether the member may cancel today.
func (h *Handler) GetCancellation(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.CheckCancellation(r.Context(), userID(r), h.Clock())
	if err != nil {
		writeDomainError(w, r, "Failed to check cancellation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCancellationDTO(result))
}

// GetTransactions returns the member's coverage transaction log.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Service.Transactions(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetAudit replays the log and compares it with the ledger. A mismatch is
// still 200: the report is the answer.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.Audit(r.Context(), userID(r))
	if err != nil && report == nil {
		writeDomainError(w, r, "Failed to audit coverage", err)
		return
	}
	writeJSON(w, http.StatusOK, AuditDTO{
		Consistent:      report.Consistent,
		Coverage:        toCoverageDTO(report.Ledger),
		ReplayedUsed:    report.Replayed.Paid.Round2().Float64(),
		ReplayedTickets: report.Replayed.Tickets,
	})
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

// ListClaims returns the member's claims, oldest first.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Claims(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, r, "Failed to list claims", err)
		return
	}

	dtos := make([]ClaimDTO, len(list))
	for i, c := range list {
		dtos[i] = toClaimDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitClaim validates and evaluates a claim.
// 201 when eligible (claim stored), 200 with the denial when not.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req SubmitClaimRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Service.SubmitClaim(r.Context(), userID(r), claims.SubmissionPayload{
		TicketNumber:  req.TicketNumber,
		TicketDate:    req.TicketDate,
		City:          req.City,
		State:         req.State,
		ViolationType: req.ViolationType,
		Amount:        req.Amount.String(),
	}, h.Clock())
	if err != nil {
		writeDomainError(w, r, "Failed to submit claim", err)
		return
	}

	resp := SubmissionResponse{
		EligibilityDTO: toEligibilityDTO(res.Eligibility),
		Coverage:       toCoverageDTO(res.Ledger),
	}
	status := http.StatusOK
	if res.Claim != nil {
		dto := toClaimDTO(*res.Claim)
		resp.Claim = &dto
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// GetClaim returns a single claim.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Service.Claim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "Failed to get claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

// StartReview moves a submitted claim to under_review.
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Service.StartReview(r.Context(), chi.URLParam(r, "id"), h.Clock())
	if err != nil {
		writeDomainError(w, r, "Failed to start review", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

// ApproveClaim pays a claim.
func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	res, err := h.Service.ApproveClaim(r.Context(), chi.URLParam(r, "id"), req.Notes, h.Clock())
	if err != nil {
		writeDomainError(w, r, "Failed to approve claim", err)
		return
	}
	writeJSON(w, http.StatusOK, ApprovalResponse{
		Claim:    toClaimDTO(*res.Claim),
		Coverage: toCoverageDTO(res.Ledger),
	})
}

// DenyClaim denies a claim with a reviewer denial code.
func (h *Handler) DenyClaim(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.Service.DenyClaim(r.Context(), chi.URLParam(r, "id"), req.DenialCode, req.Notes, h.Clock())
	if err != nil {
		writeDomainError(w, r, "Failed to deny claim", err)
		return
	}
	writeJSON(w, http.StatusOK, DenialResponse{
		Claim:  toClaimDTO(*res.Claim),
		Denial: toDenialCodeDTO(res.Denial),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRollover resets every ledger whose period has ended. An as_of
// after today is rejected by the service.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequestDTO
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	asOf, ok := h.effectiveDate(w, req.AsOf)
	if !ok {
		return
	}

	n, err := h.Service.RolloverDue(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, r, "Failed to run rollover", err)
		return
	}
	writeJSON(w, http.StatusOK, RolloverResultDTO{AsOf: asOf.String(), RolledOver: n})
}

// =============================================================================
// HELPERS
// =============================================================================

func userID(r *http.Request) generic.EntityID {
	return generic.EntityID(chi.URLParam(r, "id"))
}

// effectiveDate parses an optional YYYY-MM-DD, defaulting to today.
// On failure it writes a 400 and returns false.
func (h *Handler) effectiveDate(w http.ResponseWriter, s string) (generic.TimePoint, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return h.Clock(), true
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return generic.TimePoint{}, false
	}
	return d, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	return decodeBody(w, r, dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the generic sentinels to HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
