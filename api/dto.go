/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the claims domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Members:
    UserDTO, RegisterUserRequest, ChangePlanRequest, SubscriptionRequest

  Coverage:
    CoverageDTO, TransactionDTO, AuditDTO, CancellationDTO

  Claims:
    SubmitClaimRequest, SubmissionResponse, ClaimDTO, DecisionRequest

  Catalog:
    factory.PlanJSON, DenialCodeDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are JSON numbers rounded to cents. They are for display only;
  the engine never reads a float back.

VALIDATION:
  Validation is done in handlers and the claims service, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: PlanJSON type
*/
package api

import (
	"encoding/json"

	"github.com/warp/ticket-cover/claims"
	"github.com/warp/ticket-cover/factory"
	"github.com/warp/ticket-cover/generic"
	"github.com/warp/ticket-cover/policy"
)

// =============================================================================
// MEMBERS
// =============================================================================

// UserDTO represents a member in API responses.
type UserDTO struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Plan                  string  `json:"plan"`
	HasActiveSubscription bool    `json:"has_active_subscription"`
	State                 string  `json:"state"`
	MembershipStartedAt   string  `json:"membership_started_at"`
	LastClaimPayoutDate   *string `json:"last_claim_payout_date,omitempty"`
}

// RegisterUserRequest is the request to register a member.
type RegisterUserRequest struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Plan                string `json:"plan"`
	State               string `json:"state"`
	MembershipStartedAt string `json:"membership_started_at,omitempty"`
	Active              *bool  `json:"active,omitempty"` // default true for paid plans
}

// ChangePlanRequest is the request to switch tiers.
type ChangePlanRequest struct {
	Plan string `json:"plan"`
}

// PlanChangeResponse is the result of a plan switch.
type PlanChangeResponse struct {
	User      UserDTO     `json:"user"`
	Coverage  CoverageDTO `json:"coverage"`
	Activated bool        `json:"activated"`
}

// SubscriptionRequest turns a subscription on or off.
type SubscriptionRequest struct {
	Active bool `json:"active"`
}

// SubscriptionResponse is the member after a subscription change.
type SubscriptionResponse struct {
	User         UserDTO          `json:"user"`
	Cancellation *CancellationDTO `json:"cancellation,omitempty"`
}

// =============================================================================
// COVERAGE
// =============================================================================

// CoverageDTO represents a member's coverage ledger.
type CoverageDTO struct {
	Plan             string  `json:"plan"`
	AnnualCap        float64 `json:"annual_cap"`
	UsedAmount       float64 `json:"used_amount"`
	RemainingAmount  float64 `json:"remaining_amount"`
	TicketsUsed      int     `json:"tickets_used"`
	MaxTickets       int     `json:"max_tickets"`
	TicketsRemaining int     `json:"tickets_remaining"`
	PeriodStart      string  `json:"period_start"`
	PeriodEnd        string  `json:"period_end"`
}

// TransactionDTO represents a coverage log entry.
type TransactionDTO struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	PolicyID    string            `json:"plan"`
	EffectiveAt string            `json:"effective_at"`
	Delta       float64           `json:"delta"`
	Unit        string            `json:"unit"`
	ReferenceID string            `json:"reference_id,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
}

// AuditDTO compares the stored ledger with a replay of the log.
type AuditDTO struct {
	Consistent      bool        `json:"consistent"`
	Coverage        CoverageDTO `json:"coverage"`
	ReplayedUsed    float64     `json:"replayed_used"`
	ReplayedTickets int         `json:"replayed_tickets"`
}

// CancellationDTO is the cancellation checker's verdict.
type CancellationDTO struct {
	CanCancel     bool   `json:"can_cancel"`
	Reason        string `json:"reason,omitempty"`
	DaysRemaining int    `json:"days_remaining"`
}

// RolloverRequestDTO triggers the annual reset.
type RolloverRequestDTO struct {
	AsOf string `json:"as_of,omitempty"`
}

// RolloverResultDTO reports an annual reset run.
type RolloverResultDTO struct {
	AsOf       string `json:"as_of"`
	RolledOver int    `json:"rolled_over"`
}

// =============================================================================
// CLAIMS
// =============================================================================

// SubmitClaimRequest is a claim as sent by the app. Amount accepts a JSON
// number or a numeric string.
type SubmitClaimRequest struct {
	TicketNumber  string      `json:"ticket_number"`
	TicketDate    string      `json:"ticket_date"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	ViolationType string      `json:"violation_type"`
	Amount        json.Number `json:"amount"`
}

// EligibilityDTO is the evaluator's verdict.
type EligibilityDTO struct {
	Eligible   bool     `json:"eligible"`
	Reason     string   `json:"reason,omitempty"`
	DenialCode string   `json:"denial_code,omitempty"`
	Appealable bool     `json:"appealable"`
	Warnings   []string `json:"warnings,omitempty"`
}

// SubmissionResponse is returned by POST /api/users/{id}/claims.
type SubmissionResponse struct {
	EligibilityDTO
	Claim    *ClaimDTO   `json:"claim,omitempty"`
	Coverage CoverageDTO `json:"coverage"`
}

// ClaimDTO represents a claim.
type ClaimDTO struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	TicketNumber  string           `json:"ticket_number"`
	TicketDate    string           `json:"ticket_date"`
	City          string           `json:"city,omitempty"`
	State         string           `json:"state,omitempty"`
	ViolationType string           `json:"violation_type"`
	Amount        float64          `json:"amount"`
	Status        string           `json:"status"`
	SubmittedAt   string           `json:"submitted_at"`
	UpdatedAt     string           `json:"updated_at"`
	PayoutAmount  *float64         `json:"payout_amount,omitempty"`
	PayoutDate    *string          `json:"payout_date,omitempty"`
	DenialReason  string           `json:"denial_reason,omitempty"`
	DecisionNotes string           `json:"decision_notes,omitempty"`
	Warnings      []string         `json:"warnings,omitempty"`
	Plan          factory.PlanJSON `json:"plan"`
}

// DecisionRequest carries a reviewer decision.
type DecisionRequest struct {
	Notes      string `json:"notes,omitempty"`
	DenialCode string `json:"denial_code,omitempty"`
}

// ApprovalResponse is the paid claim and the ledger after payout.
type ApprovalResponse struct {
	Claim    ClaimDTO    `json:"claim"`
	Coverage CoverageDTO `json:"coverage"`
}

// DenialResponse is the denied claim and its catalog entry.
type DenialResponse struct {
	Claim  ClaimDTO      `json:"claim"`
	Denial DenialCodeDTO `json:"denial"`
}

// DenialCodeDTO is a denial catalog entry.
type DenialCodeDTO struct {
	Code       string `json:"code"`
	Reason     string `json:"reason"`
	Appealable bool   `json:"appealable"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error        string           `json:"error"`
	Details      string           `json:"details,omitempty"`
	Cancellation *CancellationDTO `json:"cancellation,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toUserDTO(u claims.User) UserDTO {
	dto := UserDTO{
		ID:                    string(u.ID),
		Name:                  u.Name,
		Plan:                  string(u.CurrentPlan),
		HasActiveSubscription: u.HasActiveSubscription,
		State:                 u.State,
		MembershipStartedAt:   u.MembershipStartedAt.String(),
	}
	if u.LastClaimPayoutDate != nil {
		dto.LastClaimPayoutDate = strPtr(u.LastClaimPayoutDate.String())
	}
	return dto
}

func toCoverageDTO(v claims.LedgerView) CoverageDTO {
	return CoverageDTO{
		Plan:             string(v.PlanID),
		AnnualCap:        v.AnnualCap.Round2().Float64(),
		UsedAmount:       v.UsedAmount.Round2().Float64(),
		RemainingAmount:  v.RemainingAmount.Round2().Float64(),
		TicketsUsed:      v.TicketsUsed,
		MaxTickets:       v.MaxTickets,
		TicketsRemaining: v.TicketsRemaining,
		PeriodStart:      v.Period.Start.String(),
		PeriodEnd:        v.Period.End.String(),
	}
}

func toClaimDTO(c claims.Claim) ClaimDTO {
	dto := ClaimDTO{
		ID:            c.ID,
		UserID:        string(c.UserID),
		TicketNumber:  c.TicketNumber,
		TicketDate:    c.TicketDate.String(),
		City:          c.City,
		State:         c.State,
		ViolationType: string(c.Violation),
		Amount:        c.Amount.Round2().Float64(),
		Status:        string(c.Status),
		SubmittedAt:   c.SubmittedAt.String(),
		UpdatedAt:     c.UpdatedAt.String(),
		DenialReason:  c.DenialReason,
		DecisionNotes: c.DecisionNotes,
		Warnings:      c.Warnings,
		Plan:          factory.PlanToJSON(c.Plan),
	}
	if c.PayoutAmount != nil {
		amount := c.PayoutAmount.Float64()
		dto.PayoutAmount = &amount
	}
	if c.PayoutDate != nil {
		dto.PayoutDate = strPtr(c.PayoutDate.String())
	}
	return dto
}

func toEligibilityDTO(e claims.EligibilityResult) EligibilityDTO {
	return EligibilityDTO{
		Eligible:   e.Eligible,
		Reason:     e.Reason,
		DenialCode: e.DenialCode,
		Appealable: e.Appealable,
		Warnings:   e.Warnings,
	}
}

func toCancellationDTO(r claims.CancellationResult) CancellationDTO {
	return CancellationDTO{
		CanCancel:     r.CanCancel,
		Reason:        r.Reason,
		DaysRemaining: r.DaysRemaining,
	}
}

func toDenialCodeDTO(d policy.DenialCode) DenialCodeDTO {
	return DenialCodeDTO{Code: d.Code, Reason: d.Reason, Appealable: d.Appealable}
}

func toTransactionDTOs(txs []generic.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, TransactionDTO{
			ID:          string(tx.ID),
			Type:        string(tx.Type),
			PolicyID:    string(tx.PolicyID),
			EffectiveAt: tx.EffectiveAt.String(),
			Delta:       tx.Delta.Float64(),
			Unit:        string(tx.Delta.Unit),
			ReferenceID: tx.ReferenceID,
			Reason:      tx.Reason,
			Metadata:    tx.Metadata,
			CreatedBy:   tx.CreatedBy,
		})
	}
	return dtos
}

func strPtr(s string) *string {
	return &s
}
