/*
Package billing provides the NDIS billing engine.

PURPOSE:
  This package contains the domain types and algorithms for converting
  completed support shifts into invoice line items: day-type classification,
  billable-duration reconciliation, rate resolution, totals calculation,
  invoice generation, and the invoice lifecycle state machine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: exact decimal currency with a single rounding primitive
  - Typed identifiers: OrgID, ParticipantID, ShiftID, InvoiceID
  - SupportType: category of care with its own billing rate
  - ShiftRecord: the external, read-only input to the engine

DESIGN PRINCIPLES:
  1. Precision: all currency math uses decimal.Decimal, never float64
  2. Round once: RoundCents is applied once per line item and once for GST;
     already-rounded totals are never re-rounded
  3. Type safety: strong ID types prevent mixing organizations/participants
  4. Purity: classification, duration, rates and totals are pure functions;
     only the generation pipeline touches persistence

SEE ALSO:
  - date.go: day-type classification and the holiday calendar
  - duration.go: scheduled-vs-actual reconciliation
  - rates.go: rate card resolution
  - invoice.go: line items, totals, lifecycle
  - generate.go: the orchestration pipeline
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal currency
// =============================================================================

// RoundCents rounds a currency amount to 2 decimal places, half away from
// zero. This is the single rounding primitive for the whole engine: line
// totals and GST are rounded exactly once, and sums of rounded values are
// never rounded again.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MustMoney parses a decimal amount, panicking on malformed input.
// Intended for constants and tests, not request paths.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("billing: bad money literal: " + s)
	}
	return d
}

// GSTRate is the Australian GST rate applied when an organization bills in
// gst_inclusive mode. NDIS-funded supports are GST-free, so most invoices
// carry gst = 0.00 with the field present for mixed billing.
var GSTRate = decimal.NewFromFloat(0.10)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrgID string
type ParticipantID string
type ShiftID string
type InvoiceID string

// =============================================================================
// SUPPORT TYPES
// =============================================================================

// SupportType is a category of care service (e.g. personal care, community
// access). Each support type bills at its own rate per day type.
type SupportType string

const (
	SupportPersonalCare    SupportType = "personal_care"
	SupportCommunityAccess SupportType = "community_access"
	SupportDomestic        SupportType = "domestic_assistance"
	SupportNursing         SupportType = "community_nursing"
	SupportTransport       SupportType = "transport"
	SupportRespite         SupportType = "respite"
)

// =============================================================================
// BILLING MODE
// =============================================================================

// BillingMode controls whether GST is applied to invoice subtotals.
type BillingMode string

const (
	// BillingGSTFree is the default: NDIS supports are GST-free, gst = 0.00.
	BillingGSTFree BillingMode = "gst_free"

	// BillingGSTInclusive applies 10% GST on the subtotal, for organizations
	// with mixed (non-NDIS) billing on the same invoices.
	BillingGSTInclusive BillingMode = "gst_inclusive"
)

// =============================================================================
// ORGANIZATION / PARTICIPANT - External reference data
// =============================================================================

// Organization is the provider the engine bills on behalf of.
type Organization struct {
	ID                 OrgID
	Name               string
	ABN                string // Australian Business Number, required for claims
	RegistrationNumber string // NDIS provider registration, required for claims
	BillingMode        BillingMode

	// Timezone is the IANA name of the organization's local calendar
	// (e.g. "Australia/Sydney"). Shifts are classified by the local day they
	// start on. Empty means UTC.
	Timezone string
}

// Location resolves the organization's calendar timezone. An unknown name is
// a configuration fault surfaced as ErrInvalidTimezone, never silently UTC.
func (o *Organization) Location() (*time.Location, error) {
	if o.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %s: %w: %q", o.ID, ErrInvalidTimezone, o.Timezone)
	}
	return loc, nil
}

// Participant is the support recipient an invoice is addressed to.
type Participant struct {
	ID         ParticipantID
	OrgID      OrgID
	Name       string
	NDISNumber string // national support-recipient number, required for claims
}

// =============================================================================
// SHIFT RECORD - Read-only input from the rostering system
// =============================================================================

// ShiftStatus is the rostering status of a shift. Only completed shifts are
// billable.
type ShiftStatus string

const (
	ShiftScheduled  ShiftStatus = "scheduled"
	ShiftInProgress ShiftStatus = "in_progress"
	ShiftCompleted  ShiftStatus = "completed"
	ShiftCancelled  ShiftStatus = "cancelled"
)

// ShiftRecord is a completed support shift as recorded by rostering and
// check-in. The engine never mutates shifts.
//
// Invariants (enforced at the boundary, checked again by the duration
// resolver): ScheduledEnd > ScheduledStart; ActualStart/ActualEnd are either
// both set or both nil, and when set ActualEnd > ActualStart.
type ShiftRecord struct {
	ID            ShiftID
	OrgID         OrgID
	ParticipantID ParticipantID
	SupportType   SupportType
	Status        ShiftStatus

	ScheduledStart time.Time
	ScheduledEnd   time.Time

	// Actual times come from the worker's check-in/out event. Admin-entered
	// shifts may have none, in which case billing falls back to the
	// scheduled window.
	ActualStart *time.Time
	ActualEnd   *time.Time
}

// HasActual reports whether the shift carries a check-in/out pair.
func (s *ShiftRecord) HasActual() bool {
	return s.ActualStart != nil && s.ActualEnd != nil
}
