/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All engine errors in one place. Precondition failures abort a whole
  operation with a user-actionable message; per-shift failures are collected
  on the generation result and never abort the batch.

ERROR CATEGORIES:
  1. Generation preconditions - date range, missing shifts/rates
  2. Per-shift faults - missing rate for one type, malformed time span
  3. Lifecycle violations - finalize/delete on the wrong status

USAGE:
  Handlers map sentinels to HTTP statuses:

    if billing.IsClientError(err) {
        // 4xx with the error's own message
    }

SEE ALSO:
  - generate.go: where preconditions are checked
  - invoice.go: lifecycle guard
*/
package billing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDateRange is returned when period_start is after period_end.
	// Rejected before any fetch.
	ErrInvalidDateRange = errors.New("invalid date range: period start after period end")

	// ErrNoBillableShifts is returned when the period contains zero completed
	// shifts. User-actionable, not a system fault.
	ErrNoBillableShifts = errors.New("no completed shifts in the selected period")

	// ErrRatesNotConfigured is returned when the organization has no active
	// rate cards at all. Configure rates before generating invoices.
	ErrRatesNotConfigured = errors.New("no active rate cards configured: configure rates before generating invoices")

	// ErrNoLineItemsProducible is returned when rates exist but none match the
	// support types actually billed. Distinct from ErrNoBillableShifts and
	// ErrRatesNotConfigured: some rates are configured, just not these.
	ErrNoLineItemsProducible = errors.New("no line items producible: no active rates match the support types in this period")

	// ErrRateNotConfigured is the per-shift variant: one shift's support type
	// has no active rate. The shift is skipped and reported, the batch
	// continues.
	ErrRateNotConfigured = errors.New("no active rate for support type")

	// ErrInvalidTimeSpan is returned for a shift whose end does not follow its
	// start. Treated as a data-integrity fault on that shift: skip + report.
	ErrInvalidTimeSpan = errors.New("invalid time span: end not after start")

	// ErrNotDraft is returned for edits or deletes on a non-draft invoice.
	ErrNotDraft = errors.New("invoice is not a draft")

	// ErrAlreadyFinalized is returned when finalizing a non-draft invoice.
	ErrAlreadyFinalized = errors.New("invoice already finalized")

	// ErrInvalidTransition is returned for a lifecycle move the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid invoice status transition")

	// ErrInvalidTimezone is returned when an organization's timezone is not a
	// resolvable IANA name. Generation aborts rather than classifying days in
	// the wrong calendar.
	ErrInvalidTimezone = errors.New("invalid organization timezone")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrOrganizationNotFound is returned when a referenced organization
	// doesn't exist.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrParticipantNotFound is returned when a referenced participant
	// doesn't exist.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrShiftAlreadyInvoiced is returned by the store when a line item would
	// bill a shift that already appears on a non-cancelled invoice.
	ErrShiftAlreadyInvoiced = errors.New("shift already billed on another invoice")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RateNotConfiguredError identifies the missing (support type, day type)
// price. Unwraps to ErrRateNotConfigured.
type RateNotConfiguredError struct {
	SupportType SupportType
	DayType     DayType
}

func (e *RateNotConfiguredError) Error() string {
	return fmt.Sprintf("no active rate for support type %q (%s): configure rates before generating invoices",
		e.SupportType, e.DayType)
}

func (e *RateNotConfiguredError) Unwrap() error { return ErrRateNotConfigured }

// InvalidTimeSpanError identifies which span of which shift is malformed.
// Unwraps to ErrInvalidTimeSpan.
type InvalidTimeSpanError struct {
	ShiftID ShiftID
	Field   string // "scheduled" or "actual"
	Start   time.Time
	End     time.Time
}

func (e *InvalidTimeSpanError) Error() string {
	return fmt.Sprintf("shift %s: %s end %s not after start %s",
		e.ShiftID, e.Field, e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

func (e *InvalidTimeSpanError) Unwrap() error { return ErrInvalidTimeSpan }

// TransitionError identifies a rejected lifecycle move.
// Unwraps to ErrInvalidTransition.
type TransitionError struct {
	InvoiceID InvoiceID
	From      InvoiceStatus
	To        InvoiceStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invoice %s: cannot transition %s -> %s", e.InvoiceID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is user-actionable input, not a
// system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrNoBillableShifts) ||
		errors.Is(err, ErrRatesNotConfigured) ||
		errors.Is(err, ErrNoLineItemsProducible) ||
		errors.Is(err, ErrNotDraft) ||
		errors.Is(err, ErrAlreadyFinalized) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrShiftAlreadyInvoiced) ||
		errors.Is(err, ErrInvalidTimezone)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrParticipantNotFound)
}
