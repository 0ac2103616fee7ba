package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INVOICE STATUS - Lifecycle state machine
// =============================================================================

// InvoiceStatus is the lifecycle state of an invoice.
//
//	draft -> submitted -> paid | overdue
//	draft | submitted -> cancelled
//
// Only draft invoices are editable or deletable. Finalize (draft->submitted)
// is the one-way lock; paid/overdue are externally driven.
type InvoiceStatus string

const (
	StatusDraft     InvoiceStatus = "draft"
	StatusSubmitted InvoiceStatus = "submitted"
	StatusPaid      InvoiceStatus = "paid"
	StatusOverdue   InvoiceStatus = "overdue"
	StatusCancelled InvoiceStatus = "cancelled"
)

var transitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:     {StatusSubmitted, StatusCancelled},
	StatusSubmitted: {StatusPaid, StatusOverdue, StatusCancelled},
	StatusPaid:      {},
	StatusOverdue:   {},
	StatusCancelled: {},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to InvoiceStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsDraft reports whether the invoice may still be edited or deleted.
func (s InvoiceStatus) IsDraft() bool { return s == StatusDraft }

// IsFinal reports whether line items and totals are locked.
func (s InvoiceStatus) IsFinal() bool { return s != StatusDraft }

// =============================================================================
// INVOICE + LINE ITEMS
// =============================================================================

// InvoiceLineItem is one billed shift on one invoice. Line items are owned
// exclusively by their invoice and are never shared or re-targeted. The
// day-type classification and all three duration spans are persisted at
// generation time and never recomputed.
type InvoiceLineItem struct {
	ID        string
	InvoiceID InvoiceID
	ShiftID   ShiftID

	SupportType     SupportType
	SupportItemCode string // government support-item code; empty = not claimable
	ServiceDate     Date
	DayType         DayType

	ScheduledMinutes int
	ActualMinutes    int
	BillableMinutes  int

	UnitPrice decimal.Decimal // per hour
	Quantity  decimal.Decimal // billable hours, decimal
	LineTotal decimal.Decimal // rounded once to cents
}

// Invoice is the billing document for one participant over one period.
// Owned by exactly one participant; never re-targeted after creation.
type Invoice struct {
	ID            InvoiceID
	OrgID         OrgID
	ParticipantID ParticipantID
	Number        string // sequential per organization, e.g. INV-000042

	PeriodStart Date
	PeriodEnd   Date

	Subtotal decimal.Decimal
	GST      decimal.Decimal
	Total    decimal.Decimal

	Status      InvoiceStatus
	FinalizedAt *time.Time
	FinalizedBy string

	CreatedAt time.Time
}

// Finalize applies the draft->submitted transition, recording who locked the
// invoice and when. Any other starting status is rejected with no mutation.
func (inv *Invoice) Finalize(by string, at time.Time) error {
	if inv.Status != StatusDraft {
		return ErrAlreadyFinalized
	}
	inv.Status = StatusSubmitted
	inv.FinalizedAt = &at
	inv.FinalizedBy = by
	return nil
}

// =============================================================================
// LINE-ITEM & TOTALS CALCULATOR
// =============================================================================

var minutesPerHour = decimal.NewFromInt(60)

// BuildLineItem prices one reconciled shift. The service date is the shift's
// start day in the organization's calendar; it and the day type are stamped
// here and never recomputed. Quantity is billable minutes as decimal hours
// (4 dp, not rounded to whole hours); the line total is rounded to cents
// exactly once.
func BuildLineItem(shift *ShiftRecord, d BillableDuration, serviceDate Date, day DayType, unitPrice decimal.Decimal) InvoiceLineItem {
	quantity := decimal.NewFromInt(int64(d.BillableMinutes)).DivRound(minutesPerHour, 4)
	return InvoiceLineItem{
		ShiftID:          shift.ID,
		SupportType:      shift.SupportType,
		ServiceDate:      serviceDate,
		DayType:          day,
		ScheduledMinutes: d.ScheduledMinutes,
		ActualMinutes:    d.ActualMinutes,
		BillableMinutes:  d.BillableMinutes,
		UnitPrice:        unitPrice,
		Quantity:         quantity,
		LineTotal:        RoundCents(quantity.Mul(unitPrice)),
	}
}

// Totals aggregates already-rounded line totals.
type Totals struct {
	Subtotal decimal.Decimal
	GST      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals sums line totals exactly (they are already rounded, so the
// sum drifts by nothing) and derives GST from the subtotal once. GST-free
// mode yields 0.00; the NDIA claim export ignores GST either way.
func ComputeTotals(items []InvoiceLineItem, mode BillingMode) Totals {
	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].LineTotal)
	}

	gst := decimal.Zero
	if mode == BillingGSTInclusive {
		gst = RoundCents(subtotal.Mul(GSTRate))
	}

	return Totals{
		Subtotal: subtotal,
		GST:      gst,
		Total:    subtotal.Add(gst),
	}
}
