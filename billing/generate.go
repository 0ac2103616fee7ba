/*
generate.go - The invoice generation pipeline

PURPOSE:
  Orchestrates the pure pieces (duration resolver, day-type classifier, rate
  resolver, totals calculator) across all completed shifts for a participant
  in a period, and persists the resulting draft invoice in one store
  transaction.

PIPELINE (single pass, no retries mid-flight):
  1. Validate input (participant, period ordering)
  2. Fetch completed, not-yet-invoiced shifts    -> ErrNoBillableShifts
  3. Fetch active rate cards                     -> ErrRatesNotConfigured
  4. Fetch public holidays for the period
  5. Per shift: resolve duration, classify day, resolve rate.
     Missing rate or malformed span: skip the shift, record the reason,
     keep going. This is deliberately distinct from step 3's all-or-nothing
     precondition.
  6. Zero items after filtering                  -> ErrNoLineItemsProducible
  7. Compute totals; persist header + items + number allocation atomically.
     The number is allocated inside the store transaction, after every
     validation step, so aborted generations never burn sequence numbers.

SEE ALSO:
  - store.go: the collaborator interfaces this pipeline is built on
  - invoice.go: BuildLineItem / ComputeTotals
*/
package billing

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// GENERATOR
// =============================================================================

// Generator runs the invoice generation pipeline. All collaborators are
// injected; substitute billing/store.Memory in tests.
type Generator struct {
	Shifts        ShiftSource
	Rates         RateSource
	Holidays      HolidaySource
	Organizations OrganizationSource
	Invoices      InvoiceStore

	// Now is the clock; defaults to time.Now when nil.
	Now func() time.Time
}

// GenerateInput identifies the participant and billing period.
type GenerateInput struct {
	OrgID         OrgID
	ParticipantID ParticipantID
	PeriodStart   Date
	PeriodEnd     Date
}

// SkippedShift records why one shift produced no line item. Skips are part
// of the result, not a side-channel log.
type SkippedShift struct {
	ShiftID     ShiftID
	SupportType SupportType
	Reason      string
}

// GenerateResult is the outcome of a successful generation: the persisted
// draft invoice, its line items, and any per-shift skips.
type GenerateResult struct {
	Invoice Invoice
	Items   []InvoiceLineItem
	Skipped []SkippedShift
}

// Generate runs the pipeline for one participant and period.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	if in.PeriodEnd.Before(in.PeriodStart) {
		return nil, ErrInvalidDateRange
	}

	org, err := g.Organizations.GetOrganization(ctx, in.OrgID)
	if err != nil {
		return nil, err
	}
	// Day types are classified in the organization's calendar, not in the
	// zone the timestamps happen to be stored in.
	loc, err := org.Location()
	if err != nil {
		return nil, err
	}

	shifts, err := g.Shifts.CompletedShifts(ctx, in.ParticipantID, in.PeriodStart, in.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, ErrNoBillableShifts
	}

	cards, err := g.Rates.ActiveRateCards(ctx, in.OrgID)
	if err != nil {
		return nil, err
	}
	rates := NewRateTable(cards)
	if len(rates) == 0 {
		return nil, ErrRatesNotConfigured
	}

	holidayRows, err := g.Holidays.HolidaysInRange(ctx, in.OrgID, in.PeriodStart, in.PeriodEnd)
	if err != nil {
		return nil, err
	}
	holidays := NewHolidaySet(holidayRows)

	var (
		items   []InvoiceLineItem
		skipped []SkippedShift
	)
	for i := range shifts {
		shift := &shifts[i]

		duration, err := ResolveBillableDuration(shift)
		if err != nil {
			skipped = append(skipped, SkippedShift{
				ShiftID:     shift.ID,
				SupportType: shift.SupportType,
				Reason:      err.Error(),
			})
			continue
		}

		serviceDate := DateOf(shift.ScheduledStart.In(loc))
		day := ClassifyDay(serviceDate, holidays)

		unitPrice, err := rates.Resolve(shift.SupportType, day)
		if err != nil {
			skipped = append(skipped, SkippedShift{
				ShiftID:     shift.ID,
				SupportType: shift.SupportType,
				Reason:      err.Error(),
			})
			continue
		}

		item := BuildLineItem(shift, duration, serviceDate, day, unitPrice)
		item.ID = uuid.NewString()
		if card, ok := rates[shift.SupportType]; ok {
			item.SupportItemCode = card.SupportItemCode
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, ErrNoLineItemsProducible
	}

	totals := ComputeTotals(items, org.BillingMode)

	inv := Invoice{
		ID:            InvoiceID(uuid.NewString()),
		OrgID:         in.OrgID,
		ParticipantID: in.ParticipantID,
		PeriodStart:   in.PeriodStart,
		PeriodEnd:     in.PeriodEnd,
		Subtotal:      totals.Subtotal,
		GST:           totals.GST,
		Total:         totals.Total,
		Status:        StatusDraft,
		CreatedAt:     g.now(),
	}
	for i := range items {
		items[i].InvoiceID = inv.ID
	}

	if err := g.Invoices.CreateInvoice(ctx, &inv, items); err != nil {
		return nil, err
	}

	for _, s := range skipped {
		log.Printf("invoice %s: skipped shift %s (%s): %s", inv.Number, s.ShiftID, s.SupportType, s.Reason)
	}

	return &GenerateResult{Invoice: inv, Items: items, Skipped: skipped}, nil
}

func (g *Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}
