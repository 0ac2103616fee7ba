package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/ndis-billing/billing"
	"github.com/carelink/ndis-billing/billing/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const (
	testOrg         = billing.OrgID("org-1")
	testParticipant = billing.ParticipantID("part-1")
)

// newTestGenerator seeds a memory store with one organization, one
// participant and an active personal-care rate card, and returns a generator
// with a fixed clock.
func newTestGenerator() (*billing.Generator, *store.Memory) {
	mem := store.NewMemory()
	mem.PutOrganization(billing.Organization{
		ID:          testOrg,
		Name:        "CareLink Support Services",
		BillingMode: billing.BillingGSTFree,
	})
	mem.PutParticipant(billing.Participant{
		ID:         testParticipant,
		OrgID:      testOrg,
		Name:       "Riley Nguyen",
		NDISNumber: "430111222",
	})
	mem.PutRateCard(personalCareCard())

	gen := &billing.Generator{
		Shifts:        mem,
		Rates:         mem,
		Holidays:      mem,
		Organizations: mem,
		Invoices:      mem,
		Now: func() time.Time {
			return time.Date(2025, time.July, 1, 9, 0, 0, 0, time.UTC)
		},
	}
	return gen, mem
}

func june2025() (billing.Date, billing.Date) {
	return billing.NewDate(2025, time.June, 1), billing.NewDate(2025, time.June, 30)
}

func completedShift(id string, support billing.SupportType, day billing.Date, startHour, minutes int) billing.ShiftRecord {
	start := time.Date(day.Year, day.Month, day.Day, startHour, 0, 0, 0, time.UTC)
	return billing.ShiftRecord{
		ID:             billing.ShiftID(id),
		OrgID:          testOrg,
		ParticipantID:  testParticipant,
		SupportType:    support,
		Status:         billing.ShiftCompleted,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Duration(minutes) * time.Minute),
	}
}

func generateJune(t *testing.T, gen *billing.Generator) *billing.GenerateResult {
	t.Helper()
	from, to := june2025()
	result, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID:         testOrg,
		ParticipantID: testParticipant,
		PeriodStart:   from,
		PeriodEnd:     to,
	})
	require.NoError(t, err)
	return result
}

// =============================================================================
// PIPELINE TESTS
// =============================================================================

func TestGenerate_SingleWeekdayShift(t *testing.T) {
	// GIVEN: One completed 2-hour weekday shift at the 65.09 weekday rate
	// WHEN: Generating the June invoice
	// THEN: One line item, subtotal 130.18, GST 0.00, draft status,
	//       number INV-000001

	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 120)) // Wednesday

	result := generateJune(t, gen)

	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, billing.DayWeekday, item.DayType)
	assert.Equal(t, "01_011_0107_1_1", item.SupportItemCode)
	assert.True(t, item.LineTotal.Equal(billing.MustMoney("130.18")), "line total %s", item.LineTotal)

	inv := result.Invoice
	assert.Equal(t, billing.StatusDraft, inv.Status)
	assert.Equal(t, "INV-000001", inv.Number)
	assert.True(t, inv.Subtotal.Equal(billing.MustMoney("130.18")))
	assert.True(t, inv.GST.IsZero())
	assert.True(t, inv.Total.Equal(billing.MustMoney("130.18")))
	assert.Empty(t, result.Skipped)
}

func TestGenerate_DayTypesPricedIndependently(t *testing.T) {
	// GIVEN: Weekday, Saturday and public-holiday shifts in one period
	// WHEN: Generating the invoice
	// THEN: Each line item is priced off its own day classification

	gen, mem := newTestGenerator()
	holiday := billing.NewDate(2025, time.June, 9) // King's Birthday, a Monday
	mem.PutHoliday(billing.PublicHoliday{OrgID: testOrg, Date: holiday, Name: "King's Birthday"})

	mem.PutShift(completedShift("shift-wd", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))
	mem.PutShift(completedShift("shift-sat", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 14), 9, 60))
	mem.PutShift(completedShift("shift-hol", billing.SupportPersonalCare, holiday, 9, 60))

	result := generateJune(t, gen)
	require.Len(t, result.Items, 3)

	byShift := make(map[billing.ShiftID]billing.InvoiceLineItem)
	for _, item := range result.Items {
		byShift[item.ShiftID] = item
	}
	assert.True(t, byShift["shift-wd"].LineTotal.Equal(billing.MustMoney("65.09")))
	assert.True(t, byShift["shift-sat"].LineTotal.Equal(billing.MustMoney("91.13")))
	assert.True(t, byShift["shift-hol"].LineTotal.Equal(billing.MustMoney("143.21")))
	assert.Equal(t, billing.DayPublicHoliday, byShift["shift-hol"].DayType)

	// 65.09 + 91.13 + 143.21
	assert.True(t, result.Invoice.Subtotal.Equal(billing.MustMoney("299.43")))
}

func TestGenerate_ClassifiesInOrganizationCalendar(t *testing.T) {
	// GIVEN: An AEST organization and a shift stored as Friday 22:00 UTC,
	//        which is Saturday 08:00 in Sydney
	// WHEN: Generating the invoice
	// THEN: The line item classifies and bills as Saturday, with the
	//       org-local service date

	gen, mem := newTestGenerator()
	mem.PutOrganization(billing.Organization{
		ID:          testOrg,
		Name:        "CareLink Support Services",
		BillingMode: billing.BillingGSTFree,
		Timezone:    "Australia/Sydney",
	})

	start := time.Date(2025, time.June, 13, 22, 0, 0, 0, time.UTC)
	mem.PutShift(billing.ShiftRecord{
		ID:             "shift-tz",
		OrgID:          testOrg,
		ParticipantID:  testParticipant,
		SupportType:    billing.SupportPersonalCare,
		Status:         billing.ShiftCompleted,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(time.Hour),
	})

	result := generateJune(t, gen)
	require.Len(t, result.Items, 1)
	assert.Equal(t, billing.DaySaturday, result.Items[0].DayType)
	assert.Equal(t, billing.NewDate(2025, time.June, 14), result.Items[0].ServiceDate)
	assert.True(t, result.Items[0].LineTotal.Equal(billing.MustMoney("91.13")))
}

func TestGenerate_InvalidTimezoneAborts(t *testing.T) {
	gen, mem := newTestGenerator()
	mem.PutOrganization(billing.Organization{
		ID: testOrg, Name: "CareLink", Timezone: "Australia/Nowhere",
	})
	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))

	from, to := june2025()
	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID: testOrg, ParticipantID: testParticipant, PeriodStart: from, PeriodEnd: to,
	})
	assert.ErrorIs(t, err, billing.ErrInvalidTimezone)
}

func TestGenerate_LesserOfRuleAppliedPerShift(t *testing.T) {
	// GIVEN: A 2-hour scheduled shift where only 110 minutes were worked
	// WHEN: Generating the invoice
	// THEN: The line bills 110 minutes: 1.8333 h x 65.09 = 119.33

	gen, mem := newTestGenerator()
	shift := completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 120)
	actualStart := shift.ScheduledStart.Add(5 * time.Minute)
	actualEnd := shift.ScheduledEnd.Add(-5 * time.Minute)
	shift.ActualStart = &actualStart
	shift.ActualEnd = &actualEnd
	mem.PutShift(shift)

	result := generateJune(t, gen)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 110, result.Items[0].BillableMinutes)
	assert.True(t, result.Items[0].LineTotal.Equal(billing.MustMoney("119.33")))
}

func TestGenerate_ScheduledOnlyShiftsExcluded(t *testing.T) {
	// GIVEN: A completed shift plus scheduled and cancelled ones
	// WHEN: Generating the invoice
	// THEN: Only the completed shift is billed

	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-done", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))

	pending := completedShift("shift-pending", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 12), 9, 60)
	pending.Status = billing.ShiftScheduled
	mem.PutShift(pending)

	cancelled := completedShift("shift-cancelled", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 13), 9, 60)
	cancelled.Status = billing.ShiftCancelled
	mem.PutShift(cancelled)

	result := generateJune(t, gen)
	require.Len(t, result.Items, 1)
	assert.Equal(t, billing.ShiftID("shift-done"), result.Items[0].ShiftID)
}

// =============================================================================
// PRECONDITION FAILURES
// =============================================================================

func TestGenerate_InvalidDateRange(t *testing.T) {
	gen, _ := newTestGenerator()
	from, to := june2025()

	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID:         testOrg,
		ParticipantID: testParticipant,
		PeriodStart:   to,
		PeriodEnd:     from,
	})
	assert.ErrorIs(t, err, billing.ErrInvalidDateRange)
}

func TestGenerate_NoBillableShifts(t *testing.T) {
	gen, _ := newTestGenerator()
	from, to := june2025()

	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID:         testOrg,
		ParticipantID: testParticipant,
		PeriodStart:   from,
		PeriodEnd:     to,
	})
	assert.ErrorIs(t, err, billing.ErrNoBillableShifts)
}

func TestGenerate_NoRatesConfigured(t *testing.T) {
	// GIVEN: Completed shifts but zero active rate cards
	// WHEN: Generating
	// THEN: The whole generation aborts with ErrRatesNotConfigured

	mem := store.NewMemory()
	mem.PutOrganization(billing.Organization{ID: testOrg, Name: "CareLink"})
	mem.PutParticipant(billing.Participant{ID: testParticipant, OrgID: testOrg, Name: "Riley"})
	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))

	gen := &billing.Generator{
		Shifts: mem, Rates: mem, Holidays: mem, Organizations: mem, Invoices: mem,
	}
	from, to := june2025()
	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID: testOrg, ParticipantID: testParticipant, PeriodStart: from, PeriodEnd: to,
	})
	assert.ErrorIs(t, err, billing.ErrRatesNotConfigured)
}

func TestGenerate_NoLineItemsProducible(t *testing.T) {
	// GIVEN: Rates configured, but not for the one support type billed
	// WHEN: Generating
	// THEN: The shift is skipped and the generation fails with
	//       ErrNoLineItemsProducible, distinct from ErrRatesNotConfigured

	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-1", billing.SupportTransport,
		billing.NewDate(2025, time.June, 11), 9, 60))

	from, to := june2025()
	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID: testOrg, ParticipantID: testParticipant, PeriodStart: from, PeriodEnd: to,
	})
	assert.ErrorIs(t, err, billing.ErrNoLineItemsProducible)
}

// =============================================================================
// PER-SHIFT SKIPS
// =============================================================================

func TestGenerate_SkipsRecordedOnResult(t *testing.T) {
	// GIVEN: One billable shift, one with no rate, one with a broken span
	// WHEN: Generating
	// THEN: The invoice carries the one good line item and both skips with
	//       their reasons; the batch does not abort

	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-good", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))
	mem.PutShift(completedShift("shift-unrated", billing.SupportTransport,
		billing.NewDate(2025, time.June, 12), 9, 60))

	broken := completedShift("shift-broken", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 13), 9, 60)
	broken.ScheduledEnd = broken.ScheduledStart
	mem.PutShift(broken)

	result := generateJune(t, gen)

	require.Len(t, result.Items, 1)
	assert.Equal(t, billing.ShiftID("shift-good"), result.Items[0].ShiftID)

	require.Len(t, result.Skipped, 2)
	reasons := make(map[billing.ShiftID]string)
	for _, s := range result.Skipped {
		reasons[s.ShiftID] = s.Reason
	}
	assert.Contains(t, reasons[billing.ShiftID("shift-unrated")], "no active rate")
	assert.Contains(t, reasons[billing.ShiftID("shift-broken")], "not after start")
}

// =============================================================================
// NUMBERING AND DOUBLE-BILLING
// =============================================================================

func TestGenerate_SequentialNumbersPerOrganization(t *testing.T) {
	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))
	mem.PutShift(completedShift("shift-2", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 18), 9, 60))

	first := generateJune(t, gen)
	assert.Equal(t, "INV-000001", first.Invoice.Number)

	// shift-2 was billed on the first invoice too; add a fresh one
	mem.PutShift(completedShift("shift-3", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 25), 9, 60))
	second := generateJune(t, gen)
	assert.Equal(t, "INV-000002", second.Invoice.Number)
}

func TestGenerate_AbortedRunBurnsNoNumber(t *testing.T) {
	// GIVEN: A failed generation (no billable shifts)
	// WHEN: A later generation succeeds
	// THEN: It still receives INV-000001; aborts never consume numbers

	gen, mem := newTestGenerator()
	from, to := june2025()
	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID: testOrg, ParticipantID: testParticipant, PeriodStart: from, PeriodEnd: to,
	})
	require.ErrorIs(t, err, billing.ErrNoBillableShifts)

	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))
	result := generateJune(t, gen)
	assert.Equal(t, "INV-000001", result.Invoice.Number)
}

func TestGenerate_AlreadyInvoicedShiftsExcluded(t *testing.T) {
	// GIVEN: A period fully billed by a previous invoice
	// WHEN: Generating again over the same period
	// THEN: No shift is billable a second time

	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))
	generateJune(t, gen)

	from, to := june2025()
	_, err := gen.Generate(context.Background(), billing.GenerateInput{
		OrgID: testOrg, ParticipantID: testParticipant, PeriodStart: from, PeriodEnd: to,
	})
	assert.ErrorIs(t, err, billing.ErrNoBillableShifts)
}

func TestGenerate_CancelledInvoiceReleasesShifts(t *testing.T) {
	// GIVEN: A draft invoice cancelled after generation
	// WHEN: Generating again over the same period
	// THEN: The shifts are billable again on the replacement invoice

	gen, mem := newTestGenerator()
	mem.PutShift(completedShift("shift-1", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))

	first := generateJune(t, gen)
	require.NoError(t, mem.MarkStatus(context.Background(), first.Invoice.ID, billing.StatusCancelled))

	second := generateJune(t, gen)
	require.Len(t, second.Items, 1)
	assert.Equal(t, billing.ShiftID("shift-1"), second.Items[0].ShiftID)
}
