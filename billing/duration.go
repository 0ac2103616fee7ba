package billing

import (
	"math"
	"time"
)

// =============================================================================
// BILLABLE DURATION - Scheduled vs. actual reconciliation
// =============================================================================

// BillableDuration is the outcome of reconciling a shift's scheduled window
// against its recorded check-in/out. All three spans are kept for audit: the
// line item stores scheduled, actual and billable minutes.
type BillableDuration struct {
	ScheduledMinutes int
	ActualMinutes    int // 0 when the shift has no check-in/out
	BillableMinutes  int
}

// minutesBetween rounds a span to the nearest whole minute so billing is
// deterministic regardless of sub-minute check-in jitter.
func minutesBetween(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

// ResolveBillableDuration computes the duration a shift may be billed for.
//
// The "lesser of" rule: when a check-in/out pair exists, billable minutes are
// min(scheduled span, actual span). A worker who checks in early or stays
// late cannot bill beyond the scheduled window, and a worker who leaves early
// cannot bill more than was actually worked. Shifts with no check-in/out
// (admin-entered or overridden) bill the scheduled span.
//
// A scheduled end at or before the scheduled start, or an actual end at or
// before the actual start, is a data-integrity fault: the resolver fails
// loudly rather than silently billing a negative or zero span.
func ResolveBillableDuration(shift *ShiftRecord) (BillableDuration, error) {
	if !shift.ScheduledEnd.After(shift.ScheduledStart) {
		return BillableDuration{}, &InvalidTimeSpanError{
			ShiftID: shift.ID,
			Field:   "scheduled",
			Start:   shift.ScheduledStart,
			End:     shift.ScheduledEnd,
		}
	}

	d := BillableDuration{
		ScheduledMinutes: minutesBetween(shift.ScheduledStart, shift.ScheduledEnd),
	}

	if !shift.HasActual() {
		d.BillableMinutes = d.ScheduledMinutes
		return d, nil
	}

	if !shift.ActualEnd.After(*shift.ActualStart) {
		return BillableDuration{}, &InvalidTimeSpanError{
			ShiftID: shift.ID,
			Field:   "actual",
			Start:   *shift.ActualStart,
			End:     *shift.ActualEnd,
		}
	}

	d.ActualMinutes = minutesBetween(*shift.ActualStart, *shift.ActualEnd)
	d.BillableMinutes = d.ScheduledMinutes
	if d.ActualMinutes < d.ScheduledMinutes {
		d.BillableMinutes = d.ActualMinutes
	}
	return d, nil
}
