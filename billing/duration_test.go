package billing_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/ndis-billing/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func at(hour, min int) time.Time {
	return time.Date(2025, time.June, 11, hour, min, 0, 0, time.UTC)
}

func shiftWithTimes(schedStart, schedEnd time.Time, actualStart, actualEnd *time.Time) *billing.ShiftRecord {
	return &billing.ShiftRecord{
		ID:             "shift-1",
		OrgID:          "org-1",
		ParticipantID:  "part-1",
		SupportType:    billing.SupportPersonalCare,
		Status:         billing.ShiftCompleted,
		ScheduledStart: schedStart,
		ScheduledEnd:   schedEnd,
		ActualStart:    actualStart,
		ActualEnd:      actualEnd,
	}
}

func ptr(t time.Time) *time.Time { return &t }

// =============================================================================
// LESSER-OF RULE TESTS
// =============================================================================

func TestResolveBillableDuration_NoActual_BillsScheduled(t *testing.T) {
	// GIVEN: An admin-entered shift with no check-in/out
	// WHEN: Resolving the billable duration
	// THEN: The scheduled span is billed in full

	shift := shiftWithTimes(at(9, 0), at(11, 0), nil, nil)

	d, err := billing.ResolveBillableDuration(shift)
	require.NoError(t, err)
	assert.Equal(t, 120, d.ScheduledMinutes)
	assert.Equal(t, 0, d.ActualMinutes)
	assert.Equal(t, 120, d.BillableMinutes)
}

func TestResolveBillableDuration_ActualShorter_BillsActual(t *testing.T) {
	// GIVEN: A worker who arrived late and left early (110 of 120 minutes)
	// WHEN: Resolving the billable duration
	// THEN: The shorter actual span is billed

	shift := shiftWithTimes(at(9, 0), at(11, 0), ptr(at(9, 5)), ptr(at(10, 55)))

	d, err := billing.ResolveBillableDuration(shift)
	require.NoError(t, err)
	assert.Equal(t, 120, d.ScheduledMinutes)
	assert.Equal(t, 110, d.ActualMinutes)
	assert.Equal(t, 110, d.BillableMinutes)
}

func TestResolveBillableDuration_ActualLonger_CapsAtScheduled(t *testing.T) {
	// GIVEN: A worker who checked in early and stayed late
	// WHEN: Resolving the billable duration
	// THEN: Billing caps at the scheduled window

	shift := shiftWithTimes(at(9, 0), at(11, 0), ptr(at(8, 50)), ptr(at(11, 20)))

	d, err := billing.ResolveBillableDuration(shift)
	require.NoError(t, err)
	assert.Equal(t, 120, d.ScheduledMinutes)
	assert.Equal(t, 150, d.ActualMinutes)
	assert.Equal(t, 120, d.BillableMinutes)
}

func TestResolveBillableDuration_EqualSpans(t *testing.T) {
	shift := shiftWithTimes(at(9, 0), at(11, 0), ptr(at(9, 0)), ptr(at(11, 0)))

	d, err := billing.ResolveBillableDuration(shift)
	require.NoError(t, err)
	assert.Equal(t, 120, d.BillableMinutes)
}

func TestResolveBillableDuration_SubMinuteJitterRoundsToNearestMinute(t *testing.T) {
	// GIVEN: Check-out 30 seconds into the final minute
	// WHEN: Resolving the billable duration
	// THEN: The span rounds to the nearest whole minute

	actualEnd := at(10, 59).Add(31 * time.Second)
	shift := shiftWithTimes(at(9, 0), at(11, 0), ptr(at(9, 0)), ptr(actualEnd))

	d, err := billing.ResolveBillableDuration(shift)
	require.NoError(t, err)
	assert.Equal(t, 120, d.ActualMinutes)
	assert.Equal(t, 120, d.BillableMinutes)
}

// =============================================================================
// DATA-INTEGRITY FAULTS
// =============================================================================

func TestResolveBillableDuration_ScheduledEndBeforeStart(t *testing.T) {
	shift := shiftWithTimes(at(11, 0), at(9, 0), nil, nil)

	_, err := billing.ResolveBillableDuration(shift)
	require.Error(t, err)
	assert.True(t, errors.Is(err, billing.ErrInvalidTimeSpan))

	var spanErr *billing.InvalidTimeSpanError
	require.True(t, errors.As(err, &spanErr))
	assert.Equal(t, "scheduled", spanErr.Field)
}

func TestResolveBillableDuration_ActualEndEqualsStart(t *testing.T) {
	shift := shiftWithTimes(at(9, 0), at(11, 0), ptr(at(9, 0)), ptr(at(9, 0)))

	_, err := billing.ResolveBillableDuration(shift)
	require.Error(t, err)

	var spanErr *billing.InvalidTimeSpanError
	require.True(t, errors.As(err, &spanErr))
	assert.Equal(t, "actual", spanErr.Field)
}
