package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE CARD - One price per (support type, day type)
// =============================================================================

// RateCard is an organization's active price list for one support type: a
// per-hour price for each day classification. At most one active entry
// exists per (organization, support type) at any time the engine consults
// the card; the persistence layer enforces that with a partial unique index.
type RateCard struct {
	OrgID       OrgID
	SupportType SupportType

	// SupportItemCode is the government price-guide code billed for this
	// support type. Empty means the support is internal-only and excluded
	// from claim exports.
	SupportItemCode string

	WeekdayRate   decimal.Decimal
	SaturdayRate  decimal.Decimal
	SundayRate    decimal.Decimal
	HolidayRate   decimal.Decimal
	IsActive      bool
	EffectiveFrom Date
}

// RateFor projects the price column matching the day type. The card carries
// exactly one price per day type; there is no interpolation or tiering.
func (rc *RateCard) RateFor(day DayType) decimal.Decimal {
	switch day {
	case DaySaturday:
		return rc.SaturdayRate
	case DaySunday:
		return rc.SundayRate
	case DayPublicHoliday:
		return rc.HolidayRate
	default:
		return rc.WeekdayRate
	}
}

// =============================================================================
// RATE RESOLVER
// =============================================================================

// RateTable indexes an organization's active rate cards by support type.
type RateTable map[SupportType]*RateCard

// NewRateTable builds a table from the organization's active entries.
// Inactive entries are skipped; "none active" for a support type is a hard
// error at resolution time, never a zero price.
func NewRateTable(cards []RateCard) RateTable {
	table := make(RateTable, len(cards))
	for i := range cards {
		if !cards[i].IsActive {
			continue
		}
		table[cards[i].SupportType] = &cards[i]
	}
	return table
}

// Resolve returns the per-hour price for a support type on a day type.
// A missing active card yields a RateNotConfiguredError carrying the
// actionable instruction surfaced to operators.
func (t RateTable) Resolve(support SupportType, day DayType) (decimal.Decimal, error) {
	card, ok := t[support]
	if !ok {
		return decimal.Zero, &RateNotConfiguredError{SupportType: support, DayType: day}
	}
	return card.RateFor(day), nil
}
