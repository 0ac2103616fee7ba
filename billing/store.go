/*
store.go - Collaborator interfaces between the engine and persistence

PURPOSE:
  The engine is request-scoped and stateless; every generation or export call
  reads its inputs fresh through these interfaces and writes once. Concrete
  implementations live in store/sqlite (production) and billing/store
  (in-memory, for tests and dev mode).

CONTRACTS THE ENGINE REQUIRES OF ITS STORE:
  - Invoice numbers are allocated atomically and monotonically per
    organization, inside the same transaction as the invoice insert. Aborted
    generations must never consume a sequence number.
  - A shift appears as the origin of at most one line item across all
    non-cancelled invoices, checked inside CreateInvoice's transaction.
  - Draft-only deletes and the finalize transition are checked inside the
    store's transaction, so a status change racing the call is rejected
    rather than silently no-opped.

SEE ALSO:
  - generate.go: consumes ShiftSource/RateSource/HolidaySource/InvoiceStore
  - lifecycle.go: consumes InvoiceStore + AccountingSync
  - store/memory.go: in-memory implementation
  - store/sqlite/sqlite.go: SQLite implementation
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// READ-SIDE COLLABORATORS
// =============================================================================

// ShiftSource provides completed shifts eligible for billing.
type ShiftSource interface {
	// CompletedShifts returns shifts for the participant with status
	// completed and scheduled_start within [from, to], excluding shifts that
	// already back a line item on a non-cancelled invoice.
	CompletedShifts(ctx context.Context, participantID ParticipantID, from, to Date) ([]ShiftRecord, error)
}

// RateSource provides an organization's active rate cards.
type RateSource interface {
	ActiveRateCards(ctx context.Context, orgID OrgID) ([]RateCard, error)
}

// HolidaySource provides gazetted public holidays.
type HolidaySource interface {
	HolidaysInRange(ctx context.Context, orgID OrgID, from, to Date) ([]PublicHoliday, error)
}

// OrganizationSource resolves organization reference data (billing mode,
// claim identifiers).
type OrganizationSource interface {
	GetOrganization(ctx context.Context, id OrgID) (*Organization, error)
}

// ParticipantSource resolves participant reference data.
type ParticipantSource interface {
	GetParticipant(ctx context.Context, id ParticipantID) (*Participant, error)
}

// =============================================================================
// INVOICE STORE
// =============================================================================

// InvoiceBundle is a finalized invoice joined with everything the export
// formatters need: the participant and the line items.
type InvoiceBundle struct {
	Invoice     Invoice
	Participant Participant
	Items       []InvoiceLineItem
}

// InvoiceStore persists invoices and enforces the lifecycle at the storage
// boundary.
type InvoiceStore interface {
	// CreateInvoice persists a draft header and its line items as one logical
	// unit, allocating the per-organization sequential number inside the same
	// transaction. On success inv.Number (and inv.ID if empty) are filled in.
	// Returns ErrShiftAlreadyInvoiced if any line item's shift is already
	// billed on a non-cancelled invoice.
	CreateInvoice(ctx context.Context, inv *Invoice, items []InvoiceLineItem) error

	// GetInvoice returns the header and its items, or ErrInvoiceNotFound.
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, []InvoiceLineItem, error)

	// ListInvoices returns all invoice headers for an organization, newest
	// first.
	ListInvoices(ctx context.Context, orgID OrgID) ([]Invoice, error)

	// FinalizedBundles returns finalized (submitted/paid/overdue) invoices
	// whose period overlaps [from, to], joined with participants and items,
	// for the export formatters.
	FinalizedBundles(ctx context.Context, orgID OrgID, from, to Date) ([]InvoiceBundle, error)

	// MarkFinalized applies draft->submitted, checking the current status
	// inside the transaction. Returns ErrAlreadyFinalized if the invoice is
	// no longer a draft, ErrInvoiceNotFound if it doesn't exist.
	MarkFinalized(ctx context.Context, id InvoiceID, by string, at time.Time) error

	// MarkStatus applies an externally driven transition (paid, overdue,
	// cancelled), validating it against the state machine inside the
	// transaction. Returns ErrInvalidTransition when the move is not allowed.
	MarkStatus(ctx context.Context, id InvoiceID, to InvoiceStatus) error

	// DeleteDraft removes a draft invoice, cascading line items first. A
	// non-draft status is rejected with ErrNotDraft, never silently ignored.
	DeleteDraft(ctx context.Context, id InvoiceID) error
}

// =============================================================================
// ACCOUNTING SYNC - Non-blocking side effect on finalize
// =============================================================================

// AccountingSync pushes a finalized invoice to an external accounting
// system. Sync errors are reported alongside the finalize response and never
// revert or fail the finalize itself.
type AccountingSync interface {
	SyncInvoice(ctx context.Context, inv *Invoice, items []InvoiceLineItem) error
}
