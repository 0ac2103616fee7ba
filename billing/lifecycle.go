package billing

import (
	"context"
	"log"
	"time"
)

// =============================================================================
// LIFECYCLE - Finalize / delete / external transitions
// =============================================================================

// Lifecycle applies invoice state transitions through the store's guarded
// operations and triggers the non-blocking accounting sync on finalize.
type Lifecycle struct {
	Invoices InvoiceStore
	Sync     AccountingSync // nil disables syncing

	Now func() time.Time
}

// FinalizeResult reports the finalize outcome together with the sync
// attempt's outcome. A sync failure never reverts the finalize.
type FinalizeResult struct {
	Invoice       Invoice
	Items         []InvoiceLineItem
	SyncAttempted bool
	SyncError     string // empty on success or when sync is disabled
}

// Finalize locks a draft invoice (draft -> submitted), recording who and
// when, then hands the finalized invoice to the accounting sync. The store
// checks the draft status inside its transaction, so a concurrent status
// change is rejected with ErrAlreadyFinalized rather than double-applied.
func (l *Lifecycle) Finalize(ctx context.Context, id InvoiceID, by string) (*FinalizeResult, error) {
	at := l.now()
	if err := l.Invoices.MarkFinalized(ctx, id, by, at); err != nil {
		return nil, err
	}

	inv, items, err := l.Invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &FinalizeResult{Invoice: *inv, Items: items}
	if l.Sync != nil {
		result.SyncAttempted = true
		if err := l.Sync.SyncInvoice(ctx, inv, items); err != nil {
			// Reported alongside success, never propagated as a failure of
			// the finalize itself.
			result.SyncError = err.Error()
			log.Printf("invoice %s: accounting sync failed: %v", inv.Number, err)
		}
	}
	return result, nil
}

// Delete removes a draft invoice and its line items. Non-draft invoices are
// rejected with ErrNotDraft and no rows are removed.
func (l *Lifecycle) Delete(ctx context.Context, id InvoiceID) error {
	return l.Invoices.DeleteDraft(ctx, id)
}

// SetStatus applies an externally driven transition (submitted -> paid or
// overdue, draft/submitted -> cancelled) through the state machine.
func (l *Lifecycle) SetStatus(ctx context.Context, id InvoiceID, to InvoiceStatus) error {
	switch to {
	case StatusPaid, StatusOverdue, StatusCancelled:
		return l.Invoices.MarkStatus(ctx, id, to)
	default:
		return &TransitionError{InvoiceID: id, To: to}
	}
}

func (l *Lifecycle) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}
