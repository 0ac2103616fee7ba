package billing_test

import (
	"context"
	"errors"
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

// recordingSync captures sync attempts and optionally fails them.
type recordingSync struct {
	calls []billing.InvoiceID
	err   error
}

func (r *recordingSync) SyncInvoice(_ context.Context, inv *billing.Invoice, _ []billing.InvoiceLineItem) error {
	r.calls = append(r.calls, inv.ID)
	return r.err
}

// newDraftInvoice generates a draft invoice in the memory store and returns
// its ID.
func newDraftInvoice(t *testing.T, gen *billing.Generator, mem *store.Memory) billing.InvoiceID {
	t.Helper()
	mem.PutShift(completedShift("shift-lc", billing.SupportPersonalCare,
		billing.NewDate(2025, time.June, 11), 9, 60))
	result := generateJune(t, gen)
	return result.Invoice.ID
}

// =============================================================================
// FINALIZE TESTS
// =============================================================================

func TestLifecycle_Finalize(t *testing.T) {
	// GIVEN: A draft invoice and a working accounting sync
	// WHEN: Finalizing
	// THEN: Status flips to submitted with who/when recorded, and the
	//       finalized invoice is handed to the sync exactly once

	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)

	sync := &recordingSync{}
	lc := &billing.Lifecycle{
		Invoices: mem,
		Sync:     sync,
		Now:      func() time.Time { return time.Date(2025, time.July, 1, 10, 0, 0, 0, time.UTC) },
	}

	result, err := lc.Finalize(context.Background(), id, "coordinator@example.com")
	require.NoError(t, err)

	assert.Equal(t, billing.StatusSubmitted, result.Invoice.Status)
	assert.Equal(t, "coordinator@example.com", result.Invoice.FinalizedBy)
	require.NotNil(t, result.Invoice.FinalizedAt)
	assert.True(t, result.SyncAttempted)
	assert.Empty(t, result.SyncError)
	assert.Equal(t, []billing.InvoiceID{id}, sync.calls)
}

func TestLifecycle_FinalizeTwiceRejected(t *testing.T) {
	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem}

	_, err := lc.Finalize(context.Background(), id, "first")
	require.NoError(t, err)

	_, err = lc.Finalize(context.Background(), id, "second")
	assert.ErrorIs(t, err, billing.ErrAlreadyFinalized)
}

func TestLifecycle_FinalizeSurvivesSyncFailure(t *testing.T) {
	// GIVEN: An accounting sync that always fails
	// WHEN: Finalizing
	// THEN: The finalize succeeds and stays submitted; the sync error is
	//       reported on the result, never propagated

	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)

	sync := &recordingSync{err: errors.New("endpoint returned 503")}
	lc := &billing.Lifecycle{Invoices: mem, Sync: sync}

	result, err := lc.Finalize(context.Background(), id, "coordinator")
	require.NoError(t, err)
	assert.True(t, result.SyncAttempted)
	assert.Contains(t, result.SyncError, "503")

	inv, _, err := mem.GetInvoice(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSubmitted, inv.Status)
}

func TestLifecycle_FinalizeWithoutSync(t *testing.T) {
	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem} // nil Sync

	result, err := lc.Finalize(context.Background(), id, "coordinator")
	require.NoError(t, err)
	assert.False(t, result.SyncAttempted)
}

func TestLifecycle_FinalizeMissingInvoice(t *testing.T) {
	_, mem := newTestGenerator()
	lc := &billing.Lifecycle{Invoices: mem}

	_, err := lc.Finalize(context.Background(), "no-such-invoice", "coordinator")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

// =============================================================================
// DELETE AND STATUS TESTS
// =============================================================================

func TestLifecycle_DeleteDraft(t *testing.T) {
	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem}

	require.NoError(t, lc.Delete(context.Background(), id))

	_, _, err := mem.GetInvoice(context.Background(), id)
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestLifecycle_DeleteSubmittedRejected(t *testing.T) {
	// GIVEN: A finalized invoice
	// WHEN: Deleting it
	// THEN: Rejected with ErrNotDraft and the invoice survives intact

	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem}

	_, err := lc.Finalize(context.Background(), id, "coordinator")
	require.NoError(t, err)

	err = lc.Delete(context.Background(), id)
	assert.ErrorIs(t, err, billing.ErrNotDraft)

	inv, items, err := mem.GetInvoice(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusSubmitted, inv.Status)
	assert.NotEmpty(t, items)
}

func TestLifecycle_SetStatus(t *testing.T) {
	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem}

	_, err := lc.Finalize(context.Background(), id, "coordinator")
	require.NoError(t, err)

	require.NoError(t, lc.SetStatus(context.Background(), id, billing.StatusPaid))

	inv, _, err := mem.GetInvoice(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, inv.Status)
}

func TestLifecycle_SetStatusInvalidTransition(t *testing.T) {
	// GIVEN: A draft invoice
	// WHEN: Marking it paid directly
	// THEN: The state machine rejects the jump

	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem}

	err := lc.SetStatus(context.Background(), id, billing.StatusPaid)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestLifecycle_SetStatusRejectsNonTerminalTargets(t *testing.T) {
	gen, mem := newTestGenerator()
	id := newDraftInvoice(t, gen, mem)
	lc := &billing.Lifecycle{Invoices: mem}

	err := lc.SetStatus(context.Background(), id, billing.StatusSubmitted)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}
