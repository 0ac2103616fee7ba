// Package sync implements the accounting-system handoff triggered by invoice
// finalize. The handoff is non-blocking by contract: callers report its
// outcome alongside the finalize response and never fail the finalize on a
// sync error.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carelink/ndis-billing/billing"
)

// =============================================================================
// WEBHOOK SYNC - POST the finalized invoice to a configured endpoint
// =============================================================================

// Webhook posts finalized invoices as JSON to an accounting integration URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

var _ billing.AccountingSync = (*Webhook)(nil)

// NewWebhook builds a webhook sync with a short timeout; finalize latency
// must not hang on a slow accounting endpoint.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type syncPayload struct {
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	ParticipantID string `json:"participant_id"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	Subtotal      string `json:"subtotal"`
	GST           string `json:"gst"`
	Total         string `json:"total"`
	LineItemCount int    `json:"line_item_count"`
}

// SyncInvoice hands one finalized invoice to the accounting system.
func (w *Webhook) SyncInvoice(ctx context.Context, inv *billing.Invoice, items []billing.InvoiceLineItem) error {
	payload := syncPayload{
		InvoiceID:     string(inv.ID),
		InvoiceNumber: inv.Number,
		ParticipantID: string(inv.ParticipantID),
		PeriodStart:   inv.PeriodStart.String(),
		PeriodEnd:     inv.PeriodEnd.String(),
		Subtotal:      inv.Subtotal.StringFixed(2),
		GST:           inv.GST.StringFixed(2),
		Total:         inv.Total.StringFixed(2),
		LineItemCount: len(items),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode sync payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("accounting sync: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("accounting sync: endpoint returned %s", resp.Status)
	}
	return nil
}
