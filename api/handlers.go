/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Reference data:
    POST   /api/organizations           Register provider organization
    GET    /api/organizations/{id}      Get organization
    POST   /api/participants            Register participant
    GET    /api/participants            List participants for an org
    POST   /api/shifts                  Record a shift
    POST   /api/rates                   Set a rate card
    POST   /api/holidays                Register a public holiday

  Invoices:
    POST   /api/invoices/generate       Run the generation pipeline
    GET    /api/invoices                List invoices for an org
    GET    /api/invoices/{id}           Get invoice with line items
    POST   /api/invoices/{id}/finalize  Lock draft, trigger accounting sync
    POST   /api/invoices/{id}/status    Mark paid/overdue/cancelled
    DELETE /api/invoices/{id}           Delete draft

  Exports:
    GET    /api/exports/claims          NDIA bulk-claims CSV (fail-closed)
    GET    /api/exports/myob            MYOB sales-import CSV
    GET    /api/exports/xero            Xero sales-invoice CSV

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store:     Database access (all collaborator interfaces)
  - Generator: Invoice generation pipeline
  - Lifecycle: Finalize/delete/status transitions

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, missing preconditions
  - 404: Resource not found
  - 409: Lifecycle conflicts (already finalized, already billed, not draft)
  - 422: Claim export refused by fail-closed validation
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Deploy behind an authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carelink/ndis-billing/billing"
	"github.com/carelink/ndis-billing/export"
	"github.com/carelink/ndis-billing/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Generator *billing.Generator
	Lifecycle *billing.Lifecycle
}

// NewHandler creates a new handler wired to the given store and accounting
// sync.
func NewHandler(store *sqlite.Store, sync billing.AccountingSync) *Handler {
	return &Handler{
		Store: store,
		Generator: &billing.Generator{
			Shifts:        store,
			Rates:         store,
			Holidays:      store,
			Organizations: store,
			Invoices:      store,
		},
		Lifecycle: &billing.Lifecycle{
			Invoices: store,
			Sync:     sync,
		},
	}
}

// =============================================================================
// ORGANIZATION HANDLERS
// =============================================================================

// CreateOrganization registers a provider organization.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	mode := billing.BillingMode(req.BillingMode)
	if mode == "" {
		mode = billing.BillingGSTFree
	}
	if mode != billing.BillingGSTFree && mode != billing.BillingGSTInclusive {
		writeError(w, http.StatusBadRequest, "billing_mode must be gst_free or gst_inclusive", nil)
		return
	}

	org := billing.Organization{
		ID:                 billing.OrgID(req.ID),
		Name:               req.Name,
		ABN:                req.ABN,
		RegistrationNumber: req.RegistrationNumber,
		BillingMode:        mode,
		Timezone:           req.Timezone,
	}
	if _, err := org.Location(); err != nil {
		writeError(w, http.StatusBadRequest, "timezone must be a valid IANA name", err)
		return
	}
	if err := h.Store.SaveOrganization(r.Context(), org); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save organization", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrganizationDTO(org))
}

// GetOrganization returns a single organization.
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	id := billing.OrgID(chi.URLParam(r, "id"))

	org, err := h.Store.GetOrganization(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Failed to get organization", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationDTO(*org))
}

func toOrganizationDTO(org billing.Organization) OrganizationDTO {
	return OrganizationDTO{
		ID:                 string(org.ID),
		Name:               org.Name,
		ABN:                org.ABN,
		RegistrationNumber: org.RegistrationNumber,
		BillingMode:        string(org.BillingMode),
		Timezone:           org.Timezone,
	}
}

// =============================================================================
// PARTICIPANT HANDLERS
// =============================================================================

// CreateParticipant registers a participant.
func (h *Handler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req CreateParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.OrgID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id, org_id and name are required", nil)
		return
	}

	p := billing.Participant{
		ID:         billing.ParticipantID(req.ID),
		OrgID:      billing.OrgID(req.OrgID),
		Name:       req.Name,
		NDISNumber: req.NDISNumber,
	}
	if err := h.Store.SaveParticipant(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save participant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantDTO(p))
}

// ListParticipants returns all participants for an organization.
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	orgID := billing.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	participants, err := h.Store.ListParticipants(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list participants", err)
		return
	}

	dtos := make([]ParticipantDTO, len(participants))
	for i, p := range participants {
		dtos[i] = toParticipantDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SHIFT / RATE / HOLIDAY HANDLERS
// =============================================================================

// CreateShift records a shift.
func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	var req CreateShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.OrgID == "" || req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "id, org_id and participant_id are required", nil)
		return
	}

	scheduledStart, err := time.Parse(time.RFC3339, req.ScheduledStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scheduled_start (use RFC 3339)", err)
		return
	}
	scheduledEnd, err := time.Parse(time.RFC3339, req.ScheduledEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scheduled_end (use RFC 3339)", err)
		return
	}

	shift := billing.ShiftRecord{
		ID:             billing.ShiftID(req.ID),
		OrgID:          billing.OrgID(req.OrgID),
		ParticipantID:  billing.ParticipantID(req.ParticipantID),
		SupportType:    billing.SupportType(req.SupportType),
		Status:         billing.ShiftStatus(req.Status),
		ScheduledStart: scheduledStart,
		ScheduledEnd:   scheduledEnd,
	}
	if shift.Status == "" {
		shift.Status = billing.ShiftScheduled
	}
	if req.ActualStart != nil {
		t, err := time.Parse(time.RFC3339, *req.ActualStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid actual_start (use RFC 3339)", err)
			return
		}
		shift.ActualStart = &t
	}
	if req.ActualEnd != nil {
		t, err := time.Parse(time.RFC3339, *req.ActualEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid actual_end (use RFC 3339)", err)
			return
		}
		shift.ActualEnd = &t
	}

	if err := h.Store.SaveShift(r.Context(), shift); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// CreateRateCard sets an organization's rates for one support type,
// replacing any previous active card.
func (h *Handler) CreateRateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateRateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OrgID == "" || req.SupportType == "" {
		writeError(w, http.StatusBadRequest, "org_id and support_type are required", nil)
		return
	}

	rc := billing.RateCard{
		OrgID:           billing.OrgID(req.OrgID),
		SupportType:     billing.SupportType(req.SupportType),
		SupportItemCode: req.SupportItemCode,
		IsActive:        true,
	}
	var err error
	for _, f := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"weekday_rate", req.WeekdayRate, &rc.WeekdayRate},
		{"saturday_rate", req.SaturdayRate, &rc.SaturdayRate},
		{"sunday_rate", req.SundayRate, &rc.SundayRate},
		{"holiday_rate", req.HolidayRate, &rc.HolidayRate},
	} {
		*f.dst, err = decimal.NewFromString(f.value)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s (use a decimal string)", f.name), err)
			return
		}
		if f.dst.Sign() <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s (must be a positive amount)", f.name), nil)
			return
		}
	}
	if req.EffectiveFrom != "" {
		rc.EffectiveFrom, err = billing.ParseDate(req.EffectiveFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
			return
		}
	}

	if err := h.Store.SaveRateCard(r.Context(), uuid.NewString(), rc); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate card", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// CreateHoliday registers a gazetted public holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := billing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	holiday := billing.PublicHoliday{
		OrgID: billing.OrgID(req.OrgID),
		Date:  date,
		Name:  req.Name,
	}
	if err := h.Store.SaveHoliday(r.Context(), uuid.NewString(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoice runs the generation pipeline for one participant and
// period, producing a draft invoice.
func (h *Handler) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	periodStart, err := billing.ParseDate(req.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_start (use YYYY-MM-DD)", err)
		return
	}
	periodEnd, err := billing.ParseDate(req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_end (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Generator.Generate(r.Context(), billing.GenerateInput{
		OrgID:         billing.OrgID(req.OrgID),
		ParticipantID: billing.ParticipantID(req.ParticipantID),
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
	})
	if err != nil {
		writeError(w, statusForError(err), "Failed to generate invoice", err)
		return
	}

	dto := GenerateResultDTO{Invoice: toInvoiceDTO(&result.Invoice, result.Items)}
	for _, s := range result.Skipped {
		dto.Skipped = append(dto.Skipped, SkippedShiftDTO{
			ShiftID:     string(s.ShiftID),
			SupportType: string(s.SupportType),
			Reason:      s.Reason,
		})
	}
	writeJSON(w, http.StatusCreated, dto)
}

// ListInvoices returns invoice headers for an organization, newest first.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	orgID := billing.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	invoices, err := h.Store.ListInvoices(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i := range invoices {
		dtos[i] = toInvoiceDTO(&invoices[i], nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns an invoice with its line items.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	inv, items, err := h.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv, items))
}

// FinalizeInvoice locks a draft invoice and triggers the accounting sync.
// Sync failures are reported in the response body, not as a failure.
func (h *Handler) FinalizeInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	var req FinalizeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	result, err := h.Lifecycle.Finalize(r.Context(), id, req.FinalizedBy)
	if err != nil {
		writeError(w, statusForError(err), "Failed to finalize invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, FinalizeResultDTO{
		Invoice:       toInvoiceDTO(&result.Invoice, result.Items),
		SyncAttempted: result.SyncAttempted,
		SyncError:     result.SyncError,
	})
}

// SetInvoiceStatus applies a paid/overdue/cancelled transition.
func (h *Handler) SetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Lifecycle.SetStatus(r.Context(), id, billing.InvoiceStatus(req.Status)); err != nil {
		writeError(w, statusForError(err), "Failed to update invoice status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": string(id), "status": req.Status})
}

// DeleteInvoice removes a draft invoice and its line items.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	if err := h.Lifecycle.Delete(r.Context(), id); err != nil {
		writeError(w, statusForError(err), "Failed to delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// exportInput gathers the organization and its finalized invoices for the
// requested window.
func (h *Handler) exportInput(r *http.Request) (export.Input, error) {
	q := r.URL.Query()
	orgID := billing.OrgID(q.Get("org_id"))
	if orgID == "" {
		return export.Input{}, errors.New("org_id query parameter is required")
	}
	from, err := billing.ParseDate(q.Get("from"))
	if err != nil {
		return export.Input{}, fmt.Errorf("invalid from date: %w", err)
	}
	to, err := billing.ParseDate(q.Get("to"))
	if err != nil {
		return export.Input{}, fmt.Errorf("invalid to date: %w", err)
	}
	if to.Before(from) {
		return export.Input{}, billing.ErrInvalidDateRange
	}

	org, err := h.Store.GetOrganization(r.Context(), orgID)
	if err != nil {
		return export.Input{}, err
	}
	bundles, err := h.Store.FinalizedBundles(r.Context(), orgID, from, to)
	if err != nil {
		return export.Input{}, err
	}
	return export.Input{Organization: *org, Invoices: bundles}, nil
}

// writeExportError distinguishes a missing organization (404) from malformed
// export query parameters (400).
func writeExportError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if billing.IsNotFound(err) {
		status = http.StatusNotFound
	}
	writeError(w, status, "Invalid export request", err)
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", export.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ExportClaims renders the NDIA bulk-claims CSV. Validation is fail-closed:
// any missing claim field refuses the whole export with the full error list.
func (h *Handler) ExportClaims(w http.ResponseWriter, r *http.Request) {
	in, err := h.exportInput(r)
	if err != nil {
		writeExportError(w, err)
		return
	}

	data, err := export.RenderClaims(in)
	if err != nil {
		var verrs export.ValidationErrors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "Claim export refused: required fields are missing",
				Code:    "export_validation_failed",
				Details: verrs,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to render claims export", err)
		return
	}
	writeCSV(w, export.ClaimsFilename(time.Now()), data)
}

// ExportMYOB renders the MYOB sales-import CSV.
func (h *Handler) ExportMYOB(w http.ResponseWriter, r *http.Request) {
	in, err := h.exportInput(r)
	if err != nil {
		writeExportError(w, err)
		return
	}
	writeCSV(w, export.MYOBFilename(time.Now()), export.RenderMYOB(in))
}

// ExportXero renders the Xero sales-invoice import CSV.
func (h *Handler) ExportXero(w http.ResponseWriter, r *http.Request) {
	in, err := h.exportInput(r)
	if err != nil {
		writeExportError(w, err)
		return
	}
	writeCSV(w, export.XeroFilename(time.Now()), export.RenderXero(in))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// statusForError maps engine errors to HTTP statuses: missing resources to
// 404, lifecycle conflicts to 409, other user-actionable errors to 400,
// everything else to 500.
func statusForError(err error) int {
	switch {
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrShiftAlreadyInvoiced),
		errors.Is(err, billing.ErrAlreadyFinalized),
		errors.Is(err, billing.ErrNotDraft),
		errors.Is(err, billing.ErrInvalidTransition):
		return http.StatusConflict
	case billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
