/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Reference data:
    OrganizationDTO, ParticipantDTO, ShiftDTO, RateCardDTO, HolidayDTO
    and the matching Create*Request types

  Invoices:
    InvoiceDTO, LineItemDTO, GenerateInvoiceRequest, GenerateResultDTO,
    FinalizeRequest, FinalizeResultDTO, StatusRequest

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/carelink/ndis-billing/billing"
)

// =============================================================================
// REFERENCE DATA TYPES
// =============================================================================

// OrganizationDTO represents a provider organization in API responses.
type OrganizationDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ABN                string `json:"abn,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
	BillingMode        string `json:"billing_mode"`
	Timezone           string `json:"timezone,omitempty"`
}

// CreateOrganizationRequest is the request to register an organization.
// Timezone is an IANA name ("Australia/Sydney"); empty means UTC.
type CreateOrganizationRequest struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ABN                string `json:"abn"`
	RegistrationNumber string `json:"registration_number"`
	BillingMode        string `json:"billing_mode"`
	Timezone           string `json:"timezone"`
}

// ParticipantDTO represents a participant in API responses.
type ParticipantDTO struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	Name       string `json:"name"`
	NDISNumber string `json:"ndis_number,omitempty"`
}

// CreateParticipantRequest is the request to register a participant.
type CreateParticipantRequest struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	Name       string `json:"name"`
	NDISNumber string `json:"ndis_number"`
}

// CreateShiftRequest is the request to record a shift. Timestamps are
// RFC 3339.
type CreateShiftRequest struct {
	ID             string  `json:"id"`
	OrgID          string  `json:"org_id"`
	ParticipantID  string  `json:"participant_id"`
	SupportType    string  `json:"support_type"`
	Status         string  `json:"status"`
	ScheduledStart string  `json:"scheduled_start"`
	ScheduledEnd   string  `json:"scheduled_end"`
	ActualStart    *string `json:"actual_start,omitempty"`
	ActualEnd      *string `json:"actual_end,omitempty"`
}

// CreateRateCardRequest is the request to set an organization's rates for
// one support type. Rates are decimal strings, dates are YYYY-MM-DD.
type CreateRateCardRequest struct {
	OrgID           string `json:"org_id"`
	SupportType     string `json:"support_type"`
	SupportItemCode string `json:"support_item_code"`
	WeekdayRate     string `json:"weekday_rate"`
	SaturdayRate    string `json:"saturday_rate"`
	SundayRate      string `json:"sunday_rate"`
	HolidayRate     string `json:"holiday_rate"`
	EffectiveFrom   string `json:"effective_from"`
}

// CreateHolidayRequest registers a gazetted public holiday.
type CreateHolidayRequest struct {
	OrgID string `json:"org_id"`
	Date  string `json:"date"`
	Name  string `json:"name"`
}

// =============================================================================
// INVOICE TYPES
// =============================================================================

// GenerateInvoiceRequest drives the invoice generation pipeline for one
// participant and billing period.
type GenerateInvoiceRequest struct {
	OrgID         string `json:"org_id"`
	ParticipantID string `json:"participant_id"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
}

// LineItemDTO represents one billed shift on an invoice.
type LineItemDTO struct {
	ID               string `json:"id"`
	ShiftID          string `json:"shift_id"`
	SupportType      string `json:"support_type"`
	SupportItemCode  string `json:"support_item_code,omitempty"`
	ServiceDate      string `json:"service_date"`
	DayType          string `json:"day_type"`
	ScheduledMinutes int    `json:"scheduled_minutes"`
	ActualMinutes    int    `json:"actual_minutes"`
	BillableMinutes  int    `json:"billable_minutes"`
	UnitPrice        string `json:"unit_price"`
	Quantity         string `json:"quantity"`
	LineTotal        string `json:"line_total"`
}

// InvoiceDTO represents an invoice header in API responses. Money fields
// are 2-decimal strings, never floats.
type InvoiceDTO struct {
	ID            string        `json:"id"`
	OrgID         string        `json:"org_id"`
	ParticipantID string        `json:"participant_id"`
	Number        string        `json:"number"`
	PeriodStart   string        `json:"period_start"`
	PeriodEnd     string        `json:"period_end"`
	Subtotal      string        `json:"subtotal"`
	GST           string        `json:"gst"`
	Total         string        `json:"total"`
	Status        string        `json:"status"`
	FinalizedAt   string        `json:"finalized_at,omitempty"`
	FinalizedBy   string        `json:"finalized_by,omitempty"`
	CreatedAt     string        `json:"created_at,omitempty"`
	Items         []LineItemDTO `json:"items,omitempty"`
}

// SkippedShiftDTO reports a shift the generation pipeline excluded.
type SkippedShiftDTO struct {
	ShiftID     string `json:"shift_id"`
	SupportType string `json:"support_type"`
	Reason      string `json:"reason"`
}

// GenerateResultDTO is the response after generating a draft invoice.
type GenerateResultDTO struct {
	Invoice InvoiceDTO        `json:"invoice"`
	Skipped []SkippedShiftDTO `json:"skipped,omitempty"`
}

// FinalizeRequest names who is finalizing the invoice.
type FinalizeRequest struct {
	FinalizedBy string `json:"finalized_by"`
}

// FinalizeResultDTO is the response after finalizing. Sync failures are
// reported here, never as a finalize failure.
type FinalizeResultDTO struct {
	Invoice       InvoiceDTO `json:"invoice"`
	SyncAttempted bool       `json:"sync_attempted"`
	SyncError     string     `json:"sync_error,omitempty"`
}

// StatusRequest applies an externally driven lifecycle transition
// (paid, overdue, cancelled).
type StatusRequest struct {
	Status string `json:"status"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toInvoiceDTO(inv *billing.Invoice, items []billing.InvoiceLineItem) InvoiceDTO {
	dto := InvoiceDTO{
		ID:            string(inv.ID),
		OrgID:         string(inv.OrgID),
		ParticipantID: string(inv.ParticipantID),
		Number:        inv.Number,
		PeriodStart:   inv.PeriodStart.String(),
		PeriodEnd:     inv.PeriodEnd.String(),
		Subtotal:      inv.Subtotal.StringFixed(2),
		GST:           inv.GST.StringFixed(2),
		Total:         inv.Total.StringFixed(2),
		Status:        string(inv.Status),
		FinalizedBy:   inv.FinalizedBy,
	}
	if inv.FinalizedAt != nil {
		dto.FinalizedAt = inv.FinalizedAt.Format(time.RFC3339)
	}
	if !inv.CreatedAt.IsZero() {
		dto.CreatedAt = inv.CreatedAt.Format(time.RFC3339)
	}
	for _, item := range items {
		dto.Items = append(dto.Items, toLineItemDTO(item))
	}
	return dto
}

func toLineItemDTO(item billing.InvoiceLineItem) LineItemDTO {
	return LineItemDTO{
		ID:               item.ID,
		ShiftID:          string(item.ShiftID),
		SupportType:      string(item.SupportType),
		SupportItemCode:  item.SupportItemCode,
		ServiceDate:      item.ServiceDate.String(),
		DayType:          string(item.DayType),
		ScheduledMinutes: item.ScheduledMinutes,
		ActualMinutes:    item.ActualMinutes,
		BillableMinutes:  item.BillableMinutes,
		UnitPrice:        item.UnitPrice.StringFixed(2),
		Quantity:         item.Quantity.String(),
		LineTotal:        item.LineTotal.StringFixed(2),
	}
}

func toParticipantDTO(p billing.Participant) ParticipantDTO {
	return ParticipantDTO{
		ID:         string(p.ID),
		OrgID:      string(p.OrgID),
		Name:       p.Name,
		NDISNumber: p.NDISNumber,
	}
}
