package export

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// NDIA BULK-CLAIMS CSV - National claims portal upload
// =============================================================================

// ErrExportValidationFailed is the sentinel for fail-closed claim exports.
var ErrExportValidationFailed = errors.New("claim export validation failed")

// FieldError is one missing/invalid field found before generation.
type FieldError struct {
	InvoiceNumber string `json:"invoice_number,omitempty"` // empty for org-level fields
	Field         string `json:"field"`
	Message       string `json:"message"`
}

// ValidationErrors is the structured list returned when a claim export is
// refused. No CSV bytes are produced alongside it.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	return fmt.Sprintf("claim export validation failed: %d field error(s)", len(v))
}

func (v ValidationErrors) Unwrap() error { return ErrExportValidationFailed }

var claimsHeader = []string{
	"RegistrationNumber",
	"NDISNumber",
	"SupportsDeliveredFrom",
	"SupportsDeliveredTo",
	"SupportNumber",
	"ClaimReference",
	"Quantity",
	"Hours",
	"UnitPrice",
	"GSTCode",
	"ABN",
}

// ClaimsFilename returns the date-stamped download name.
func ClaimsFilename(asOf time.Time) string {
	return stampedFilename("ndis-bulk-claims", asOf)
}

// RenderClaims produces the bulk-claims CSV for the national portal.
//
// Validation is fail-closed: missing organization registration number or
// ABN, or a participant without an NDIS number, returns ValidationErrors and
// no bytes at all. Line items without a government support-item code are a
// different case entirely: they are not claimable, so they are silently
// excluded from the row set rather than reported as errors.
func RenderClaims(in Input) ([]byte, error) {
	var errs ValidationErrors
	if in.Organization.RegistrationNumber == "" {
		errs = append(errs, FieldError{
			Field:   "registration_number",
			Message: "organization NDIS registration number is required for claims",
		})
	}
	if in.Organization.ABN == "" {
		errs = append(errs, FieldError{
			Field:   "abn",
			Message: "organization ABN is required for claims",
		})
	}
	for _, bundle := range in.Invoices {
		if bundle.Participant.NDISNumber == "" {
			errs = append(errs, FieldError{
				InvoiceNumber: bundle.Invoice.Number,
				Field:         "ndis_number",
				Message:       fmt.Sprintf("participant %s has no NDIS number", bundle.Participant.Name),
			})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var rows [][]string
	for _, bundle := range in.Invoices {
		for _, item := range bundle.Items {
			if item.SupportItemCode == "" {
				continue // not government-claimable
			}
			rows = append(rows, []string{
				in.Organization.RegistrationNumber,
				bundle.Participant.NDISNumber,
				isoDate(item.ServiceDate),
				isoDate(item.ServiceDate),
				item.SupportItemCode,
				bundle.Invoice.Number,
				quantity(item.Quantity),
				quantity(item.Quantity),
				amount(item.UnitPrice),
				"P2", // GST-free supply under the NDIS
				in.Organization.ABN,
			})
		}
	}

	return renderCSV(claimsHeader, rows), nil
}
