package export

import (
	"fmt"
	"time"

	"github.com/carelink/ndis-billing/billing"
)

// =============================================================================
// ACCOUNTING DIALECT A - MYOB-style sales import
// =============================================================================

// myobTaxCode is the fixed default revenue/tax category for NDIS supports.
const myobTaxCode = "N-T"

// myobIncomeAccount is the default sales account code.
const myobIncomeAccount = "4-1000"

var myobHeader = []string{
	"Invoice No.",
	"Date",
	"Co./Last Name",
	"Description",
	"Quantity",
	"Unit Price",
	"Amount",
	"Account No.",
	"Tax Code",
}

// MYOBFilename returns the date-stamped download name.
func MYOBFilename(asOf time.Time) string {
	return stampedFilename("myob-sales", asOf)
}

// RenderMYOB produces the MYOB sales-import CSV: one row per line item,
// fixed column order, DD/MM/YYYY dates, plain 2-decimal amount strings.
func RenderMYOB(in Input) []byte {
	var rows [][]string
	for _, bundle := range in.Invoices {
		for _, item := range bundle.Items {
			rows = append(rows, []string{
				bundle.Invoice.Number,
				localDate(item.ServiceDate),
				bundle.Participant.Name,
				lineDescription(item.SupportType, item.BillableMinutes),
				quantity(item.Quantity),
				amount(item.UnitPrice),
				amount(item.LineTotal),
				myobIncomeAccount,
				myobTaxCode,
			})
		}
	}
	return renderCSV(myobHeader, rows)
}

// =============================================================================
// ACCOUNTING DIALECT B - Xero-style sales invoice import
// =============================================================================

// xeroTaxType is Xero's label for out-of-scope supplies.
const xeroTaxType = "BAS Excluded"

// xeroAccountCode is the default revenue account.
const xeroAccountCode = "200"

var xeroHeader = []string{
	"*ContactName",
	"*InvoiceNumber",
	"*InvoiceDate",
	"*DueDate",
	"Description",
	"*Quantity",
	"*UnitAmount",
	"*AccountCode",
	"*TaxType",
}

// XeroFilename returns the date-stamped download name.
func XeroFilename(asOf time.Time) string {
	return stampedFilename("xero-sales", asOf)
}

// xeroDueDays is the payment term applied to the invoice date.
const xeroDueDays = 14

// RenderXero produces the Xero sales-invoice import CSV. Same row
// granularity as the MYOB dialect, different columns and tax code string.
func RenderXero(in Input) []byte {
	var rows [][]string
	for _, bundle := range in.Invoices {
		invoiceDate := bundle.Invoice.PeriodEnd
		dueDate := invoiceDate.AddDays(xeroDueDays)
		for _, item := range bundle.Items {
			rows = append(rows, []string{
				bundle.Participant.Name,
				bundle.Invoice.Number,
				localDate(invoiceDate),
				localDate(dueDate),
				lineDescription(item.SupportType, item.BillableMinutes),
				quantity(item.Quantity),
				amount(item.UnitPrice),
				xeroAccountCode,
				xeroTaxType,
			})
		}
	}
	return renderCSV(xeroHeader, rows)
}

// lineDescription is the human-readable service summary used by both
// accounting dialects.
func lineDescription(support billing.SupportType, minutes int) string {
	return fmt.Sprintf("%s (%d min)", support, minutes)
}
