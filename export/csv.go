/*
Package export renders finalized invoices into claim and accounting CSV
dialects.

PURPOSE:
  Three independent, pure formatters over one shared input contract:
  - NDIA bulk-claims CSV for the national claims portal
  - MYOB-style sales import CSV
  - Xero-style sales invoice import CSV

  Formatting is side-effect-free: the same batch always renders the same
  bytes, and independent batches may render in parallel.

KEY CONCEPTS IN THIS FILE (csv.go):
  - One escaping primitive shared by every dialect: fields containing a
    comma, double-quote, or newline are wrapped in double quotes with
    internal quotes doubled. Parsing the output with a standard CSV reader
    reproduces the original strings exactly.
  - Output intended for spreadsheet consumption is prefixed with a UTF-8
    byte-order mark.

SEE ALSO:
  - claims.go: NDIA bulk-claims dialect (fail-closed validation)
  - accounting.go: MYOB and Xero dialects
*/
package export

import (
	"bytes"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carelink/ndis-billing/billing"
)

// MIMEType is the content type for all rendered exports.
const MIMEType = "text/csv"

// utf8BOM marks the output as UTF-8 for spreadsheet applications.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Input is the shared contract for all three formatters: one organization's
// finalized invoices, each joined with its participant and line items.
type Input struct {
	Organization billing.Organization
	Invoices     []billing.InvoiceBundle
}

// =============================================================================
// CSV PRIMITIVES - Single shared implementation across all dialects
// =============================================================================

// escapeField applies the shared quoting rule: wrap in double quotes when the
// field contains a comma, double-quote, or newline, doubling internal quotes.
func escapeField(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func writeRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(escapeField(f))
	}
	buf.WriteString("\r\n")
}

// renderCSV builds the full file: BOM, header row, data rows.
func renderCSV(header []string, rows [][]string) []byte {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	writeRow(&buf, header)
	for _, row := range rows {
		writeRow(&buf, row)
	}
	return buf.Bytes()
}

// =============================================================================
// SHARED FORMAT HELPERS
// =============================================================================

// amount renders a currency value as a plain 2-decimal string, no symbol.
func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// quantity renders decimal hours without forcing trailing zeros beyond what
// the value carries.
func quantity(d decimal.Decimal) string {
	return d.String()
}

// localDate renders DD/MM/YYYY, the accounting packages' expected format.
func localDate(d billing.Date) string {
	return d.Time().Format("02/01/2006")
}

// isoDate renders YYYY-MM-DD for the claims portal.
func isoDate(d billing.Date) string {
	return d.String()
}

// stampedFilename builds the date-stamped download name for a dialect.
func stampedFilename(prefix string, asOf time.Time) string {
	return prefix + "-" + asOf.Format("20060102") + ".csv"
}
