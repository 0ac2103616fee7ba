/*
Package sqlite provides a SQLite-backed implementation of the billing
storage interfaces.

PURPOSE:
  Implements every collaborator interface the engine consumes (ShiftSource,
  RateSource, HolidaySource, OrganizationSource, ParticipantSource,
  InvoiceStore) using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  organizations:      Provider reference data (ABN, registration, GST mode)
  participants:       Support recipients
  shifts:             Rostered/completed shifts (read-mostly input)
  rate_cards:         One price per day type per support type
  public_holidays:    Gazetted dates, unique per (org, date)
  invoices:           Headers with lifecycle status
  invoice_line_items: Owned exclusively by one invoice
  invoice_sequences:  Per-organization sequential number counter

INVARIANTS ENFORCED HERE:
  - Invoice numbers are allocated inside the invoice-create transaction,
    after all validation, so aborted generations never burn a number.
  - A shift backs at most one line item across non-cancelled invoices; the
    create transaction checks and rejects with ErrShiftAlreadyInvoiced.
  - Finalize and delete check the current status inside the transaction, so
    racing status changes are rejected, not silently absorbed.
  - At most one active rate card per (organization, support type), via a
    partial unique index.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode. With PostgreSQL,
  database-level concurrency control takes over.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions and contracts
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/carelink/ndis-billing/billing"
)

// Store implements all billing storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time interface checks
var (
	_ billing.ShiftSource        = (*Store)(nil)
	_ billing.RateSource         = (*Store)(nil)
	_ billing.HolidaySource      = (*Store)(nil)
	_ billing.OrganizationSource = (*Store)(nil)
	_ billing.ParticipantSource  = (*Store)(nil)
	_ billing.InvoiceStore       = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: is a separate database; pin the
	// pool to one connection. SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		abn TEXT NOT NULL DEFAULT '',
		registration_number TEXT NOT NULL DEFAULT '',
		billing_mode TEXT NOT NULL DEFAULT 'gst_free',
		timezone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		ndis_number TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_org
		ON participants(org_id);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		support_type TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_start TEXT NOT NULL,
		scheduled_end TEXT NOT NULL,
		actual_start TEXT,
		actual_end TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: shift selection during invoice generation
	CREATE INDEX IF NOT EXISTS idx_shifts_participant_status_start
		ON shifts(participant_id, status, scheduled_start);

	CREATE TABLE IF NOT EXISTS rate_cards (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		support_type TEXT NOT NULL,
		support_item_code TEXT NOT NULL DEFAULT '',
		weekday_rate TEXT NOT NULL,
		saturday_rate TEXT NOT NULL,
		sunday_rate TEXT NOT NULL,
		holiday_rate TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		effective_from TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- At most one ACTIVE card per (org, support type)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rate_cards_active
		ON rate_cards(org_id, support_type) WHERE is_active;

	CREATE TABLE IF NOT EXISTS public_holidays (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_org_date
		ON public_holidays(org_id, date);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		number TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		gst TEXT NOT NULL,
		total TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		finalized_at TEXT,
		finalized_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_org_number
		ON invoices(org_id, number);
	CREATE INDEX IF NOT EXISTS idx_invoices_org_status
		ON invoices(org_id, status);

	CREATE TABLE IF NOT EXISTS invoice_line_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		shift_id TEXT NOT NULL,
		support_type TEXT NOT NULL,
		support_item_code TEXT NOT NULL DEFAULT '',
		service_date TEXT NOT NULL,
		day_type TEXT NOT NULL,
		scheduled_minutes INTEGER NOT NULL,
		actual_minutes INTEGER NOT NULL,
		billable_minutes INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		line_total TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_line_items_invoice
		ON invoice_line_items(invoice_id);
	-- Double-billing guard lookup
	CREATE INDEX IF NOT EXISTS idx_line_items_shift
		ON invoice_line_items(shift_id);

	CREATE TABLE IF NOT EXISTS invoice_sequences (
		org_id TEXT PRIMARY KEY,
		next_number INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

// SaveOrganization inserts or updates an organization.
func (s *Store) SaveOrganization(ctx context.Context, org billing.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := org.BillingMode
	if mode == "" {
		mode = billing.BillingGSTFree
	}

	query := `
		INSERT INTO organizations (id, name, abn, registration_number, billing_mode, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			abn = excluded.abn,
			registration_number = excluded.registration_number,
			billing_mode = excluded.billing_mode,
			timezone = excluded.timezone
	`
	_, err := s.db.ExecContext(ctx, query,
		org.ID, org.Name, org.ABN, org.RegistrationNumber, mode, org.Timezone,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id billing.OrgID) (*billing.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var org billing.Organization
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, abn, registration_number, billing_mode, timezone FROM organizations WHERE id = ?",
		id,
	).Scan(&org.ID, &org.Name, &org.ABN, &org.RegistrationNumber, &org.BillingMode, &org.Timezone)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization %s: %w", id, billing.ErrOrganizationNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// =============================================================================
// PARTICIPANTS
// =============================================================================

// SaveParticipant inserts or updates a participant.
func (s *Store) SaveParticipant(ctx context.Context, p billing.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO participants (id, org_id, name, ndis_number, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			ndis_number = excluded.ndis_number
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.OrgID, p.Name, p.NDISNumber,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetParticipant retrieves a participant by ID.
func (s *Store) GetParticipant(ctx context.Context, id billing.ParticipantID) (*billing.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getParticipantLocked(ctx, id)
}

func (s *Store) getParticipantLocked(ctx context.Context, id billing.ParticipantID) (*billing.Participant, error) {
	var p billing.Participant
	err := s.db.QueryRowContext(ctx,
		"SELECT id, org_id, name, ndis_number FROM participants WHERE id = ?",
		id,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.NDISNumber)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("participant %s: %w", id, billing.ErrParticipantNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListParticipants returns all participants for an organization.
func (s *Store) ListParticipants(ctx context.Context, orgID billing.OrgID) ([]billing.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, org_id, name, ndis_number FROM participants WHERE org_id = ? ORDER BY name",
		orgID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []billing.Participant
	for rows.Next() {
		var p billing.Participant
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.NDISNumber); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// =============================================================================
// SHIFTS
// =============================================================================

// SaveShift inserts or updates a shift record.
func (s *Store) SaveShift(ctx context.Context, shift billing.ShiftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO shifts
		(id, org_id, participant_id, support_type, status,
		 scheduled_start, scheduled_end, actual_start, actual_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			support_type = excluded.support_type,
			status = excluded.status,
			scheduled_start = excluded.scheduled_start,
			scheduled_end = excluded.scheduled_end,
			actual_start = excluded.actual_start,
			actual_end = excluded.actual_end
	`
	_, err := s.db.ExecContext(ctx, query,
		shift.ID, shift.OrgID, shift.ParticipantID, shift.SupportType, shift.Status,
		shift.ScheduledStart.UTC().Format(time.RFC3339),
		shift.ScheduledEnd.UTC().Format(time.RFC3339),
		nullTime(shift.ActualStart),
		nullTime(shift.ActualEnd),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// CompletedShifts returns billable shifts for a participant in the period,
// excluding shifts already billed on a non-cancelled invoice.
func (s *Store) CompletedShifts(ctx context.Context, participantID billing.ParticipantID, from, to billing.Date) ([]billing.ShiftRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT sh.id, sh.org_id, sh.participant_id, sh.support_type, sh.status,
		       sh.scheduled_start, sh.scheduled_end, sh.actual_start, sh.actual_end
		FROM shifts sh
		WHERE sh.participant_id = ?
		  AND sh.status = 'completed'
		  AND sh.scheduled_start >= ? AND sh.scheduled_start < ?
		  AND NOT EXISTS (
			SELECT 1 FROM invoice_line_items li
			JOIN invoices inv ON inv.id = li.invoice_id
			WHERE li.shift_id = sh.id AND inv.status != 'cancelled'
		  )
		ORDER BY sh.scheduled_start ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		participantID,
		from.Time().Format(time.RFC3339),
		to.AddDays(1).Time().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query shifts: %w", err)
	}
	defer rows.Close()

	var shifts []billing.ShiftRecord
	for rows.Next() {
		var (
			shift                  billing.ShiftRecord
			schedStart, schedEnd   string
			actualStart, actualEnd sql.NullString
		)
		if err := rows.Scan(
			&shift.ID, &shift.OrgID, &shift.ParticipantID, &shift.SupportType, &shift.Status,
			&schedStart, &schedEnd, &actualStart, &actualEnd,
		); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		if shift.ScheduledStart, err = time.Parse(time.RFC3339, schedStart); err != nil {
			return nil, fmt.Errorf("shift %s: bad scheduled_start %q: %w", shift.ID, schedStart, err)
		}
		if shift.ScheduledEnd, err = time.Parse(time.RFC3339, schedEnd); err != nil {
			return nil, fmt.Errorf("shift %s: bad scheduled_end %q: %w", shift.ID, schedEnd, err)
		}
		if shift.ActualStart, err = parseNullTime(actualStart); err != nil {
			return nil, fmt.Errorf("shift %s: bad actual_start: %w", shift.ID, err)
		}
		if shift.ActualEnd, err = parseNullTime(actualEnd); err != nil {
			return nil, fmt.Errorf("shift %s: bad actual_end: %w", shift.ID, err)
		}
		shifts = append(shifts, shift)
	}
	return shifts, rows.Err()
}

// =============================================================================
// RATE CARDS
// =============================================================================

// SaveRateCard inserts a rate card, deactivating any previous active card for
// the same (org, support type) first so the active-uniqueness index holds.
func (s *Store) SaveRateCard(ctx context.Context, id string, rc billing.RateCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if rc.IsActive {
		if _, err := tx.ExecContext(ctx,
			"UPDATE rate_cards SET is_active = FALSE WHERE org_id = ? AND support_type = ? AND is_active",
			rc.OrgID, rc.SupportType,
		); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_cards
		(id, org_id, support_type, support_item_code,
		 weekday_rate, saturday_rate, sunday_rate, holiday_rate,
		 is_active, effective_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, rc.OrgID, rc.SupportType, rc.SupportItemCode,
		rc.WeekdayRate.String(), rc.SaturdayRate.String(),
		rc.SundayRate.String(), rc.HolidayRate.String(),
		rc.IsActive, rc.EffectiveFrom.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveRateCards returns the organization's active rate cards.
func (s *Store) ActiveRateCards(ctx context.Context, orgID billing.OrgID) ([]billing.RateCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, support_type, support_item_code,
		       weekday_rate, saturday_rate, sunday_rate, holiday_rate,
		       is_active, effective_from
		FROM rate_cards
		WHERE org_id = ? AND is_active
		ORDER BY support_type
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []billing.RateCard
	for rows.Next() {
		var (
			rc                                 billing.RateCard
			weekday, saturday, sunday, holiday string
			effectiveFrom                      string
		)
		if err := rows.Scan(&rc.OrgID, &rc.SupportType, &rc.SupportItemCode,
			&weekday, &saturday, &sunday, &holiday,
			&rc.IsActive, &effectiveFrom); err != nil {
			return nil, err
		}
		for _, col := range []struct {
			raw string
			dst *decimal.Decimal
		}{
			{weekday, &rc.WeekdayRate},
			{saturday, &rc.SaturdayRate},
			{sunday, &rc.SundayRate},
			{holiday, &rc.HolidayRate},
		} {
			if *col.dst, err = parseDecimal(col.raw); err != nil {
				return nil, fmt.Errorf("rate card %s/%s: bad rate %q: %w", rc.OrgID, rc.SupportType, col.raw, err)
			}
		}
		if rc.EffectiveFrom, err = billing.ParseDate(effectiveFrom); err != nil {
			return nil, fmt.Errorf("rate card %s/%s: bad effective_from %q: %w", rc.OrgID, rc.SupportType, effectiveFrom, err)
		}
		cards = append(cards, rc)
	}
	return cards, rows.Err()
}

// =============================================================================
// PUBLIC HOLIDAYS
// =============================================================================

// SaveHoliday inserts a public holiday. Unique per (org, date).
func (s *Store) SaveHoliday(ctx context.Context, id string, h billing.PublicHoliday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO public_holidays (id, org_id, date, name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(org_id, date) DO UPDATE SET
			name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query,
		id, h.OrgID, h.Date.String(), h.Name,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// HolidaysInRange returns holidays for the organization within [from, to].
func (s *Store) HolidaysInRange(ctx context.Context, orgID billing.OrgID, from, to billing.Date) ([]billing.PublicHoliday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, date, name FROM public_holidays
		WHERE org_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, orgID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []billing.PublicHoliday
	for rows.Next() {
		var (
			h       billing.PublicHoliday
			dateStr string
		)
		if err := rows.Scan(&h.OrgID, &dateStr, &h.Name); err != nil {
			return nil, err
		}
		if h.Date, err = billing.ParseDate(dateStr); err != nil {
			return nil, fmt.Errorf("holiday %s: bad date %q: %w", h.Name, dateStr, err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

// CreateInvoice persists a draft header and its line items as one
// transaction. The sequential number is allocated inside the transaction,
// after the double-billing check, so aborted creates never consume numbers.
func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice, items []billing.InvoiceLineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Double-billing guard: no shift may back a second line item on a
	// non-cancelled invoice.
	for _, item := range items {
		var count int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM invoice_line_items li
			JOIN invoices inv ON inv.id = li.invoice_id
			WHERE li.shift_id = ? AND inv.status != 'cancelled'
		`, item.ShiftID).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			return billing.ErrShiftAlreadyInvoiced
		}
	}

	// Number allocation is the last step before the inserts it commits
	// with; nothing above can fail after this point.
	number, err := allocateNumber(ctx, tx, inv.OrgID)
	if err != nil {
		return err
	}
	inv.Number = number

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices
		(id, org_id, participant_id, number, period_start, period_end,
		 subtotal, gst, total, status, finalized_at, finalized_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.OrgID, inv.ParticipantID, inv.Number,
		inv.PeriodStart.String(), inv.PeriodEnd.String(),
		inv.Subtotal.String(), inv.GST.String(), inv.Total.String(),
		inv.Status, nullTime(inv.FinalizedAt), nullString(inv.FinalizedBy),
		inv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_line_items
			(id, invoice_id, shift_id, support_type, support_item_code, service_date, day_type,
			 scheduled_minutes, actual_minutes, billable_minutes, unit_price, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID, inv.ID, item.ShiftID, item.SupportType, item.SupportItemCode,
			item.ServiceDate.String(), item.DayType,
			item.ScheduledMinutes, item.ActualMinutes, item.BillableMinutes,
			item.UnitPrice.String(), item.Quantity.String(), item.LineTotal.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}

	return tx.Commit()
}

// allocateNumber increments and formats the per-organization sequence.
func allocateNumber(ctx context.Context, tx *sql.Tx, orgID billing.OrgID) (string, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO invoice_sequences (org_id, next_number) VALUES (?, 1)
		ON CONFLICT(org_id) DO UPDATE SET next_number = next_number + 1
	`, orgID)
	if err != nil {
		return "", fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	var n int64
	if err := tx.QueryRowContext(ctx,
		"SELECT next_number FROM invoice_sequences WHERE org_id = ?", orgID,
	).Scan(&n); err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%06d", n), nil
}

// GetInvoice returns the header and its line items.
func (s *Store) GetInvoice(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, []billing.InvoiceLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, err := s.getInvoiceLocked(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.queryLineItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return inv, items, nil
}

func (s *Store) getInvoiceLocked(ctx context.Context, id billing.InvoiceID) (*billing.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, participant_id, number, period_start, period_end,
		       subtotal, gst, total, status, finalized_at, finalized_by, created_at
		FROM invoices WHERE id = ?
	`, id)
	return scanInvoice(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	var (
		inv                    billing.Invoice
		periodStart, periodEnd string
		subtotal, gst, total   string
		finalizedAt            sql.NullString
		finalizedBy            sql.NullString
		createdAt              string
	)
	err := row.Scan(
		&inv.ID, &inv.OrgID, &inv.ParticipantID, &inv.Number,
		&periodStart, &periodEnd, &subtotal, &gst, &total,
		&inv.Status, &finalizedAt, &finalizedBy, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}

	if inv.PeriodStart, err = billing.ParseDate(periodStart); err != nil {
		return nil, fmt.Errorf("invoice %s: bad period_start %q: %w", inv.ID, periodStart, err)
	}
	if inv.PeriodEnd, err = billing.ParseDate(periodEnd); err != nil {
		return nil, fmt.Errorf("invoice %s: bad period_end %q: %w", inv.ID, periodEnd, err)
	}
	for _, col := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"subtotal", subtotal, &inv.Subtotal},
		{"gst", gst, &inv.GST},
		{"total", total, &inv.Total},
	} {
		if *col.dst, err = parseDecimal(col.raw); err != nil {
			return nil, fmt.Errorf("invoice %s: bad %s %q: %w", inv.ID, col.name, col.raw, err)
		}
	}
	inv.FinalizedBy = finalizedBy.String
	if finalizedAt.Valid {
		t, err := time.Parse(time.RFC3339, finalizedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: bad finalized_at %q: %w", inv.ID, finalizedAt.String, err)
		}
		inv.FinalizedAt = &t
	}
	if inv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("invoice %s: bad created_at %q: %w", inv.ID, createdAt, err)
	}
	return &inv, nil
}

func (s *Store) queryLineItems(ctx context.Context, invoiceID billing.InvoiceID) ([]billing.InvoiceLineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, shift_id, support_type, support_item_code, service_date, day_type,
		       scheduled_minutes, actual_minutes, billable_minutes, unit_price, quantity, line_total
		FROM invoice_line_items
		WHERE invoice_id = ?
		ORDER BY service_date ASC, id ASC
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []billing.InvoiceLineItem
	for rows.Next() {
		var (
			item                      billing.InvoiceLineItem
			serviceDate               string
			unitPrice, qty, lineTotal string
		)
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.ShiftID, &item.SupportType, &item.SupportItemCode,
			&serviceDate, &item.DayType,
			&item.ScheduledMinutes, &item.ActualMinutes, &item.BillableMinutes,
			&unitPrice, &qty, &lineTotal,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		if item.ServiceDate, err = billing.ParseDate(serviceDate); err != nil {
			return nil, fmt.Errorf("line item %s: bad service_date %q: %w", item.ID, serviceDate, err)
		}
		for _, col := range []struct {
			name string
			raw  string
			dst  *decimal.Decimal
		}{
			{"unit_price", unitPrice, &item.UnitPrice},
			{"quantity", qty, &item.Quantity},
			{"line_total", lineTotal, &item.LineTotal},
		} {
			if *col.dst, err = parseDecimal(col.raw); err != nil {
				return nil, fmt.Errorf("line item %s: bad %s %q: %w", item.ID, col.name, col.raw, err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListInvoices returns all invoice headers for an organization, newest first.
func (s *Store) ListInvoices(ctx context.Context, orgID billing.OrgID) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, participant_id, number, period_start, period_end,
		       subtotal, gst, total, status, finalized_at, finalized_by, created_at
		FROM invoices
		WHERE org_id = ?
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// FinalizedBundles returns finalized invoices overlapping [from, to], joined
// with participants and line items, for the export formatters.
func (s *Store) FinalizedBundles(ctx context.Context, orgID billing.OrgID, from, to billing.Date) ([]billing.InvoiceBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, participant_id, number, period_start, period_end,
		       subtotal, gst, total, status, finalized_at, finalized_by, created_at
		FROM invoices
		WHERE org_id = ?
		  AND status IN ('submitted', 'paid', 'overdue')
		  AND period_end >= ? AND period_start <= ?
		ORDER BY number ASC
	`, orgID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var bundles []billing.InvoiceBundle
	for i := range invoices {
		items, err := s.queryLineItems(ctx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
		participant, err := s.getParticipantLocked(ctx, invoices[i].ParticipantID)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, billing.InvoiceBundle{
			Invoice:     invoices[i],
			Participant: *participant,
			Items:       items,
		})
	}
	return bundles, nil
}

// MarkFinalized applies draft->submitted with the status check inside the
// statement itself: zero rows affected means the invoice either doesn't
// exist or is no longer a draft.
func (s *Store) MarkFinalized(ctx context.Context, id billing.InvoiceID, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices
		SET status = 'submitted', finalized_at = ?, finalized_by = ?
		WHERE id = ? AND status = 'draft'
	`, at.UTC().Format(time.RFC3339), by, id)
	if err != nil {
		return fmt.Errorf("failed to finalize invoice: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.getInvoiceLocked(ctx, id); err != nil {
			return err
		}
		return billing.ErrAlreadyFinalized
	}
	return nil
}

// MarkStatus applies an externally driven transition, validated against the
// state machine inside the store's transaction.
func (s *Store) MarkStatus(ctx context.Context, id billing.InvoiceID, to billing.InvoiceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current billing.InvoiceStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM invoices WHERE id = ?", id).Scan(&current)
	if err == sql.ErrNoRows {
		return billing.ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}

	if !billing.CanTransition(current, to) {
		return &billing.TransitionError{InvoiceID: id, From: current, To: to}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE invoices SET status = ? WHERE id = ?", to, id,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteDraft removes a draft invoice: line items first, then the header,
// with the status checked inside the transaction. A non-draft status is
// rejected with ErrNotDraft and nothing is removed.
func (s *Store) DeleteDraft(ctx context.Context, id billing.InvoiceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status billing.InvoiceStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM invoices WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return billing.ErrInvoiceNotFound
	}
	if err != nil {
		return err
	}
	if !status.IsDraft() {
		return billing.ErrNotDraft
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM invoice_line_items WHERE invoice_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"invoice_line_items", "invoices", "invoice_sequences",
		"shifts", "rate_cards", "public_holidays", "participants", "organizations",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}
