// Package store provides an in-memory implementation of the billing
// collaborator interfaces, for tests and dev mode.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carelink/ndis-billing/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	organizations map[billing.OrgID]billing.Organization
	participants  map[billing.ParticipantID]billing.Participant
	shifts        map[billing.ShiftID]billing.ShiftRecord
	rateCards     []billing.RateCard
	holidays      []billing.PublicHoliday

	invoices  map[billing.InvoiceID]*billing.Invoice
	items     map[billing.InvoiceID][]billing.InvoiceLineItem
	sequences map[billing.OrgID]int
}

func NewMemory() *Memory {
	return &Memory{
		organizations: make(map[billing.OrgID]billing.Organization),
		participants:  make(map[billing.ParticipantID]billing.Participant),
		shifts:        make(map[billing.ShiftID]billing.ShiftRecord),
		invoices:      make(map[billing.InvoiceID]*billing.Invoice),
		items:         make(map[billing.InvoiceID][]billing.InvoiceLineItem),
		sequences:     make(map[billing.OrgID]int),
	}
}

// Compile-time interface checks
var (
	_ billing.ShiftSource        = (*Memory)(nil)
	_ billing.RateSource         = (*Memory)(nil)
	_ billing.HolidaySource      = (*Memory)(nil)
	_ billing.OrganizationSource = (*Memory)(nil)
	_ billing.ParticipantSource  = (*Memory)(nil)
	_ billing.InvoiceStore       = (*Memory)(nil)
)

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) PutOrganization(org billing.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.organizations[org.ID] = org
}

func (m *Memory) PutParticipant(p billing.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[p.ID] = p
}

func (m *Memory) PutShift(s billing.ShiftRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shifts[s.ID] = s
}

func (m *Memory) PutRateCard(rc billing.RateCard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateCards = append(m.rateCards, rc)
}

func (m *Memory) PutHoliday(h billing.PublicHoliday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

// =============================================================================
// READ-SIDE SOURCES
// =============================================================================

func (m *Memory) GetOrganization(_ context.Context, id billing.OrgID) (*billing.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.organizations[id]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", id, billing.ErrOrganizationNotFound)
	}
	return &org, nil
}

func (m *Memory) GetParticipant(_ context.Context, id billing.ParticipantID) (*billing.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, billing.ErrParticipantNotFound)
	}
	return &p, nil
}

func (m *Memory) CompletedShifts(_ context.Context, participantID billing.ParticipantID, from, to billing.Date) ([]billing.ShiftRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	billed := m.billedShiftsLocked()

	var result []billing.ShiftRecord
	for _, s := range m.shifts {
		if s.ParticipantID != participantID || s.Status != billing.ShiftCompleted {
			continue
		}
		day := billing.DateOf(s.ScheduledStart)
		if day.Before(from) || day.After(to) {
			continue
		}
		if _, already := billed[s.ID]; already {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledStart.Before(result[j].ScheduledStart)
	})
	return result, nil
}

// billedShiftsLocked returns shift ids already backing a line item on a
// non-cancelled invoice.
func (m *Memory) billedShiftsLocked() map[billing.ShiftID]struct{} {
	billed := make(map[billing.ShiftID]struct{})
	for id, inv := range m.invoices {
		if inv.Status == billing.StatusCancelled {
			continue
		}
		for _, item := range m.items[id] {
			billed[item.ShiftID] = struct{}{}
		}
	}
	return billed
}

func (m *Memory) ActiveRateCards(_ context.Context, orgID billing.OrgID) ([]billing.RateCard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.RateCard
	for _, rc := range m.rateCards {
		if rc.OrgID == orgID && rc.IsActive {
			result = append(result, rc)
		}
	}
	return result, nil
}

func (m *Memory) HolidaysInRange(_ context.Context, orgID billing.OrgID, from, to billing.Date) ([]billing.PublicHoliday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.PublicHoliday
	for _, h := range m.holidays {
		if h.OrgID != orgID {
			continue
		}
		if h.Date.Before(from) || h.Date.After(to) {
			continue
		}
		result = append(result, h)
	}
	return result, nil
}

// =============================================================================
// INVOICE STORE
// =============================================================================

func (m *Memory) CreateInvoice(_ context.Context, inv *billing.Invoice, items []billing.InvoiceLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	billed := m.billedShiftsLocked()
	for _, item := range items {
		if _, already := billed[item.ShiftID]; already {
			return billing.ErrShiftAlreadyInvoiced
		}
	}

	// Number allocation is the last irreversible step: nothing above can
	// fail after this point.
	m.sequences[inv.OrgID]++
	inv.Number = fmt.Sprintf("INV-%06d", m.sequences[inv.OrgID])

	stored := *inv
	m.invoices[inv.ID] = &stored
	m.items[inv.ID] = append([]billing.InvoiceLineItem(nil), items...)
	return nil
}

func (m *Memory) GetInvoice(_ context.Context, id billing.InvoiceID) (*billing.Invoice, []billing.InvoiceLineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return nil, nil, billing.ErrInvoiceNotFound
	}
	copied := *inv
	items := append([]billing.InvoiceLineItem(nil), m.items[id]...)
	return &copied, items, nil
}

func (m *Memory) ListInvoices(_ context.Context, orgID billing.OrgID) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Invoice
	for _, inv := range m.invoices {
		if inv.OrgID == orgID {
			result = append(result, *inv)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) FinalizedBundles(_ context.Context, orgID billing.OrgID, from, to billing.Date) ([]billing.InvoiceBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.InvoiceBundle
	for id, inv := range m.invoices {
		if inv.OrgID != orgID || !inv.Status.IsFinal() || inv.Status == billing.StatusCancelled {
			continue
		}
		if inv.PeriodEnd.Before(from) || inv.PeriodStart.After(to) {
			continue
		}
		result = append(result, billing.InvoiceBundle{
			Invoice:     *inv,
			Participant: m.participants[inv.ParticipantID],
			Items:       append([]billing.InvoiceLineItem(nil), m.items[id]...),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Invoice.Number < result[j].Invoice.Number
	})
	return result, nil
}

func (m *Memory) MarkFinalized(_ context.Context, id billing.InvoiceID, by string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	return inv.Finalize(by, at)
}

func (m *Memory) MarkStatus(_ context.Context, id billing.InvoiceID, to billing.InvoiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if !billing.CanTransition(inv.Status, to) {
		return &billing.TransitionError{InvoiceID: id, From: inv.Status, To: to}
	}
	inv.Status = to
	return nil
}

func (m *Memory) DeleteDraft(_ context.Context, id billing.InvoiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if !inv.Status.IsDraft() {
		return billing.ErrNotDraft
	}
	delete(m.items, id)
	delete(m.invoices, id)
	return nil
}
