package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"github.com/shopspring/decimal"
)

// memRepo is an in-memory Repository used by the package tests.
type memRepo struct {
	mu        sync.Mutex
	nextDoc   int64
	nextInv   int64
	docs      map[int64]models.Document
	invoices  map[int64]models.InvoiceData
	customers map[string]int64
	ledgers   map[int64]string
	stale     map[int64]string

	failRecompute error
	failInsert    error
	failDupLookup error
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:      map[int64]models.Document{},
		invoices:  map[int64]models.InvoiceData{},
		customers: map[string]int64{"user-1": 11},
		ledgers:   map[int64]string{1: "Office Supplies"},
		stale:     map[int64]string{},
	}
}

func (m *memRepo) GetDocument(_ context.Context, id int64) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, apperr.NotFound("mem.GetDocument", "document not found")
	}
	return d, nil
}

func (m *memRepo) TitleExists(_ context.Context, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.titleTaken(title, 0), nil
}

func (m *memRepo) titleTaken(title string, except int64) bool {
	for id, d := range m.docs {
		if id != except && d.Title == title {
			return true
		}
	}
	return false
}

func (m *memRepo) CreateDocumentWithInvoice(_ context.Context, doc *models.Document, inv *models.InvoiceData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.titleTaken(doc.Title, 0) {
		return apperr.Conflict("mem.CreateDocument", "title", "document title already exists")
	}
	if m.failInsert != nil {
		return m.failInsert
	}
	m.nextDoc++
	now := time.Now()
	doc.ID = m.nextDoc
	doc.CreatedAt, doc.UpdatedAt = now, now
	m.docs[doc.ID] = *doc

	id := doc.ID
	inv.DocumentID = &id
	m.insertLocked(inv)
	return nil
}

func (m *memRepo) insertLocked(inv *models.InvoiceData) {
	m.nextInv++
	inv.ID = m.nextInv
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	inv.LedgerName = models.LedgerNotSelected
	m.invoices[inv.ID] = *inv
}

func (m *memRepo) UpdateDocument(_ context.Context, id int64, in models.DocumentUpdateInput, actor string) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, apperr.NotFound("mem.UpdateDocument", "document not found")
	}
	if in.Title != nil {
		if m.titleTaken(*in.Title, id) {
			return models.Document{}, apperr.Conflict("mem.UpdateDocument", "title", "document title already exists")
		}
		d.Title = *in.Title
		d.DocumentNumber = *in.Title
	}
	if in.Description != nil {
		d.Description = in.Description
	}
	if in.DocumentType != nil {
		d.DocumentType = models.DocumentKind(*in.DocumentType)
	}
	if in.CustomerID != nil {
		d.CustomerID = *in.CustomerID
	}
	d.UpdatedBy = actor
	m.docs[id] = d
	return d, nil
}

func (m *memRepo) UpdateDocumentPaymentStatus(_ context.Context, id int64, status models.PaymentStatus, actor string) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, apperr.NotFound("mem.UpdateDocumentPaymentStatus", "document not found")
	}
	d.PaymentStatus = status
	d.UpdatedBy = actor
	m.docs[id] = d
	return d, nil
}

func (m *memRepo) DeleteDocumentIfEmpty(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return apperr.NotFound("mem.DeleteDocument", "document not found")
	}
	for _, inv := range m.invoices {
		if inv.DocumentID != nil && *inv.DocumentID == id {
			return apperr.Conflict("mem.DeleteDocument", "", "document still has invoices")
		}
	}
	delete(m.docs, id)
	return nil
}

func (m *memRepo) RecomputeAggregates(_ context.Context, id int64) (models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRecompute != nil {
		return models.Document{}, m.failRecompute
	}
	d, ok := m.docs[id]
	if !ok {
		return models.Document{}, apperr.NotFound("mem.RecomputeAggregates", "document not found")
	}
	d.GrossAmount, d.TotalAmount, d.TotalVAT = decimal.Zero, decimal.Zero, decimal.Zero
	d.NumberOfUploadedFiles = 0
	for _, inv := range m.invoices {
		if inv.DocumentID != nil && *inv.DocumentID == id {
			d.GrossAmount = d.GrossAmount.Add(inv.GrossAmount)
			d.TotalAmount = d.TotalAmount.Add(inv.TotalAmount)
			d.TotalVAT = d.TotalVAT.Add(inv.VATTotal)
			d.NumberOfUploadedFiles++
		}
	}
	m.docs[id] = d
	delete(m.stale, id)
	return d, nil
}

func (m *memRepo) MarkStale(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale[id] = reason
	return nil
}

func (m *memRepo) ListStale(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.stale {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memRepo) ListDocumentIDs(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memRepo) InsertInvoice(_ context.Context, inv *models.InvoiceData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return m.failInsert
	}
	if inv.DocumentID != nil {
		if _, ok := m.docs[*inv.DocumentID]; !ok {
			return apperr.NotFound("mem.InsertInvoice", "document not found")
		}
	}
	m.insertLocked(inv)
	return nil
}

func (m *memRepo) GetInvoice(_ context.Context, id int64) (models.InvoiceData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return models.InvoiceData{}, apperr.NotFound("mem.GetInvoice", "invoice not found")
	}
	return inv, nil
}

func (m *memRepo) ListInvoicesByDocument(_ context.Context, documentID int64) ([]models.InvoiceData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.InvoiceData{}
	for _, inv := range m.invoices {
		if inv.DocumentID != nil && *inv.DocumentID == documentID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) UpdateInvoice(_ context.Context, id int64, in models.InvoiceUpdateInput, actor string) (models.InvoiceData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return models.InvoiceData{}, apperr.NotFound("mem.UpdateInvoice", "invoice not found")
	}
	if in.InvoiceNumber != nil {
		inv.InvoiceNumber = *in.InvoiceNumber
	}
	if in.CompanyName != nil {
		inv.CompanyName = *in.CompanyName
	}
	if in.GrossAmount != nil {
		inv.GrossAmount = *in.GrossAmount
	}
	if in.VATTotal != nil {
		inv.VATTotal = *in.VATTotal
	}
	if in.TotalAmount != nil {
		inv.TotalAmount = *in.TotalAmount
	}
	inv.UpdatedBy = actor
	m.invoices[id] = inv
	return inv, nil
}

func (m *memRepo) UpdateInvoiceStatus(_ context.Context, id int64, status models.BillStatus, ledgerID *int64, actor string) (models.InvoiceData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[id]
	if !ok {
		return models.InvoiceData{}, apperr.NotFound("mem.UpdateInvoiceStatus", "invoice not found")
	}
	inv.BillStatus = status
	if ledgerID != nil {
		inv.LedgerID = ledgerID
		inv.LedgerName = m.ledgers[*ledgerID]
	}
	inv.StatusUpdatedBy = actor
	m.invoices[id] = inv
	return inv, nil
}

func (m *memRepo) DeleteInvoice(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.invoices[id]; !ok {
		return apperr.NotFound("mem.DeleteInvoice", "invoice not found")
	}
	delete(m.invoices, id)
	return nil
}

func (m *memRepo) HasDuplicate(_ context.Context, date, number, company string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDupLookup != nil {
		return false, m.failDupLookup
	}
	for _, inv := range m.invoices {
		if inv.InvoiceDate == date && inv.InvoiceNumber == number && inv.CompanyName == company {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CustomerIDForUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.customers[userID]
	if !ok {
		return 0, apperr.NotFound("mem.CustomerIDForUser", "customer not found")
	}
	return id, nil
}

func (m *memRepo) LedgerExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ledgers[id]
	return ok, nil
}

func (m *memRepo) invoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invoices)
}

func (m *memRepo) docCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

var errBoom = errors.New("boom")
