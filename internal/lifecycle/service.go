package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/activity"
	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/journal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// Engine coordinates the five stores. It owns every cross-store invariant:
// computed totals, balanced journals, append-only reversal, and the
// paid/due recompute from payment rows.
type Engine struct {
	documents DocumentStore
	stock     StockStore
	ledger    LedgerStore
	journal   JournalStore
	payments  PaymentStore
	activity  ActivitySink
	lease     Lease
	accounts  Accounts
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine constructs the engine. Lease and activity may be nil in tests.
func NewEngine(documents DocumentStore, stockStore StockStore, ledgerStore LedgerStore,
	journalStore JournalStore, payments PaymentStore, sink ActivitySink, lease Lease,
	accounts Accounts, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		documents: documents,
		stock:     stockStore,
		ledger:    ledgerStore,
		journal:   journalStore,
		payments:  payments,
		activity:  sink,
		lease:     lease,
		accounts:  accounts,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

func (e *Engine) acquire(ctx context.Context, docID int64) (func(), error) {
	if e.lease == nil {
		return func() {}, nil
	}
	return e.lease.Acquire(ctx, docID)
}

func (e *Engine) record(ctx context.Context, log activity.Log) {
	if e.activity != nil {
		e.activity.Record(ctx, log)
	}
}

func partial(docID int64, step string, err error) error {
	return &shared.PartialFailureError{DocumentID: docID, Step: step, Err: err}
}

// refType is the reference key documents stamp on every derived record.
func refType(t document.DocType) string { return string(t) }

// ledgerDocSign gives the sign of a document's principal against the
// counterparty balance: positive means the counterparty owes the company.
// Sales raise receivables (+); purchases raise what the company owes (-).
func ledgerDocSign(t document.DocType) decimal.Decimal {
	if t == document.TypeSale {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// Create inserts the header and its items as one logical unit. If item
// insertion fails the header is deleted again; the compensating delete is not
// a transaction, but no orphan header may remain. Drafts never produce
// stock, ledger or journal rows.
func (e *Engine) Create(ctx context.Context, input CreateInput) (document.Document, error) {
	doc := document.Document{
		CompanyID:        input.CompanyID,
		BranchID:         input.BranchID,
		DocType:          document.DocType(input.DocType),
		CounterpartyID:   input.CounterpartyID,
		CounterpartyName: input.CounterpartyName,
		Date:             input.Date,
		Status:           document.StatusDraft,
		PaymentStatus:    document.PaymentUnpaid,
		DiscountAmount:   input.DiscountAmount,
		TaxAmount:        input.TaxAmount,
		ShippingAmount:   input.ShippingAmount,
		CreatedBy:        shared.ActorID(ctx),
	}
	if doc.Date.IsZero() {
		doc.Date = e.now()
	}
	for _, item := range input.Items {
		doc.Items = append(doc.Items, document.Item{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	if err := doc.Validate(); err != nil {
		return document.Document{}, err
	}
	doc.ComputeTotals()
	doc.DueAmount = doc.Total

	number, err := e.documents.GenerateNumber(ctx, doc.CompanyID, doc.DocType)
	if err != nil {
		return document.Document{}, err
	}
	doc.Number = number

	id, err := e.documents.InsertHeader(ctx, doc)
	if err != nil {
		return document.Document{}, err
	}
	doc.ID = id
	for i := range doc.Items {
		doc.Items[i].DocumentID = id
	}

	if err := e.documents.InsertItems(ctx, id, doc.Items); err != nil {
		if delErr := e.documents.DeleteHeader(ctx, id); delErr != nil {
			return document.Document{}, partial(id, StepCreateCompensate,
				fmt.Errorf("items failed (%v) and header cleanup failed: %w", err, delErr))
		}
		return document.Document{}, err
	}

	e.record(ctx, activity.Log{
		Module:      refType(doc.DocType),
		EntityID:    id,
		Action:      "created",
		NewValue:    map[string]any{"number": doc.Number, "total": doc.Total.String()},
		Amount:      &doc.Total,
		PerformedBy: doc.CreatedBy,
	})
	return doc, nil
}

// Post advances a document into its postable status and appends the derived
// records: one stock movement per item, the counterparty ledger entry, and a
// balanced journal entry. Each step is guarded so a retry after a partial
// failure does not double-apply.
func (e *Engine) Post(ctx context.Context, docID int64) (document.Document, error) {
	release, err := e.acquire(ctx, docID)
	if err != nil {
		return document.Document{}, err
	}
	defer release()

	doc, err := e.documents.GetWithItems(ctx, docID)
	if err != nil {
		return document.Document{}, err
	}
	if doc.Status == document.StatusCancelled {
		return document.Document{}, &shared.StateError{Entity: refType(doc.DocType), Status: string(doc.Status), Op: "post"}
	}
	target := document.FirstPostable(doc.DocType)
	if document.IsPostable(doc.DocType, doc.Status) {
		return doc, nil
	}
	if !document.CanTransition(doc.DocType, doc.Status, target) {
		return document.Document{}, &shared.StateError{Entity: refType(doc.DocType), Status: string(doc.Status), Op: "post"}
	}

	ref := refType(doc.DocType)

	// Step 1: stock movements, one per item. A previous partial run is
	// detected by existing rows for the reference.
	existing, err := e.stock.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return document.Document{}, partial(doc.ID, StepPostStock, err)
	}
	if len(existing) == 0 {
		qtySign := decimal.NewFromInt(1)
		movementType := stock.MovementPurchase
		if doc.DocType == document.TypeSale {
			qtySign = decimal.NewFromInt(-1)
			movementType = stock.MovementSale
		}
		for _, item := range doc.Items {
			movement := stock.Movement{
				CompanyID:     doc.CompanyID,
				BranchID:      doc.BranchID,
				ProductID:     item.ProductID,
				VariationID:   item.VariationID,
				MovementType:  movementType,
				Quantity:      item.Quantity.Mul(qtySign),
				UnitCost:      item.UnitPrice,
				TotalCost:     item.LineTotal.Mul(qtySign),
				ReferenceType: ref,
				ReferenceID:   doc.ID,
				Notes:         fmt.Sprintf("%s %s", ref, doc.Number),
			}
			if _, err := e.stock.Append(ctx, movement); err != nil {
				return document.Document{}, partial(doc.ID, StepPostStock, err)
			}
		}
	}

	// Step 2: counterparty ledger entry for the principal.
	ledgerRows, err := e.ledger.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return document.Document{}, partial(doc.ID, StepPostLedger, err)
	}
	if len(ledgerRows) == 0 {
		entry := ledger.Entry{
			CompanyID:      doc.CompanyID,
			CounterpartyID: doc.CounterpartyID,
			Source:         ledger.Source(ref),
			ReferenceType:  ref,
			ReferenceID:    doc.ID,
			ReferenceNo:    doc.Number,
			Amount:         doc.Total.Mul(ledgerDocSign(doc.DocType)),
			EntryDate:      doc.Date,
		}
		if _, err := e.ledger.Append(ctx, entry); err != nil {
			return document.Document{}, partial(doc.ID, StepPostLedger, err)
		}
	}

	// Step 3: document journal. Purchase: Dr Inventory / Cr Payable.
	// Sale: Dr Receivable / Cr Sales.
	journals, err := e.journal.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return document.Document{}, partial(doc.ID, StepPostJournal, err)
	}
	if len(journals) == 0 {
		var lines []journal.Line
		if doc.DocType == document.TypePurchase {
			lines = []journal.Line{
				{AccountID: e.accounts.Inventory, Debit: doc.Total},
				{AccountID: e.accounts.Payable, Credit: doc.Total},
			}
		} else {
			lines = []journal.Line{
				{AccountID: e.accounts.Receivable, Debit: doc.Total},
				{AccountID: e.accounts.Sales, Credit: doc.Total},
			}
		}
		if err := e.postJournal(ctx, journal.Entry{
			CompanyID:     doc.CompanyID,
			BranchID:      doc.BranchID,
			EntryDate:     doc.Date,
			Description:   fmt.Sprintf("%s %s", ref, doc.Number),
			ReferenceType: ref,
			ReferenceID:   doc.ID,
			CreatedBy:     shared.ActorID(ctx),
			Lines:         lines,
		}); err != nil {
			return document.Document{}, partial(doc.ID, StepPostJournal, err)
		}
	}

	// Step 4, last: flip status. Until here the document stays visibly draft.
	if err := e.documents.UpdateStatus(ctx, doc.ID, doc.Status, target, ""); err != nil {
		return document.Document{}, partial(doc.ID, StepPostStatus, err)
	}
	previous := doc.Status
	doc.Status = target

	e.record(ctx, activity.Log{
		Module:      ref,
		EntityID:    doc.ID,
		Action:      "posted",
		OldValue:    map[string]any{"status": string(previous)},
		NewValue:    map[string]any{"status": string(target)},
		PerformedBy: shared.ActorID(ctx),
	})
	return doc, nil
}

// postJournal is the engine's single gate to the journal store: it verifies
// balance defensively, since the store itself does not.
func (e *Engine) postJournal(ctx context.Context, entry journal.Entry) error {
	if !entry.Balanced() {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalancedJournal,
			entry.TotalDebit(), entry.TotalCredit())
	}
	_, err := e.journal.PostEntry(ctx, entry)
	return err
}

// refreshTotals recomputes the header's paid/due pair from payment rows. The
// payment table is the single source of truth; nothing else writes these
// fields.
func (e *Engine) refreshTotals(ctx context.Context, doc document.Document) (decimal.Decimal, error) {
	paid, err := e.payments.SumForReference(ctx, refType(doc.DocType), doc.ID)
	if err != nil {
		return decimal.Zero, err
	}
	due := doc.Total.Sub(paid)
	status := document.DerivePaymentStatus(paid, doc.Total)
	if err := e.documents.UpdateTotals(ctx, doc.ID, paid, due, status); err != nil {
		return decimal.Zero, err
	}
	return paid, nil
}

// paymentJournalLines builds the two balanced lines for a payment. Purchase
// payment: Dr Payable / Cr cash-bank account. Sale receipt: Dr account /
// Cr Receivable.
func (e *Engine) paymentJournalLines(t document.DocType, accountID int64, amount decimal.Decimal) []journal.Line {
	if t == document.TypePurchase {
		return []journal.Line{
			{AccountID: e.accounts.Payable, Debit: amount},
			{AccountID: accountID, Credit: amount},
		}
	}
	return []journal.Line{
		{AccountID: accountID, Debit: amount},
		{AccountID: e.accounts.Receivable, Credit: amount},
	}
}

// RecordPayment records money against a postable document: the payment row,
// its paired journal entry, the counterparty ledger entry, then the header
// recompute. Validation failures occur before any write. A journal failure
// after the payment committed is surfaced as a partial failure and the
// payment row is kept as evidence.
func (e *Engine) RecordPayment(ctx context.Context, docID int64, input RecordPaymentInput) (payment.Payment, error) {
	release, err := e.acquire(ctx, docID)
	if err != nil {
		return payment.Payment{}, err
	}
	defer release()

	doc, err := e.documents.Get(ctx, docID)
	if err != nil {
		return payment.Payment{}, err
	}
	if doc.Status == document.StatusCancelled || !document.IsPostable(doc.DocType, doc.Status) {
		return payment.Payment{}, &shared.StateError{Entity: refType(doc.DocType), Status: string(doc.Status), Op: "record payment"}
	}
	method, err := payment.ParseMethod(input.Method)
	if err != nil {
		return payment.Payment{}, err
	}
	if !input.Amount.IsPositive() {
		return payment.Payment{}, shared.NewValidationError("amount", "must be positive")
	}
	if input.Amount.GreaterThan(doc.DueAmount) {
		return payment.Payment{}, shared.NewValidationError("amount", "exceeds due amount")
	}

	payType := payment.TypeReceived
	if doc.DocType == document.TypePurchase {
		payType = payment.TypeMade
	}
	date := input.PaymentDate
	if date.IsZero() {
		date = e.now()
	}
	pay := payment.Payment{
		CompanyID:       doc.CompanyID,
		BranchID:        doc.BranchID,
		PaymentType:     payType,
		ReferenceType:   refType(doc.DocType),
		ReferenceID:     doc.ID,
		Amount:          input.Amount,
		Method:          method,
		AccountID:       input.AccountID,
		PaymentDate:     date,
		ReferenceNumber: input.ReferenceNumber,
		Notes:           input.Notes,
		CreatedBy:       shared.ActorID(ctx),
	}
	if err := pay.Validate(); err != nil {
		return payment.Payment{}, err
	}

	payID, err := e.payments.Insert(ctx, pay)
	if err != nil {
		return payment.Payment{}, err
	}
	pay.ID = payID

	entry := journal.Entry{
		CompanyID:     doc.CompanyID,
		BranchID:      doc.BranchID,
		EntryDate:     date,
		Description:   fmt.Sprintf("payment for %s %s", refType(doc.DocType), doc.Number),
		ReferenceType: refType(doc.DocType),
		ReferenceID:   doc.ID,
		PaymentID:     &payID,
		CreatedBy:     pay.CreatedBy,
		Lines:         e.paymentJournalLines(doc.DocType, input.AccountID, input.Amount),
	}
	if err := e.postJournal(ctx, entry); err != nil {
		// The money may have moved; never delete the payment row here.
		return pay, partial(doc.ID, StepPaymentJournal, fmt.Errorf("%w: payment %d: %v", ErrJournalAfterPayment, payID, err))
	}

	ledgerEntry := ledger.Entry{
		CompanyID:      doc.CompanyID,
		CounterpartyID: doc.CounterpartyID,
		Source:         ledger.SourcePayment,
		ReferenceType:  refType(doc.DocType),
		ReferenceID:    doc.ID,
		ReferenceNo:    doc.Number,
		Amount:         input.Amount.Mul(ledgerDocSign(doc.DocType)).Neg(),
		EntryDate:      date,
	}
	if _, err := e.ledger.Append(ctx, ledgerEntry); err != nil {
		return pay, partial(doc.ID, StepPaymentLedger, err)
	}

	if _, err := e.refreshTotals(ctx, doc); err != nil {
		return pay, partial(doc.ID, StepPaymentTotals, err)
	}

	e.record(ctx, activity.Log{
		Module:      refType(doc.DocType),
		EntityID:    doc.ID,
		Action:      "payment_recorded",
		NewValue:    map[string]any{"payment_id": payID, "method": string(method)},
		Amount:      &input.Amount,
		PerformedBy: pay.CreatedBy,
	})
	return pay, nil
}

// lastJournalForPayment returns the live journal entry for a payment: entries
// are append-only, so the most recent one is the only entry not yet offset.
func (e *Engine) lastJournalForPayment(ctx context.Context, paymentID int64) (*journal.Entry, error) {
	entries, err := e.journal.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

// UpdatePayment rewrites a payment's mutable fields, offsets the payment's
// live journal entry and posts a fresh one, appends the ledger delta, then
// recomputes the header.
func (e *Engine) UpdatePayment(ctx context.Context, paymentID, docID int64, input UpdatePaymentInput) (payment.Payment, error) {
	release, err := e.acquire(ctx, docID)
	if err != nil {
		return payment.Payment{}, err
	}
	defer release()

	doc, err := e.documents.Get(ctx, docID)
	if err != nil {
		return payment.Payment{}, err
	}
	if doc.Status == document.StatusCancelled {
		return payment.Payment{}, &shared.StateError{Entity: refType(doc.DocType), Status: string(doc.Status), Op: "update payment"}
	}
	pay, err := e.payments.Get(ctx, paymentID)
	if err != nil {
		return payment.Payment{}, err
	}
	if pay.ReferenceType != refType(doc.DocType) || pay.ReferenceID != doc.ID {
		return payment.Payment{}, shared.ErrNotFound
	}

	oldAmount := pay.Amount
	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return payment.Payment{}, shared.NewValidationError("amount", "must be positive")
		}
		pay.Amount = *input.Amount
	}
	if input.Method != nil {
		method, err := payment.ParseMethod(*input.Method)
		if err != nil {
			return payment.Payment{}, err
		}
		pay.Method = method
	}
	if input.AccountID != nil {
		if *input.AccountID == 0 {
			return payment.Payment{}, shared.NewValidationError("account_id", "payment account is required")
		}
		pay.AccountID = *input.AccountID
	}
	if input.PaymentDate != nil {
		pay.PaymentDate = *input.PaymentDate
	}
	if input.ReferenceNumber != nil {
		pay.ReferenceNumber = *input.ReferenceNumber
	}
	if input.Notes != nil {
		pay.Notes = *input.Notes
	}
	otherPaid := doc.PaidAmount.Sub(oldAmount)
	if otherPaid.Add(pay.Amount).GreaterThan(doc.Total) {
		return payment.Payment{}, shared.NewValidationError("amount", "exceeds due amount")
	}

	if err := e.payments.Update(ctx, pay); err != nil {
		return payment.Payment{}, err
	}

	// Offset-then-repost keeps the journal history append-only.
	live, err := e.lastJournalForPayment(ctx, paymentID)
	if err != nil {
		return pay, partial(doc.ID, StepPaymentJournal, err)
	}
	if live != nil {
		if err := e.postJournal(ctx, live.Offsetting(fmt.Sprintf("reversal: payment %d updated", paymentID))); err != nil {
			return pay, partial(doc.ID, StepPaymentJournal, err)
		}
	}
	fresh := journal.Entry{
		CompanyID:     doc.CompanyID,
		BranchID:      doc.BranchID,
		EntryDate:     pay.PaymentDate,
		Description:   fmt.Sprintf("payment for %s %s", refType(doc.DocType), doc.Number),
		ReferenceType: refType(doc.DocType),
		ReferenceID:   doc.ID,
		PaymentID:     &paymentID,
		CreatedBy:     shared.ActorID(ctx),
		Lines:         e.paymentJournalLines(doc.DocType, pay.AccountID, pay.Amount),
	}
	if err := e.postJournal(ctx, fresh); err != nil {
		return pay, partial(doc.ID, StepPaymentJournal, err)
	}

	if delta := pay.Amount.Sub(oldAmount); !delta.IsZero() {
		ledgerEntry := ledger.Entry{
			CompanyID:      doc.CompanyID,
			CounterpartyID: doc.CounterpartyID,
			Source:         ledger.SourcePayment,
			ReferenceType:  refType(doc.DocType),
			ReferenceID:    doc.ID,
			ReferenceNo:    doc.Number,
			Amount:         delta.Mul(ledgerDocSign(doc.DocType)).Neg(),
			EntryDate:      pay.PaymentDate,
			Notes:          fmt.Sprintf("payment %d adjusted", paymentID),
		}
		if _, err := e.ledger.Append(ctx, ledgerEntry); err != nil {
			return pay, partial(doc.ID, StepPaymentLedger, err)
		}
	}

	if _, err := e.refreshTotals(ctx, doc); err != nil {
		return pay, partial(doc.ID, StepPaymentTotals, err)
	}

	e.record(ctx, activity.Log{
		Module:      refType(doc.DocType),
		EntityID:    doc.ID,
		Action:      "payment_updated",
		OldValue:    map[string]any{"amount": oldAmount.String()},
		NewValue:    map[string]any{"amount": pay.Amount.String()},
		Amount:      &pay.Amount,
		PerformedBy: shared.ActorID(ctx),
	})
	return pay, nil
}

// DeletePayment removes a payment from a live document: its journal entry is
// offset (history survives), the ledger effect reversed, the row deleted,
// then the header recomputed.
func (e *Engine) DeletePayment(ctx context.Context, paymentID, docID int64) error {
	release, err := e.acquire(ctx, docID)
	if err != nil {
		return err
	}
	defer release()

	doc, err := e.documents.Get(ctx, docID)
	if err != nil {
		return err
	}
	if doc.Status == document.StatusCancelled {
		return &shared.StateError{Entity: refType(doc.DocType), Status: string(doc.Status), Op: "delete payment"}
	}
	pay, err := e.payments.Get(ctx, paymentID)
	if err != nil {
		return err
	}
	if pay.ReferenceType != refType(doc.DocType) || pay.ReferenceID != doc.ID {
		return shared.ErrNotFound
	}

	live, err := e.lastJournalForPayment(ctx, paymentID)
	if err != nil {
		return partial(doc.ID, StepPaymentJournal, err)
	}
	if live != nil {
		if err := e.postJournal(ctx, live.Offsetting(fmt.Sprintf("reversal: payment %d deleted", paymentID))); err != nil {
			return partial(doc.ID, StepPaymentJournal, err)
		}
	}

	ledgerEntry := ledger.Entry{
		CompanyID:      doc.CompanyID,
		CounterpartyID: doc.CounterpartyID,
		Source:         ledger.SourceReversal,
		ReferenceType:  refType(doc.DocType),
		ReferenceID:    doc.ID,
		ReferenceNo:    doc.Number,
		Amount:         pay.Amount.Mul(ledgerDocSign(doc.DocType)),
		EntryDate:      e.now(),
		Notes:          fmt.Sprintf("payment %d deleted", paymentID),
	}
	if _, err := e.ledger.Append(ctx, ledgerEntry); err != nil {
		return partial(doc.ID, StepPaymentLedger, err)
	}

	if err := e.payments.Delete(ctx, paymentID); err != nil {
		return partial(doc.ID, StepDeletePayments, err)
	}
	if _, err := e.refreshTotals(ctx, doc); err != nil {
		return partial(doc.ID, StepPaymentTotals, err)
	}

	e.record(ctx, activity.Log{
		Module:      refType(doc.DocType),
		EntityID:    doc.ID,
		Action:      "payment_deleted",
		OldValue:    map[string]any{"payment_id": paymentID, "amount": pay.Amount.String()},
		Amount:      &pay.Amount,
		PerformedBy: shared.ActorID(ctx),
	})
	return nil
}

// ListPayments returns all payments recorded against a document.
func (e *Engine) ListPayments(ctx context.Context, docID int64) ([]payment.Payment, error) {
	doc, err := e.documents.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	return e.payments.ListByReference(ctx, refType(doc.DocType), doc.ID)
}

// Get returns the document aggregate.
func (e *Engine) Get(ctx context.Context, docID int64) (document.Document, error) {
	return e.documents.GetWithItems(ctx, docID)
}

// List returns one page of document headers with pagination metadata.
func (e *Engine) List(ctx context.Context, filter document.ListFilter) ([]document.Document, shared.Pagination, error) {
	total, err := e.documents.Count(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	docs, err := e.documents.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return docs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}
