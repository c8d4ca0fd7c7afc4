package lifecycle

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/activity"
	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/journal"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// DocumentStore is the document table as the engine sees it.
type DocumentStore interface {
	GenerateNumber(ctx context.Context, companyID int64, t document.DocType) (string, error)
	InsertHeader(ctx context.Context, doc document.Document) (int64, error)
	InsertItems(ctx context.Context, docID int64, items []document.Item) error
	DeleteHeader(ctx context.Context, docID int64) error
	DeleteItems(ctx context.Context, docID int64) error
	Get(ctx context.Context, id int64) (document.Document, error)
	GetWithItems(ctx context.Context, id int64) (document.Document, error)
	List(ctx context.Context, filter document.ListFilter) ([]document.Document, error)
	Count(ctx context.Context, filter document.ListFilter) (int, error)
	UpdateStatus(ctx context.Context, id int64, expected, next document.Status, reason string) error
	UpdateTotals(ctx context.Context, id int64, paid, due decimal.Decimal, status document.PaymentStatus) error
	CountActiveReturns(ctx context.Context, docID int64) (int, error)
}

// StockStore is the movement log.
type StockStore interface {
	Append(ctx context.Context, m stock.Movement) (int64, error)
	ListByReference(ctx context.Context, refType string, refID int64) ([]stock.Movement, error)
	DeleteByReference(ctx context.Context, refType string, refID int64) error
}

// LedgerStore is the counterparty ledger.
type LedgerStore interface {
	Append(ctx context.Context, e ledger.Entry) (int64, error)
	ListByReference(ctx context.Context, refType string, refID int64) ([]ledger.Entry, error)
	DeleteByReference(ctx context.Context, refType string, refID int64) error
}

// JournalStore posts and looks up double-entry records. The store does not
// verify balance; the engine checks it before every post.
type JournalStore interface {
	PostEntry(ctx context.Context, e journal.Entry) (int64, error)
	ListByReference(ctx context.Context, refType string, refID int64) ([]journal.Entry, error)
	ListByPayment(ctx context.Context, paymentID int64) ([]journal.Entry, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// PaymentStore is plain payment CRUD plus the fold the recompute reads.
type PaymentStore interface {
	Insert(ctx context.Context, p payment.Payment) (int64, error)
	Get(ctx context.Context, id int64) (payment.Payment, error)
	ListByReference(ctx context.Context, refType string, refID int64) ([]payment.Payment, error)
	SumForReference(ctx context.Context, refType string, refID int64) (decimal.Decimal, error)
	Update(ctx context.Context, p payment.Payment) error
	Delete(ctx context.Context, id int64) error
}

// ActivitySink is the best-effort audit trail.
type ActivitySink interface {
	Record(ctx context.Context, log activity.Log)
	DeleteForEntity(ctx context.Context, module string, entityID int64) error
}

// Lease serialises lifecycle operations per document.
type Lease interface {
	Acquire(ctx context.Context, docID int64) (func(), error)
}
