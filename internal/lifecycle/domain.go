// Package lifecycle orchestrates document creation, posting, payment and
// reversal across the document, stock, ledger, journal and payment stores.
// The backing store offers no cross-table transaction, so every composite
// mutation here is an ordered sequence of independently retryable steps; a
// failure partway is reported with the exact step to resume from.
package lifecycle

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Step names carried by PartialFailureError. Operators resume a failed
// operation from the named step.
const (
	StepCreateItems      = "create.items"
	StepCreateCompensate = "create.compensate_header"
	StepPostStock        = "post.stock"
	StepPostLedger       = "post.ledger"
	StepPostJournal      = "post.journal"
	StepPostStatus       = "post.status"
	StepPaymentJournal   = "payment.journal"
	StepPaymentLedger    = "payment.ledger"
	StepPaymentTotals    = "payment.totals"
	StepCancelStock      = "cancel.stock"
	StepCancelLedger     = "cancel.ledger"
	StepCancelJournal    = "cancel.journal"
	StepCancelRefund     = "cancel.refund"
	StepCancelStatus     = "cancel.status"
	StepDeletePayments   = "delete.payments"
	StepDeleteStock      = "delete.stock"
	StepDeleteLedger     = "delete.ledger"
	StepDeleteJournal    = "delete.journal"
	StepDeleteItems      = "delete.items"
	StepDeleteHeader     = "delete.header"
)

// ErrJournalAfterPayment marks the specific partial failure where the payment
// row committed but its journal entry did not. The payment is kept: deleting
// it could hide money that actually moved. Manual reconciliation resumes from
// the journal step.
var ErrJournalAfterPayment = errors.New("payment recorded but journal posting failed")

// ErrUnbalancedJournal is the engine's defensive check before any journal
// post; the journal store itself does not verify balance.
var ErrUnbalancedJournal = errors.New("journal lines do not balance")

// Accounts names the ledger accounts the engine posts against.
type Accounts struct {
	Payable    int64
	Receivable int64
	Inventory  int64
	Sales      int64
}

// Valid reports whether every account is configured.
func (a Accounts) Valid() bool {
	return a.Payable != 0 && a.Receivable != 0 && a.Inventory != 0 && a.Sales != 0
}

// RefundMode selects what happens to money already received when a document
// is cancelled.
type RefundMode string

const (
	// RefundModeCash pays the balance back with an outbound payment row;
	// the cancel reversals carry the accounting effect.
	RefundModeCash RefundMode = "refund"
	// RefundModeCredit converts the balance into a standing counterparty
	// credit with no cash movement.
	RefundModeCredit RefundMode = "credit"
)

// RefundOptions accompanies Cancel when payments exist.
type RefundOptions struct {
	Mode      RefundMode
	AccountID int64 // cash/bank account for RefundModeCash
	Method    payment.Method
}

// Validate rejects malformed refund options. Cancel calls it before touching
// any record, so a bad refund request leaves nothing to resume.
func (o *RefundOptions) Validate() error {
	if o == nil {
		return nil
	}
	switch o.Mode {
	case RefundModeCash:
		if o.AccountID == 0 {
			return shared.NewValidationError("refund.account_id", "refund account is required")
		}
	case RefundModeCredit:
	default:
		return shared.NewValidationError("refund.mode", "must be refund or credit")
	}
	return nil
}

// CreateItemInput is one line of a new document.
type CreateItemInput struct {
	ProductID   int64           `json:"product_id" validate:"required"`
	VariationID *int64          `json:"variation_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// CreateInput is the new-document request.
type CreateInput struct {
	CompanyID        int64             `json:"company_id" validate:"required"`
	BranchID         int64             `json:"branch_id" validate:"required"`
	DocType          string            `json:"doc_type" validate:"required,oneof=purchase sale"`
	CounterpartyID   int64             `json:"counterparty_id" validate:"required"`
	CounterpartyName string            `json:"counterparty_name"`
	Date             time.Time         `json:"date"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	TaxAmount        decimal.Decimal   `json:"tax_amount"`
	ShippingAmount   decimal.Decimal   `json:"shipping_amount"`
	Items            []CreateItemInput `json:"items" validate:"required,min=1,dive"`
}

// RecordPaymentInput is the payment request against a postable document.
type RecordPaymentInput struct {
	Amount          decimal.Decimal `json:"amount" validate:"required"`
	Method          string          `json:"method" validate:"required"`
	AccountID       int64           `json:"account_id" validate:"required"`
	PaymentDate     time.Time       `json:"payment_date"`
	ReferenceNumber string          `json:"reference_number"`
	Notes           string          `json:"notes"`
}

// UpdatePaymentInput carries the mutable payment fields; nil means unchanged.
type UpdatePaymentInput struct {
	Amount          *decimal.Decimal `json:"amount"`
	Method          *string          `json:"method"`
	AccountID       *int64           `json:"account_id"`
	PaymentDate     *time.Time       `json:"payment_date"`
	ReferenceNumber *string          `json:"reference_number"`
	Notes           *string          `json:"notes"`
}
