// Package document models purchase and sale documents: the header plus line
// items whose status gates every derived financial record.
package document

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DocType distinguishes the two document families.
type DocType string

const (
	TypePurchase DocType = "purchase"
	TypeSale     DocType = "sale"
)

// Status enumerates document lifecycle states. Purchases advance
// draft -> ordered -> received -> final; sales advance
// draft -> quotation -> order -> final. Cancelled is terminal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusOrdered   Status = "ordered"
	StatusQuotation Status = "quotation"
	StatusOrder     Status = "order"
	StatusReceived  Status = "received"
	StatusFinal     Status = "final"
	StatusCancelled Status = "cancelled"
)

// forward transition table, per document type. Status only moves forward.
var transitions = map[DocType]map[Status][]Status{
	TypePurchase: {
		StatusDraft:    {StatusOrdered, StatusReceived},
		StatusOrdered:  {StatusReceived},
		StatusReceived: {StatusFinal},
	},
	TypeSale: {
		StatusDraft:     {StatusQuotation, StatusOrder},
		StatusQuotation: {StatusOrder},
		StatusOrder:     {StatusFinal},
	},
}

// postable is the single canonical set of statuses in which payments may be
// recorded. Call sites must consume this table, never re-declare it.
var postable = map[DocType]map[Status]bool{
	TypePurchase: {StatusReceived: true, StatusFinal: true},
	TypeSale:     {StatusOrder: true, StatusFinal: true},
}

// CanTransition reports whether status may advance from one value to another.
func CanTransition(t DocType, from, to Status) bool {
	for _, next := range transitions[t][from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsPostable reports whether a document in the given status accepts payments.
func IsPostable(t DocType, s Status) bool {
	return postable[t][s]
}

// FirstPostable returns the status a draft advances to when posted.
func FirstPostable(t DocType) Status {
	if t == TypePurchase {
		return StatusReceived
	}
	return StatusOrder
}

// PaymentStatus summarises how much of the total has been settled.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// DerivePaymentStatus classifies a paid amount against the total.
func DerivePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.IsZero():
		return PaymentUnpaid
	case paid.GreaterThanOrEqual(total):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// Document is the purchase/sale aggregate header.
type Document struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	BranchID         int64           `json:"branch_id"`
	DocType          DocType         `json:"doc_type"`
	Number           string          `json:"number"`
	CounterpartyID   int64           `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	Date             time.Time       `json:"date"`
	Status           Status          `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	ShippingAmount   decimal.Decimal `json:"shipping_amount"`
	Total            decimal.Decimal `json:"total"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	DueAmount        decimal.Decimal `json:"due_amount"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	CreatedBy        int64           `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Items            []Item          `json:"items,omitempty"`
}

// Item is a document line, exclusively owned by its header.
type Item struct {
	ID          int64           `json:"id"`
	DocumentID  int64           `json:"document_id"`
	ProductID   int64           `json:"product_id"`
	VariationID *int64          `json:"variation_id,omitempty"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// ComputeTotals fills subtotal and total from the line items and the header's
// discount, tax and shipping amounts: total = subtotal - discount + tax + shipping.
func (d *Document) ComputeTotals() {
	subtotal := decimal.Zero
	for i := range d.Items {
		item := &d.Items[i]
		item.LineTotal = item.Quantity.Mul(item.UnitPrice)
		subtotal = subtotal.Add(item.LineTotal)
	}
	d.Subtotal = subtotal
	d.Total = subtotal.Sub(d.DiscountAmount).Add(d.TaxAmount).Add(d.ShippingAmount)
	d.DueAmount = d.Total.Sub(d.PaidAmount)
}

// Validate checks the fields a header must carry before insertion.
func (d *Document) Validate() error {
	if d.CompanyID == 0 {
		return shared.NewValidationError("company_id", "required")
	}
	if d.BranchID == 0 {
		return shared.NewValidationError("branch_id", "required")
	}
	if d.DocType != TypePurchase && d.DocType != TypeSale {
		return shared.NewValidationError("doc_type", "must be purchase or sale")
	}
	if d.CounterpartyID == 0 {
		return shared.NewValidationError("counterparty_id", "required")
	}
	if len(d.Items) == 0 {
		return shared.NewValidationError("items", "at least one item is required")
	}
	for i := range d.Items {
		if d.Items[i].ProductID == 0 {
			return shared.NewValidationError("items.product_id", "required")
		}
		if !d.Items[i].Quantity.IsPositive() {
			return shared.NewValidationError("items.quantity", "must be positive")
		}
	}
	return nil
}
