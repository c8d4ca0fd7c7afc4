// Package payment records money received or paid against a document. Each
// non-zero payment pairs with exactly one journal entry, posted by the
// lifecycle engine.
package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Method is the closed payment method enumeration. Unknown values are
// rejected outright, never coerced to cash.
type Method string

const (
	MethodCash  Method = "cash"
	MethodBank  Method = "bank"
	MethodCard  Method = "card"
	MethodOther Method = "other"
)

// ParseMethod normalises case and whitespace, then requires one of the four
// enum values.
func ParseMethod(raw string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(raw))) {
	case MethodCash:
		return MethodCash, nil
	case MethodBank:
		return MethodBank, nil
	case MethodCard:
		return MethodCard, nil
	case MethodOther:
		return MethodOther, nil
	}
	return "", shared.NewValidationError("payment_method", "must be one of cash, bank, card, other")
}

// Type marks direction: received against sales, made against purchases.
type Type string

const (
	TypeReceived Type = "received"
	TypeMade     Type = "made"
)

// Payment is one settlement row against a document.
type Payment struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	BranchID        int64           `json:"branch_id"`
	PaymentType     Type            `json:"payment_type"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     int64           `json:"reference_id"`
	Amount          decimal.Decimal `json:"amount"`
	Method          Method          `json:"payment_method"`
	AccountID       int64           `json:"payment_account_id"`
	PaymentDate     time.Time       `json:"payment_date"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Validate checks required fields. The no-default-account rule lives here:
// a payment without an explicit account is rejected by construction.
func (p Payment) Validate() error {
	if p.CompanyID == 0 || p.BranchID == 0 {
		return shared.NewValidationError("company_id/branch_id", "required")
	}
	if p.ReferenceType == "" || p.ReferenceID == 0 {
		return shared.NewValidationError("reference", "required")
	}
	if !p.Amount.IsPositive() {
		return shared.NewValidationError("amount", "must be positive")
	}
	if p.AccountID == 0 {
		return shared.NewValidationError("account_id", "payment account is required")
	}
	if p.Method == "" {
		return shared.NewValidationError("payment_method", "required")
	}
	return nil
}
