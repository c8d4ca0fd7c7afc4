// Package ledger is the append-only log of signed monetary deltas per
// counterparty. A counterparty's balance is the sum of its entries.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Source classifies what produced an entry.
type Source string

const (
	SourcePurchase Source = "purchase"
	SourceSale     Source = "sale"
	SourcePayment  Source = "payment"
	SourceReversal Source = "reversal"
	SourceCredit   Source = "credit"
)

// Entry is one signed delta against a counterparty balance. Entries are never
// edited or deleted; effects are undone by appending a negated entry.
type Entry struct {
	ID             int64
	CompanyID      int64
	CounterpartyID int64
	Source         Source
	ReferenceType  string
	ReferenceID    int64
	ReferenceNo    string
	Amount         decimal.Decimal
	EntryDate      time.Time
	Notes          string
	CreatedAt      time.Time
}

// Negated builds the compensating entry for e.
func (e Entry) Negated(notes string) Entry {
	return Entry{
		CompanyID:      e.CompanyID,
		CounterpartyID: e.CounterpartyID,
		Source:         SourceReversal,
		ReferenceType:  e.ReferenceType,
		ReferenceID:    e.ReferenceID,
		ReferenceNo:    e.ReferenceNo,
		Amount:         e.Amount.Neg(),
		EntryDate:      e.EntryDate,
		Notes:          notes,
	}
}

// Validate checks required fields.
func (e Entry) Validate() error {
	if e.CompanyID == 0 {
		return shared.NewValidationError("company_id", "required")
	}
	if e.CounterpartyID == 0 {
		return shared.NewValidationError("counterparty_id", "required")
	}
	if e.Source == "" {
		return shared.NewValidationError("source", "required")
	}
	if e.ReferenceType == "" || e.ReferenceID == 0 {
		return shared.NewValidationError("reference", "required")
	}
	return nil
}
