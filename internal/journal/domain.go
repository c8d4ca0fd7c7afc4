// Package journal stores double-entry records: an entry owning lines whose
// debits must equal credits. The store itself does not verify balance; the
// lifecycle engine checks it before posting.
package journal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Entry is a journal entry header. PaymentID links the entry produced for a
// payment so reversing the payment can find it.
type Entry struct {
	ID            int64
	CompanyID     int64
	BranchID      int64
	EntryDate     time.Time
	Description   string
	ReferenceType string
	ReferenceID   int64
	PaymentID     *int64
	CreatedBy     int64
	CreatedAt     time.Time
	Lines         []Line
}

// Line carries a debit or a credit for one account.
type Line struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// TotalDebit sums the entry's debit side.
func (e Entry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.Debit)
	}
	return total
}

// TotalCredit sums the entry's credit side.
func (e Entry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.Credit)
	}
	return total
}

// Balanced reports whether debits equal credits exactly.
func (e Entry) Balanced() bool {
	return e.TotalDebit().Equal(e.TotalCredit())
}

// Offsetting builds the mirrored entry that voids e: every line's debit and
// credit are swapped. The original is never touched.
func (e Entry) Offsetting(description string) Entry {
	offset := Entry{
		CompanyID:     e.CompanyID,
		BranchID:      e.BranchID,
		EntryDate:     e.EntryDate,
		Description:   description,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		PaymentID:     e.PaymentID,
	}
	for _, line := range e.Lines {
		offset.Lines = append(offset.Lines, Line{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return offset
}

// Validate checks required header fields and that lines exist with accounts.
func (e Entry) Validate() error {
	if e.CompanyID == 0 {
		return shared.NewValidationError("company_id", "required")
	}
	if e.ReferenceType == "" || e.ReferenceID == 0 {
		return shared.NewValidationError("reference", "required")
	}
	if len(e.Lines) == 0 {
		return shared.NewValidationError("lines", "at least one line is required")
	}
	for _, line := range e.Lines {
		if line.AccountID == 0 {
			return shared.NewValidationError("lines.account_id", "required")
		}
	}
	return nil
}
