// Package stock is the append-only log of signed quantity and cost deltas per
// product, optional variation, and branch. Current stock is always a fold over
// the log, never a stored counter.
package stock

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// MovementType classifies an entry in the movement log. Reversal rows carry
// their own type, which doubles as the marker that a cancellation already ran.
type MovementType string

const (
	MovementPurchase          MovementType = "purchase"
	MovementSale              MovementType = "sale"
	MovementAdjustment        MovementType = "adjustment"
	MovementPurchaseCancelled MovementType = "purchase_cancelled"
	MovementSaleCancelled     MovementType = "sale_cancelled"
)

// ReversalType returns the movement type a compensating row must carry.
func ReversalType(refType string) MovementType {
	if refType == "purchase" {
		return MovementPurchaseCancelled
	}
	return MovementSaleCancelled
}

// Movement is one signed delta. Rows are never edited or deleted; effects are
// undone by appending a negated row.
type Movement struct {
	ID            int64
	CompanyID     int64
	BranchID      int64
	ProductID     int64
	VariationID   *int64
	MovementType  MovementType
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	TotalCost     decimal.Decimal
	ReferenceType string
	ReferenceID   int64
	Notes         string
	CreatedAt     time.Time
}

// Negated builds the compensating movement for m.
func (m Movement) Negated(notes string) Movement {
	return Movement{
		CompanyID:     m.CompanyID,
		BranchID:      m.BranchID,
		ProductID:     m.ProductID,
		VariationID:   m.VariationID,
		MovementType:  ReversalType(m.ReferenceType),
		Quantity:      m.Quantity.Neg(),
		UnitCost:      m.UnitCost,
		TotalCost:     m.TotalCost.Neg(),
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Notes:         notes,
	}
}

// Validate checks required fields only; appends carry no other invariants.
func (m Movement) Validate() error {
	if m.CompanyID == 0 {
		return shared.NewValidationError("company_id", "required")
	}
	if m.BranchID == 0 {
		return shared.NewValidationError("branch_id", "required")
	}
	if m.ProductID == 0 {
		return shared.NewValidationError("product_id", "required")
	}
	if m.MovementType == "" {
		return shared.NewValidationError("movement_type", "required")
	}
	if m.ReferenceType == "" || m.ReferenceID == 0 {
		return shared.NewValidationError("reference", "required")
	}
	return nil
}
