package stock

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists stock movements in PostgreSQL. Append-only: no update,
// and the only delete is the draft hard-delete path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one movement and returns its id.
func (r *Repository) Insert(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_movements
(company_id, branch_id, product_id, variation_id, movement_type, quantity, unit_cost, total_cost,
 reference_type, reference_id, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW())
RETURNING id`,
		m.CompanyID, m.BranchID, m.ProductID, m.VariationID, string(m.MovementType),
		m.Quantity, m.UnitCost, m.TotalCost, m.ReferenceType, m.ReferenceID, m.Notes).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore("stock_movements", "insert", err)
	}
	return id, nil
}

// ListByReference returns every movement a document produced, oldest first.
func (r *Repository) ListByReference(ctx context.Context, refType string, refID int64) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, branch_id, product_id, variation_id, movement_type,
quantity, unit_cost, total_cost, reference_type, reference_id, COALESCE(notes, ''), created_at
FROM stock_movements WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`, refType, refID)
	if err != nil {
		return nil, shared.WrapStore("stock_movements", "select", err)
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var movementType string
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.BranchID, &m.ProductID, &m.VariationID, &movementType,
			&m.Quantity, &m.UnitCost, &m.TotalCost, &m.ReferenceType, &m.ReferenceID, &m.Notes, &m.CreatedAt); err != nil {
			return nil, shared.WrapStore("stock_movements", "scan", err)
		}
		m.MovementType = MovementType(movementType)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("stock_movements", "select", err)
	}
	return movements, nil
}

// CurrentStock folds the movement log for a product at a branch.
func (r *Repository) CurrentStock(ctx context.Context, productID int64, variationID *int64, branchID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM stock_movements
WHERE product_id=$1 AND branch_id=$2 AND ($3::bigint IS NULL OR variation_id=$3)`,
		productID, branchID, variationID).Scan(&qty)
	if err != nil {
		return decimal.Zero, shared.WrapStore("stock_movements", "sum", err)
	}
	return qty, nil
}

// DeleteByReference removes all movements for a reference. Draft hard delete
// only; posted documents are reversed by appending, never by deleting.
func (r *Repository) DeleteByReference(ctx context.Context, refType string, refID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM stock_movements WHERE reference_type=$1 AND reference_id=$2`, refType, refID)
	return shared.WrapStore("stock_movements", "delete", err)
}
