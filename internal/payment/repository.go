package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository is plain payment CRUD keyed by (reference_type, reference_id).
// It never touches the document header; recomputing paid/due belongs to the
// lifecycle engine alone.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert creates one payment row and returns its id.
func (r *Repository) Insert(ctx context.Context, p Payment) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO payments
(company_id, branch_id, payment_type, reference_type, reference_id, amount, payment_method,
 payment_account_id, payment_date, reference_number, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12,NOW())
RETURNING id`,
		p.CompanyID, p.BranchID, string(p.PaymentType), p.ReferenceType, p.ReferenceID,
		p.Amount, string(p.Method), p.AccountID, p.PaymentDate, p.ReferenceNumber,
		p.Notes, p.CreatedBy).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore("payments", "insert", err)
	}
	return id, nil
}

const paymentColumns = `id, company_id, branch_id, payment_type, reference_type, reference_id, amount,
payment_method, payment_account_id, payment_date, COALESCE(reference_number, ''), COALESCE(notes, ''),
created_by, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var payType, method string
	err := row.Scan(&p.ID, &p.CompanyID, &p.BranchID, &payType, &p.ReferenceType, &p.ReferenceID,
		&p.Amount, &method, &p.AccountID, &p.PaymentDate, &p.ReferenceNumber, &p.Notes,
		&p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.ErrNotFound
		}
		return Payment{}, shared.WrapStore("payments", "select", err)
	}
	p.PaymentType = Type(payType)
	p.Method = Method(method)
	return p, nil
}

// Get fetches one payment.
func (r *Repository) Get(ctx context.Context, id int64) (Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id)
	return scanPayment(row)
}

// ListByReference returns payments against a document, oldest first.
func (r *Repository) ListByReference(ctx context.Context, refType string, refID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`, refType, refID)
	if err != nil {
		return nil, shared.WrapStore("payments", "select", err)
	}
	defer rows.Close()
	payments := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("payments", "select", err)
	}
	return payments, nil
}

// SumForReference folds all payment amounts for a document. The engine's
// recompute treats this as the single source of truth for paid totals.
func (r *Repository) SumForReference(ctx context.Context, refType string, refID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM payments
WHERE reference_type=$1 AND reference_id=$2`, refType, refID).Scan(&total)
	if err != nil {
		return decimal.Zero, shared.WrapStore("payments", "sum", err)
	}
	return total, nil
}

// Update rewrites the mutable fields of one payment.
func (r *Repository) Update(ctx context.Context, p Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET amount=$2, payment_method=$3, payment_account_id=$4,
payment_date=$5, reference_number=NULLIF($6,''), notes=$7 WHERE id=$1`,
		p.ID, p.Amount, string(p.Method), p.AccountID, p.PaymentDate, p.ReferenceNumber, p.Notes)
	if err != nil {
		return shared.WrapStore("payments", "update", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes one payment row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments WHERE id=$1`, id)
	if err != nil {
		return shared.WrapStore("payments", "delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
