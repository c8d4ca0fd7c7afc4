package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ErrStatusConflict indicates the optimistic status guard did not match: the
// document moved under us and the write was not applied.
var ErrStatusConflict = errors.New("document status changed concurrently")

// Repository persists document headers and items in PostgreSQL. Every method
// is one independent store call; there is no cross-table transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateNumber produces the next document number for a company and type.
func (r *Repository) GenerateNumber(ctx context.Context, companyID int64, t DocType) (string, error) {
	prefix := "PO"
	if t == TypeSale {
		prefix = "INV"
	}
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM documents WHERE company_id=$1 AND doc_type=$2`, companyID, string(t)).Scan(&seq)
	if err != nil {
		return "", shared.WrapStore("documents", "next number", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, seq), nil
}

// InsertHeader inserts the header row and returns its id.
func (r *Repository) InsertHeader(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO documents
(company_id, branch_id, doc_type, number, seq, counterparty_id, counterparty_name, doc_date, status, payment_status,
 subtotal, discount_amount, tax_amount, shipping_amount, total, paid_amount, due_amount, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,(SELECT COALESCE(MAX(seq),0)+1 FROM documents WHERE company_id=$1 AND doc_type=$3),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW())
RETURNING id`,
		doc.CompanyID, doc.BranchID, string(doc.DocType), doc.Number, doc.CounterpartyID, doc.CounterpartyName,
		doc.Date, string(doc.Status), string(doc.PaymentStatus),
		doc.Subtotal, doc.DiscountAmount, doc.TaxAmount, doc.ShippingAmount, doc.Total,
		doc.PaidAmount, doc.DueAmount, doc.CreatedBy).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore("documents", "insert", err)
	}
	return id, nil
}

// InsertItems inserts all line items for a header.
func (r *Repository) InsertItems(ctx context.Context, docID int64, items []Item) error {
	for _, item := range items {
		_, err := r.pool.Exec(ctx, `INSERT INTO document_items
(document_id, product_id, variation_id, product_name, quantity, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			docID, item.ProductID, item.VariationID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return shared.WrapStore("document_items", "insert", err)
		}
	}
	return nil
}

// DeleteHeader removes the header row. Used as the compensating action when
// item insertion fails, and by the draft hard-delete path.
func (r *Repository) DeleteHeader(ctx context.Context, docID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, docID)
	return shared.WrapStore("documents", "delete", err)
}

// DeleteItems removes all items of a header.
func (r *Repository) DeleteItems(ctx context.Context, docID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM document_items WHERE document_id=$1`, docID)
	return shared.WrapStore("document_items", "delete", err)
}

const headerColumns = `id, company_id, branch_id, doc_type, number, counterparty_id, counterparty_name, doc_date,
status, payment_status, subtotal, discount_amount, tax_amount, shipping_amount, total, paid_amount, due_amount,
COALESCE(cancel_reason, ''), created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (Document, error) {
	var doc Document
	var docType, status, payStatus string
	err := row.Scan(&doc.ID, &doc.CompanyID, &doc.BranchID, &docType, &doc.Number,
		&doc.CounterpartyID, &doc.CounterpartyName, &doc.Date, &status, &payStatus,
		&doc.Subtotal, &doc.DiscountAmount, &doc.TaxAmount, &doc.ShippingAmount,
		&doc.Total, &doc.PaidAmount, &doc.DueAmount, &doc.CancelReason,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, shared.ErrNotFound
		}
		return Document{}, shared.WrapStore("documents", "select", err)
	}
	doc.DocType = DocType(docType)
	doc.Status = Status(status)
	doc.PaymentStatus = PaymentStatus(payStatus)
	return doc, nil
}

// Get fetches a header by id.
func (r *Repository) Get(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+headerColumns+` FROM documents WHERE id=$1`, id)
	return scanHeader(row)
}

// GetWithItems fetches a header and its line items.
func (r *Repository) GetWithItems(ctx context.Context, id int64) (Document, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, product_id, variation_id, COALESCE(product_name, ''), quantity, unit_price, line_total
FROM document_items WHERE document_id=$1 ORDER BY id`, id)
	if err != nil {
		return Document{}, shared.WrapStore("document_items", "select", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.ProductID, &item.VariationID,
			&item.ProductName, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return Document{}, shared.WrapStore("document_items", "scan", err)
		}
		doc.Items = append(doc.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Document{}, shared.WrapStore("document_items", "select", err)
	}
	return doc, nil
}

// ListFilter narrows List results. Page and PerPage follow the conventions
// of shared.NewPagination.
type ListFilter struct {
	CompanyID int64
	BranchID  int64
	DocType   DocType
	Status    Status
	Page      int
	PerPage   int
}

// Count returns how many headers match the filter.
func (r *Repository) Count(ctx context.Context, filter ListFilter) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents
WHERE company_id=$1
  AND ($2::bigint = 0 OR branch_id=$2)
  AND ($3::text = '' OR doc_type=$3)
  AND ($4::text = '' OR status=$4)`,
		filter.CompanyID, filter.BranchID, string(filter.DocType), string(filter.Status)).Scan(&total)
	if err != nil {
		return 0, shared.WrapStore("documents", "count", err)
	}
	return total, nil
}

// List returns one page of headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+headerColumns+` FROM documents
WHERE company_id=$1
  AND ($2::bigint = 0 OR branch_id=$2)
  AND ($3::text = '' OR doc_type=$3)
  AND ($4::text = '' OR status=$4)
ORDER BY id DESC LIMIT $5 OFFSET $6`,
		filter.CompanyID, filter.BranchID, string(filter.DocType), string(filter.Status),
		page.PerPage, (page.Page-1)*page.PerPage)
	if err != nil {
		return nil, shared.WrapStore("documents", "select", err)
	}
	defer rows.Close()
	docs := []Document{}
	for rows.Next() {
		doc, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("documents", "select", err)
	}
	return docs, nil
}

// UpdateStatus flips status only when the current value still matches expected.
// Zero affected rows means the guard failed and nothing was written.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, expected, next Status, reason string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET status=$3, cancel_reason=NULLIF($4,''), updated_at=NOW()
WHERE id=$1 AND status=$2`, id, string(expected), string(next), reason)
	if err != nil {
		return shared.WrapStore("documents", "update status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpdateTotals writes the recomputed paid/due pair. Only the lifecycle
// engine's recompute calls this; nothing else writes these columns.
func (r *Repository) UpdateTotals(ctx context.Context, id int64, paid, due decimal.Decimal, status PaymentStatus) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET paid_amount=$2, due_amount=$3, payment_status=$4, updated_at=NOW()
WHERE id=$1`, id, paid, due, string(status))
	return shared.WrapStore("documents", "update totals", err)
}

// CountActiveReturns reports non-void return documents referencing a sale.
// Cancellation of a sale is refused while any exist.
func (r *Repository) CountActiveReturns(ctx context.Context, docID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_returns
WHERE document_id=$1 AND status <> 'void'`, docID).Scan(&count)
	if err != nil {
		return 0, shared.WrapStore("document_returns", "count", err)
	}
	return count, nil
}
