package ledger

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append validates and inserts one entry, returning its id.
func (r *Repository) Append(ctx context.Context, e Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO ledger_entries
(company_id, counterparty_id, source, reference_type, reference_id, reference_no, amount, entry_date, notes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
RETURNING id`,
		e.CompanyID, e.CounterpartyID, string(e.Source), e.ReferenceType, e.ReferenceID,
		e.ReferenceNo, e.Amount, e.EntryDate, e.Notes).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore("ledger_entries", "insert", err)
	}
	return id, nil
}

// Balance folds all entries for a counterparty.
func (r *Repository) Balance(ctx context.Context, counterpartyID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE counterparty_id=$1`,
		counterpartyID).Scan(&balance)
	if err != nil {
		return decimal.Zero, shared.WrapStore("ledger_entries", "sum", err)
	}
	return balance, nil
}

// ListByReference returns every entry a document produced, oldest first.
func (r *Repository) ListByReference(ctx context.Context, refType string, refID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, counterparty_id, source, reference_type, reference_id,
COALESCE(reference_no, ''), amount, entry_date, COALESCE(notes, ''), created_at
FROM ledger_entries WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`, refType, refID)
	if err != nil {
		return nil, shared.WrapStore("ledger_entries", "select", err)
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var source string
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.CounterpartyID, &source, &e.ReferenceType, &e.ReferenceID,
			&e.ReferenceNo, &e.Amount, &e.EntryDate, &e.Notes, &e.CreatedAt); err != nil {
			return nil, shared.WrapStore("ledger_entries", "scan", err)
		}
		e.Source = Source(source)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("ledger_entries", "select", err)
	}
	return entries, nil
}

// DeleteByReference removes entries for a draft hard delete.
func (r *Repository) DeleteByReference(ctx context.Context, refType string, refID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM ledger_entries WHERE reference_type=$1 AND reference_id=$2`, refType, refID)
	return shared.WrapStore("ledger_entries", "delete", err)
}
