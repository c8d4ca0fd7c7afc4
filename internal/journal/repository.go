package journal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists journal entries and lines in PostgreSQL. Header and
// lines are written in separate calls; the lines loop is resumable because a
// re-post finds the header by reference and payment link.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PostEntry inserts the header then each line. Balance is the caller's
// responsibility; the store only checks required fields.
func (r *Repository) PostEntry(ctx context.Context, e Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO journal_entries
(company_id, branch_id, entry_date, description, reference_type, reference_id, payment_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
RETURNING id`,
		e.CompanyID, e.BranchID, e.EntryDate, e.Description, e.ReferenceType, e.ReferenceID,
		e.PaymentID, e.CreatedBy).Scan(&id)
	if err != nil {
		return 0, shared.WrapStore("journal_entries", "insert", err)
	}
	for _, line := range e.Lines {
		_, err := r.pool.Exec(ctx, `INSERT INTO journal_entry_lines (entry_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, id, line.AccountID, line.Debit, line.Credit)
		if err != nil {
			return id, shared.WrapStore("journal_entry_lines", "insert", err)
		}
	}
	return id, nil
}

func (r *Repository) listEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapStore("journal_entries", "select", err)
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.BranchID, &e.EntryDate, &e.Description,
			&e.ReferenceType, &e.ReferenceID, &e.PaymentID, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, shared.WrapStore("journal_entries", "scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("journal_entries", "select", err)
	}
	for i := range entries {
		lines, err := r.linesFor(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

func (r *Repository) linesFor(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, account_id, debit, credit
FROM journal_entry_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, shared.WrapStore("journal_entry_lines", "select", err)
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return nil, shared.WrapStore("journal_entry_lines", "scan", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapStore("journal_entry_lines", "select", err)
	}
	return lines, nil
}

const entryColumns = `id, company_id, branch_id, entry_date, description, reference_type, reference_id, payment_id, created_by, created_at`

// Get fetches one entry with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
	var e Entry
	err := row.Scan(&e.ID, &e.CompanyID, &e.BranchID, &e.EntryDate, &e.Description,
		&e.ReferenceType, &e.ReferenceID, &e.PaymentID, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrNotFound
		}
		return Entry{}, shared.WrapStore("journal_entries", "select", err)
	}
	e.Lines, err = r.linesFor(ctx, e.ID)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// ListByReference returns entries posted directly against a document.
func (r *Repository) ListByReference(ctx context.Context, refType string, refID int64) ([]Entry, error) {
	return r.listEntries(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE reference_type=$1 AND reference_id=$2 ORDER BY id`, refType, refID)
}

// ListByPayment returns entries linked to a payment.
func (r *Repository) ListByPayment(ctx context.Context, paymentID int64) ([]Entry, error) {
	return r.listEntries(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE payment_id=$1 ORDER BY id`, paymentID)
}

// DeleteEntry removes an entry and its lines. Draft hard delete only.
func (r *Repository) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM journal_entry_lines WHERE entry_id=$1`, id); err != nil {
		return shared.WrapStore("journal_entry_lines", "delete", err)
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, id); err != nil {
		return shared.WrapStore("journal_entries", "delete", err)
	}
	return nil
}
