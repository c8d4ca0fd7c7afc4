package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// IntegrityReport summarises one sweep over the derived records.
type IntegrityReport struct {
	UnbalancedJournals   []int64 `json:"unbalanced_journals"`
	CancelledStockDrift  []int64 `json:"cancelled_stock_drift"`
	CancelledLedgerDrift []int64 `json:"cancelled_ledger_drift"`
	TotalsDrift          []int64 `json:"totals_drift"`
}

// Clean reports whether the sweep found nothing.
func (r IntegrityReport) Clean() bool {
	return len(r.UnbalancedJournals) == 0 &&
		len(r.CancelledStockDrift) == 0 &&
		len(r.CancelledLedgerDrift) == 0 &&
		len(r.TotalsDrift) == 0
}

// Scanner checks the invariants that hold between a document and the records
// derived from it. There are no cross-table transactions, so a crashed
// mutation can leave drift; the sweep finds it for an operator to replay.
type Scanner struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewScanner constructs Scanner.
func NewScanner(pool *pgxpool.Pool, logger *slog.Logger) *Scanner {
	return &Scanner{pool: pool, logger: logger}
}

// Run executes every check and logs each finding. The checks touch disjoint
// tables, so they run concurrently.
func (s *Scanner) Run(ctx context.Context) (IntegrityReport, error) {
	var report IntegrityReport
	g, ctx := errgroup.WithContext(ctx)

	// Every journal entry must have equal debit and credit totals.
	g.Go(func() error {
		ids, err := s.collectIDs(ctx, `
SELECT e.id
FROM journal_entries e
JOIN journal_entry_lines l ON l.entry_id = e.id
GROUP BY e.id
HAVING SUM(l.debit) <> SUM(l.credit)`)
		report.UnbalancedJournals = ids
		return err
	})

	// A cancelled document's stock movements must net to zero.
	g.Go(func() error {
		ids, err := s.collectIDs(ctx, `
SELECT d.id
FROM documents d
JOIN stock_movements m ON m.reference_type = d.doc_type AND m.reference_id = d.id
WHERE d.status = 'cancelled'
GROUP BY d.id
HAVING SUM(m.quantity) <> 0`)
		report.CancelledStockDrift = ids
		return err
	})

	// A cancelled document's ledger entries must net to zero. Standing
	// credits issued at cancellation are the deliberate exception.
	g.Go(func() error {
		ids, err := s.collectIDs(ctx, `
SELECT d.id
FROM documents d
JOIN ledger_entries e ON e.reference_type = d.doc_type AND e.reference_id = d.id
WHERE d.status = 'cancelled' AND e.source <> 'credit'
GROUP BY d.id
HAVING SUM(e.amount) <> 0`)
		report.CancelledLedgerDrift = ids
		return err
	})

	// For live documents, paid must equal the payment rows and paid plus due
	// must equal the total. Cancelled documents keep historical figures.
	g.Go(func() error {
		ids, err := s.collectIDs(ctx, `
SELECT d.id
FROM documents d
LEFT JOIN payments p ON p.reference_type = d.doc_type AND p.reference_id = d.id
WHERE d.status NOT IN ('draft', 'cancelled')
GROUP BY d.id
HAVING d.paid_amount <> COALESCE(SUM(p.amount), 0)
    OR d.paid_amount + d.due_amount <> d.total`)
		report.TotalsDrift = ids
		return err
	})

	if err := g.Wait(); err != nil {
		return report, err
	}

	if report.Clean() {
		s.logger.Info("integrity sweep clean")
	} else {
		s.logger.Warn("integrity sweep found drift",
			slog.Any("unbalanced_journals", report.UnbalancedJournals),
			slog.Any("cancelled_stock_drift", report.CancelledStockDrift),
			slog.Any("cancelled_ledger_drift", report.CancelledLedgerDrift),
			slog.Any("totals_drift", report.TotalsDrift))
	}
	return report, nil
}

func (s *Scanner) collectIDs(ctx context.Context, query string) ([]int64, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HandleIntegrityScanTask adapts the sweep to an Asynq handler.
func (s *Scanner) HandleIntegrityScanTask(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := s.Run(ctx)
	return err
}
