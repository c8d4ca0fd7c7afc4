package lifecycle

import (
	"context"
	"log/slog"

	"github.com/meridian-erp/meridian-erp/internal/activity"
	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// DeleteDraft hard-deletes a draft document and every row referencing it.
// Only drafts may be deleted: posted documents are cancelled, never removed.
// The activity-log step degrades silently; every other step is critical and
// aborts the sequence with the failing step named.
func (e *Engine) DeleteDraft(ctx context.Context, docID int64) error {
	release, err := e.acquire(ctx, docID)
	if err != nil {
		return err
	}
	defer release()

	doc, err := e.documents.Get(ctx, docID)
	if err != nil {
		return err
	}
	ref := refType(doc.DocType)
	if doc.Status != document.StatusDraft {
		return &shared.StateError{Entity: ref, Status: string(doc.Status), Op: "delete"}
	}

	// Payments first, each with its journal trail.
	payments, err := e.payments.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return partial(doc.ID, StepDeletePayments, err)
	}
	for _, pay := range payments {
		entries, err := e.journal.ListByPayment(ctx, pay.ID)
		if err != nil {
			return partial(doc.ID, StepDeletePayments, err)
		}
		for _, entry := range entries {
			if err := e.journal.DeleteEntry(ctx, entry.ID); err != nil {
				return partial(doc.ID, StepDeletePayments, err)
			}
		}
		if err := e.payments.Delete(ctx, pay.ID); err != nil {
			return partial(doc.ID, StepDeletePayments, err)
		}
	}

	// Drafts are not supposed to carry stock movements; creation enforces
	// that. Any found here are stray rows from before the invariant held, so
	// they are removed loudly rather than silently reversed.
	movements, err := e.stock.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return partial(doc.ID, StepDeleteStock, err)
	}
	if len(movements) > 0 {
		e.logger.Warn("draft carried stock movements; removing",
			slog.Int64("document_id", doc.ID),
			slog.Int("count", len(movements)))
		if err := e.stock.DeleteByReference(ctx, ref, doc.ID); err != nil {
			return partial(doc.ID, StepDeleteStock, err)
		}
	}

	if err := e.ledger.DeleteByReference(ctx, ref, doc.ID); err != nil {
		return partial(doc.ID, StepDeleteLedger, err)
	}

	entries, err := e.journal.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return partial(doc.ID, StepDeleteJournal, err)
	}
	for _, entry := range entries {
		if err := e.journal.DeleteEntry(ctx, entry.ID); err != nil {
			return partial(doc.ID, StepDeleteJournal, err)
		}
	}

	// Non-critical: the audit trail. Failure is logged and swallowed.
	if e.activity != nil {
		if err := e.activity.DeleteForEntity(ctx, ref, doc.ID); err != nil {
			e.logger.Warn("activity log cleanup failed during draft delete",
				slog.Int64("document_id", doc.ID), slog.Any("error", err))
		}
	}

	if err := e.documents.DeleteItems(ctx, doc.ID); err != nil {
		return partial(doc.ID, StepDeleteItems, err)
	}
	if err := e.documents.DeleteHeader(ctx, doc.ID); err != nil {
		return partial(doc.ID, StepDeleteHeader, err)
	}

	e.record(ctx, activity.Log{
		Module:      ref,
		EntityID:    doc.ID,
		Action:      "deleted",
		OldValue:    map[string]any{"number": doc.Number, "status": string(doc.Status)},
		PerformedBy: shared.ActorID(ctx),
	})
	return nil
}
