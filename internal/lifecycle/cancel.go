package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/activity"
	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// reversalPrefix opens the description of every offsetting journal entry a
// cancellation posts.
const reversalPrefix = "reversal:"

// Cancel reverses every derived record a document produced and flips its
// status to cancelled, in that order. History is never deleted: stock and
// ledger get negated rows, journals get offsetting entries. The status flip
// comes last so a failure partway leaves the document visibly not-cancelled;
// the operation is resumed by calling Cancel again — every step is per-row
// idempotent, so a retry re-applies only the rows still missing their
// compensating counterpart.
func (e *Engine) Cancel(ctx context.Context, docID int64, reason string, refund *RefundOptions) error {
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
	if doc.Status == document.StatusCancelled {
		return &shared.StateError{Entity: ref, Status: string(doc.Status), Op: "cancel"}
	}
	if doc.Status == document.StatusDraft {
		return &shared.StateError{Entity: ref, Status: string(doc.Status), Op: "cancel (drafts are deleted, not cancelled)"}
	}
	if err := refund.Validate(); err != nil {
		return err
	}
	if doc.DocType == document.TypeSale {
		returns, err := e.documents.CountActiveReturns(ctx, doc.ID)
		if err != nil {
			return err
		}
		if returns > 0 {
			return &shared.StateError{Entity: ref, Status: string(doc.Status), Op: "cancel while non-void returns exist"}
		}
	}

	note := fmt.Sprintf("reversal of %s (cancelled)", doc.Number)

	// Step 1: negate stock movements, row by row. A resumed cancel skips only
	// the movements whose compensating row already exists.
	movements, err := e.stock.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return partial(doc.ID, StepCancelStock, err)
	}
	covered := make(map[string]int)
	for _, m := range movements {
		if isReversalMovement(m) {
			covered[movementKey(m.ProductID, m.VariationID, m.Quantity.Neg())]++
		}
	}
	for _, m := range movements {
		if isReversalMovement(m) {
			continue
		}
		key := movementKey(m.ProductID, m.VariationID, m.Quantity)
		if covered[key] > 0 {
			covered[key]--
			continue
		}
		if _, err := e.stock.Append(ctx, m.Negated(note)); err != nil {
			return partial(doc.ID, StepCancelStock, err)
		}
	}

	// Step 2: negate ledger entries, matched one-to-one against reversal rows
	// already present. Standing credits stay; reversals posted by an earlier
	// payment delete count as covering their entry.
	entries, err := e.ledger.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return partial(doc.ID, StepCancelLedger, err)
	}
	balanced := make(map[string]int)
	for _, entry := range entries {
		if entry.Source == ledger.SourceReversal {
			balanced[entry.Amount.Neg().String()]++
		}
	}
	for _, entry := range entries {
		if entry.Source == ledger.SourceReversal || entry.Source == ledger.SourceCredit {
			continue
		}
		key := entry.Amount.String()
		if balanced[key] > 0 {
			balanced[key]--
			continue
		}
		if _, err := e.ledger.Append(ctx, entry.Negated(note)); err != nil {
			return partial(doc.ID, StepCancelLedger, err)
		}
	}

	// Step 3: offset journal entries, document-linked and payment-linked.
	if err := e.offsetJournals(ctx, doc); err != nil {
		return partial(doc.ID, StepCancelJournal, err)
	}

	// Step 4: settle money already received, per the chosen refund mode.
	if refund != nil && doc.PaidAmount.IsPositive() {
		if err := e.applyRefund(ctx, doc, refund); err != nil {
			return partial(doc.ID, StepCancelRefund, err)
		}
	}

	// Last: flip status under the optimistic guard. Historical paid/due stay
	// as the audit record.
	if err := e.documents.UpdateStatus(ctx, doc.ID, doc.Status, document.StatusCancelled, reason); err != nil {
		return partial(doc.ID, StepCancelStatus, err)
	}

	e.record(ctx, activity.Log{
		Module:      ref,
		EntityID:    doc.ID,
		Action:      "cancelled",
		OldValue:    map[string]any{"status": string(doc.Status)},
		NewValue:    map[string]any{"status": string(document.StatusCancelled), "reason": reason},
		PerformedBy: shared.ActorID(ctx),
	})
	return nil
}

func isReversalMovement(m stock.Movement) bool {
	return m.MovementType == stock.MovementPurchaseCancelled || m.MovementType == stock.MovementSaleCancelled
}

// movementKey pairs a movement with its compensating row.
func movementKey(productID int64, variationID *int64, qty decimal.Decimal) string {
	variation := int64(0)
	if variationID != nil {
		variation = *variationID
	}
	return fmt.Sprintf("%d:%d:%s", productID, variation, qty.String())
}

// offsetJournals posts a mirrored entry for every journal entry the document
// or its payments produced. Each offset's description names the entry it
// voids, so a resumed cancel re-posts only the offsets still missing. The
// marker is scoped to this document's cancellation; reversal entries posted by
// payment updates or deletes are mirrored like any other entry, which keeps
// the books flat.
func (e *Engine) offsetJournals(ctx context.Context, doc document.Document) error {
	ref := refType(doc.DocType)
	entries, err := e.journal.ListByReference(ctx, ref, doc.ID)
	if err != nil {
		return err
	}
	cancelMark := fmt.Sprintf("%s %s cancelled", reversalPrefix, doc.Number)
	posted := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Description, cancelMark) {
			posted[entry.Description] = true
		}
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Description, cancelMark) {
			continue
		}
		offsetNote := fmt.Sprintf("%s (entry %d)", cancelMark, entry.ID)
		if posted[offsetNote] {
			continue
		}
		if err := e.postJournal(ctx, entry.Offsetting(offsetNote)); err != nil {
			return err
		}
	}
	return nil
}

// applyRefund settles the paid balance of a document being cancelled.
// Cash mode records the money leaving as an outbound payment row; credit mode
// writes a standing counterparty credit with no cash movement. Either branch
// first probes for its own output, so a retried cancel never settles twice.
func (e *Engine) applyRefund(ctx context.Context, doc document.Document, refund *RefundOptions) error {
	ref := refType(doc.DocType)
	switch refund.Mode {
	case RefundModeCash:
		payType := payment.TypeMade // money going back to the customer
		if doc.DocType == document.TypePurchase {
			payType = payment.TypeReceived
		}
		refundRef := fmt.Sprintf("refund %s", doc.Number)
		existing, err := e.payments.ListByReference(ctx, ref, doc.ID)
		if err != nil {
			return err
		}
		for _, p := range existing {
			if p.PaymentType == payType && p.ReferenceNumber == refundRef {
				return nil // a previous run already paid the money back
			}
		}
		method := refund.Method
		if method == "" {
			method = payment.MethodCash
		}
		refundPay := payment.Payment{
			CompanyID:       doc.CompanyID,
			BranchID:        doc.BranchID,
			PaymentType:     payType,
			ReferenceType:   ref,
			ReferenceID:     doc.ID,
			Amount:          doc.PaidAmount,
			Method:          method,
			AccountID:       refund.AccountID,
			PaymentDate:     e.now(),
			ReferenceNumber: refundRef,
			Notes:           "cancellation refund",
			CreatedBy:       shared.ActorID(ctx),
		}
		// The offsetting journal and ledger rows posted by the earlier cancel
		// steps already carry the accounting effect of returning the money;
		// the payment row records the cash actually leaving.
		if _, err := e.payments.Insert(ctx, refundPay); err != nil {
			return err
		}
		e.logger.Info("cancellation refund issued",
			slog.Int64("document_id", doc.ID),
			slog.String("amount", doc.PaidAmount.String()))
		return nil
	case RefundModeCredit:
		existing, err := e.ledger.ListByReference(ctx, ref, doc.ID)
		if err != nil {
			return err
		}
		for _, entry := range existing {
			if entry.Source == ledger.SourceCredit {
				return nil // a previous run already issued the credit
			}
		}
		entry := ledger.Entry{
			CompanyID:      doc.CompanyID,
			CounterpartyID: doc.CounterpartyID,
			Source:         ledger.SourceCredit,
			ReferenceType:  ref,
			ReferenceID:    doc.ID,
			ReferenceNo:    doc.Number,
			Amount:         doc.PaidAmount.Mul(ledgerDocSign(doc.DocType)).Neg(),
			EntryDate:      e.now(),
			Notes:          "cancellation credit",
		}
		_, err = e.ledger.Append(ctx, entry)
		return err
	default:
		return shared.NewValidationError("refund.mode", "must be refund or credit")
	}
}
