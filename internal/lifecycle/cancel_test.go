package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/document"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/payment"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

func TestCancelReversesEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())

	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("100"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "customer walked away", nil))

	current, _ := env.docs.Get(ctx, doc.ID)
	require.Equal(t, document.StatusCancelled, current.Status)
	require.Equal(t, "customer walked away", current.CancelReason)

	// Stock nets to zero; the original rows are untouched.
	require.True(t, env.stock.netQuantity("sale", doc.ID).IsZero())
	require.Len(t, env.stock.rows, 2)
	require.Equal(t, stock.MovementSaleCancelled, env.stock.rows[1].MovementType)

	// Ledger nets to zero.
	require.True(t, env.ledger.netAmount("sale", doc.ID).IsZero())

	// Every journal entry has a balanced offset; the total books are flat.
	journals, _ := env.journal.ListByReference(ctx, "sale", doc.ID)
	require.Len(t, journals, 4, "document entry, payment entry, two offsets")
	net := decimal.Zero
	for _, e := range journals {
		require.True(t, e.Balanced())
		net = net.Add(e.TotalDebit()).Sub(e.TotalCredit())
	}
	require.True(t, net.IsZero())

	// Historical paid/due survive as the audit record.
	require.True(t, current.PaidAmount.Equal(dec("100")))
}

func TestCancelTwiceFailsWithoutNewWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())

	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "first", nil))
	stockRows := len(env.stock.rows)
	ledgerRows := len(env.ledger.rows)
	journalRows := len(env.journal.entries)

	err := env.engine.Cancel(ctx, doc.ID, "second", nil)
	require.True(t, shared.IsState(err))
	require.Len(t, env.stock.rows, stockRows)
	require.Len(t, env.ledger.rows, ledgerRows)
	require.Len(t, env.journal.entries, journalRows)
}

func TestCancelDraftRejected(t *testing.T) {
	env := newTestEnv(t)
	doc, err := env.engine.Create(context.Background(), saleInput())
	require.NoError(t, err)

	err = env.engine.Cancel(context.Background(), doc.ID, "nope", nil)
	require.True(t, shared.IsState(err), "drafts are deleted, not cancelled")
}

func TestCancelBlockedByActiveReturns(t *testing.T) {
	env := newTestEnv(t)
	doc := env.createAndPost(t, saleInput())
	env.docs.returns[doc.ID] = 1

	err := env.engine.Cancel(context.Background(), doc.ID, "too late", nil)
	require.True(t, shared.IsState(err))
}

func TestCancelResumesAfterPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())

	env.ledger.fail["append"] = errors.New("ledger down")
	err := env.engine.Cancel(ctx, doc.ID, "supplier folded", nil)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepCancelLedger, pf.Step)

	// Not cancelled yet: the status flip is the final step.
	current, _ := env.docs.Get(ctx, doc.ID)
	require.Equal(t, document.StatusOrder, current.Status)
	require.True(t, env.stock.netQuantity("sale", doc.ID).IsZero(), "stock step already applied")

	env.ledger.fail = map[string]error{}
	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "supplier folded", nil))
	current, _ = env.docs.Get(ctx, doc.ID)
	require.Equal(t, document.StatusCancelled, current.Status)

	// The retry must not double the stock reversal.
	require.Len(t, env.stock.rows, 2)
	require.True(t, env.ledger.netAmount("sale", doc.ID).IsZero())
}

func TestCancelWithCashRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())

	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("100"), Method: "card", AccountID: 301,
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "returned goods", &RefundOptions{
		Mode: RefundModeCash, AccountID: 301,
	}))

	// The reversals flatten the ledger; the outbound payment row records
	// the cash leaving.
	require.True(t, env.ledger.netAmount("sale", doc.ID).IsZero())
	var refund *payment.Payment
	for id := range env.payments.rows {
		p := env.payments.rows[id]
		if p.PaymentType == payment.TypeMade {
			refund = &p
		}
	}
	require.NotNil(t, refund, "refund payment row recorded")
	require.True(t, refund.Amount.Equal(dec("100")))
	require.True(t, strings.Contains(refund.ReferenceNumber, doc.Number))
}

func TestCancelWithCreditNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())

	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("100"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "goods unavailable", &RefundOptions{
		Mode: RefundModeCredit,
	}))

	// Outside the standing credit, the document's entries net to zero.
	require.True(t, env.ledger.netAmount("sale", doc.ID, ledger.SourceCredit).IsZero())

	var credit *ledger.Entry
	for i := range env.ledger.rows {
		if env.ledger.rows[i].Source == ledger.SourceCredit {
			credit = &env.ledger.rows[i]
		}
	}
	require.NotNil(t, credit)
	require.True(t, credit.Amount.Equal(dec("-100")), "company owes the customer")

	// No cash moved.
	payments, _ := env.payments.ListByReference(ctx, "sale", doc.ID)
	require.Len(t, payments, 1, "only the original receipt")
}

func TestCancelRefundValidatedBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())
	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("50"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)
	stockRows := len(env.stock.rows)
	ledgerRows := len(env.ledger.rows)
	journalRows := len(env.journal.entries)

	err = env.engine.Cancel(ctx, doc.ID, "oops", &RefundOptions{Mode: RefundModeCash})
	require.True(t, shared.IsValidation(err), "missing refund account")

	err = env.engine.Cancel(ctx, doc.ID, "oops", &RefundOptions{Mode: "wire", AccountID: 301})
	require.True(t, shared.IsValidation(err), "unknown refund mode")

	// The bad request was rejected before the first step ran.
	require.Len(t, env.stock.rows, stockRows)
	require.Len(t, env.ledger.rows, ledgerRows)
	require.Len(t, env.journal.entries, journalRows)
	current, _ := env.docs.Get(ctx, doc.ID)
	require.Equal(t, document.StatusOrder, current.Status)
}

func TestCancelAfterPaymentUpdateOffsetsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())

	pay, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("40"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)
	newAmount := dec("60")
	_, err = env.engine.UpdatePayment(ctx, pay.ID, doc.ID, UpdatePaymentInput{Amount: &newAmount})
	require.NoError(t, err)

	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "customer backed out", nil))

	// Going in: document entry, payment entry, its update offset, the fresh
	// entry. The cancel mirrors all four.
	journals, _ := env.journal.ListByReference(ctx, "sale", doc.ID)
	require.Len(t, journals, 8)

	// Every account nets to zero once the offsets land.
	byAccount := make(map[int64]decimal.Decimal)
	for _, e := range journals {
		for _, line := range e.Lines {
			byAccount[line.AccountID] = byAccount[line.AccountID].Add(line.Debit).Sub(line.Credit)
		}
	}
	for account, balance := range byAccount {
		require.True(t, balance.IsZero(), "account %d nets to %s", account, balance)
	}

	current, _ := env.docs.Get(ctx, doc.ID)
	require.Equal(t, document.StatusCancelled, current.Status)
}

func TestCancelRetryCompletesStockReversals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, purchaseInput()) // two items, two movements

	env.stock.fail["append"] = errors.New("stock down")
	env.stock.appendsLeft = 1
	err := env.engine.Cancel(ctx, doc.ID, "short shipped", nil)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepCancelStock, pf.Step)
	require.Len(t, env.stock.rows, 3, "one of two reversals landed")

	env.stock.fail = map[string]error{}
	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "short shipped", nil))
	require.Len(t, env.stock.rows, 4, "retry appends only the missing reversal")
	require.True(t, env.stock.netQuantity("purchase", doc.ID).IsZero())
}

func TestCancelRetryCompletesLedgerReversals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())
	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("40"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)

	env.ledger.fail["append"] = errors.New("ledger down")
	env.ledger.appendsLeft = 1
	err = env.engine.Cancel(ctx, doc.ID, "mistake", nil)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepCancelLedger, pf.Step)
	require.Len(t, env.ledger.rows, 3, "one of two reversals landed")

	env.ledger.fail = map[string]error{}
	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "mistake", nil))
	require.Len(t, env.ledger.rows, 4, "retry appends only the missing reversal")
	require.True(t, env.ledger.netAmount("sale", doc.ID).IsZero())
}

func TestCancelRetryCompletesJournalOffsets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())
	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("40"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)

	env.journal.fail["post"] = errors.New("journal down")
	env.journal.postsLeft = 1
	err = env.engine.Cancel(ctx, doc.ID, "mistake", nil)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepCancelJournal, pf.Step)

	env.journal.fail = map[string]error{}
	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "mistake", nil))

	// Each of the two live entries got exactly one offset.
	journals, _ := env.journal.ListByReference(ctx, "sale", doc.ID)
	require.Len(t, journals, 4)
	offsets := 0
	for _, e := range journals {
		if strings.HasPrefix(e.Description, "reversal: "+doc.Number+" cancelled") {
			offsets++
		}
	}
	require.Equal(t, 2, offsets)
}

func TestCancelAfterPaymentDeleteKeepsLedgerFlat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())
	pay, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("40"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)
	require.NoError(t, env.engine.DeletePayment(ctx, pay.ID, doc.ID))

	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "never happened", nil))

	// The payment delete's reversal already covered the payment entry; the
	// cancel adds only the principal's reversal.
	require.Len(t, env.ledger.rows, 4)
	require.True(t, env.ledger.netAmount("sale", doc.ID).IsZero())
}

func TestCancelRetryDoesNotRefundTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())
	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("100"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)

	env.docs.fail["update_status"] = errors.New("documents down")
	opts := &RefundOptions{Mode: RefundModeCash, AccountID: 301}
	err = env.engine.Cancel(ctx, doc.ID, "fraud", opts)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepCancelStatus, pf.Step)

	delete(env.docs.fail, "update_status")
	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "fraud", opts))

	refunds := 0
	for _, p := range env.payments.rows {
		if p.PaymentType == payment.TypeMade {
			refunds++
		}
	}
	require.Equal(t, 1, refunds, "retry must not pay the money back again")
}

func TestCancelRetryDoesNotDoubleCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc := env.createAndPost(t, saleInput())
	_, err := env.engine.RecordPayment(ctx, doc.ID, RecordPaymentInput{
		Amount: dec("100"), Method: "cash", AccountID: 301,
	})
	require.NoError(t, err)

	env.docs.fail["update_status"] = errors.New("documents down")
	opts := &RefundOptions{Mode: RefundModeCredit}
	err = env.engine.Cancel(ctx, doc.ID, "goods unavailable", opts)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepCancelStatus, pf.Step)

	delete(env.docs.fail, "update_status")
	require.NoError(t, env.engine.Cancel(ctx, doc.ID, "goods unavailable", opts))

	credits := 0
	for _, e := range env.ledger.rows {
		if e.Source == ledger.SourceCredit {
			credits++
		}
	}
	require.Equal(t, 1, credits, "retry must not issue a second credit")
}

// --- draft delete ----------------------------------------------------------

func TestDeleteDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc, err := env.engine.Create(ctx, purchaseInput())
	require.NoError(t, err)

	require.NoError(t, env.engine.DeleteDraft(ctx, doc.ID))
	require.Empty(t, env.docs.docs)
	require.Empty(t, env.docs.items)
}

func TestDeleteDraftRemovesStrayMovements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc, err := env.engine.Create(ctx, purchaseInput())
	require.NoError(t, err)

	// A stray row from before drafts stopped carrying stock.
	_, err = env.stock.Append(ctx, stock.Movement{
		CompanyID: 1, BranchID: 1, ProductID: 11,
		MovementType: stock.MovementPurchase,
		Quantity:     dec("5"),
		ReferenceType: "purchase", ReferenceID: doc.ID,
	})
	require.NoError(t, err)

	require.NoError(t, env.engine.DeleteDraft(ctx, doc.ID))
	require.Empty(t, env.stock.rows)
}

func TestDeleteDraftCompletesWhenActivityCleanupFails(t *testing.T) {
	env := newTestEnv(t)
	sink := &fakeSink{deleteErr: errors.New("activity store down")}
	env.withSink(sink)
	ctx := context.Background()
	doc, err := env.engine.Create(ctx, purchaseInput())
	require.NoError(t, err)

	// The audit trail is best-effort; its failure never blocks the delete.
	require.NoError(t, env.engine.DeleteDraft(ctx, doc.ID))
	require.Empty(t, env.docs.docs)
	require.Empty(t, env.docs.items)
}

func TestDeleteRejectsPostedDocument(t *testing.T) {
	env := newTestEnv(t)
	doc := env.createAndPost(t, purchaseInput())

	err := env.engine.DeleteDraft(context.Background(), doc.ID)
	require.True(t, shared.IsState(err))
	require.Len(t, env.docs.docs, 1)
}

func TestDeleteDraftReportsFailingStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doc, err := env.engine.Create(ctx, purchaseInput())
	require.NoError(t, err)

	env.docs.fail["delete_items"] = errors.New("items table down")
	err = env.engine.DeleteDraft(ctx, doc.ID)
	var pf *shared.PartialFailureError
	require.ErrorAs(t, err, &pf)
	require.Equal(t, StepDeleteItems, pf.Step)
}
