package document

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTransitionsOnlyMoveForward(t *testing.T) {
	cases := []struct {
		t    DocType
		from Status
		to   Status
		ok   bool
	}{
		{TypePurchase, StatusDraft, StatusOrdered, true},
		{TypePurchase, StatusDraft, StatusReceived, true},
		{TypePurchase, StatusOrdered, StatusReceived, true},
		{TypePurchase, StatusReceived, StatusFinal, true},
		{TypePurchase, StatusReceived, StatusDraft, false},
		{TypePurchase, StatusFinal, StatusReceived, false},
		{TypePurchase, StatusDraft, StatusFinal, false},
		{TypeSale, StatusDraft, StatusQuotation, true},
		{TypeSale, StatusDraft, StatusOrder, true},
		{TypeSale, StatusQuotation, StatusOrder, true},
		{TypeSale, StatusOrder, StatusFinal, true},
		{TypeSale, StatusOrder, StatusQuotation, false},
		{TypeSale, StatusDraft, StatusReceived, false},
		{TypeSale, StatusCancelled, StatusOrder, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.t, tc.from, tc.to),
			"%s: %s -> %s", tc.t, tc.from, tc.to)
	}
}

func TestPostableStatuses(t *testing.T) {
	require.True(t, IsPostable(TypePurchase, StatusReceived))
	require.True(t, IsPostable(TypePurchase, StatusFinal))
	require.False(t, IsPostable(TypePurchase, StatusOrdered))
	require.False(t, IsPostable(TypePurchase, StatusDraft))

	require.True(t, IsPostable(TypeSale, StatusOrder))
	require.True(t, IsPostable(TypeSale, StatusFinal))
	require.False(t, IsPostable(TypeSale, StatusQuotation))
	require.False(t, IsPostable(TypeSale, StatusCancelled))

	require.Equal(t, StatusReceived, FirstPostable(TypePurchase))
	require.Equal(t, StatusOrder, FirstPostable(TypeSale))
}

func TestComputeTotals(t *testing.T) {
	doc := Document{
		DiscountAmount: dec("10"),
		TaxAmount:      dec("7.50"),
		ShippingAmount: dec("2.50"),
		Items: []Item{
			{Quantity: dec("3"), UnitPrice: dec("19.99")},
			{Quantity: dec("1"), UnitPrice: dec("40.03")},
		},
	}
	doc.ComputeTotals()

	require.True(t, doc.Items[0].LineTotal.Equal(dec("59.97")))
	require.True(t, doc.Subtotal.Equal(dec("100")))
	require.True(t, doc.Total.Equal(dec("100")), "100 - 10 + 7.50 + 2.50")
	require.True(t, doc.DueAmount.Equal(dec("100")))
}

func TestComputeTotalsAccountsForPaid(t *testing.T) {
	doc := Document{
		PaidAmount: dec("30"),
		Items:      []Item{{Quantity: dec("1"), UnitPrice: dec("100")}},
	}
	doc.ComputeTotals()
	require.True(t, doc.DueAmount.Equal(dec("70")))
}

func TestDerivePaymentStatus(t *testing.T) {
	total := dec("100")
	require.Equal(t, PaymentUnpaid, DerivePaymentStatus(decimal.Zero, total))
	require.Equal(t, PaymentPartial, DerivePaymentStatus(dec("0.01"), total))
	require.Equal(t, PaymentPartial, DerivePaymentStatus(dec("99.99"), total))
	require.Equal(t, PaymentPaid, DerivePaymentStatus(dec("100"), total))
	require.Equal(t, PaymentPaid, DerivePaymentStatus(dec("120"), total))
}

func TestValidate(t *testing.T) {
	valid := Document{
		CompanyID:      1,
		BranchID:       1,
		DocType:        TypeSale,
		CounterpartyID: 3,
		Items:          []Item{{ProductID: 5, Quantity: dec("1")}},
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Document){
		"missing company":      func(d *Document) { d.CompanyID = 0 },
		"missing branch":       func(d *Document) { d.BranchID = 0 },
		"bad type":             func(d *Document) { d.DocType = "transfer" },
		"missing counterparty": func(d *Document) { d.CounterpartyID = 0 },
		"no items":             func(d *Document) { d.Items = nil },
		"zero quantity":        func(d *Document) { d.Items[0].Quantity = decimal.Zero },
		"missing product":      func(d *Document) { d.Items[0].ProductID = 0 },
	} {
		doc := valid
		doc.Items = []Item{valid.Items[0]}
		mutate(&doc)
		require.Error(t, doc.Validate(), name)
	}
}
