package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestParseMethod(t *testing.T) {
	for raw, want := range map[string]Method{
		"cash":   MethodCash,
		"Cash":   MethodCash,
		" BANK ": MethodBank,
		"card":   MethodCard,
		"other":  MethodOther,
	} {
		got, err := ParseMethod(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
}

func TestParseMethodRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "cheque", "wire", "CASH MONEY"} {
		_, err := ParseMethod(raw)
		require.Error(t, err, raw)
		require.True(t, shared.IsValidation(err))
	}
}

func TestValidateRequiresAccount(t *testing.T) {
	p := Payment{
		CompanyID:     1,
		BranchID:      1,
		PaymentType:   TypeReceived,
		ReferenceType: "sale",
		ReferenceID:   4,
		Amount:        decimal.NewFromInt(50),
		Method:        MethodCash,
		AccountID:     9,
	}
	require.NoError(t, p.Validate())

	p.AccountID = 0
	err := p.Validate()
	require.True(t, shared.IsValidation(err), "no default account, ever")
}

func TestValidateRejectsNonPositiveAmount(t *testing.T) {
	p := Payment{
		CompanyID:     1,
		BranchID:      1,
		ReferenceType: "sale",
		ReferenceID:   4,
		Method:        MethodCash,
		AccountID:     9,
	}
	require.Error(t, p.Validate())

	p.Amount = decimal.NewFromInt(-3)
	require.Error(t, p.Validate())
}
