package kivaquery

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kivaquery/kiva"
)

func TestValidateSample(t *testing.T) {
	page, err := kiva.SampleLoans()
	require.NoError(t, err)

	assert.NoError(t, ValidateLoansPage(page))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	page, err := kiva.SampleLoans()
	require.NoError(t, err)

	page.Header.Total = "lots"
	page.Loans[0].FundedAmount = decimal.NewFromInt(-2)
	page.Loans[0].PaidAmount = decimal.NewFromInt(-1)
	page.Loans[0].Payments[3].Amount = decimal.NewFromFloat(-12.5)
	page.Loans[0].Payments[4].LocalAmount = decimal.NewFromInt(-3)
	page.Loans[0].Payments[5].RoundedLocalAmount = decimal.NewFromInt(-4)
	page.Loans[0].Location.Geo.Pairs = "north east"

	err = ValidateLoansPage(page)
	require.Error(t, err)
	assert.ErrorIs(t, err, InvalidLoansPageError)
	assert.Contains(t, err.Error(), "header.total")
	assert.Contains(t, err.Error(), "funded_amount is negative: -2")
	assert.Contains(t, err.Error(), "paid_amount is negative: -1")
	assert.Contains(t, err.Error(), "payments[3].amount is negative: -12.5")
	assert.Contains(t, err.Error(), "payments[4].local_amount is negative: -3")
	assert.Contains(t, err.Error(), "payments[5].rounded_local_amount is negative: -4")
	assert.Contains(t, err.Error(), "location.geo")
	assert.NotContains(t, err.Error(), "payments[0]")
}

func TestValidateLoansJSONSample(t *testing.T) {
	assert.NoError(t, ValidateLoansJSON(kiva.SampleLoansJSON()))
}

func TestValidateLoansJSONRequiresNumbers(t *testing.T) {
	const amounts = `"funded_amount":500,"paid_amount":500`
	const payment = `"local_amount":30,"rounded_local_amount":30`

	tests := []struct {
		name  string
		page  string
		field string
	}{
		{"quoted amount", `{"header":{"total":"1"},"loans":[{` + amounts + `,"payments":[{"amount":"30",` + payment + `}]}]}`, "payments[0].amount is not a number"},
		{"null amount", `{"header":{"total":"1"},"loans":[{` + amounts + `,"payments":[{"amount":null,` + payment + `}]}]}`, "payments[0].amount is not a number"},
		{"missing amount", `{"header":{"total":"1"},"loans":[{` + amounts + `,"payments":[{` + payment + `}]}]}`, "payments[0].amount is missing"},
		{"missing funded amount", `{"header":{"total":"1"},"loans":[{"paid_amount":0,"payments":[]}]}`, "loans[0].funded_amount is missing"},
		{"quoted paid amount", `{"header":{"total":"1"},"loans":[{"funded_amount":1,"paid_amount":"1","payments":[]}]}`, "loans[0].paid_amount is not a number"},
	}

	for _, tt := range tests {
		err := ValidateLoansJSON([]byte(tt.page))
		require.Error(t, err, tt.name)
		assert.ErrorIs(t, err, InvalidLoansPageError, tt.name)
		assert.Contains(t, err.Error(), tt.field, tt.name)
	}
}

func TestValidateLoansJSONNegativeAmount(t *testing.T) {
	page := `{"header":{"total":"1"},"loans":[{"id":3,"funded_amount":10,"paid_amount":10,"payments":[{"amount":-1,"local_amount":1,"rounded_local_amount":1}]}]}`

	err := ValidateLoansJSON([]byte(page))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments[0].amount is negative: -1")
}
