package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kivaquery"
	"kivaquery/kiva"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateSample(t *testing.T) {
	out, err := execute(t, "validate")
	require.NoError(t, err)
	assert.Equal(t, "sample: 1 loans ok\n", out)
}

func TestValidateRejectsBadPage(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"header":{"total":"many"},"loans":[{"id":1,"paid_amount":-5}]}`), 0o644))

	_, err := execute(t, "validate", file)
	require.Error(t, err)
	assert.ErrorIs(t, err, kivaquery.InvalidLoansPageError)
}

func TestLimitedHandler(t *testing.T) {
	maxPages = 2
	t.Cleanup(func() { maxPages = 0 })

	h := pageLimit(kivaquery.NameHandler{W: &bytes.Buffer{}})
	assert.True(t, h.ContinueQuery(nil))
	assert.False(t, h.ContinueQuery(nil))

	maxPages = 0
	unlimited := pageLimit(kivaquery.NameHandler{W: &bytes.Buffer{}})
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.ContinueQuery(nil))
	}
}

type pagedRepository struct {
	kivaquery.LoanRepository
	loans []kiva.Loan
}

func (r pagedRepository) ListLoans(ctx context.Context, limit, offset int) ([]kiva.Loan, error) {
	if offset >= len(r.loans) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.loans) {
		end = len(r.loans)
	}
	return r.loans[offset:end], nil
}

func (r pagedRepository) GetLoanPayments(ctx context.Context, loanId int64) ([]kiva.Payment, error) {
	return []kiva.Payment{{PaymentId: loanId}}, nil
}

func TestStoredLoans(t *testing.T) {
	repo := pagedRepository{}
	for i := int64(1); i <= 1200; i++ {
		repo.loans = append(repo.loans, kiva.Loan{Id: i})
	}

	loans, err := storedLoans(context.Background(), repo, 0)
	require.NoError(t, err)
	require.Len(t, loans, 1200)
	assert.Equal(t, int64(1200), loans[1199].Payments[0].PaymentId)

	loans, err = storedLoans(context.Background(), repo, 3)
	require.NoError(t, err)
	assert.Len(t, loans, 3)
}

func TestValidateRejectsQuotedAmount(t *testing.T) {
	file := filepath.Join(t.TempDir(), "quoted.json")
	page := `{"header":{"total":"1"},"loans":[{"id":1,"funded_amount":5,"paid_amount":5,"payments":[{"amount":"5","local_amount":5,"rounded_local_amount":5}]}]}`
	require.NoError(t, os.WriteFile(file, []byte(page), 0o644))

	_, err := execute(t, "validate", file)
	require.Error(t, err)
	assert.ErrorIs(t, err, kivaquery.InvalidLoansPageError)
	assert.Contains(t, err.Error(), "payments[0].amount is not a number")
}
