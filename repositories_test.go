package kivaquery

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kivaquery/kiva"
)

func newTestRepository(t *testing.T) PostgresLoanRepository {
	t.Helper()

	url := os.Getenv("KIVAQUERY_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("KIVAQUERY_TEST_POSTGRES_URL is not set")
	}

	require.NoError(t, Migrate(url, "migrations"))

	pool, err := pgxpool.Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `TRUNCATE kiva_payment, kiva_borrower, kiva_loan;`)
	require.NoError(t, err)

	return PostgresLoanRepository{Conn: pool}
}

func TestSaveAndGetLoan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	page, err := kiva.SampleLoans()
	require.NoError(t, err)
	sample := page.Loans[0]

	_, err = HandleFile(ctx, Loans, kiva.SampleLoansJSON(), StoreLoansHandler(repo))
	require.NoError(t, err)

	// saving again replaces borrowers and payments
	require.NoError(t, repo.SaveLoan(ctx, sample))

	loan, err := repo.GetLoan(ctx, sample.Id)
	require.NoError(t, err)

	assert.Equal(t, sample.Name, loan.Name)
	assert.Equal(t, sample.Description.Text("en"), loan.Description.Text("en"))
	assert.True(t, sample.PaidAmount.Equal(loan.PaidAmount))
	assert.True(t, sample.Terms.LoanAmount.Equal(loan.Terms.LoanAmount))
	assert.Equal(t, sample.Location.Geo.Pairs, loan.Location.Geo.Pairs)
	assert.True(t, sample.PostedDate.Equal(loan.PostedDate))
	assert.Len(t, loan.Borrowers, len(sample.Borrowers))
	require.Len(t, loan.Payments, 9)
	assert.True(t, loan.TotalPaid().Equal(sample.TotalPaid()))

	loans, err := repo.ListLoans(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Empty(t, loans[0].Payments)
}

func TestGetLoanNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetLoan(context.Background(), 1)
	assert.True(t, errors.Is(err, LoanNotFoundError))
}
