package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kivaquery"
	"kivaquery/kiva"
)

type memoryLoanRepository struct {
	loans map[int64]kiva.Loan
	order []int64
}

func newMemoryLoanRepository(t *testing.T) *memoryLoanRepository {
	t.Helper()

	page, err := kiva.SampleLoans()
	require.NoError(t, err)

	repo := &memoryLoanRepository{loans: map[int64]kiva.Loan{}}
	for _, l := range page.Loans {
		require.NoError(t, repo.SaveLoan(context.Background(), l))
	}

	return repo
}

func (m *memoryLoanRepository) SaveLoan(ctx context.Context, loan kiva.Loan) error {
	if _, ok := m.loans[loan.Id]; !ok {
		m.order = append(m.order, loan.Id)
	}
	m.loans[loan.Id] = loan
	return nil
}

func (m *memoryLoanRepository) GetLoan(ctx context.Context, id int64) (kiva.Loan, error) {
	l, ok := m.loans[id]
	if !ok {
		return kiva.Loan{}, fmt.Errorf("%w: %d", kivaquery.LoanNotFoundError, id)
	}
	return l, nil
}

func (m *memoryLoanRepository) ListLoans(ctx context.Context, limit, offset int) ([]kiva.Loan, error) {
	loans := []kiva.Loan{}
	for i := offset; i < len(m.order) && len(loans) < limit; i++ {
		l := m.loans[m.order[i]]
		l.Payments = nil
		loans = append(loans, l)
	}
	return loans, nil
}

func (m *memoryLoanRepository) GetLoanPayments(ctx context.Context, loanId int64) ([]kiva.Payment, error) {
	return m.loans[loanId].Payments, nil
}

func doGet(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestGetLoan(t *testing.T) {
	h := NewRouter(NewServer(newMemoryLoanRepository(t), nil))

	rec := doGet(t, h, "/api/loans/84")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	loan := kiva.Loan{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	assert.Equal(t, "Justine Onyango", loan.Name)
	assert.Len(t, loan.Payments, 9)

	var raw struct {
		FundedAmount json.RawMessage `json:"funded_amount"`
		Payments     []struct {
			Amount json.RawMessage `json:"amount"`
		} `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "500", string(raw.FundedAmount))
	assert.Equal(t, "30", string(raw.Payments[0].Amount))
}

func TestGetLoanErrors(t *testing.T) {
	h := NewRouter(NewServer(newMemoryLoanRepository(t), nil))

	assert.Equal(t, http.StatusNotFound, doGet(t, h, "/api/loans/1").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/api/loans/abc").Code)
	assert.Equal(t, http.StatusNotFound, doGet(t, h, "/api/loans/1/payments").Code)
}

func TestListLoans(t *testing.T) {
	h := NewRouter(NewServer(newMemoryLoanRepository(t), nil))

	rec := doGet(t, h, "/api/loans?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Loans []kiva.Loan `json:"loans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Loans, 1)
	assert.Equal(t, int64(84), body.Loans[0].Id)

	rec = doGet(t, h, "/api/loans?offset=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Loans)

	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/api/loans?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/api/loans?offset=x").Code)
}

func TestGetLoanPayments(t *testing.T) {
	h := NewRouter(NewServer(newMemoryLoanRepository(t), nil))

	rec := doGet(t, h, "/api/loans/84/payments")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Payments []kiva.Payment `json:"payments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Payments, 9)
	assert.Equal(t, int64(8), body.Payments[0].PaymentId)
}

func TestGetSample(t *testing.T) {
	h := NewRouter(NewServer(newMemoryLoanRepository(t), nil))

	rec := doGet(t, h, "/api/sample")
	require.Equal(t, http.StatusOK, rec.Code)

	page, err := kiva.DecodeLoansPage(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "156612", page.Header.Total)
}
