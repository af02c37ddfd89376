package kivaquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kivaquery/kiva"
)

type collectHandler struct {
	items []string
}

func (h *collectHandler) Handle(ctx context.Context, item json.RawMessage) error {
	h.items = append(h.items, string(item))
	return nil
}

func TestHandleFile(t *testing.T) {
	tests := []struct {
		qt    QueryType
		page  string
		items int
	}{
		{Lenders, `{"lenders":[{"name":"a"},{"name":"b"}]}`, 2},
		{NewestLenders, `{"lenders":[{"name":"a"}]}`, 1},
		{TeamLenders, `{"lenders":[]}`, 0},
		{Loans, `{"loans":[{"id":1}]}`, 1},
		{RecentLendingActions, `{"lending_actions":[{"id":"x"},{"id":"y"},{"id":"z"}]}`, 3},
	}

	for _, tt := range tests {
		h := &collectHandler{}
		more, err := HandleFile(context.Background(), tt.qt, []byte(tt.page), h)
		require.NoError(t, err, tt.qt.String())
		assert.Equal(t, tt.items > 0, more, tt.qt.String())
		assert.Len(t, h.items, tt.items, tt.qt.String())
	}
}

func TestHandleFileErrors(t *testing.T) {
	h := &collectHandler{}

	_, err := HandleFile(context.Background(), QueryType(42), []byte(`{}`), h)
	assert.ErrorIs(t, err, UnsupportedQueryTypeError)

	_, err = HandleFile(context.Background(), Loans, []byte(`{"lenders":[]}`), h)
	assert.Error(t, err)

	_, err = HandleFile(context.Background(), Loans, []byte(`not json`), h)
	assert.Error(t, err)

	failure := errors.New("boom")
	_, err = HandleFile(context.Background(), Loans, []byte(`{"loans":[{"id":1}]}`), HandlerFunc(func(ctx context.Context, item json.RawMessage) error {
		return failure
	}))
	assert.ErrorIs(t, err, failure)
}

func TestNameHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	_, err := HandleFile(context.Background(), Lenders, []byte(`{"lenders":[{"name":"Matt"},{"name":"Jess"}]}`), NameHandler{W: buf})
	require.NoError(t, err)
	assert.Equal(t, "Matt\nJess\n", buf.String())
}

func TestLoanHandlerDecodesSample(t *testing.T) {
	var loans []kiva.Loan
	h := LoanHandler(func(ctx context.Context, loan kiva.Loan) error {
		loans = append(loans, loan)
		return nil
	})

	more, err := HandleFile(context.Background(), Loans, kiva.SampleLoansJSON(), h)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, loans, 1)
	assert.Equal(t, int64(84), loans[0].Id)
	assert.Equal(t, "Justine Onyango", loans[0].Name)
}

func TestLendingActionLoans(t *testing.T) {
	buf := &bytes.Buffer{}
	page := `{"lending_actions":[{"id":"1","loan":{"id":5,"name":"Maria"}},{"id":"2","loan":{"id":6,"name":"Ana"}}]}`

	_, err := HandleFile(context.Background(), RecentLendingActions, []byte(page), LendingActionLoans(NameHandler{W: buf}))
	require.NoError(t, err)
	assert.Equal(t, "Maria\nAna\n", buf.String())
}

func TestComplete(t *testing.T) {
	assert.True(t, Complete(&collectHandler{}).ContinueQuery(nil))
}
