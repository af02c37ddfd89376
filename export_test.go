package kivaquery

import (
	"bytes"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"kivaquery/kiva"
)

func TestExportLoans(t *testing.T) {
	page, err := kiva.SampleLoans()
	require.NoError(t, err)

	data, err := ExportLoansBytes(page.Loans)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{LoansSheet, PaymentsSheet}, f.GetSheetList())

	loans, err := f.GetRows(LoansSheet)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	assert.Equal(t, "ID", loans[0][0])
	assert.Equal(t, []string{"84", "Justine Onyango", "paid", "Food", "Butcher Shop", "Uganda", "Tororo", "500", "500", "2005-04-15T17:00:00Z"}, loans[1][:10])

	payments, err := f.GetRows(PaymentsSheet)
	require.NoError(t, err)
	require.Len(t, payments, 10)
	assert.Equal(t, []string{"84", "8", "30", "30", "2005-04-19T13:19:00Z"}, payments[1][:5])
}

func TestExportNoLoans(t *testing.T) {
	f, err := ExportLoans(nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(LoansSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportFileName(t *testing.T) {
	name := ExportFileName(time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC))
	assert.Regexp(t, regexp.MustCompile(`^loans_20240309_140506_[0-9a-f-]{36}\.xlsx$`), name)
	assert.NotEqual(t, name, ExportFileName(time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)))
}
