package kivaquery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"kivaquery/kiva"
)

const LoansSheet = "Loans"
const PaymentsSheet = "Payments"

type exportColumn struct {
	Header string
	Value  func(l kiva.Loan) interface{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var loanColumnsExport = []exportColumn{
	{"ID", func(l kiva.Loan) interface{} { return l.Id }},
	{"Name", func(l kiva.Loan) interface{} { return l.Name }},
	{"Status", func(l kiva.Loan) interface{} { return l.Status }},
	{"Sector", func(l kiva.Loan) interface{} { return l.Sector }},
	{"Activity", func(l kiva.Loan) interface{} { return l.Activity }},
	{"Country", func(l kiva.Loan) interface{} { return l.Location.Country }},
	{"Town", func(l kiva.Loan) interface{} { return l.Location.Town }},
	{"Funded Amount", func(l kiva.Loan) interface{} { return l.FundedAmount.InexactFloat64() }},
	{"Paid Amount", func(l kiva.Loan) interface{} { return l.PaidAmount.InexactFloat64() }},
	{"Posted Date", func(l kiva.Loan) interface{} { return formatDate(l.PostedDate) }},
	{"Funded Date", func(l kiva.Loan) interface{} { return formatDate(l.FundedDate) }},
}

var paymentHeaders = []string{"Loan ID", "Payment ID", "Amount", "Local Amount", "Processed Date", "Comment"}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}

	return f.SetSheetRow(sheet, cell, &values)
}

// ExportLoans builds a workbook with one row per loan and a second sheet with one row per payment
func ExportLoans(loans []kiva.Loan) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), LoansSheet); err != nil {
		return nil, fmt.Errorf("unable to name loans sheet: %w", err)
	}
	if _, err := f.NewSheet(PaymentsSheet); err != nil {
		return nil, fmt.Errorf("unable to create payments sheet: %w", err)
	}

	headers := make([]interface{}, 0, len(loanColumnsExport))
	for _, col := range loanColumnsExport {
		headers = append(headers, col.Header)
	}
	if err := setRow(f, LoansSheet, 1, headers); err != nil {
		return nil, fmt.Errorf("unable to write loan headers: %w", err)
	}

	paymentRow := make([]interface{}, 0, len(paymentHeaders))
	for _, h := range paymentHeaders {
		paymentRow = append(paymentRow, h)
	}
	if err := setRow(f, PaymentsSheet, 1, paymentRow); err != nil {
		return nil, fmt.Errorf("unable to write payment headers: %w", err)
	}

	paymentIdx := 2
	for i, l := range loans {
		values := make([]interface{}, 0, len(loanColumnsExport))
		for _, col := range loanColumnsExport {
			values = append(values, col.Value(l))
		}
		if err := setRow(f, LoansSheet, i+2, values); err != nil {
			return nil, fmt.Errorf("unable to write loan %d: %w", l.Id, err)
		}

		for _, p := range l.Payments {
			err := setRow(f, PaymentsSheet, paymentIdx, []interface{}{
				l.Id,
				p.PaymentId,
				p.Amount.InexactFloat64(),
				p.LocalAmount.InexactFloat64(),
				formatDate(p.ProcessedDate),
				p.Comment,
			})
			if err != nil {
				return nil, fmt.Errorf("unable to write payment %d of loan %d: %w", p.PaymentId, l.Id, err)
			}
			paymentIdx++
		}
	}

	return f, nil
}

// ExportLoansBytes renders ExportLoans as xlsx bytes
func ExportLoansBytes(loans []kiva.Loan) ([]byte, error) {
	f, err := ExportLoans(loans)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("unable to render workbook: %w", err)
	}

	return buf.Bytes(), nil
}

func ExportFileName(now time.Time) string {
	return fmt.Sprintf("loans_%s_%s.xlsx", now.Format("20060102_150405"), uuid.NewString())
}
