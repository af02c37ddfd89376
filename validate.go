package kivaquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"kivaquery/kiva"
)

// ValidateLoansPage reports every shape problem found in the page, joined into one error
func ValidateLoansPage(page kiva.LoansResponse) error {
	var errs []error

	if _, err := strconv.ParseUint(page.Header.Total, 10, 64); err != nil {
		errs = append(errs, fmt.Errorf("header.total %q is not a numeric string", page.Header.Total))
	}

	for i, l := range page.Loans {
		errs = append(errs, validateLoan(i, l)...)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", InvalidLoansPageError, errors.Join(errs...))
}

func validateLoan(i int, l kiva.Loan) []error {
	var errs []error

	nonNegative := func(field string, d decimal.Decimal) {
		if d.IsNegative() {
			errs = append(errs, fmt.Errorf("loans[%d] (id %d) %s is negative: %s", i, l.Id, field, d))
		}
	}

	nonNegative("funded_amount", l.FundedAmount)
	nonNegative("paid_amount", l.PaidAmount)

	for j, p := range l.Payments {
		nonNegative(fmt.Sprintf("payments[%d].amount", j), p.Amount)
		nonNegative(fmt.Sprintf("payments[%d].local_amount", j), p.LocalAmount)
		nonNegative(fmt.Sprintf("payments[%d].rounded_local_amount", j), p.RoundedLocalAmount)
	}

	if l.Location.Geo.Pairs != "" {
		if _, _, err := l.Location.Geo.LatLon(); err != nil {
			errs = append(errs, fmt.Errorf("loans[%d] (id %d) location.geo: %w", i, l.Id, err))
		}
	}

	return errs
}

type rawPayment struct {
	Amount             json.RawMessage `json:"amount"`
	LocalAmount        json.RawMessage `json:"local_amount"`
	RoundedLocalAmount json.RawMessage `json:"rounded_local_amount"`
}

type rawLoansPage struct {
	Loans []struct {
		FundedAmount json.RawMessage `json:"funded_amount"`
		PaidAmount   json.RawMessage `json:"paid_amount"`
		Payments     []rawPayment    `json:"payments"`
	} `json:"loans"`
}

// ValidateLoansJSON checks that every amount in the raw page is present as a json number, then runs ValidateLoansPage
func ValidateLoansJSON(data []byte) error {
	raw := rawLoansPage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", InvalidLoansPageError, err)
	}

	var errs []error
	number := func(field string, v json.RawMessage) {
		if err := checkNumber(v); err != nil {
			errs = append(errs, fmt.Errorf("%s %w", field, err))
		}
	}

	for i, l := range raw.Loans {
		number(fmt.Sprintf("loans[%d].funded_amount", i), l.FundedAmount)
		number(fmt.Sprintf("loans[%d].paid_amount", i), l.PaidAmount)

		for j, p := range l.Payments {
			number(fmt.Sprintf("loans[%d].payments[%d].amount", i, j), p.Amount)
			number(fmt.Sprintf("loans[%d].payments[%d].local_amount", i, j), p.LocalAmount)
			number(fmt.Sprintf("loans[%d].payments[%d].rounded_local_amount", i, j), p.RoundedLocalAmount)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", InvalidLoansPageError, errors.Join(errs...))
	}

	page, err := kiva.DecodeLoansPage(data)
	if err != nil {
		return fmt.Errorf("%w: %w", InvalidLoansPageError, err)
	}

	return ValidateLoansPage(page)
}

func checkNumber(v json.RawMessage) error {
	if len(v) == 0 {
		return errors.New("is missing")
	}

	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()

	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("is not valid json: %w", err)
	}
	if _, ok := decoded.(json.Number); !ok {
		return fmt.Errorf("is not a number: %s", v)
	}

	return nil
}
