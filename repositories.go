package kivaquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"

	"kivaquery/kiva"
)

type DbConn interface {
	Exec(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...interface{}) pgx.Row
}

// TxConn is satisfied by *pgxpool.Pool and *pgx.Conn
type TxConn interface {
	DbConn
	Begin(ctx context.Context) (pgx.Tx, error)
}

type LoanRepository interface {
	SaveLoan(ctx context.Context, loan kiva.Loan) error
	GetLoan(ctx context.Context, id int64) (kiva.Loan, error)
	ListLoans(ctx context.Context, limit, offset int) ([]kiva.Loan, error)
	GetLoanPayments(ctx context.Context, loanId int64) ([]kiva.Payment, error)
}

type PostgresLoanRepository struct {
	Conn TxConn
}

const loanColumns = `
	 id
	,name
	,description::text
	,status
	,funded_amount::text
	,paid_amount::text
	,image_id
	,image_template_id
	,activity
	,sector
	,loan_use
	,country_code
	,country
	,town
	,geo_level
	,geo_pairs
	,geo_type
	,partner_id
	,disbursal_amount::text
	,disbursal_currency
	,disbursal_date
	,loan_amount::text
	,nonpayment
	,currency_exchange
	,posted_date
	,funded_date
	,journal_entries
	,journal_bulk
`

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to parse %s %q: %w", field, s, err)
	}
	return d, nil
}

// SaveLoan upserts the loan and replaces its borrowers and payments in one transaction
func (r PostgresLoanRepository) SaveLoan(ctx context.Context, loan kiva.Loan) error {
	description, err := json.Marshal(loan.Description)
	if err != nil {
		return fmt.Errorf("unable to encode loan %d description: %w", loan.Id, err)
	}

	tx, err := r.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("unable to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO kiva_loan (
			 id, name, description, status, funded_amount, paid_amount, image_id, image_template_id
			,activity, sector, loan_use, country_code, country, town, geo_level, geo_pairs, geo_type
			,partner_id, disbursal_amount, disbursal_currency, disbursal_date, loan_amount
			,nonpayment, currency_exchange, posted_date, funded_date, journal_entries, journal_bulk
		)
		VALUES (
			 $1, $2, $3::jsonb, $4, $5::numeric, $6::numeric, $7, $8
			,$9, $10, $11, $12, $13, $14, $15, $16, $17
			,$18, $19::numeric, $20, $21, $22::numeric
			,$23, $24, $25, $26, $27, $28
		)
		ON CONFLICT (id)
		DO UPDATE SET
			 name = EXCLUDED.name
			,description = EXCLUDED.description
			,status = EXCLUDED.status
			,funded_amount = EXCLUDED.funded_amount
			,paid_amount = EXCLUDED.paid_amount
			,image_id = EXCLUDED.image_id
			,image_template_id = EXCLUDED.image_template_id
			,activity = EXCLUDED.activity
			,sector = EXCLUDED.sector
			,loan_use = EXCLUDED.loan_use
			,country_code = EXCLUDED.country_code
			,country = EXCLUDED.country
			,town = EXCLUDED.town
			,geo_level = EXCLUDED.geo_level
			,geo_pairs = EXCLUDED.geo_pairs
			,geo_type = EXCLUDED.geo_type
			,partner_id = EXCLUDED.partner_id
			,disbursal_amount = EXCLUDED.disbursal_amount
			,disbursal_currency = EXCLUDED.disbursal_currency
			,disbursal_date = EXCLUDED.disbursal_date
			,loan_amount = EXCLUDED.loan_amount
			,nonpayment = EXCLUDED.nonpayment
			,currency_exchange = EXCLUDED.currency_exchange
			,posted_date = EXCLUDED.posted_date
			,funded_date = EXCLUDED.funded_date
			,journal_entries = EXCLUDED.journal_entries
			,journal_bulk = EXCLUDED.journal_bulk
			,modified_at = NOW();
		`,
		loan.Id,
		loan.Name,
		string(description),
		loan.Status,
		loan.FundedAmount.String(),
		loan.PaidAmount.String(),
		loan.Image.Id,
		loan.Image.TemplateId,
		loan.Activity,
		loan.Sector,
		loan.Use,
		loan.Location.CountryCode,
		loan.Location.Country,
		loan.Location.Town,
		loan.Location.Geo.Level,
		loan.Location.Geo.Pairs,
		loan.Location.Geo.Type,
		loan.PartnerId,
		loan.Terms.DisbursalAmount.String(),
		loan.Terms.DisbursalCurrency,
		nullTime(loan.Terms.DisbursalDate),
		loan.Terms.LoanAmount.String(),
		loan.Terms.LossLiability.Nonpayment,
		loan.Terms.LossLiability.CurrencyExchange,
		nullTime(loan.PostedDate),
		nullTime(loan.FundedDate),
		loan.JournalTotals.Entries,
		loan.JournalTotals.BulkEntries,
	)
	if err != nil {
		return fmt.Errorf("unable to save loan %d: %w", loan.Id, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM kiva_borrower WHERE loan_id = $1`, loan.Id); err != nil {
		return fmt.Errorf("unable to clear borrowers of loan %d: %w", loan.Id, err)
	}

	for i, b := range loan.Borrowers {
		_, err := tx.Exec(ctx, `
			INSERT INTO kiva_borrower (loan_id, position, first_name, last_name, gender, pictured)
			VALUES ($1, $2, $3, $4, $5, $6);
			`,
			loan.Id, i, b.FirstName, b.LastName, b.Gender, b.Pictured,
		)
		if err != nil {
			return fmt.Errorf("unable to save borrower %d of loan %d: %w", i, loan.Id, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM kiva_payment WHERE loan_id = $1`, loan.Id); err != nil {
		return fmt.Errorf("unable to clear payments of loan %d: %w", loan.Id, err)
	}

	for _, p := range loan.Payments {
		_, err := tx.Exec(ctx, `
			INSERT INTO kiva_payment (loan_id, payment_id, amount, local_amount, rounded_local_amount, processed_date, comment)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7);
			`,
			loan.Id,
			p.PaymentId,
			p.Amount.String(),
			p.LocalAmount.String(),
			p.RoundedLocalAmount.String(),
			nullTime(p.ProcessedDate),
			p.Comment,
		)
		if err != nil {
			return fmt.Errorf("unable to save payment %d of loan %d: %w", p.PaymentId, loan.Id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unable to commit loan %d: %w", loan.Id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoan(row rowScanner) (kiva.Loan, error) {
	l := kiva.Loan{}
	var description, funded, paid, disbursal, loanAmount string
	var disbursalDate, postedDate, fundedDate *time.Time

	err := row.Scan(
		&l.Id,
		&l.Name,
		&description,
		&l.Status,
		&funded,
		&paid,
		&l.Image.Id,
		&l.Image.TemplateId,
		&l.Activity,
		&l.Sector,
		&l.Use,
		&l.Location.CountryCode,
		&l.Location.Country,
		&l.Location.Town,
		&l.Location.Geo.Level,
		&l.Location.Geo.Pairs,
		&l.Location.Geo.Type,
		&l.PartnerId,
		&disbursal,
		&l.Terms.DisbursalCurrency,
		&disbursalDate,
		&loanAmount,
		&l.Terms.LossLiability.Nonpayment,
		&l.Terms.LossLiability.CurrencyExchange,
		&postedDate,
		&fundedDate,
		&l.JournalTotals.Entries,
		&l.JournalTotals.BulkEntries,
	)
	if err != nil {
		return kiva.Loan{}, err
	}

	if err := json.Unmarshal([]byte(description), &l.Description); err != nil {
		return kiva.Loan{}, fmt.Errorf("unable to decode loan %d description: %w", l.Id, err)
	}

	if l.FundedAmount, err = parseDecimal("funded_amount", funded); err != nil {
		return kiva.Loan{}, err
	}
	if l.PaidAmount, err = parseDecimal("paid_amount", paid); err != nil {
		return kiva.Loan{}, err
	}
	if l.Terms.DisbursalAmount, err = parseDecimal("disbursal_amount", disbursal); err != nil {
		return kiva.Loan{}, err
	}
	if l.Terms.LoanAmount, err = parseDecimal("loan_amount", loanAmount); err != nil {
		return kiva.Loan{}, err
	}

	l.Terms.DisbursalDate = timeOrZero(disbursalDate)
	l.PostedDate = timeOrZero(postedDate)
	l.FundedDate = timeOrZero(fundedDate)

	return l, nil
}

// GetLoan returns the loan with its borrowers and payments
func (r PostgresLoanRepository) GetLoan(ctx context.Context, id int64) (kiva.Loan, error) {
	l, err := scanLoan(r.Conn.QueryRow(ctx, `SELECT `+loanColumns+` FROM kiva_loan WHERE id = $1;`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return kiva.Loan{}, fmt.Errorf("%w: %d", LoanNotFoundError, id)
	}
	if err != nil {
		return kiva.Loan{}, fmt.Errorf("unable to get loan %d: %w", id, err)
	}

	if l.Borrowers, err = r.getLoanBorrowers(ctx, id); err != nil {
		return kiva.Loan{}, err
	}
	if l.Payments, err = r.GetLoanPayments(ctx, id); err != nil {
		return kiva.Loan{}, err
	}

	return l, nil
}

// ListLoans returns loans ordered by id without their borrowers or payments
func (r PostgresLoanRepository) ListLoans(ctx context.Context, limit, offset int) ([]kiva.Loan, error) {
	rows, err := r.Conn.Query(ctx, `
		SELECT `+loanColumns+`
		FROM kiva_loan
		ORDER BY id
		LIMIT $1 OFFSET $2;
		`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to list loans: %w", err)
	}
	defer rows.Close()

	loans := []kiva.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan loan: %w", err)
		}
		loans = append(loans, l)
	}

	return loans, rows.Err()
}

func (r PostgresLoanRepository) getLoanBorrowers(ctx context.Context, loanId int64) ([]kiva.Borrower, error) {
	rows, err := r.Conn.Query(ctx, `
		SELECT first_name, last_name, gender, pictured
		FROM kiva_borrower
		WHERE loan_id = $1
		ORDER BY position;
		`,
		loanId,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to get borrowers of loan %d: %w", loanId, err)
	}
	defer rows.Close()

	var borrowers []kiva.Borrower
	for rows.Next() {
		b := kiva.Borrower{}
		if err := rows.Scan(&b.FirstName, &b.LastName, &b.Gender, &b.Pictured); err != nil {
			return nil, fmt.Errorf("unable to scan borrower: %w", err)
		}
		borrowers = append(borrowers, b)
	}

	return borrowers, rows.Err()
}

// GetLoanPayments returns the payments of a loan in the order they were processed
func (r PostgresLoanRepository) GetLoanPayments(ctx context.Context, loanId int64) ([]kiva.Payment, error) {
	rows, err := r.Conn.Query(ctx, `
		SELECT payment_id, amount::text, local_amount::text, rounded_local_amount::text, processed_date, comment
		FROM kiva_payment
		WHERE loan_id = $1
		ORDER BY processed_date, payment_id;
		`,
		loanId,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to get payments of loan %d: %w", loanId, err)
	}
	defer rows.Close()

	var payments []kiva.Payment
	for rows.Next() {
		p := kiva.Payment{}
		var amount, local, rounded string
		var processed *time.Time

		if err := rows.Scan(&p.PaymentId, &amount, &local, &rounded, &processed, &p.Comment); err != nil {
			return nil, fmt.Errorf("unable to scan payment: %w", err)
		}

		if p.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		if p.LocalAmount, err = parseDecimal("local_amount", local); err != nil {
			return nil, err
		}
		if p.RoundedLocalAmount, err = parseDecimal("rounded_local_amount", rounded); err != nil {
			return nil, err
		}
		p.ProcessedDate = timeOrZero(processed)

		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// StoreLoansHandler saves every loan it handles through repo
func StoreLoansHandler(repo LoanRepository) Handler {
	return LoanHandler(func(ctx context.Context, loan kiva.Loan) error {
		return repo.SaveLoan(ctx, loan)
	})
}
