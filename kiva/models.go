package kiva

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Header struct {
	Total    string    `json:"total"`
	Page     int       `json:"page"`
	Date     time.Time `json:"date"`
	PageSize int       `json:"page_size"`
	Pages    int       `json:"pages,omitempty"`
}

// TotalCount parses the total which the api sends as a quoted number
func (h Header) TotalCount() (int64, error) {
	n, err := strconv.ParseInt(h.Total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse header total %q: %w", h.Total, err)
	}

	return n, nil
}

type Image struct {
	Id         int `json:"id"`
	TemplateId int `json:"template_id"`
}

type Description struct {
	Languages []string          `json:"languages"`
	Texts     map[string]string `json:"texts"`
}

// Text returns the description in the given language or the first listed language when it is missing
func (d Description) Text(lang string) string {
	if t, ok := d.Texts[lang]; ok {
		return t
	}

	for _, l := range d.Languages {
		if t, ok := d.Texts[l]; ok {
			return t
		}
	}

	return ""
}

type Geo struct {
	Level string `json:"level"`
	Pairs string `json:"pairs"`
	Type  string `json:"type"`
}

// LatLon parses the space separated "lat lon" pairs string
func (g Geo) LatLon() (float64, float64, error) {
	parts := strings.Fields(g.Pairs)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unable to parse geo pairs %q: expected two values", g.Pairs)
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to parse latitude %q: %w", parts[0], err)
	}

	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to parse longitude %q: %w", parts[1], err)
	}

	return lat, lon, nil
}

type Location struct {
	CountryCode string `json:"country_code"`
	Country     string `json:"country"`
	Town        string `json:"town"`
	Geo         Geo    `json:"geo"`
}

type Borrower struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Gender    string `json:"gender"`
	Pictured  bool   `json:"pictured"`
}

type LossLiability struct {
	Nonpayment       string `json:"nonpayment"`
	CurrencyExchange string `json:"currency_exchange"`
}

type Terms struct {
	DisbursalAmount   decimal.Decimal `json:"disbursal_amount"`
	DisbursalCurrency string          `json:"disbursal_currency"`
	DisbursalDate     time.Time       `json:"disbursal_date"`
	LoanAmount        decimal.Decimal `json:"loan_amount"`
	LossLiability     LossLiability   `json:"loss_liability"`
}

type Payment struct {
	Amount             decimal.Decimal `json:"amount"`
	PaymentId          int64           `json:"payment_id"`
	LocalAmount        decimal.Decimal `json:"local_amount"`
	ProcessedDate      time.Time       `json:"processed_date"`
	Comment            string          `json:"comment"`
	RoundedLocalAmount decimal.Decimal `json:"rounded_local_amount"`
}

type JournalTotals struct {
	Entries     int `json:"entries"`
	BulkEntries int `json:"bulk_entries"`
}

type Loan struct {
	Id            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   Description     `json:"description"`
	Status        string          `json:"status"`
	FundedAmount  decimal.Decimal `json:"funded_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Image         Image           `json:"image"`
	Activity      string          `json:"activity"`
	Sector        string          `json:"sector"`
	Use           string          `json:"use"`
	Location      Location        `json:"location"`
	PartnerId     int64           `json:"partner_id"`
	Borrowers     []Borrower      `json:"borrowers"`
	Terms         Terms           `json:"terms"`
	Payments      []Payment       `json:"payments"`
	PostedDate    time.Time       `json:"posted_date"`
	FundedDate    time.Time       `json:"funded_date"`
	JournalTotals JournalTotals   `json:"journal_totals"`
}

// TotalPaid sums the amount of every recorded payment
func (l Loan) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Payments {
		total = total.Add(p.Amount)
	}

	return total
}

type Lender struct {
	LenderId     string    `json:"lender_id"`
	Name         string    `json:"name"`
	Image        Image     `json:"image"`
	Whereabouts  string    `json:"whereabouts"`
	CountryCode  string    `json:"country_code"`
	Uid          string    `json:"uid"`
	MemberSince  time.Time `json:"member_since"`
	PersonalUrl  string    `json:"personal_url"`
	Occupation   string    `json:"occupation"`
	LoanBecause  string    `json:"loan_because"`
	LoanCount    int       `json:"loan_count"`
	InviteeCount int       `json:"invitee_count"`
}

type LendingAction struct {
	Id     int64     `json:"id"`
	Date   time.Time `json:"date"`
	Lender Lender    `json:"lender"`
	Loan   Loan      `json:"loan"`
}
