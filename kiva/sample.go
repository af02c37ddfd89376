package kiva

import (
	_ "embed"
)

//go:embed testdata/sample_loans.json
var sampleLoans []byte

// SampleLoansJSON returns the raw bytes of the bundled loans page
func SampleLoansJSON() []byte {
	out := make([]byte, len(sampleLoans))
	copy(out, sampleLoans)
	return out
}

// SampleLoans decodes the bundled loans page. It holds one fully repaid loan with its nine payments.
func SampleLoans() (LoansResponse, error) {
	return DecodeLoansPage(sampleLoans)
}
