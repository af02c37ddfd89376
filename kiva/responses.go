package kiva

import (
	"encoding/json"
	"fmt"
)

type LoansResponse struct {
	Header Header `json:"header"`
	Loans  []Loan `json:"loans"`
}

type LendersResponse struct {
	Header  Header   `json:"header"`
	Lenders []Lender `json:"lenders"`
}

type LendingActionsResponse struct {
	LendingActions []LendingAction `json:"lending_actions"`
}

func DecodeLoansPage(data []byte) (LoansResponse, error) {
	r := LoansResponse{}
	if err := json.Unmarshal(data, &r); err != nil {
		return LoansResponse{}, fmt.Errorf("unable to decode loans page: %w", err)
	}

	return r, nil
}

func DecodeLendersPage(data []byte) (LendersResponse, error) {
	r := LendersResponse{}
	if err := json.Unmarshal(data, &r); err != nil {
		return LendersResponse{}, fmt.Errorf("unable to decode lenders page: %w", err)
	}

	return r, nil
}

func DecodeLendingActionsPage(data []byte) (LendingActionsResponse, error) {
	r := LendingActionsResponse{}
	if err := json.Unmarshal(data, &r); err != nil {
		return LendingActionsResponse{}, fmt.Errorf("unable to decode lending actions page: %w", err)
	}

	return r, nil
}
