package kivaquery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"kivaquery/kiva"
)

// Handler receives every item of a fetched or dumped page, one at a time
type Handler interface {
	Handle(ctx context.Context, item json.RawMessage) error
}

type HandlerFunc func(ctx context.Context, item json.RawMessage) error

func (f HandlerFunc) Handle(ctx context.Context, item json.RawMessage) error {
	return f(ctx, item)
}

// FetchHandler is a Handler that also decides whether paging should go on after each page
type FetchHandler interface {
	Handler
	ContinueQuery(page []byte) bool
}

type completeHandler struct {
	Handler
}

func (completeHandler) ContinueQuery([]byte) bool {
	return true
}

// Complete wraps h so that paging only stops once a page comes back empty
func Complete(h Handler) FetchHandler {
	return completeHandler{h}
}

func itemsKey(qt QueryType) (string, error) {
	switch qt {
	case Lenders, NewestLenders, TeamLenders:
		return "lenders", nil
	case Loans:
		return "loans", nil
	case RecentLendingActions:
		return "lending_actions", nil
	}

	return "", fmt.Errorf("%w: %s", UnsupportedQueryTypeError, qt)
}

// HandleFile hands every item of the page to h and reports whether the page held any items
func HandleFile(ctx context.Context, qt QueryType, page []byte, h Handler) (bool, error) {
	key, err := itemsKey(qt)
	if err != nil {
		return false, err
	}

	var file map[string]json.RawMessage
	if err := json.Unmarshal(page, &file); err != nil {
		return false, fmt.Errorf("unable to decode %s page: %w", qt, err)
	}

	raw, ok := file[key]
	if !ok {
		return false, fmt.Errorf("%s page has no \"%s\" array", qt, key)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return false, fmt.Errorf("unable to decode \"%s\" array: %w", key, err)
	}

	for i, item := range items {
		if err := h.Handle(ctx, item); err != nil {
			return false, fmt.Errorf("unable to handle %s item %d: %w", qt, i, err)
		}
	}

	return len(items) > 0, nil
}

// NameHandler writes the name of every lender or loan it sees, one per line
type NameHandler struct {
	W io.Writer
}

func (h NameHandler) Handle(ctx context.Context, item json.RawMessage) error {
	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(item, &named); err != nil {
		return fmt.Errorf("unable to decode item name: %w", err)
	}

	_, err := fmt.Fprintln(h.W, named.Name)
	return err
}

// LoanHandler decodes each item into a kiva.Loan before calling fn
func LoanHandler(fn func(ctx context.Context, loan kiva.Loan) error) Handler {
	return HandlerFunc(func(ctx context.Context, item json.RawMessage) error {
		loan := kiva.Loan{}
		if err := json.Unmarshal(item, &loan); err != nil {
			return fmt.Errorf("unable to decode loan: %w", err)
		}

		return fn(ctx, loan)
	})
}

// LendingActionLoans hands the loan of each lending action to h
func LendingActionLoans(h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, item json.RawMessage) error {
		var action struct {
			Loan json.RawMessage `json:"loan"`
		}
		if err := json.Unmarshal(item, &action); err != nil {
			return fmt.Errorf("unable to decode lending action: %w", err)
		}

		return h.Handle(ctx, action.Loan)
	})
}
