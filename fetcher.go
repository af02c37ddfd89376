package kivaquery

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"kivaquery/kiva"
)

const lenderBatchSize = 50
const loanBatchSize = 10

// Fetcher walks the paged kiva endpoints through the result cache
type Fetcher struct {
	client  kiva.Client
	results *ResultManager
	logger  *zap.Logger
}

func NewFetcher(client kiva.Client, results *ResultManager, logger *zap.Logger) Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}

	return Fetcher{client: client, results: results, logger: logger}
}

// fetchPage returns true when paging should carry on
func (f Fetcher) fetchPage(ctx context.Context, h FetchHandler, qt QueryType, queryURL string) (bool, error) {
	page, err := f.results.Results(ctx, qt, queryURL)
	if err != nil {
		return false, err
	}

	more, err := HandleFile(ctx, qt, page, h)
	if err != nil {
		return false, err
	}

	return more && h.ContinueQuery(page), nil
}

func (f Fetcher) fetchPages(ctx context.Context, h FetchHandler, qt QueryType, startAtPage int, pageURL func(page int) string) error {
	for i := startAtPage; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		more, err := f.fetchPage(ctx, h, qt, pageURL(i))
		if err != nil {
			return fmt.Errorf("unable to fetch %s page %d: %w", qt, i, err)
		}

		f.logger.Debug("fetched page", zap.Stringer("type", qt), zap.Int("page", i), zap.Bool("more", more))
		if !more {
			return nil
		}
	}
}

func (f Fetcher) fetchBatches(ctx context.Context, h FetchHandler, qt QueryType, batchSize int, ids []string, batchURL func(ids ...string) string) error {
	if len(ids) == 0 {
		return kiva.MissingIdsError
	}

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		more, err := f.fetchPage(ctx, h, qt, batchURL(ids[i:end]...))
		if err != nil {
			return fmt.Errorf("unable to fetch %s batch starting at %d: %w", qt, i, err)
		}
		if !more {
			return nil
		}
	}

	return nil
}

func (f Fetcher) FetchLenders(ctx context.Context, h FetchHandler, startAtPage int) error {
	return f.fetchPages(ctx, h, Lenders, startAtPage, f.client.LendersSearchURL)
}

func (f Fetcher) FetchNewestLenders(ctx context.Context, h FetchHandler, startAtPage int) error {
	return f.fetchPages(ctx, h, NewestLenders, startAtPage, f.client.NewestLendersURL)
}

func (f Fetcher) FetchTeamLenders(ctx context.Context, h FetchHandler, teamId int) error {
	return f.fetchPages(ctx, h, TeamLenders, 1, func(page int) string {
		return f.client.TeamLendersURL(teamId, page)
	})
}

// FetchLendersByIds asks for lenders 50 at a time
func (f Fetcher) FetchLendersByIds(ctx context.Context, h FetchHandler, ids ...string) error {
	return f.fetchBatches(ctx, h, Lenders, lenderBatchSize, ids, f.client.LendersByIdURL)
}

func (f Fetcher) FetchLenderById(ctx context.Context, h FetchHandler, id string) error {
	return f.FetchLendersByIds(ctx, h, id)
}

// GetLenderById returns the raw lender object or nil when kiva knows no such lender
func (f Fetcher) GetLenderById(ctx context.Context, id string) (json.RawMessage, error) {
	var lender json.RawMessage
	h := Complete(HandlerFunc(func(ctx context.Context, item json.RawMessage) error {
		lender = item
		return nil
	}))

	if err := f.FetchLendersByIds(ctx, h, id); err != nil {
		return nil, fmt.Errorf("unable to get lender \"%s\": %w", id, err)
	}

	return lender, nil
}

func (f Fetcher) FetchLatestLendingActions(ctx context.Context, h FetchHandler) error {
	page, err := f.results.Results(ctx, RecentLendingActions, f.client.RecentLendingActionsURL())
	if err != nil {
		return fmt.Errorf("unable to fetch recent lending actions: %w", err)
	}

	_, err = HandleFile(ctx, RecentLendingActions, page, h)
	return err
}

func (f Fetcher) FetchNewestLoans(ctx context.Context, h FetchHandler, startAtPage int) error {
	return f.fetchPages(ctx, h, Loans, startAtPage, f.client.NewestLoansURL)
}

// FetchLoansByIds asks for loans 10 at a time, the most the loans endpoint accepts
func (f Fetcher) FetchLoansByIds(ctx context.Context, h FetchHandler, ids ...string) error {
	return f.fetchBatches(ctx, h, Loans, loanBatchSize, ids, f.client.LoansByIdURL)
}
