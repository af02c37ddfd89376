package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"kivaquery"
)

var (
	startAtPage int
	maxPages    int
)

// fetchCmd is the parent of every command that reads through the query cache
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch kiva pages through the query cache and print names",
	Long: `Fetch pages from the kiva api, answering from the query cache where possible.

Available subcommands:
  lenders         - every lender, in search order
  newest-lenders  - the newest lenders
  team <id>       - the lenders of a team
  lender <id...>  - lenders by id
  actions         - loans of the most recent lending actions
  loans [id...]   - newest loans, or loans by id`,
}

var fetchLendersCmd = &cobra.Command{
	Use:   "lenders",
	Short: "Print the names of all lenders",
	Args:  cobra.NoArgs,
	RunE: withFetcher(func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error {
		return f.FetchLenders(ctx, pageLimit(kivaquery.NameHandler{W: w}), startAtPage)
	}),
}

var fetchNewestLendersCmd = &cobra.Command{
	Use:   "newest-lenders",
	Short: "Print the names of the newest lenders",
	Args:  cobra.NoArgs,
	RunE: withFetcher(func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error {
		return f.FetchNewestLenders(ctx, pageLimit(kivaquery.NameHandler{W: w}), startAtPage)
	}),
}

var fetchTeamCmd = &cobra.Command{
	Use:   "team <team-id>",
	Short: "Print the names of a team's lenders",
	Args:  cobra.ExactArgs(1),
	RunE: withFetcher(func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error {
		teamId, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid team id %q: %w", args[0], err)
		}

		return f.FetchTeamLenders(ctx, pageLimit(kivaquery.NameHandler{W: w}), teamId)
	}),
}

var fetchLenderCmd = &cobra.Command{
	Use:   "lender <lender-id...>",
	Short: "Print lenders by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: withFetcher(func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error {
		if len(args) > 1 {
			return f.FetchLendersByIds(ctx, kivaquery.Complete(kivaquery.NameHandler{W: w}), args...)
		}

		lender, err := f.GetLenderById(ctx, args[0])
		if err != nil {
			return err
		}
		if lender == nil {
			_, err := fmt.Fprintf(w, "no lender %q\n", args[0])
			return err
		}

		formatted, err := kivaquery.FormatJSON(lender)
		if err != nil {
			return err
		}

		_, err = w.Write(formatted)
		return err
	}),
}

var fetchActionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Print the loans of the most recent lending actions",
	Args:  cobra.NoArgs,
	RunE: withFetcher(func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error {
		return f.FetchLatestLendingActions(ctx, kivaquery.Complete(kivaquery.LendingActionLoans(kivaquery.NameHandler{W: w})))
	}),
}

var fetchLoansCmd = &cobra.Command{
	Use:   "loans [loan-id...]",
	Short: "Print the names of the newest loans, or of the given loans",
	RunE: withFetcher(func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error {
		if len(args) > 0 {
			return f.FetchLoansByIds(ctx, kivaquery.Complete(kivaquery.NameHandler{W: w}), args...)
		}

		return f.FetchNewestLoans(ctx, pageLimit(kivaquery.NameHandler{W: w}), startAtPage)
	}),
}

func init() {
	for _, c := range []*cobra.Command{fetchLendersCmd, fetchNewestLendersCmd, fetchLoansCmd} {
		c.Flags().IntVar(&startAtPage, "start", 1, "first page to fetch")
	}
	for _, c := range []*cobra.Command{fetchLendersCmd, fetchNewestLendersCmd, fetchTeamCmd, fetchLoansCmd} {
		c.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages, 0 fetches until an empty page")
	}

	fetchCmd.AddCommand(fetchLendersCmd, fetchNewestLendersCmd, fetchTeamCmd, fetchLenderCmd, fetchActionsCmd, fetchLoansCmd)
}

type fetchFunc func(ctx context.Context, f kivaquery.Fetcher, w io.Writer, args []string) error

// withFetcher runs fn against a fresh app and saves the cache index even when fn fails part way
func withFetcher(fn fetchFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		runErr := fn(ctx, a.fetcher(), cmd.OutOrStdout(), args)

		if err := a.results.Save(ctx); err != nil {
			return err
		}
		if verbose {
			if err := a.results.WriteSummary(cmd.ErrOrStderr(), false); err != nil {
				return errors.Join(runErr, err)
			}
		}

		return runErr
	}
}

// limitedHandler stops paging once max pages have been handled
type limitedHandler struct {
	kivaquery.Handler
	max   int
	pages int
}

func (h *limitedHandler) ContinueQuery([]byte) bool {
	h.pages++
	return h.max <= 0 || h.pages < h.max
}

func pageLimit(h kivaquery.Handler) kivaquery.FetchHandler {
	return &limitedHandler{Handler: h, max: maxPages}
}
