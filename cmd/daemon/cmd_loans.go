package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kivaquery"
	"kivaquery/kiva"
)

const paymentLookups = 8

var (
	dumpFile    string
	storePages  int
	exportOut   string
	exportS3    bool
	exportLimit int
)

var dumpCmd = &cobra.Command{
	Use:   "dump <type>",
	Short: "Print the names stored under a query type in the latest dump",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qt, err := kivaquery.ParseQueryType(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.openDump()
		if err != nil {
			return err
		}

		h := kivaquery.Handler(kivaquery.NameHandler{W: cmd.OutOrStdout()})
		if qt == kivaquery.RecentLendingActions {
			h = kivaquery.LendingActionLoans(h)
		}

		return d.RunQuery(cmd.Context(), qt, h)
	},
}

var storeCmd = &cobra.Command{
	Use:   "store <dump|api|sample>",
	Short: "Store loans in postgres",
	Long: `Store loans in postgres, running migrations first.

Sources:
  dump   - every loans page of the latest dump
  api    - the newest loans pages, see --pages
  sample - the bundled sample page`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"dump", "api", "sample"},
	RunE:      runStore,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored loans and their payments to xlsx",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check the shape of a loans page, the bundled sample by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := kiva.SampleLoansJSON()
		name := "sample"
		if len(args) == 1 {
			var err error
			if data, err = os.ReadFile(args[0]); err != nil {
				return fmt.Errorf("unable to read %q: %w", args[0], err)
			}
			name = args[0]
		}

		if err := kivaquery.ValidateLoansJSON(data); err != nil {
			return err
		}

		page, err := kiva.DecodeLoansPage(data)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d loans ok\n", name, len(page.Loans))
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{dumpCmd, storeCmd} {
		c.Flags().StringVar(&dumpFile, "file", "", "dump zip to read instead of the latest in KIVA_DUMP_DIR")
	}
	storeCmd.Flags().IntVar(&storePages, "pages", 1, "newest loans pages to store from the api, 0 for all")

	exportCmd.Flags().StringVar(&exportOut, "out", "", "xlsx file to write, a generated name by default")
	exportCmd.Flags().BoolVar(&exportS3, "s3", false, "upload the workbook to the configured bucket")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "export at most this many loans, 0 for all")
}

func (a *app) openDump() (kivaquery.Dump, error) {
	if dumpFile != "" {
		return kivaquery.NewDumpFromFile(dumpFile, a.logger), nil
	}

	return kivaquery.NewDump(a.config.KivaDumpDir, a.logger)
}

func (a *app) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if a.config.PostgresUrl == "" {
		return nil, fmt.Errorf("POSTGRES_URL is not set")
	}

	pool, err := pgxpool.Connect(ctx, a.config.PostgresUrl)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})

	return pool, nil
}

func runStore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := kivaquery.Migrate(a.config.PostgresUrl, a.config.MigrationsDir); err != nil {
		return err
	}

	pool, err := a.connect(ctx)
	if err != nil {
		return err
	}

	stored := 0
	repo := kivaquery.PostgresLoanRepository{Conn: pool}
	h := kivaquery.LoanHandler(func(ctx context.Context, loan kiva.Loan) error {
		if err := repo.SaveLoan(ctx, loan); err != nil {
			return err
		}
		stored++
		return nil
	})

	switch args[0] {
	case "dump":
		var d kivaquery.Dump
		if d, err = a.openDump(); err == nil {
			err = d.RunQuery(ctx, kivaquery.Loans, h)
		}
	case "api":
		maxPages = storePages
		err = a.fetcher().FetchNewestLoans(ctx, pageLimit(h), 1)
		if saveErr := a.results.Save(ctx); saveErr != nil && err == nil {
			err = saveErr
		}
	case "sample":
		_, err = kivaquery.HandleFile(ctx, kivaquery.Loans, kiva.SampleLoansJSON(), h)
	default:
		return fmt.Errorf("unknown loan source %q", args[0])
	}
	if err != nil {
		return err
	}

	a.logger.Info("stored loans", zap.String("source", args[0]), zap.Int("loans", stored))
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %d loans\n", stored)
	return err
}

// storedLoans pages through the repository and attaches each loan's payments
func storedLoans(ctx context.Context, repo kivaquery.LoanRepository, limit int) ([]kiva.Loan, error) {
	const pageSize = 500

	var loans []kiva.Loan
	for offset := 0; limit <= 0 || len(loans) < limit; offset += pageSize {
		page, err := repo.ListLoans(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		full := len(page) == pageSize

		if limit > 0 && len(loans)+len(page) > limit {
			page = page[:limit-len(loans)]
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(paymentLookups)
		for i := range page {
			i := i
			g.Go(func() error {
				payments, err := repo.GetLoanPayments(gctx, page[i].Id)
				if err != nil {
					return fmt.Errorf("unable to get payments of loan %d: %w", page[i].Id, err)
				}
				page[i].Payments = payments
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		loans = append(loans, page...)
		if !full {
			break
		}
	}

	return loans, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pool, err := a.connect(ctx)
	if err != nil {
		return err
	}

	loans, err := storedLoans(ctx, kivaquery.PostgresLoanRepository{Conn: pool}, exportLimit)
	if err != nil {
		return err
	}

	data, err := kivaquery.ExportLoansBytes(loans)
	if err != nil {
		return err
	}

	name := exportOut
	if name == "" {
		name = kivaquery.ExportFileName(time.Now())
	}

	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("unable to write %q: %w", name, err)
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %d loans to %s\n", len(loans), name); err != nil {
		return err
	}

	if !exportS3 {
		return nil
	}

	uploader, err := kivaquery.NewS3Uploader(a.config.S3())
	if err != nil {
		return err
	}

	key, err := uploader.Upload(ctx, filepath.Base(name), data)
	if err != nil {
		return err
	}

	url, err := uploader.PresignedURL(ctx, key, 24*time.Hour)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n%s\n", key, url)
	return err
}
