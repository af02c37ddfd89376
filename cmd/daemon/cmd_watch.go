package main

import (
	"context"
	"encoding/json"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kivaquery"
)

var watchSchedule string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the recent lending actions in the query cache on a schedule",
	Long: `Refresh the recent lending actions in the query cache on a cron schedule
until interrupted. Every run queries the api, skipping the cache.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "*/5 * * * *", "cron schedule to refresh on")
}

func refreshLendingActions(ctx context.Context, a *app) error {
	page, err := a.results.QueryAndCache(ctx, kivaquery.RecentLendingActions, a.client.RecentLendingActionsURL())
	if err != nil {
		return err
	}

	actions := 0
	counter := kivaquery.HandlerFunc(func(ctx context.Context, item json.RawMessage) error {
		actions++
		return nil
	})
	if _, err := kivaquery.HandleFile(ctx, kivaquery.RecentLendingActions, page, counter); err != nil {
		return err
	}

	if err := a.results.Save(ctx); err != nil {
		return err
	}

	a.logger.Info("refreshed recent lending actions", zap.Int("actions", actions))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c := cron.New()
	_, err = c.AddFunc(watchSchedule, func() {
		if err := refreshLendingActions(ctx, a); err != nil {
			a.logger.Error("unable to refresh recent lending actions", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	a.logger.Info("watching recent lending actions", zap.String("schedule", watchSchedule))

	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}
