package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

// rootCmd is the kivaquery command line
var rootCmd = &cobra.Command{
	Use:   "kivaquery",
	Short: "Query, cache and store data from the kiva api",
	Long: `kivaquery pages through the kiva api, caching every response on disk.

Cached pages and dump archives can be printed, validated, stored in
postgres and exported to xlsx.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".env", "env file to read config from")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and detailed summaries")

	rootCmd.AddCommand(fetchCmd, dumpCmd, storeCmd, cacheCmd, geocodeCmd, exportCmd, validateCmd, watchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
