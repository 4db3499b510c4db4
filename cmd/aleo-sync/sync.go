package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/dto"
	"github.com/octobees/aleo-sync/internal/repository"
	"github.com/octobees/aleo-sync/internal/retry"
	"github.com/octobees/aleo-sync/internal/service"
	"github.com/octobees/aleo-sync/internal/subscriber"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push stored contacts to the subscriber API",
	Long:  "Reads companies with an email from the database, validates and deduplicates the addresses, upserts each one as a subscriber and optionally assigns it to a group.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.RequireSubscriber(); err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("adapter")
		filter := dto.SubscriberFilter{Limit: cfg.Subscriber.QueryLimit}
		filter.SearchCity, _ = cmd.Flags().GetString("search-city")
		filter.RegistryType, _ = cmd.Flags().GetString("registry-type")
		filter.City, _ = cmd.Flags().GetString("city")
		if cmd.Flags().Changed("limit") {
			filter.Limit, _ = cmd.Flags().GetInt("limit")
		}

		adapter, err := newAdapter(kind)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := service.NewSyncService(repository.NewPGXCompaniesRepository(pool), adapter, service.SyncOptions{
			GroupID: cfg.Subscriber.GroupID,
			Status:  cfg.Subscriber.Status,
			Pace:    cfg.Subscriber.BatchSleep,
		})
		summary, err := svc.Sync(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "subscriber sync")
		}

		zap.L().Info("sync finished",
			zap.Int("total", summary.Total),
			zap.Int("invalid", summary.Invalid),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("synced", summary.Synced),
			zap.Int("failed", summary.Failed),
			zap.Int("grouped", summary.Grouped),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d of %d contacts (%d invalid, %d duplicates, %d failed)\n",
			summary.Synced, summary.Total, summary.Invalid, summary.Duplicates, summary.Failed)
		return nil
	},
}

func newAdapter(kind string) (subscriber.Adapter, error) {
	policy := retry.Policy{
		MaxAttempts: cfg.Subscriber.RetryCount,
		Base:        cfg.Subscriber.RetryBackoffBase,
	}
	switch kind {
	case "http", "":
		a, err := subscriber.NewHTTPAdapter(subscriber.HTTPConfig{
			APIKey:  cfg.Subscriber.APIKey,
			BaseURL: cfg.Subscriber.BaseURL,
			Client:  &http.Client{Timeout: cfg.Subscriber.HTTPTimeout},
			Policy:  policy,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "sdk":
		a, err := subscriber.NewSDKAdapter(subscriber.SDKConfig{
			APIKey: cfg.Subscriber.APIKey,
			Client: &http.Client{Timeout: cfg.Subscriber.HTTPTimeout},
			Policy: policy,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, eris.Errorf("unknown adapter %q (want http or sdk)", kind)
	}
}

func init() {
	syncCmd.Flags().String("adapter", "http", "subscriber client: http or sdk")
	syncCmd.Flags().String("search-city", "", "only contacts crawled with this search city")
	syncCmd.Flags().String("registry-type", "", "only contacts crawled with this registry type")
	syncCmd.Flags().String("city", "", "only contacts located in this city")
	syncCmd.Flags().Int("limit", 0, "maximum contacts to read (overrides QUERY_LIMIT, 0 = all)")
	rootCmd.AddCommand(syncCmd)
}
