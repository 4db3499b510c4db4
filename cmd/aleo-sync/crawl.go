package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/crawler"
	"github.com/octobees/aleo-sync/internal/directory"
	"github.com/octobees/aleo-sync/internal/repository"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <phrase>",
	Short: "Crawl directory search results into the database",
	Long:  "Runs a directory search, enriches every new result from its profile page and upserts the records page by page.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		count, _ := cmd.Flags().GetInt("count")
		if count < 0 {
			return eris.Errorf("--count must not be negative, got %d", count)
		}
		if cmd.Flags().Changed("headless") {
			cfg.Crawl.Headless, _ = cmd.Flags().GetBool("headless")
		}
		workers, _ := cmd.Flags().GetInt("workers")
		if !cmd.Flags().Changed("workers") {
			workers = cfg.Crawl.Workers
		}
		city, _ := cmd.Flags().GetString("city")
		voivodeship, _ := cmd.Flags().GetString("voivodeship")
		registryType, _ := cmd.Flags().GetString("registry-type")
		engine, _ := cmd.Flags().GetString("browser")

		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		dir, err := directory.New(cfg.Crawl.BaseURL, directory.DefaultSelectors(), cfg.Crawl.PageSize)
		if err != nil {
			return err
		}

		b, closeBrowser, err := openBrowser(ctx, engine, cfg.Crawl)
		if err != nil {
			return err
		}
		defer closeBrowser()

		c := crawler.New(dir, b, repository.NewPGXCompaniesRepository(pool))
		res, err := c.Run(ctx, crawler.Options{
			Query: directory.SearchQuery{
				Phrase:       args[0],
				Voivodeship:  voivodeship,
				City:         city,
				RegistryType: registryType,
			},
			Target:      count,
			DetailDelay: cfg.Crawl.DetailDelay,
			Workers:     workers,
		})
		if err != nil {
			return eris.Wrap(err, "crawl")
		}

		zap.L().Info("crawl finished",
			zap.String("run_id", res.RunID.String()),
			zap.Int("pages", res.Pages),
			zap.Int("records", len(res.Records)),
			zap.Int("inserted", res.Inserted),
			zap.Int("updated", res.Updated),
			zap.Int("enrich_failed", res.EnrichFailed),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "crawled %d records over %d pages (%d inserted, %d updated)\n",
			len(res.Records), res.Pages, res.Inserted, res.Updated)
		return nil
	},
}

func init() {
	crawlCmd.Flags().Int("count", 0, "stop after this many unique records (0 = all pages)")
	crawlCmd.Flags().Bool("headless", true, "run Chrome headless (overrides CRAWL_HEADLESS)")
	crawlCmd.Flags().String("city", "", "restrict the search to a city")
	crawlCmd.Flags().String("voivodeship", "", "restrict the search to a voivodeship")
	crawlCmd.Flags().String("registry-type", "", "restrict the search to a registry type (CEIDG, KRS, REGON)")
	crawlCmd.Flags().Int("workers", 1, "concurrent profile enrichments per page (overrides CRAWL_WORKERS)")
	crawlCmd.Flags().String("browser", browserChrome, "page engine: chrome or http")
	rootCmd.AddCommand(crawlCmd)
}
