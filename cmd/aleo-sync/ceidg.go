package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octobees/aleo-sync/internal/ceidg"
	"github.com/octobees/aleo-sync/internal/repository"
	"github.com/octobees/aleo-sync/internal/retry"
	"github.com/octobees/aleo-sync/internal/service"
)

var ceidgCmd = &cobra.Command{
	Use:   "ceidg",
	Short: "Copy CEIDG register entries for crawled companies",
	Long:  "Fetches the CEIDG register entry for one company (--nip or --company-id) or for every company with a NIP and no stored entry (--all-missing).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		allMissing, _ := cmd.Flags().GetBool("all-missing")
		nip, _ := cmd.Flags().GetString("nip")
		companyID, _ := cmd.Flags().GetInt64("company-id")
		limit, _ := cmd.Flags().GetInt("limit")

		modes := 0
		for _, set := range []bool{allMissing, nip != "", companyID != 0} {
			if set {
				modes++
			}
		}
		if modes != 1 {
			return eris.New("exactly one of --all-missing, --nip or --company-id is required")
		}

		if err := cfg.RequireCEIDG(); err != nil {
			return err
		}

		client, err := ceidg.NewClient(ceidg.Config{
			Token:   cfg.CEIDG.Token,
			BaseURL: cfg.CEIDG.BaseURL,
			Client:  &http.Client{Timeout: cfg.Subscriber.HTTPTimeout},
			Policy: retry.Policy{
				MaxAttempts: cfg.Subscriber.RetryCount,
				Base:        cfg.Subscriber.RetryBackoffBase,
			},
		})
		if err != nil {
			return err
		}

		pool, err := openPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		svc := service.NewCEIDGService(client, repository.NewPGXCEIDGRepository(pool), cfg.CEIDG.Pace)

		switch {
		case nip != "":
			if err := svc.SyncByTaxID(ctx, nip); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved register entry for nip %s\n", nip)
		case companyID != 0:
			if err := svc.SyncByCompanyID(ctx, companyID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved register entry for company %d\n", companyID)
		default:
			summary, err := svc.SyncAllMissing(ctx, limit)
			if err != nil {
				return err
			}
			zap.L().Info("ceidg sync finished",
				zap.Int("candidates", summary.Candidates),
				zap.Int("saved", summary.Saved),
				zap.Int("missing", summary.Missing),
				zap.Int("failed", summary.Failed),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d of %d register entries (%d missing, %d failed)\n",
				summary.Saved, summary.Candidates, summary.Missing, summary.Failed)
		}
		return nil
	},
}

func init() {
	ceidgCmd.Flags().Bool("all-missing", false, "sync every company with a NIP and no stored entry")
	ceidgCmd.Flags().String("nip", "", "sync the company with this NIP")
	ceidgCmd.Flags().Int64("company-id", 0, "sync the company with this id")
	ceidgCmd.Flags().Int("limit", 500, "maximum companies for --all-missing")
	rootCmd.AddCommand(ceidgCmd)
}
