package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/packratdev/packrat/internal/detect"
	"github.com/packratdev/packrat/internal/enrich"
	"github.com/packratdev/packrat/internal/repl"
	"github.com/packratdev/packrat/internal/session"
)

var (
	reviewScanPath    string
	reviewCatalogPath string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review a scan interactively before saving items",
	Long: `Open an interactive shell over the curated detections of a scan:
browse items, toggle which ones to keep, run enrichment, and save the
selection to the catalog. Enrichment needs ANTHROPIC_API_KEY; without
it the shell still works for selection and saving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
		defer stop()

		scan, err := detect.LoadManifest(reviewScanPath)
		if err != nil {
			return fmt.Errorf("load scan: %w", err)
		}
		sources, err := scan.LoadImages()
		if err != nil {
			return fmt.Errorf("load images: %w", err)
		}

		// The analyzer is optional here: the shell degrades to
		// selection-only when no API key is configured.
		var analyzer enrich.Analyzer
		if os.Getenv("ANTHROPIC_API_KEY") != "" {
			claude, err := enrich.NewClaudeAnalyzer("", cfg.Enrich, logger)
			if err != nil {
				return fmt.Errorf("create analyzer: %w", err)
			}
			analyzer = claude
		}

		sess, err := session.New(cfg, sources, scan.Detections, analyzer, logger)
		if err != nil {
			return err
		}
		sess.SetResumeHook(func() {
			fmt.Println("Enrichment was interrupted; run 'enrich' to restart it.")
		})

		shell, err := repl.New(&repl.Config{
			Session:     sess,
			CatalogPath: reviewCatalogPath,
		})
		if err != nil {
			return err
		}
		return shell.Run(ctx)
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewScanPath, "scan", "", "path to the scan manifest JSON (required)")
	reviewCmd.Flags().StringVar(&reviewCatalogPath, "db", "packrat.db", "catalog database path for 'save'")
	_ = reviewCmd.MarkFlagRequired("scan")
	rootCmd.AddCommand(reviewCmd)
}
