package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/packratdev/packrat/internal/detect"
	"github.com/packratdev/packrat/internal/enrich"
	"github.com/packratdev/packrat/internal/session"
	"github.com/packratdev/packrat/internal/store"
	"github.com/packratdev/packrat/internal/store/sqlite"
)

var (
	curateScanPath string
	curateEnrich   bool
	curateOutPath  string
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Run the curation pipeline over a scan and print the results",
	Long: `Load a scan manifest, gate out low-quality detections, cluster
duplicates, and pick the best crop images per item. With --enrich, run
the second AI pass (requires ANTHROPIC_API_KEY). With --out, save one
representative per physical item to the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scan, err := detect.LoadManifest(curateScanPath)
		if err != nil {
			return fmt.Errorf("load scan: %w", err)
		}
		sources, err := scan.LoadImages()
		if err != nil {
			return fmt.Errorf("load images: %w", err)
		}

		var analyzer enrich.Analyzer
		if curateEnrich {
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
		// Abort network calls promptly on Ctrl+C instead of waiting for
		// the next yield point.
		go func() {
			<-ctx.Done()
			sess.CancelInFlight()
		}()

		logger.Info("curating", "session", sess.ID(),
			"detections", len(scan.Detections), "survivors", sess.Count())
		if err := sess.EnsureCurated(ctx); err != nil {
			return err
		}

		if curateEnrich && ctx.Err() == nil {
			fmt.Printf("Enriching %d items...\n", sess.Count())
			if err := sess.Enrich(ctx, func(enrich.Result) {
				completed, total := sess.EnrichProgress()
				fmt.Printf("\r  %d/%d", completed, total)
			}); err != nil {
				return err
			}
			fmt.Println()
		}

		printSummary(ctx, sess)

		if curateOutPath != "" && ctx.Err() == nil {
			return saveUnique(ctx, sess, curateOutPath)
		}
		return nil
	},
}

func printSummary(ctx context.Context, sess *session.Session) {
	tty := isTerminal(os.Stdout)
	rows := make([][]string, 0, sess.Count())
	for _, d := range sess.Items() {
		images, _ := sess.CuratedImages(ctx, d.ID)

		dupes := ""
		if g, ok := sess.GroupFor(d.ID); ok {
			dupes = fmt.Sprintf("1 of %d", g.Size())
		}
		condition, price := "", d.EstimatedPriceText
		if fields, ok := sess.Enrichment(d.ID); ok {
			condition = fields.Condition
			if fields.EstimatedPrice != "" {
				price = fields.EstimatedPrice
			}
		}
		rows = append(rows, []string{
			d.ID, d.Title, d.Category,
			fmt.Sprintf("%.2f", d.Confidence),
			strconv.Itoa(len(images)),
			dupes, condition, price,
		})
	}
	fmt.Println(renderTable(
		[]string{"ID", "Title", "Category", "Conf", "Images", "Dupes", "Condition", "Est. Price"},
		rows, tty))
}

func saveUnique(ctx context.Context, sess *session.Session, path string) error {
	sess.SelectUnique()

	catalog, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("%s", store.UserMessage(err))
	}
	defer catalog.Close()

	saved, err := sess.Finalize(ctx, catalog)
	if err != nil {
		return fmt.Errorf("%s", store.UserMessage(err))
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Saved %d items to %s\n", green("ok"), len(saved), path)
	return nil
}

func init() {
	curateCmd.Flags().StringVar(&curateScanPath, "scan", "", "path to the scan manifest JSON (required)")
	curateCmd.Flags().BoolVar(&curateEnrich, "enrich", false, "run the second AI pass over surviving items")
	curateCmd.Flags().StringVar(&curateOutPath, "out", "", "save unique survivors to this catalog database")
	_ = curateCmd.MarkFlagRequired("scan")
	rootCmd.AddCommand(curateCmd)
}
