package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/packratdev/packrat/internal/store/sqlite"
)

var itemsDBPath string

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List the saved catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := sqlite.Open(itemsDBPath)
		if err != nil {
			return err
		}
		defer catalog.Close()

		summaries, err := catalog.ListItems(context.Background())
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("The catalog is empty.")
			return nil
		}

		rows := make([][]string, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, []string{
				s.DetectionID, s.Title, s.Category, s.Condition,
				s.EstimatedPrice, strconv.Itoa(s.ImageCount),
				s.SavedAt.Local().Format("2006-01-02 15:04"),
			})
		}
		fmt.Println(renderTable(
			[]string{"ID", "Title", "Category", "Condition", "Est. Price", "Images", "Saved"},
			rows, isTerminal(os.Stdout)))
		return nil
	},
}

func init() {
	itemsCmd.Flags().StringVar(&itemsDBPath, "db", "packrat.db", "catalog database path")
	rootCmd.AddCommand(itemsCmd)
}
