// Package repl implements the interactive review shell over a curation
// session.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/packratdev/packrat/internal/enrich"
	"github.com/packratdev/packrat/internal/session"
	"github.com/packratdev/packrat/internal/store"
	"github.com/packratdev/packrat/internal/store/sqlite"
)

// CommandHandler handles a specific shell command.
type CommandHandler func(args []string) error

// Config holds review shell configuration.
type Config struct {
	Session *session.Session
	// CatalogPath is where `save` writes finalized items.
	CatalogPath string
}

// REPL drives the review loop: listing survivors, toggling selection,
// triggering enrichment, and saving the final picks.
type REPL struct {
	session     *session.Session
	catalogPath string
	ctx         context.Context
	rl          *readline.Instance
	commands    map[string]CommandHandler
}

// New creates a review shell for one session.
func New(cfg *Config) (*REPL, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if cfg.CatalogPath == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	r := &REPL{
		session:     cfg.Session,
		catalogPath: cfg.CatalogPath,
		commands:    make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["list"] = r.cmdList
	r.commands["ls"] = r.cmdList
	r.commands["next"] = r.cmdNext
	r.commands["prev"] = r.cmdPrev
	r.commands["show"] = r.cmdShow
	r.commands["toggle"] = r.cmdToggle
	r.commands["all"] = r.cmdAll
	r.commands["none"] = r.cmdNone
	r.commands["unique"] = r.cmdUnique
	r.commands["enrich"] = r.cmdEnrich
	r.commands["cancel"] = r.cmdCancel
	r.commands["save"] = r.cmdSave
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

// Run starts the review loop and blocks until the user exits.
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("packrat> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		// An interrupted enrichment run announces itself once.
		r.session.HandleResume()

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				r.session.CancelInFlight()
				continue
			}
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	handler, ok := r.commands[parts[0]]
	if !ok {
		return fmt.Errorf("unknown command %q (try 'help')", parts[0])
	}
	return handler(parts[1:])
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("packrat review"))
	fmt.Printf("%d items survived curation. ", r.session.Count())
	fmt.Println("Type 'help' for commands, 'save' to write selected items.")
	fmt.Println()
}

func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("Commands:"))
	for _, c := range []struct{ name, desc string }{
		{"list", "List surviving items with selection marks"},
		{"next / prev", "Move the card cursor"},
		{"show [id]", "Show one item in full (default: current card)"},
		{"toggle <id>", "Flip an item's selection"},
		{"all / none", "Select or deselect everything"},
		{"unique", "Select one representative per duplicate group"},
		{"enrich", "Run the second AI pass over all items"},
		{"cancel", "Cancel enrichment and discard its results"},
		{"save", "Finalize selected items into the catalog"},
		{"exit / quit", "Leave the shell"},
	} {
		fmt.Printf("  %-14s %s\n", c.name, c.desc)
	}
	fmt.Println()
	return nil
}

func (r *REPL) cmdList(args []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for i, d := range r.session.Items() {
		mark := " "
		if r.session.IsSelected(d.ID) {
			mark = green("x")
		}
		cursor := " "
		if i == r.session.CardIndex() {
			cursor = ">"
		}
		hint := ""
		if g, ok := r.session.GroupFor(d.ID); ok {
			hint = gray(fmt.Sprintf("  (1 of %d similar)", g.Size()))
		}
		fmt.Printf("%s [%s] %-8s %-30s %.2f%s\n", cursor, mark, d.ID, d.Title, d.Confidence, hint)
	}
	return nil
}

func (r *REPL) cmdNext(args []string) error {
	r.session.Next()
	return r.cmdShow(nil)
}

func (r *REPL) cmdPrev(args []string) error {
	r.session.Prev()
	return r.cmdShow(nil)
}

func (r *REPL) cmdShow(args []string) error {
	if len(args) > 0 {
		for i, it := range r.session.Items() {
			if it.ID == args[0] {
				r.session.SetCardIndex(i)
				break
			}
		}
	}
	d, ok := r.session.Current()
	if !ok {
		return fmt.Errorf("no items to show")
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("\n%s  (%d/%d)\n", bold(d.Title), r.session.CardIndex()+1, r.session.Count())
	fmt.Printf("  id:         %s\n", d.ID)
	fmt.Printf("  confidence: %.2f\n", d.Confidence)
	if d.Category != "" {
		fmt.Printf("  category:   %s\n", d.Category)
	}
	if d.Description != "" {
		fmt.Printf("  about:      %s\n", d.Description)
	}
	if d.Make != "" || d.Model != "" {
		fmt.Printf("  make/model: %s %s\n", d.Make, d.Model)
	}
	if d.EstimatedPriceText != "" {
		fmt.Printf("  est. price: %s\n", d.EstimatedPriceText)
	}
	if g, ok := r.session.GroupFor(d.ID); ok {
		fmt.Printf("  duplicates: %s\n", strings.Join(g.MemberIDs, ", "))
	}
	if thumb, err := r.session.PrimaryThumbnail(r.ctx, d.ID); err == nil && thumb != nil {
		b := thumb.Bounds()
		fmt.Printf("  preview:    %dx%d\n", b.Dx(), b.Dy())
	}
	if fields, ok := r.session.Enrichment(d.ID); ok {
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("  %s\n", green("enriched:"))
		for _, kv := range [][2]string{
			{"title", fields.Title}, {"condition", fields.Condition},
			{"dimensions", fields.Dimensions}, {"weight", fields.Weight},
			{"price", fields.EstimatedPrice}, {"serial", fields.SerialNumber},
		} {
			if kv[1] != "" {
				fmt.Printf("    %-10s %s\n", kv[0]+":", kv[1])
			}
		}
	}
	fmt.Printf("  selected:   %s\n\n", strconv.FormatBool(r.session.IsSelected(d.ID)))
	return nil
}

func (r *REPL) cmdToggle(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: toggle <id>")
	}
	r.session.Toggle(args[0])
	return nil
}

func (r *REPL) cmdAll(args []string) error {
	r.session.SelectAll()
	fmt.Printf("Selected all %d items.\n", r.session.Count())
	return nil
}

func (r *REPL) cmdNone(args []string) error {
	r.session.DeselectAll()
	fmt.Println("Selection cleared.")
	return nil
}

func (r *REPL) cmdUnique(args []string) error {
	r.session.SelectUnique()
	fmt.Printf("Selected %d unique items.\n", len(r.session.Selected()))
	return nil
}

func (r *REPL) cmdEnrich(args []string) error {
	// Readline only holds the terminal in raw mode while prompting, so a
	// Ctrl+C pressed during the run arrives as SIGINT. Catch it for the
	// duration of this command and abort the in-flight calls.
	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		select {
		case <-interrupts:
			r.session.CancelInFlight()
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Printf("Enriching %d items (Ctrl+C to cancel)...\n", r.session.Count())
	err := r.session.Enrich(ctx, func(enrich.Result) {
		completed, total := r.session.EnrichProgress()
		fmt.Printf("\r  %d/%d", completed, total)
	})
	fmt.Println()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		fmt.Println("Enrichment interrupted; partial results kept.")
		return nil
	}
	completed, total := r.session.EnrichProgress()
	if total > 0 && completed == total {
		fmt.Println("Enrichment complete. Use 'show' to see the new fields.")
	}
	return nil
}

func (r *REPL) cmdCancel(args []string) error {
	r.session.CancelEnrichment()
	fmt.Println("Enrichment cancelled; results discarded.")
	return nil
}

func (r *REPL) cmdSave(args []string) error {
	catalog, err := sqlite.Open(r.catalogPath)
	if err != nil {
		return fmt.Errorf("%s", store.UserMessage(err))
	}
	defer catalog.Close()

	saved, err := r.session.Finalize(r.ctx, catalog)
	if err != nil {
		if len(saved) > 0 {
			fmt.Printf("Saved %d items before the failure.\n", len(saved))
		}
		return fmt.Errorf("%s", store.UserMessage(err))
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Saved %d items to %s\n", green("ok"), len(saved), r.catalogPath)
	for _, item := range saved {
		line := fmt.Sprintf("  %s  %s", item.DetectionID, item.Title)
		if item.DisplayHint != "" {
			line += "  [" + item.DisplayHint + "]"
		}
		fmt.Println(line)
	}
	return nil
}

func (r *REPL) cmdExit(args []string) error {
	fmt.Println("Goodbye!")
	return io.EOF
}
