package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"dval/pipeline"
	"dval/utils"
	"dval/watcher"
)

var (
	watchFlags       evaluationFlags
	skipInitialBuild bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	addEvaluationFlags(watchCmd, &watchFlags)

	watchCmd.Flags().BoolVarP(&skipInitialBuild, "skip-run", "s", false, "Skip the initial evaluation and go straight into watch mode")
}

var watchCmd = &cobra.Command{
	Use:     "watch [valuation file]",
	Short:   "Re-evaluates a valuation model whenever you save it",
	Example: "dval watch dcf.js -t AAPL",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := pipeline.ParseOverrides(watchFlags.overrides)
		if err != nil {
			return err
		}

		p, err := newPipeline(args[0], &watchFlags, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		request := pipeline.Request{Ticker: watchFlags.ticker, Overrides: overrides}

		if !skipInitialBuild {
			evaluateFile(ctx, out, p, args[0], request)
		}

		return watchLoop(ctx, out, p, args[0], request)
	},
}

func watchLoop(ctx context.Context, out io.Writer, p *pipeline.Pipeline, path string, request pipeline.Request) error {
	watch, err := watcher.NewWatcher(0)
	if err != nil {
		return fmt.Errorf("unable to start watching the file system for changes: %w", err)
	}
	defer watch.Close()

	if err := watch.Watch(path); err != nil {
		return fmt.Errorf("unable to watch %s: %w", path, err)
	}

	for {
		fmt.Fprintf(out, "\n⏳  Waiting for you to save changes to %s...\n", path)

		select {
		case <-ctx.Done():
			return nil
		case <-watch.EventsReady:
		}

		// Events are batched, so saves made while an evaluation was running
		// lead to one more evaluation rather than one per save
		batch := watch.GetEventsBatch()
		if batch == nil {
			continue
		}

		removed := true
		for _, event := range batch.Events() {
			if event.EventType != watcher.DELETED {
				removed = false
			}
		}
		if removed {
			fmt.Fprintf(out, "🗑  %s was removed\n", path)
			continue
		}

		utils.ClearTerminal(out)
		evaluateFile(ctx, out, p, path, request)
	}
}

func evaluateFile(ctx context.Context, out io.Writer, p *pipeline.Pipeline, path string, request pipeline.Request) {
	src, err := readValuation(path)
	if err != nil {
		fmt.Fprintf(out, "❌ %s\n", err)
		return
	}

	result, err := p.Run(ctx, src, request)
	printOutcome(out, result, err, watchFlags.asJSON)
}
