package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"dval/config"
	"dval/failure"
	"dval/fetcher"
	"dval/pipeline"
	"dval/sandbox"
	"dval/snippet"
	"dval/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type evaluationFlags struct {
	ticker    string
	overrides string
	timeout   float64
	isolation string
	asJSON    bool
}

func addEvaluationFlags(cmd *cobra.Command, flags *evaluationFlags) {
	cmd.Flags().StringVarP(&flags.ticker, "ticker", "t", "", "Ticker to value, e.g. AAPL")
	cmd.Flags().StringVarP(&flags.overrides, "input", "i", "", "Input overrides, e.g. '#MIN=51&MAX=52'")
	cmd.Flags().Float64Var(&flags.timeout, "timeout", 0, "Evaluation budget in seconds (default from config, 5)")
	cmd.Flags().StringVar(&flags.isolation, "isolation", "", "Where the model runs: runtime or process")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the result as JSON")
	_ = cmd.MarkFlagRequired("ticker")
}

func readValuation(path string) (string, error) {
	bytes, err := ioutil.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read valuation: %w", err)
	}
	return string(bytes), nil
}

func snippetOptions(file string) snippet.Options {
	cfg := config.GlobalCfg
	return snippet.Options{
		File:              file,
		Marker:            cfg.Marker,
		DescriptionMarker: cfg.DescriptionMarker,
		FunctionName:      cfg.FunctionName,
	}
}

func newPipeline(file string, flags *evaluationFlags, progress fetcher.Progress) (*pipeline.Pipeline, error) {
	cfg := config.GlobalCfg

	timeout := cfg.Timeout
	if flags.timeout < 0 {
		return nil, fmt.Errorf("--timeout must be positive")
	} else if flags.timeout > 0 {
		timeout = time.Duration(flags.timeout * float64(time.Second))
	}

	isolation := sandbox.Isolation(cfg.Isolation)
	switch flags.isolation {
	case "":
	case string(sandbox.IsolationRuntime), string(sandbox.IsolationProcess):
		isolation = sandbox.Isolation(flags.isolation)
	default:
		return nil, fmt.Errorf("unknown isolation `%s`, expected `runtime` or `process`", flags.isolation)
	}

	stopOnWatch := cfg.StopOnWatch

	return pipeline.New(pipeline.Options{
		Snippet: snippetOptions(file),
		Evaluator: sandbox.Options{
			Timeout:   timeout,
			Isolation: isolation,
			File:      file,
		},
		Source: fetcher.New(fetcher.Options{
			APIKey:            cfg.Fetch.APIKey,
			Endpoints:         cfg.Fetch.Endpoints,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
			Burst:             cfg.Fetch.Burst,
			Progress:          progress,
		}),
		StopOnWatch: &stopOnWatch,
	}), nil
}

// newProgressBar returns nil unless a person is watching stderr
func newProgressBar(flags *evaluationFlags) *utils.ProgressBar {
	if flags.asJSON || !utils.IsTerminal(os.Stderr) {
		return nil
	}
	return utils.NewProgressBar(os.Stderr, "📡 Fetching "+flags.ticker, 0)
}

// progressOf avoids handing the fetcher a typed nil
func progressOf(pb *utils.ProgressBar) fetcher.Progress {
	if pb == nil {
		return nil
	}
	return pb
}

type failureOutput struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func printOutcome(out io.Writer, result sandbox.Result, err error, asJSON bool) {
	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")

		var f *failure.Error
		switch {
		case err == nil:
			_ = encoder.Encode(result)
		case errors.As(err, &f):
			_ = encoder.Encode(f)
		default:
			_ = encoder.Encode(failureOutput{Kind: "Error", Message: err.Error()})
		}
		return
	}

	if err != nil {
		fmt.Fprintf(out, "❌ %s\n", err)
		return
	}

	for _, line := range result.Logs {
		fmt.Fprintf(out, "   %s\n", line)
	}

	switch {
	case result.Stopped:
		fmt.Fprintf(out, "⏹  Stopped at %s %s (%s)\n", formatValue(result.Value), result.Currency, result.ID)
	case result.Reported:
		fmt.Fprintf(out, "✅ Estimated value %s %s (%s in %s)\n", formatValue(result.Value), result.Currency, result.ID, result.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(out, "⚠️ The model finished without reporting a value (%s)\n", result.ID)
	}
}

func formatValue(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
