// Package pipeline turns the raw text of a valuation into a result: it
// extracts and rewrites the construct, fetches the declared dependencies,
// binds them and evaluates the rewritten function.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dval/failure"
	"dval/logger"
	"dval/sandbox"
	"dval/snippet"
)

// DataSource resolves dependency names into one value each, in order
type DataSource interface {
	Fetch(ctx context.Context, ticker string, deps []string) ([]any, error)
}

type Options struct {
	Snippet   snippet.Options
	Evaluator sandbox.Options
	Source    DataSource

	// StopOnWatch is returned by _StopIfWatch; nil means true
	StopOnWatch *bool
}

type Request struct {
	Ticker    string
	Overrides sandbox.Overrides
}

type Pipeline struct {
	opts      Options
	evaluator *sandbox.Evaluator
	log       *logger.Entry
}

// Prepared is a valuation ready to be bound and evaluated
type Prepared struct {
	Function  snippet.Function
	Construct *snippet.Construct
}

func New(opts Options) *Pipeline {
	if opts.Evaluator.File == "" && opts.Snippet.File != "" {
		opts.Evaluator.File = opts.Snippet.File
	}

	return &Pipeline{
		opts:      opts,
		evaluator: sandbox.NewEvaluator(opts.Evaluator),
		log:       logger.GetLogger().WithComponent("pipeline"),
	}
}

// Prepare locates the construct in src and rewrites it. It never touches the
// network.
func (p *Pipeline) Prepare(src string) (Prepared, error) {
	start := time.Now()

	construct, err := snippet.Extract(src, p.opts.Snippet)
	if err != nil {
		return Prepared{}, err
	}

	fn, err := snippet.Rewrite(src, p.opts.Snippet)
	if err != nil {
		return Prepared{}, err
	}

	logger.LogPerformanceEntry(p.log, "prepare", time.Since(start), logger.Fields{
		"dependencies": construct.Dependencies,
		"parameters":   construct.Parameters,
	})

	return Prepared{Function: fn, Construct: construct}, nil
}

// Run prepares src, fetches its dependencies for req.Ticker and evaluates it
func (p *Pipeline) Run(ctx context.Context, src string, req Request) (sandbox.Result, error) {
	prepared, err := p.Prepare(src)
	if err != nil {
		return sandbox.Result{}, err
	}

	return p.Evaluate(ctx, prepared, req)
}

// Evaluate fetches the dependencies of an already prepared valuation and
// evaluates it. A prepared valuation can be evaluated any number of times.
func (p *Pipeline) Evaluate(ctx context.Context, prepared Prepared, req Request) (sandbox.Result, error) {
	if p.opts.Source == nil {
		return sandbox.Result{}, fmt.Errorf("no data source configured")
	}

	log := p.log.WithField("ticker", req.Ticker)

	start := time.Now()
	values, err := p.opts.Source.Fetch(ctx, req.Ticker, prepared.Construct.Dependencies)
	if err != nil {
		return sandbox.Result{}, fmt.Errorf("unable to fetch dependencies: %w", err)
	}
	logger.LogPerformanceEntry(log, "fetch", time.Since(start), logger.Fields{"values": len(values)})

	ec, err := sandbox.NewExecutionContext(prepared.Construct.Parameters, values, sandbox.ContextOptions{
		Overrides:   req.Overrides,
		StopOnWatch: p.opts.StopOnWatch,
	})
	if err != nil {
		return sandbox.Result{}, err
	}

	result, err := p.evaluator.Evaluate(ctx, prepared.Function, ec)
	if err != nil {
		log.WithError(err).WithField("kind", failure.KindOf(err)).Debug("evaluation failed")
		return result, err
	}

	log.WithFields(logger.Fields{
		"id":       result.ID,
		"value":    result.Value,
		"currency": result.Currency,
	}).Info("valuation evaluated")

	return result, nil
}

// ParseOverrides reads input overrides written as `#MIN=51&MAX=52`. The
// leading `#` is optional. Numeric values become float64, the rest stay
// strings.
func ParseOverrides(s string) (sandbox.Overrides, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	overrides := make(sandbox.Overrides)

	if s == "" {
		return overrides, nil
	}

	for _, item := range strings.Split(s, "&") {
		if item == "" {
			continue
		}

		key, value, found := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("override `%s` is not of the form KEY=VALUE", item)
		}

		value = strings.TrimSpace(value)
		if number, err := strconv.ParseFloat(value, 64); err == nil {
			overrides[key] = number
		} else {
			overrides[key] = value
		}
	}

	return overrides, nil
}
