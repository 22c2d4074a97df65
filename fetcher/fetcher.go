// Package fetcher resolves the dependency functions a valuation declares,
// such as get_quote or get_income_statement, into decoded API responses.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"dval/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	fmpV3 = "https://financialmodelingprep.com/api/v3"
	dcf   = "https://discountingcashflows.com/api"
)

// DefaultEndpoints maps dependency names to URL templates. Templates may use
// {ticker}, {apikey} and {today}.
var DefaultEndpoints = map[string]string{
	"get_cash_flow_statement":               fmpV3 + "/cash-flow-statement/{ticker}/?apikey={apikey}",
	"get_quote":                             fmpV3 + "/quote/{ticker}?apikey={apikey}",
	"get_profile":                           fmpV3 + "/profile/{ticker}?apikey={apikey}",
	"get_income_statement":                  fmpV3 + "/income-statement/{ticker}?apikey={apikey}",
	"get_balance_sheet_statement":           fmpV3 + "/balance-sheet-statement/{ticker}?apikey={apikey}",
	"get_income_statement_quarterly":        fmpV3 + "/income-statement/{ticker}?period=quarter&apikey={apikey}",
	"get_balance_sheet_statement_quarterly": fmpV3 + "/balance-sheet-statement/{ticker}?period=quarter&apikey={apikey}",
	"get_cash_flow_statement_quarterly":     fmpV3 + "/cash-flow-statement/{ticker}?period=quarter&apikey={apikey}",
	"get_income_statement_ltm":              dcf + "/income-statement/ltm/{ticker}/",
	"get_cash_flow_statement_ltm":           dcf + "/cash-flow-statement/ltm/{ticker}/",
	"get_treasury":                          "https://financialmodelingprep.com/api/v4/treasury?to={today}&apikey={apikey}",
}

// Progress is told how many requests a fetch makes and about every one
// that completes
type Progress interface {
	Expect(requests int)
	Increment()
}

type Options struct {
	APIKey string

	// Endpoints extend or replace DefaultEndpoints
	Endpoints map[string]string

	// RequestsPerSecond of zero means unlimited
	RequestsPerSecond float64
	Burst             int

	Client   *http.Client
	Progress Progress

	// Now is used for {today}
	Now func() time.Time
}

type Fetcher struct {
	endpoints map[string]string
	apiKey    string
	client    *http.Client
	limiter   *rate.Limiter
	progress  Progress
	now       func() time.Time
	log       *logger.Entry
}

// Request is one resolved dependency
type Request struct {
	Dependency string
	URL        string
}

func New(opts Options) *Fetcher {
	endpoints := make(map[string]string, len(DefaultEndpoints)+len(opts.Endpoints))
	for name, template := range DefaultEndpoints {
		endpoints[name] = template
	}
	for name, template := range opts.Endpoints {
		endpoints[name] = template
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Fetcher{
		endpoints: endpoints,
		apiKey:    opts.APIKey,
		client:    client,
		limiter:   limiter,
		progress:  opts.Progress,
		now:       now,
		log:       logger.GetLogger().WithComponent("fetcher"),
	}
}

// Requests resolves dependency names in order. Unknown names are skipped.
func (f *Fetcher) Requests(ticker string, deps []string) []Request {
	replacer := strings.NewReplacer(
		"{ticker}", url.PathEscape(strings.ToUpper(ticker)),
		"{apikey}", url.QueryEscape(f.apiKey),
		"{today}", f.now().Format("2006-01-02"),
	)

	requests := make([]Request, 0, len(deps))
	for _, dep := range deps {
		template, found := f.endpoints[dep]
		if !found {
			f.log.WithField("dependency", dep).Debug("no endpoint for dependency, skipping")
			continue
		}

		requests = append(requests, Request{Dependency: dep, URL: replacer.Replace(template)})
	}
	return requests
}

// Fetch requests every known dependency concurrently and returns the decoded
// bodies in declaration order. The first failure cancels the others.
func (f *Fetcher) Fetch(ctx context.Context, ticker string, deps []string) ([]any, error) {
	requests := f.Requests(ticker, deps)
	values := make([]any, len(requests))

	if len(requests) == 0 {
		return values, nil
	}

	f.log.WithFields(logger.Fields{"ticker": ticker, "url_count": len(requests)}).Debug("fetching dependencies")
	if f.progress != nil {
		f.progress.Expect(len(requests))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(len(requests))

	for i, request := range requests {
		i, request := i, request

		g.Go(func() error {
			value, err := f.get(ctx, request)
			if err != nil {
				return err
			}

			values[i] = value
			if f.progress != nil {
				f.progress.Increment()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

func (f *Fetcher) get(ctx context.Context, request Request) (any, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", request.Dependency, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", request.Dependency, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", request.Dependency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: unexpected status %s", request.Dependency, resp.Status)
	}

	var value any
	if err := json.NewDecoder(resp.Body).Decode(&value); err != nil {
		return nil, fmt.Errorf("%s: unable to decode response: %w", request.Dependency, err)
	}

	logger.LogPerformanceEntry(f.log.WithField("dependency", request.Dependency), "fetch", time.Since(start), nil)
	return value, nil
}
