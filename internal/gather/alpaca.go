package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"eulerbt/internal/domain"
	"eulerbt/internal/store"
	"eulerbt/internal/util"
)

var _ Gatherer = (*AlpacaBarGatherer)(nil)

// barClient is the subset of *marketdata.Client used for historical bars.
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

var timeFrames = map[string]marketdata.TimeFrame{
	"1m":  marketdata.OneMin,
	"1h":  marketdata.OneHour,
	"1d":  marketdata.OneDay,
	"day": marketdata.OneDay,
}

// AlpacaBarGatherer downloads historical bars for one symbol from the Alpaca
// market-data API and writes them to a BarStore. The range is fetched one
// calendar month at a time so a failure only retries a single chunk.
type AlpacaBarGatherer struct {
	client  barClient
	store   store.BarStore
	key     store.SeriesKey
	tf      marketdata.TimeFrame
	feed    string
	window  DateRange
	limiter *util.RateLimiter
	backoff time.Duration
	log     *slog.Logger
}

// NewAlpacaBarGatherer creates a gatherer for key over window. Supported
// intervals are 1m, 1h and 1d.
func NewAlpacaBarGatherer(apiKey, apiSecret, dataURL, feed string, s store.BarStore, key store.SeriesKey, window DateRange, ratePerMin int) (*AlpacaBarGatherer, error) {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return newAlpacaBarGatherer(marketdata.NewClient(opts), feed, s, key, window, ratePerMin)
}

func newAlpacaBarGatherer(client barClient, feed string, s store.BarStore, key store.SeriesKey, window DateRange, ratePerMin int) (*AlpacaBarGatherer, error) {
	tf, ok := timeFrames[strings.ToLower(key.Interval)]
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", key.Interval)
	}
	if window.Empty() {
		return nil, fmt.Errorf("empty date range %s..%s", window.Start.Format(time.DateOnly), window.End.Format(time.DateOnly))
	}
	if ratePerMin <= 0 {
		ratePerMin = 200
	}
	key.Symbol = strings.ToUpper(key.Symbol)

	return &AlpacaBarGatherer{
		client:  client,
		store:   s,
		key:     key,
		tf:      tf,
		feed:    feed,
		window:  window,
		limiter: util.NewRateLimiter(ratePerMin),
		backoff: time.Second,
		log:     slog.Default().With("gatherer", "alpaca-bars", "symbol", key.Symbol),
	}, nil
}

// Name returns the gatherer identifier.
func (g *AlpacaBarGatherer) Name() string { return "alpaca-bars" }

// Run fetches every monthly chunk of the window and stores the bars. It
// returns once the window is covered or ctx is cancelled.
func (g *AlpacaBarGatherer) Run(ctx context.Context) error {
	total := 0
	for _, chunk := range g.window.Months() {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var bars []domain.Bar
		err := util.Retry(ctx, 3, g.backoff, func() error {
			if err := ctx.Err(); err != nil {
				return util.Permanent(err)
			}
			var err error
			bars, err = g.fetch(chunk)
			return err
		})
		if err != nil {
			return fmt.Errorf("fetching %s %s..%s: %w", g.key.Symbol,
				chunk.Start.Format(time.DateOnly), chunk.End.Format(time.DateOnly), err)
		}

		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, g.key, bars); err != nil {
				return fmt.Errorf("writing bars: %w", err)
			}
		}
		total += len(bars)
		g.log.Debug("chunk stored", "start", chunk.Start, "end", chunk.End, "bars", len(bars))
	}

	g.log.Info("gather complete", "bars", total)
	return nil
}

func (g *AlpacaBarGatherer) fetch(chunk DateRange) ([]domain.Bar, error) {
	abars, err := g.client.GetBars(g.key.Symbol, marketdata.GetBarsRequest{
		TimeFrame: g.tf,
		Start:     chunk.Start,
		End:       chunk.End,
		Feed:      g.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(abars))
	for _, ab := range abars {
		bars = append(bars, domain.Bar{
			Symbol:    g.key.Symbol,
			Timestamp: ab.Timestamp,
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return bars, nil
}
