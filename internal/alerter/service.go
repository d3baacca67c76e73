package alerter

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/trade-alerter/internal/alert"
	"github.com/mohamedkhairy/trade-alerter/internal/data"
	"github.com/mohamedkhairy/trade-alerter/internal/engine"
	"github.com/mohamedkhairy/trade-alerter/internal/enrich"
	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/rules"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var (
	quotesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerter_quotes_processed_total",
		Help: "Quotes consumed from the market data feed",
	})

	barsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerter_bars_processed_total",
		Help: "Bars fed into the indicator series",
	})

	quoteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerter_quote_errors_total",
		Help: "Quotes that failed enrichment or emission",
	})

	rulesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerter_rules_matched_total",
		Help: "Rule matches produced by evaluation",
	})

	evaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alerter_evaluation_duration_seconds",
		Help:    "Time spent enriching and evaluating one quote",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
)

// Service is the evaluation pipeline: it consumes the market data feed,
// enriches quotes into snapshots, evaluates the active rule set, and hands
// matches to the alert sink.
type Service struct {
	engine   *engine.Engine
	rules    *rules.CachedSource
	enricher *enrich.Enricher
	sink     *alert.Sink
	provider data.Provider
	symbols  []string
}

// New assembles the pipeline
func New(ruleSource *rules.CachedSource, enricher *enrich.Enricher, sink *alert.Sink, provider data.Provider, symbols []string) *Service {
	return &Service{
		engine:   engine.New(),
		rules:    ruleSource,
		enricher: enricher,
		sink:     sink,
		provider: provider,
		symbols:  symbols,
	}
}

// Run subscribes to the feed and processes it until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	if len(s.symbols) == 0 {
		return fmt.Errorf("no symbols to watch")
	}

	feed, err := s.provider.Subscribe(ctx, s.symbols)
	if err != nil {
		return fmt.Errorf("failed to subscribe to market data: %w", err)
	}
	defer s.provider.Close()

	logger.Info("alerter started",
		logger.String("provider", s.provider.Name()),
		logger.Int("symbols", len(s.symbols)),
	)

	quotes := feed.Quotes
	bars := feed.Bars
	for {
		select {
		case <-ctx.Done():
			logger.Info("alerter stopping")
			return ctx.Err()

		case bar, ok := <-bars:
			if !ok {
				bars = nil
				continue
			}
			barsProcessed.Inc()
			if err := s.enricher.AddBar(bar); err != nil {
				logger.Warn("dropping bad bar",
					logger.String("symbol", bar.Symbol),
					logger.ErrorField(err),
				)
			}

		case quote, ok := <-quotes:
			if !ok {
				// Feed is gone; the provider already exhausted its retries
				return fmt.Errorf("market data feed closed")
			}
			quotesProcessed.Inc()
			if err := s.ProcessQuote(ctx, quote); err != nil {
				quoteErrors.Inc()
				logger.Error("quote processing failed",
					logger.String("symbol", quote.Symbol),
					logger.ErrorField(err),
				)
			}
		}
	}
}

// ProcessQuote runs one quote through enrichment, evaluation, and emission
func (s *Service) ProcessQuote(ctx context.Context, quote *models.Quote) error {
	timer := prometheus.NewTimer(evaluationDuration)

	snapshot, err := s.enricher.Snapshot(quote)
	if err != nil {
		timer.ObserveDuration()
		return fmt.Errorf("enrichment failed: %w", err)
	}

	active, err := s.rules.EnabledRules()
	if err != nil {
		timer.ObserveDuration()
		return fmt.Errorf("failed to load rules: %w", err)
	}

	candidates := s.engine.Evaluate(snapshot, active)
	timer.ObserveDuration()
	if len(candidates) == 0 {
		return nil
	}
	rulesMatched.Add(float64(len(candidates)))
	return s.sink.Emit(ctx, candidates, snapshot.Timestamp)
}
