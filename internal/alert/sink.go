package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var (
	alertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_emitted_total",
		Help: "Alerts published to the alert stream, by setup type",
	}, []string{"setup_type"})

	alertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_suppressed_total",
		Help: "Alert candidates suppressed as duplicates",
	})

	alertsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_failed_total",
		Help: "Alerts that could not be published to the stream",
	})
)

// streamField is the stream entry field holding the alert JSON.
const streamField = "alert"

// SinkConfig configures where emitted alerts go
type SinkConfig struct {
	Stream  string // Redis stream, the durable path consumed by Writer
	Channel string // pub/sub channel for live fan-out
}

// Sink turns engine candidates into published alerts. It assigns identity
// and timestamps, suppresses duplicates, and publishes each evaluation
// pass to the alert stream in one shot. Persistence happens downstream in
// Writer, which consumes the stream; the stream is the durable buffer, so a
// failed stream publish is a lost alert and a failed live publish is not.
type Sink struct {
	redis  storage.RedisClient
	dedupe *Deduplicator
	config SinkConfig
}

// NewSink creates an alert sink. The deduplicator may be nil, in which case
// every candidate is emitted.
func NewSink(redis storage.RedisClient, dedupe *Deduplicator, config SinkConfig) *Sink {
	return &Sink{
		redis:  redis,
		dedupe: dedupe,
		config: config,
	}
}

// Emit processes the candidates from one evaluation pass.
func (s *Sink) Emit(ctx context.Context, candidates []*models.AlertCandidate, at time.Time) error {
	pending := make([]*models.Alert, 0, len(candidates))
	for _, candidate := range candidates {
		alert := s.buildAlert(candidate, at)

		if s.dedupe != nil {
			seen, err := s.dedupe.Seen(ctx, alert)
			if err != nil {
				// Redis trouble must not drop alerts; risk a duplicate instead
				logger.Warn("dedupe check failed, emitting anyway", logger.ErrorField(err))
			} else if seen {
				alertsSuppressed.Inc()
				continue
			}
		}
		pending = append(pending, alert)
	}

	if len(pending) == 0 {
		return nil
	}

	if err := s.publishStream(ctx, pending); err != nil {
		alertsFailed.Add(float64(len(pending)))
		return fmt.Errorf("failed to publish alerts: %w", err)
	}

	for _, alert := range pending {
		if s.config.Channel != "" {
			if err := s.redis.Publish(ctx, s.config.Channel, alert); err != nil {
				logger.Warn("failed to publish alert to live channel",
					logger.String("alert_id", alert.ID),
					logger.ErrorField(err),
				)
			}
		}

		alertsEmitted.WithLabelValues(string(alert.SetupType)).Inc()
		logger.Info("alert emitted",
			logger.String("alert_id", alert.ID),
			logger.String("symbol", alert.Symbol),
			logger.String("rule", alert.RuleName),
			logger.String("setup_type", string(alert.SetupType)),
			logger.Float64("entry_price", alert.EntryPrice),
			logger.Float64("confidence", alert.ConfidenceScore),
		)
	}
	return nil
}

func (s *Sink) buildAlert(candidate *models.AlertCandidate, at time.Time) *models.Alert {
	return &models.Alert{
		ID:                uuid.New().String(),
		RuleID:            candidate.RuleID,
		RuleName:          candidate.RuleName,
		Symbol:            candidate.Symbol,
		Timestamp:         at,
		SetupType:         candidate.SetupType,
		EntryPrice:        candidate.EntryPrice,
		StopLoss:          candidate.StopLoss,
		TargetPrice:       candidate.TargetPrice,
		ConfidenceScore:   candidate.ConfidenceScore,
		MatchedConditions: candidate.MatchedConditions,
		MarketData:        candidate.MarketData,
		CreatedAt:         time.Now().UTC(),
	}
}

// publishStream writes one pass to the stream, pipelining when a pass
// produced more than one alert.
func (s *Sink) publishStream(ctx context.Context, alerts []*models.Alert) error {
	if s.config.Stream == "" {
		return nil
	}
	if len(alerts) == 1 {
		return s.redis.PublishToStream(ctx, s.config.Stream, streamField, alerts[0])
	}

	messages := make([]map[string]interface{}, 0, len(alerts))
	for _, alert := range alerts {
		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert %s: %w", alert.ID, err)
		}
		messages = append(messages, map[string]interface{}{streamField: string(data)})
	}
	return s.redis.PublishBatchToStream(ctx, s.config.Stream, messages)
}
