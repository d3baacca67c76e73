package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/logger"
)

var (
	alertsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_persisted_total",
		Help: "Alerts consumed from the stream and written to storage",
	})

	alertsWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_write_errors_total",
		Help: "Alerts that failed to persist and were left unacknowledged",
	})
)

// WriterConfig configures the stream consumer side of alert persistence.
type WriterConfig struct {
	Stream   string // stream the Sink publishes to
	Group    string // consumer group name, shared across writer instances
	Consumer string // this instance's consumer name within the group
}

// DefaultWriterConfig returns the writer settings used in production.
func DefaultWriterConfig(stream string) WriterConfig {
	return WriterConfig{
		Stream:   stream,
		Group:    "alert-writers",
		Consumer: "writer-1",
	}
}

// Writer drains the alert stream into durable storage. It acknowledges a
// message only after the write succeeds, so a crashed writer leaves its
// pending entries for redelivery.
type Writer struct {
	redis   storage.RedisClient
	storage storage.AlertStorage
	config  WriterConfig
}

// NewWriter creates a stream-to-storage alert writer.
func NewWriter(redis storage.RedisClient, alertStorage storage.AlertStorage, config WriterConfig) *Writer {
	return &Writer{
		redis:   redis,
		storage: alertStorage,
		config:  config,
	}
}

// Run consumes the alert stream until ctx is cancelled or the message
// channel closes.
func (w *Writer) Run(ctx context.Context) error {
	messages, err := w.redis.ConsumeFromStream(ctx, w.config.Stream, w.config.Group, w.config.Consumer)
	if err != nil {
		return fmt.Errorf("failed to consume alert stream: %w", err)
	}

	logger.Info("alert writer started",
		logger.String("stream", w.config.Stream),
		logger.String("group", w.config.Group),
		logger.String("consumer", w.config.Consumer),
	)

	for {
		// Cancellation wins over pending messages
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Writer) handleMessage(ctx context.Context, msg storage.StreamMessage) {
	alert, err := decodeAlert(msg)
	if err != nil {
		// A message that can never decode would be redelivered forever
		logger.Warn("discarding undecodable alert message",
			logger.String("message_id", msg.ID),
			logger.ErrorField(err),
		)
		w.ack(ctx, msg.ID)
		return
	}

	if err := w.storage.WriteAlert(ctx, alert); err != nil {
		alertsWriteErrors.Inc()
		logger.Error("failed to persist alert, leaving unacknowledged",
			logger.String("alert_id", alert.ID),
			logger.String("message_id", msg.ID),
			logger.ErrorField(err),
		)
		return
	}

	alertsPersisted.Inc()
	w.ack(ctx, msg.ID)
}

func (w *Writer) ack(ctx context.Context, id string) {
	if err := w.redis.AcknowledgeMessage(ctx, w.config.Stream, w.config.Group, id); err != nil {
		logger.Warn("failed to acknowledge alert message",
			logger.String("message_id", id),
			logger.ErrorField(err),
		)
	}
}

func decodeAlert(msg storage.StreamMessage) (*models.Alert, error) {
	raw, ok := msg.Values[streamField]
	if !ok {
		return nil, fmt.Errorf("message %s has no %q field", msg.ID, streamField)
	}
	data, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("message %s field %q is not a string", msg.ID, streamField)
	}

	var alert models.Alert
	if err := json.Unmarshal([]byte(data), &alert); err != nil {
		return nil, fmt.Errorf("failed to decode alert from message %s: %w", msg.ID, err)
	}
	if alert.ID == "" {
		return nil, fmt.Errorf("message %s decoded to an alert with no ID", msg.ID)
	}
	return &alert, nil
}
