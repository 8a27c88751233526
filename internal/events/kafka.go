package events

import (
	"context"
	"errors"
	"fmt"

	"jobfeed/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Handler func(ctx context.Context, evt DomainEvent) error

// messageSource is the slice of kafka.Reader the consumer depends on.
type messageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads domain events from the portal's event topic. Offsets are
// committed only after the handler succeeds, so delivery is at least once;
// the publisher's per-subject locking absorbs the duplicates.
type Consumer struct {
	reader messageSource
	logger *zap.Logger
}

func NewConsumer(cfg config.KafkaConfig, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return &Consumer{reader: reader, logger: logger}
}

// Run consumes until ctx is cancelled or an event cannot be handled. Commits
// are positional: committing a message marks everything before it consumed,
// so on handler failure Run stops without fetching further and returns; the
// caller restarts consumption from the last committed offset, which redelivers
// the failed message.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if c == nil || c.reader == nil || handle == nil {
		return errors.New("consumer not configured")
	}

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			return err
		}

		evt, err := Parse(msg.Value)
		if err != nil {
			// Malformed payloads are unrecoverable; skip past them.
			c.logger.Warn("skipping malformed event",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				return err
			}
			continue
		}

		if err := handle(ctx, evt); err != nil {
			c.logger.Error("event handling failed, stopping at uncommitted offset",
				zap.String("event_type", string(evt.Type)),
				zap.String("entity_id", evt.Subject.ID.String()),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return fmt.Errorf("handle event at offset %d: %w", msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
