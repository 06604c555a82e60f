package tilestream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/geotwin/internal/core/observability"
	mylog "github.com/mohammed-shakir/geotwin/internal/logger"
)

// Consumer decodes tile events from a Kafka consumer group onto a Queue.
type Consumer struct {
	cfg    Config
	logger *slog.Logger
	queue  *Queue
	zlog   *zerolog.Logger
}

func NewConsumer(cfg Config, logger *slog.Logger, zl *zerolog.Logger, q *Queue) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	base := mylog.WithComponent(context.Background(), "tilestream")
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		queue:  q,
		zlog:   mylog.FromContext(base, zl),
	}
}

// Start blocks consuming until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.queue == nil {
		return errors.New("tilestream: missing queue")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("tilestream: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("tile stream consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("tile stream consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.zlog.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne decodes and queues one message. Malformed events are logged,
// counted and skipped so they do not block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncTileEvent("unknown", "decode_error")
		c.zlog.Warn().Err(err).
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("skipping tile event")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncTileEvent(opLabel(ev.Op), "invalid")
		mylog.FromContext(mylog.WithLayer(ctx, ev.Layer), c.zlog).Warn().Err(err).
			Str("kind", "validate").
			Str("feature_id", ev.FeatureID).
			Int64("offset", msg.Offset).
			Msg("skipping tile event")
		return nil
	}

	if err := c.queue.Push(ctx, ev); err != nil {
		return err
	}
	obs.IncTileEvent(ev.Op, "queued")
	return nil
}

func opLabel(op string) string {
	switch op {
	case OpLoad, OpUnload:
		return op
	}
	return "unknown"
}
