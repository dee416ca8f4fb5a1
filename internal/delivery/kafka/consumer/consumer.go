package consumer

import (
	"context"
	"sync"

	"github.com/IBM/sarama"
	"github.com/vogiaan1904/clinic-queueboard/internal/delivery/kafka"
	"github.com/vogiaan1904/clinic-queueboard/internal/domain"
	"github.com/vogiaan1904/clinic-queueboard/internal/service"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

type Consumer struct {
	consGr   sarama.ConsumerGroup
	boardSvc service.BoardService
	l        logger.Logger
	wg       sync.WaitGroup
}

func NewConsumer(
	consGr sarama.ConsumerGroup,
	boardSvc service.BoardService,
	l logger.Logger,
) *Consumer {
	return &Consumer{
		consGr:   consGr,
		boardSvc: boardSvc,
		l:        l,
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case kafka.TopicQueueEvents:
		return c.HandleQueueEvent(ctx, msg)
	default:
		c.l.Warnf(ctx, "delivery.kafka.consumer.processMessage: unknown topic %s", msg.Topic)
		return nil
	}
}

// HandleQueueEvent feeds one push envelope into the board. Messages keyed for
// another board are skipped. Undecodable messages are logged and acknowledged,
// since redelivery cannot fix them.
func (c *Consumer) HandleQueueEvent(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if key := string(msg.Key); key != "" && key != c.boardSvc.Topic() {
		return nil
	}

	env, err := domain.DecodeMessage(msg.Value)
	if err != nil {
		c.l.Warnf(ctx, "delivery.kafka.consumer.HandleQueueEvent: offset %d: %v", msg.Offset, err)
		return nil
	}

	return c.boardSvc.Submit(env)
}

func (c *Consumer) Start(ctx context.Context) error {
	topics := []string{kafka.TopicQueueEvents}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consGr.Consume(ctx, topics, c); err != nil {
				c.l.Errorf(ctx, "delivery.kafka.consumer.Start: %v", err)
			}

			if ctx.Err() != nil {
				c.l.Infof(ctx, "delivery.kafka.consumer.Start: %v", ctx.Err())
				return
			}
		}
	}()

	// Handle errors
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consGr.Errors() {
			c.l.Errorf(ctx, "delivery.kafka.consumer.Start: %v", err)
		}
	}()

	c.l.Infof(ctx, "Consumer is consuming topics: %v", topics)
	return nil
}

func (c *Consumer) Close() error {
	if err := c.consGr.Close(); err != nil {
		return err
	}

	c.wg.Wait()
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session started")
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.l.Debug(context.Background(), "Consumer group session ended")
	return nil
}

func (c *Consumer) ConsumeClaim(ss sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			if err := c.processMessage(ss.Context(), message); err != nil {
				c.l.Errorw(ss.Context(), "delivery.kafka.consumer.ConsumeClaim",
					"error", err,
					"topic", message.Topic,
					"offset", message.Offset,
				)
				continue
			}

			ss.MarkMessage(message, "")

		case <-ss.Context().Done():
			return nil
		}
	}
}
