package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kafka "github.com/vogiaan1904/clinic-queueboard/internal/delivery/kafka"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

func callStarted(number int) models.Change {
	e := models.QueueEntry{Number: number, Status: models.EntryStatusCalled}
	return models.Change{Kind: models.ChangeCallStarted, Topic: "Derma+2025-01-10", Entry: &e}
}

func TestPublishChange(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, config)
	defer sp.Close()

	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != kafka.TopicBoardEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "Derma+2025-01-10" {
			return errors.New("unexpected key " + string(key))
		}
		val, _ := msg.Value.Encode()
		var ev kafka.BoardChangeEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.ClientID != "board-a" || ev.Change.Entry.Number != 12 {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewProducer(sp, "board-a", logger.InitializeTestZapLogger())
	require.NoError(t, p.PublishChange(context.Background(), callStarted(12)))
}

type recordingProducer struct {
	published chan models.Change
	err       error
}

func (p *recordingProducer) PublishChange(_ context.Context, c models.Change) error {
	p.published <- c
	return p.err
}

func (p *recordingProducer) Close() error { return nil }

func TestMirrorPublishesInOrder(t *testing.T) {
	rp := &recordingProducer{published: make(chan models.Change, 8), err: errors.New("broker down")}
	m := NewMirror(rp, 8, logger.InitializeTestZapLogger())

	m.HandleChanges(context.Background(), []models.Change{callStarted(1), callStarted(2)})
	m.HandleChanges(context.Background(), []models.Change{callStarted(3)})
	m.Close()
	m.Close()

	close(rp.published)
	var got []int
	for c := range rp.published {
		got = append(got, c.Entry.Number)
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	// Changes after Close are ignored rather than panicking on the closed buffer.
	assert.NotPanics(t, func() {
		m.HandleChanges(context.Background(), []models.Change{callStarted(4)})
	})
}
