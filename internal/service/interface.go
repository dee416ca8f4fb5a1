package service

import (
	"context"

	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/poll"
	"github.com/vogiaan1904/clinic-queueboard/internal/queue"
)

type BoardService interface {
	Start(ctx context.Context) error
	Stop()
	// Submit feeds an event from an extra source, such as the kafka consumer.
	Submit(env models.Envelope) error
	Board(ctx context.Context) (queue.Board, error)
	Connection() models.ConnectionState
	Topic() string
}

// Fetcher builds the poll requests for one board.
type Fetcher interface {
	Stats(department, date string) poll.FetchFunc[models.QueueSnapshot]
	BoardState(boardID string) poll.FetchFunc[models.BoardState]
	Windows(boardID string) poll.FetchFunc[[]models.Window]
}
