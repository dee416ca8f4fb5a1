package queue

import (
	"context"

	"github.com/vogiaan1904/clinic-queueboard/internal/models"
)

// Board is the serialized copy of a topic's state kept in the cache.
type Board struct {
	Topic         string                `json:"topic"`
	Entries       []models.QueueEntry   `json:"entries"`
	CurrentCall   int                   `json:"current_call,omitempty"`
	Snapshot      *models.QueueSnapshot `json:"snapshot,omitempty"`
	Announcements []models.Announcement `json:"announcements,omitempty"`
	BoardState    *models.BoardState    `json:"board_state,omitempty"`
	Windows       []models.Window       `json:"windows,omitempty"`
}

// Current returns the entry highlighted as the current call, if any.
func (b Board) Current() *models.QueueEntry {
	if b.CurrentCall == 0 {
		return nil
	}
	for i := range b.Entries {
		if b.Entries[i].Number == b.CurrentCall {
			e := b.Entries[i].Clone()
			return &e
		}
	}
	return nil
}

// Subscriber receives the changes of one applied event, in order.
// It is called on the manager's goroutine and must not block.
type Subscriber interface {
	HandleChanges(ctx context.Context, changes []models.Change)
}

type SubscriberFunc func(ctx context.Context, changes []models.Change)

func (f SubscriberFunc) HandleChanges(ctx context.Context, changes []models.Change) {
	f(ctx, changes)
}
