package kafka

import (
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/models"
)

// Events published BY the board

type BoardChangeEvent struct {
	Topic     string        `json:"topic"`
	ClientID  string        `json:"client_id"`
	Change    models.Change `json:"change"`
	Timestamp time.Time     `json:"timestamp"`
}

// Events consumed BY the board are push envelopes in the wire format
// understood by domain.DecodeMessage, so they need no type here.
