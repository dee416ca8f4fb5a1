package service

import (
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/models"
)

// BoardScope selects what a board shows and how often each resource is polled.
// Stats need a department; board state and windows need a board id.
type BoardScope struct {
	Topic      string
	BoardID    string
	Department string
	Date       string

	StatsInterval   time.Duration
	BoardInterval   time.Duration
	WindowsInterval time.Duration
}

// ConnectionListener observes push channel state changes.
type ConnectionListener func(state models.ConnectionState)
