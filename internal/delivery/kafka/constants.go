package kafka

const (
	// TopicQueueEvents carries push envelopes from the queue backend, keyed by board topic.
	TopicQueueEvents = "queue.events"
	// TopicBoardEvents receives every committed board change.
	TopicBoardEvents = "board.events"

	HeaderTimestamp = "timestamp"
	HeaderClientID  = "client_id"
	HeaderKind      = "kind"
)
