package models

import "time"

type EventType string

const (
	EventInitialState        EventType = "initial_state"
	EventPatientCall         EventType = "patient_call"
	EventCallCompleted       EventType = "call_completed"
	EventEntryCreated        EventType = "queue.created"
	EventEntryUpserted       EventType = "queue.entry_updated"
	EventQueueReplaced       EventType = "queue.updated"
	EventAnnouncement        EventType = "announcement"
	EventAnnouncementRemoved EventType = "announcement_removed"
	EventStats               EventType = "stats"
	EventBoardState          EventType = "board_state"
	EventWindows             EventType = "windows"
	EventHeartbeat           EventType = "heartbeat"
	EventAvailability        EventType = "availability"
)

// Event is a decoded, validated board event. Each message type has its own struct.
type Event interface {
	Type() EventType
}

type InitialState struct {
	Entries       []QueueEntry
	CurrentCall   *QueueEntry
	Announcements []Announcement
}

type PatientCall struct {
	Entry QueueEntry
	// PreviousStatus is what the server declares for the superseded call, if anything.
	PreviousStatus *EntryStatus
}

type CallCompleted struct {
	Number *int
}

type EntryCreated struct {
	Entry QueueEntry
}

type EntryUpserted struct {
	Entry   QueueEntry
	Reorder bool
}

type QueueReplaced struct {
	Entries []QueueEntry
}

type AnnouncementReceived struct {
	Announcement Announcement
}

type AnnouncementRemoved struct {
	CreatedAt time.Time
}

type StatsReceived struct {
	Snapshot QueueSnapshot
	// Stale marks a snapshot re-emitted from cache after a failed fetch.
	Stale bool
}

type BoardStateReceived struct {
	State BoardState
	Stale bool
}

type WindowsReceived struct {
	Windows []Window
	Stale   bool
}

type Heartbeat struct{}

// Availability reports that a polled resource has neither fresh nor cached data.
type Availability struct {
	Resource    string
	Unavailable bool
}

func (InitialState) Type() EventType         { return EventInitialState }
func (PatientCall) Type() EventType          { return EventPatientCall }
func (CallCompleted) Type() EventType        { return EventCallCompleted }
func (EntryCreated) Type() EventType         { return EventEntryCreated }
func (EntryUpserted) Type() EventType        { return EventEntryUpserted }
func (QueueReplaced) Type() EventType        { return EventQueueReplaced }
func (AnnouncementReceived) Type() EventType { return EventAnnouncement }
func (AnnouncementRemoved) Type() EventType  { return EventAnnouncementRemoved }
func (StatsReceived) Type() EventType        { return EventStats }
func (BoardStateReceived) Type() EventType   { return EventBoardState }
func (WindowsReceived) Type() EventType      { return EventWindows }
func (Heartbeat) Type() EventType            { return EventHeartbeat }
func (Availability) Type() EventType         { return EventAvailability }

// Envelope pairs an event with its optional server sequence number.
type Envelope struct {
	Event Event
	Seq   int64
}
