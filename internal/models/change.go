package models

type ChangeKind string

const (
	ChangeHydrated            ChangeKind = "hydrated"
	ChangeEntriesReplaced     ChangeKind = "entries_replaced"
	ChangeEntryAdded          ChangeKind = "entry_added"
	ChangeEntryUpdated        ChangeKind = "entry_updated"
	ChangeCallStarted         ChangeKind = "call_started"
	ChangeCallCompleted       ChangeKind = "call_completed"
	ChangeSnapshotReplaced    ChangeKind = "snapshot_replaced"
	ChangeAnnouncementAdded   ChangeKind = "announcement_added"
	ChangeAnnouncementRemoved ChangeKind = "announcement_removed"
	ChangeBoardStateReplaced  ChangeKind = "board_state_replaced"
	ChangeWindowsReplaced     ChangeKind = "windows_replaced"
	ChangeAvailability        ChangeKind = "availability_changed"
)

// Change is a committed state transition emitted by the reducer.
// Only the fields relevant to Kind are set. Stale marks changes replayed
// from cache rather than observed live.
type Change struct {
	Kind          ChangeKind     `json:"kind"`
	Topic         string         `json:"topic"`
	Seq           int64          `json:"seq,omitempty"`
	Entry         *QueueEntry    `json:"entry,omitempty"`
	Previous      *QueueEntry    `json:"previous,omitempty"`
	Entries       []QueueEntry   `json:"entries,omitempty"`
	Snapshot      *QueueSnapshot `json:"snapshot,omitempty"`
	Announcement  *Announcement  `json:"announcement,omitempty"`
	Announcements []Announcement `json:"announcements,omitempty"`
	BoardState    *BoardState    `json:"board_state,omitempty"`
	Windows       []Window       `json:"windows,omitempty"`
	Resource      string         `json:"resource,omitempty"`
	Stale         bool           `json:"stale,omitempty"`
	Unavailable   bool           `json:"unavailable,omitempty"`
	// Reordered is set when Entry moved behind every other entry.
	Reordered bool `json:"reordered,omitempty"`
}
