package models

import "time"

type EntryStatus string

const (
	EntryStatusWaiting   EntryStatus = "waiting"
	EntryStatusCalled    EntryStatus = "called"
	EntryStatusServing   EntryStatus = "serving"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusCancelled EntryStatus = "cancelled"
)

type EntrySource string

const (
	EntrySourceOnline    EntrySource = "online"
	EntrySourceFrontDesk EntrySource = "front_desk"
)

// QueueEntry is one ticket on the board. Number is unique within (department, date).
type QueueEntry struct {
	Number             int         `json:"number"`
	PatientDisplayName *string     `json:"patient_display_name,omitempty"`
	Status             EntryStatus `json:"status"`
	Source             EntrySource `json:"source,omitempty"`
	Department         string      `json:"department,omitempty"`
	CreatedAt          *time.Time  `json:"created_at,omitempty"`
	CalledAt           *time.Time  `json:"called_at,omitempty"`
	CabinetOrWindow    *string     `json:"cabinet_or_window,omitempty"`
	DoctorName         *string     `json:"doctor_name,omitempty"`
}

var transitionMap = map[EntryStatus][]EntryStatus{
	EntryStatusWaiting: {EntryStatusCalled, EntryStatusCancelled},
	EntryStatusCalled:  {EntryStatusServing, EntryStatusCompleted, EntryStatusCancelled},
	EntryStatusServing: {EntryStatusCompleted},
}

// ValidTransition reports whether an entry may move from one status to another.
// Staying in the same status is always allowed.
func ValidTransition(from, to EntryStatus) bool {
	if from == to {
		return true
	}
	for _, status := range transitionMap[from] {
		if status == to {
			return true
		}
	}
	return false
}

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusWaiting, EntryStatusCalled, EntryStatusServing, EntryStatusCompleted, EntryStatusCancelled:
		return true
	}
	return false
}

func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusCompleted || s == EntryStatusCancelled
}

// IsActive reports whether the status counts as the board's current call.
func (s EntryStatus) IsActive() bool {
	return s == EntryStatusCalled || s == EntryStatusServing
}

// Clone returns a deep copy so callers never share pointer fields with the reducer.
func (e QueueEntry) Clone() QueueEntry {
	out := e
	out.PatientDisplayName = cloneString(e.PatientDisplayName)
	out.CabinetOrWindow = cloneString(e.CabinetOrWindow)
	out.DoctorName = cloneString(e.DoctorName)
	out.CreatedAt = cloneTime(e.CreatedAt)
	out.CalledAt = cloneTime(e.CalledAt)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
