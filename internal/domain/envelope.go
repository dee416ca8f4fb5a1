package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/util"
)

// Push message types.
const (
	TypeInitialState        = "initial_state"
	TypePatientCall         = "patient_call"
	TypeCallCompleted       = "call_completed"
	TypeQueueUpdate         = "queue_update"
	TypeAnnouncement        = "announcement"
	TypeAnnouncementRemoved = "announcement_removed"
	TypeStats               = "stats"
	TypeBoardState          = "board_state"
	TypePing                = "ping"
	TypePong                = "pong"

	EventTypeQueueCreated = "queue.created"
	EventTypeQueueUpdated = "queue.updated"
)

// Message is the push envelope. The payload lives in Data when present,
// otherwise in the envelope object itself.
type Message struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type initialStatePayload struct {
	QueueEntries  *[]EntryPayload       `json:"queue_entries"`
	CurrentCall   *EntryPayload         `json:"current_call"`
	Announcements []AnnouncementPayload `json:"announcements"`
}

type patientCallPayload struct {
	EntryPayload
	PreviousStatus *string `json:"previous_status"`
}

type callCompletedPayload struct {
	Number *int `json:"number"`
}

type queueUpdatePayload struct {
	EntryPayload
	QueueEntries *[]EntryPayload `json:"queue_entries"`
	Reorder      bool            `json:"reorder"`
}

type announcementRemovedPayload struct {
	CreatedAt *string `json:"created_at"`
}

// DecodeMessage parses and validates one push frame.
func DecodeMessage(raw []byte) (models.Envelope, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return models.Envelope{}, fmt.Errorf("%w: missing type", errors.ErrMalformedMessage)
	}

	payload := raw
	if len(msg.Data) > 0 && !bytes.Equal(bytes.TrimSpace(msg.Data), []byte("null")) {
		payload = msg.Data
	}

	event, err := decodeEvent(msg, payload)
	if err != nil {
		return models.Envelope{}, err
	}
	return models.Envelope{Event: event, Seq: msg.Seq}, nil
}

func decodeEvent(msg Message, payload []byte) (models.Event, error) {
	switch msg.Type {
	case TypePing, TypePong:
		return models.Heartbeat{}, nil

	case TypeInitialState:
		var p initialStatePayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.QueueEntries == nil {
			return nil, fmt.Errorf("%w: initial_state without queue_entries", errors.ErrMalformedMessage)
		}
		entries, err := decodeEntries(*p.QueueEntries)
		if err != nil {
			return nil, err
		}
		event := models.InitialState{Entries: entries}
		if p.CurrentCall != nil && p.CurrentCall.Number != nil {
			current, err := p.CurrentCall.ToEntry(models.EntryStatusCalled)
			if err != nil {
				return nil, err
			}
			event.CurrentCall = &current
		}
		for _, ap := range p.Announcements {
			a, err := ap.ToAnnouncement()
			if err != nil {
				return nil, err
			}
			event.Announcements = append(event.Announcements, a)
		}
		return event, nil

	case TypePatientCall:
		var p patientCallPayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		entry, err := p.ToEntry(models.EntryStatusCalled)
		if err != nil {
			return nil, err
		}
		entry.Status = models.EntryStatusCalled
		event := models.PatientCall{Entry: entry}
		if p.PreviousStatus != nil {
			status := models.EntryStatus(*p.PreviousStatus)
			if !status.Valid() {
				return nil, fmt.Errorf("%w: unknown previous_status %q", errors.ErrMalformedMessage, *p.PreviousStatus)
			}
			event.PreviousStatus = &status
		}
		return event, nil

	case TypeCallCompleted:
		var p callCompletedPayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		return models.CallCompleted{Number: p.Number}, nil

	case TypeQueueUpdate:
		var p queueUpdatePayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if msg.EventType == EventTypeQueueCreated {
			entry, err := p.ToEntry(models.EntryStatusWaiting)
			if err != nil {
				return nil, err
			}
			return models.EntryCreated{Entry: entry}, nil
		}
		if p.QueueEntries != nil {
			entries, err := decodeEntries(*p.QueueEntries)
			if err != nil {
				return nil, err
			}
			return models.QueueReplaced{Entries: entries}, nil
		}
		if p.Number != nil {
			// An update that omits status keeps the current one.
			entry, err := p.ToEntry("")
			if err != nil {
				return nil, err
			}
			return models.EntryUpserted{Entry: entry, Reorder: p.Reorder}, nil
		}
		return nil, fmt.Errorf("%w: queue_update without entries", errors.ErrMalformedMessage)

	case TypeAnnouncement:
		var p AnnouncementPayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		a, err := p.ToAnnouncement()
		if err != nil {
			return nil, err
		}
		return models.AnnouncementReceived{Announcement: a}, nil

	case TypeAnnouncementRemoved:
		var p announcementRemovedPayload
		if err := unmarshal(payload, &p); err != nil {
			return nil, err
		}
		if p.CreatedAt == nil {
			return nil, fmt.Errorf("%w: announcement_removed without created_at", errors.ErrMalformedMessage)
		}
		createdAt, err := util.ParseTimestamp(*p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
		}
		return models.AnnouncementRemoved{CreatedAt: createdAt}, nil

	case TypeStats:
		snapshot, err := DecodeSnapshot(payload)
		if err != nil {
			return nil, err
		}
		return models.StatsReceived{Snapshot: snapshot}, nil

	case TypeBoardState:
		state, err := DecodeBoardState(payload)
		if err != nil {
			return nil, err
		}
		return models.BoardStateReceived{State: state}, nil
	}

	return nil, fmt.Errorf("%w: %s", errors.ErrUnknownMessageType, msg.Type)
}

// EncodeMessage builds a push frame. Used by the simulator and the kafka mirror.
func EncodeMessage(msgType, eventType string, seq int64, data any) ([]byte, error) {
	msg := Message{Type: msgType, EventType: eventType, Seq: seq}
	if data != nil {
		body, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		msg.Data = body
	}
	return json.Marshal(msg)
}

func unmarshal(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	return nil
}
