package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/util"
)

// EntryPayload is the wire shape of a queue entry. Pointer fields let the decoder
// tell a missing field from a zero value.
type EntryPayload struct {
	Number             *int    `json:"number"`
	PatientDisplayName *string `json:"patient_display_name"`
	PatientName        *string `json:"patient_name"`
	Status             *string `json:"status"`
	Source             string  `json:"source"`
	Department         string  `json:"department"`
	CreatedAt          *string `json:"created_at"`
	CalledAt           *string `json:"called_at"`
	CabinetOrWindow    *string `json:"cabinet_or_window"`
	Cabinet            *string `json:"cabinet"`
	DoctorName         *string `json:"doctor_name"`
}

type AnnouncementPayload struct {
	Text      *string `json:"text"`
	Type      string  `json:"type"`
	CreatedAt *string `json:"created_at"`
	VoiceText *string `json:"voice_text"`
}

type SnapshotPayload struct {
	LastTicket *int `json:"last_ticket"`
	Waiting    *int `json:"waiting"`
	Serving    *int `json:"serving"`
	Done       *int `json:"done"`
}

// ToEntry validates the payload. defaultStatus applies when the wire omits status
// and may be empty for partial updates.
func (p EntryPayload) ToEntry(defaultStatus models.EntryStatus) (models.QueueEntry, error) {
	if p.Number == nil || *p.Number <= 0 {
		return models.QueueEntry{}, fmt.Errorf("%w: entry number is required", errors.ErrMalformedMessage)
	}

	entry := models.QueueEntry{
		Number:             *p.Number,
		PatientDisplayName: firstNonEmpty(p.PatientDisplayName, p.PatientName),
		Status:             defaultStatus,
		Source:             models.EntrySource(strings.ToLower(p.Source)),
		Department:         p.Department,
		CabinetOrWindow:    firstNonEmpty(p.CabinetOrWindow, p.Cabinet),
		DoctorName:         firstNonEmpty(p.DoctorName),
	}

	if p.Status != nil {
		status := models.EntryStatus(strings.ToLower(*p.Status))
		if !status.Valid() {
			return models.QueueEntry{}, fmt.Errorf("%w: unknown status %q", errors.ErrMalformedMessage, *p.Status)
		}
		entry.Status = status
	}

	var err error
	if entry.CreatedAt, err = parseOptionalTime(p.CreatedAt); err != nil {
		return models.QueueEntry{}, err
	}
	if entry.CalledAt, err = parseOptionalTime(p.CalledAt); err != nil {
		return models.QueueEntry{}, err
	}

	return entry, nil
}

func (p AnnouncementPayload) ToAnnouncement() (models.Announcement, error) {
	if p.Text == nil || *p.Text == "" {
		return models.Announcement{}, fmt.Errorf("%w: announcement text is required", errors.ErrMalformedMessage)
	}
	if p.CreatedAt == nil {
		return models.Announcement{}, fmt.Errorf("%w: announcement created_at is required", errors.ErrMalformedMessage)
	}
	createdAt, err := util.ParseTimestamp(*p.CreatedAt)
	if err != nil {
		return models.Announcement{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}

	kind := models.AnnouncementType(strings.ToLower(p.Type))
	switch kind {
	case models.AnnouncementInfo, models.AnnouncementWarning, models.AnnouncementEmergency:
	case "":
		kind = models.AnnouncementInfo
	default:
		return models.Announcement{}, fmt.Errorf("%w: unknown announcement type %q", errors.ErrMalformedMessage, p.Type)
	}

	return models.Announcement{
		Text:      *p.Text,
		Type:      kind,
		CreatedAt: createdAt,
		VoiceText: firstNonEmpty(p.VoiceText),
	}, nil
}

// ToSnapshot rejects a snapshot missing any counter rather than patching it.
func (p SnapshotPayload) ToSnapshot() (models.QueueSnapshot, error) {
	if p.LastTicket == nil || p.Waiting == nil || p.Serving == nil || p.Done == nil {
		return models.QueueSnapshot{}, errors.ErrPartialSnapshot
	}
	return models.QueueSnapshot{
		LastTicket: *p.LastTicket,
		Waiting:    *p.Waiting,
		Serving:    *p.Serving,
		Done:       *p.Done,
	}, nil
}

func DecodeSnapshot(body []byte) (models.QueueSnapshot, error) {
	var p SnapshotPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return models.QueueSnapshot{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	return p.ToSnapshot()
}

func DecodeBoardState(body []byte) (models.BoardState, error) {
	var state models.BoardState
	if err := json.Unmarshal(body, &state); err != nil {
		return models.BoardState{}, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	return state, nil
}

func DecodeWindows(body []byte) ([]models.Window, error) {
	var windows []models.Window
	if err := json.Unmarshal(body, &windows); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	for i, w := range windows {
		if w.Window == "" {
			return nil, fmt.Errorf("%w: window %d has no name", errors.ErrMalformedMessage, i)
		}
	}
	if windows == nil {
		windows = []models.Window{}
	}
	return windows, nil
}

func decodeEntries(payloads []EntryPayload) ([]models.QueueEntry, error) {
	entries := make([]models.QueueEntry, 0, len(payloads))
	seen := make(map[int]int, len(payloads))
	for _, p := range payloads {
		entry, err := p.ToEntry(models.EntryStatusWaiting)
		if err != nil {
			return nil, err
		}
		// Duplicate numbers in one list: the later element wins, keeping the first position.
		if i, ok := seen[entry.Number]; ok {
			entries[i] = entry
			continue
		}
		seen[entry.Number] = len(entries)
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := util.ParseTimestamp(*s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrMalformedMessage, err)
	}
	return &t, nil
}

func firstNonEmpty(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			s := *v
			return &s
		}
	}
	return nil
}
