package models

import "time"

// QueueSnapshot holds the aggregate counters for one (department, date).
// It is always replaced as a whole.
type QueueSnapshot struct {
	LastTicket int `json:"last_ticket"`
	Waiting    int `json:"waiting"`
	Serving    int `json:"serving"`
	Done       int `json:"done"`
}

type Theme struct {
	Primary    string `json:"primary,omitempty"`
	Secondary  string `json:"secondary,omitempty"`
	Background string `json:"background,omitempty"`
}

type LanguageDefaults struct {
	Sound    bool `json:"sound"`
	Kiosk    bool `json:"kiosk"`
	Contrast bool `json:"contrast"`
}

type BoardState struct {
	ClinicName    string                      `json:"clinic_name"`
	LogoURL       string                      `json:"logo_url,omitempty"`
	IsPaused      bool                        `json:"is_paused"`
	IsClosed      bool                        `json:"is_closed"`
	Announcements map[string]string           `json:"announcements,omitempty"`
	Theme         Theme                       `json:"theme"`
	Defaults      map[string]LanguageDefaults `json:"defaults,omitempty"`
}

type Window struct {
	Window string `json:"window"`
	Ticket string `json:"ticket"`
	Label  string `json:"label"`
}

type AnnouncementType string

const (
	AnnouncementInfo      AnnouncementType = "info"
	AnnouncementWarning   AnnouncementType = "warning"
	AnnouncementEmergency AnnouncementType = "emergency"
)

type Announcement struct {
	Text      string           `json:"text"`
	Type      AnnouncementType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	VoiceText *string          `json:"voice_text,omitempty"`
}

// SpokenText is the text a speaker should read out.
func (a Announcement) SpokenText() string {
	if a.VoiceText != nil && *a.VoiceText != "" {
		return *a.VoiceText
	}
	return a.Text
}

type ChannelState string

const (
	ChannelIdle         ChannelState = "idle"
	ChannelConnecting   ChannelState = "connecting"
	ChannelOpen         ChannelState = "open"
	ChannelReconnecting ChannelState = "reconnecting"
	ChannelClosed       ChannelState = "closed"
)

type ConnectionState struct {
	State   ChannelState `json:"state"`
	Attempt int          `json:"attempt"`
}
