// Package display keeps a render-ready view of one board. It only consumes
// reducer changes and never feeds anything back.
package display

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
)

const defaultRingSize = 5

type EntryView struct {
	Number  int                `json:"number"`
	Name    string             `json:"name,omitempty"`
	Status  models.EntryStatus `json:"status"`
	Source  models.EntrySource `json:"source,omitempty"`
	Cabinet string             `json:"cabinet,omitempty"`
	Doctor  string             `json:"doctor,omitempty"`
}

type View struct {
	Topic         string                 `json:"topic"`
	CurrentCall   *EntryView             `json:"current_call"`
	Waiting       []EntryView            `json:"waiting"`
	Stats         *models.QueueSnapshot  `json:"stats"`
	Announcements []models.Announcement  `json:"announcements"`
	Board         *models.BoardState     `json:"board,omitempty"`
	Windows       []models.Window        `json:"windows"`
	Connection    models.ConnectionState `json:"connection"`
	Stale         []string               `json:"stale,omitempty"`
	Unavailable   []string               `json:"unavailable,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

type Presenter struct {
	policy   NamePolicy
	ringSize int
	clock    clock.Clock

	mu            sync.RWMutex
	topic         string
	entries       []models.QueueEntry
	current       int
	stats         *models.QueueSnapshot
	announcements []models.Announcement
	board         *models.BoardState
	windows       []models.Window
	connection    models.ConnectionState
	stale         map[string]bool
	unavailable   map[string]bool
	updatedAt     time.Time
}

func NewPresenter(topic string, policy NamePolicy, ringSize int, clk clock.Clock) *Presenter {
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Presenter{
		policy:      policy,
		ringSize:    ringSize,
		clock:       clk,
		topic:       topic,
		connection:  models.ConnectionState{State: models.ChannelIdle},
		stale:       make(map[string]bool),
		unavailable: make(map[string]bool),
	}
}

func (p *Presenter) HandleChanges(_ context.Context, changes []models.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range changes {
		p.apply(c)
	}
	p.updatedAt = p.clock.Now()
}

// SetConnection records the push channel state shown in the status bar.
func (p *Presenter) SetConnection(state models.ConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connection = state
}

func (p *Presenter) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v := View{
		Topic:         p.topic,
		Waiting:       []EntryView{},
		Announcements: append([]models.Announcement{}, p.announcements...),
		Windows:       append([]models.Window{}, p.windows...),
		Connection:    p.connection,
		Stale:         keys(p.stale),
		Unavailable:   keys(p.unavailable),
		UpdatedAt:     p.updatedAt,
	}
	if p.stats != nil {
		s := *p.stats
		v.Stats = &s
	}
	if p.board != nil {
		b := *p.board
		v.Board = &b
	}

	for _, e := range p.entries {
		switch {
		case e.Number == p.current && e.Status.IsActive():
			ev := p.entryView(e)
			v.CurrentCall = &ev
		case e.Status == models.EntryStatusWaiting:
			v.Waiting = append(v.Waiting, p.entryView(e))
		}
	}
	return v
}

func (p *Presenter) apply(c models.Change) {
	switch c.Kind {
	case models.ChangeHydrated:
		p.entries = append([]models.QueueEntry(nil), c.Entries...)
		p.current = currentOf(c.Entry)
		p.stats = c.Snapshot
		p.board = c.BoardState
		p.windows = c.Windows
		p.announcements = append([]models.Announcement(nil), c.Announcements...)
		for _, res := range []string{repository.ResourceStats, repository.ResourceState, repository.ResourceWindows} {
			p.stale[res] = true
		}
	case models.ChangeEntriesReplaced:
		p.entries = append([]models.QueueEntry(nil), c.Entries...)
		p.current = currentOf(c.Entry)
	case models.ChangeEntryAdded, models.ChangeEntryUpdated:
		p.upsert(c.Entry, c.Reordered)
		if c.Entry != nil && c.Entry.Number == p.current && !c.Entry.Status.IsActive() {
			p.current = 0
		}
	case models.ChangeCallStarted:
		p.upsert(c.Entry, c.Reordered)
		p.current = currentOf(c.Entry)
	case models.ChangeCallCompleted:
		p.upsert(c.Entry, c.Reordered)
		if c.Entry != nil && c.Entry.Number == p.current {
			p.current = 0
		}
	case models.ChangeSnapshotReplaced:
		p.stats = c.Snapshot
		p.markFresh(c.Resource, c.Stale)
	case models.ChangeBoardStateReplaced:
		p.board = c.BoardState
		p.markFresh(c.Resource, c.Stale)
	case models.ChangeWindowsReplaced:
		p.windows = c.Windows
		p.markFresh(c.Resource, c.Stale)
	case models.ChangeAvailability:
		if c.Unavailable {
			p.unavailable[c.Resource] = true
		} else {
			delete(p.unavailable, c.Resource)
		}
	case models.ChangeAnnouncementAdded:
		if c.Announcement != nil {
			p.announcements = append(p.announcements, *c.Announcement)
			if n := len(p.announcements); n > p.ringSize {
				p.announcements = append([]models.Announcement(nil), p.announcements[n-p.ringSize:]...)
			}
		}
	case models.ChangeAnnouncementRemoved:
		if c.Announcement != nil {
			for i, a := range p.announcements {
				if a.CreatedAt.Equal(c.Announcement.CreatedAt) {
					p.announcements = append(p.announcements[:i:i], p.announcements[i+1:]...)
					break
				}
			}
		}
	}
}

// upsert replaces the entry in place, or moves it to the end when reordered.
func (p *Presenter) upsert(e *models.QueueEntry, reordered bool) {
	if e == nil {
		return
	}
	for i := range p.entries {
		if p.entries[i].Number != e.Number {
			continue
		}
		if !reordered {
			p.entries[i] = e.Clone()
			return
		}
		p.entries = append(p.entries[:i:i], p.entries[i+1:]...)
		break
	}
	p.entries = append(p.entries, e.Clone())
}

func (p *Presenter) markFresh(resource string, stale bool) {
	if resource == "" {
		return
	}
	if stale {
		p.stale[resource] = true
	} else {
		delete(p.stale, resource)
	}
	delete(p.unavailable, resource)
}

func (p *Presenter) entryView(e models.QueueEntry) EntryView {
	v := EntryView{
		Number: e.Number,
		Name:   FormatName(e.PatientDisplayName, p.policy),
		Status: e.Status,
		Source: e.Source,
	}
	if e.CabinetOrWindow != nil {
		v.Cabinet = *e.CabinetOrWindow
	}
	if e.DoctorName != nil {
		v.Doctor = *e.DoctorName
	}
	return v
}

func currentOf(e *models.QueueEntry) int {
	if e == nil || !e.Status.IsActive() {
		return 0
	}
	return e.Number
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
