package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/display"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/playback"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

const (
	defaultRepeatWindow = 10 * time.Second
	playbackTimeout     = 15 * time.Second
)

type DispatcherConfig struct {
	SoundEnabled bool
	VoiceEnabled bool
	Language     string
	RepeatWindow time.Duration
	NamePolicy   display.NamePolicy
}

// Dispatcher turns committed changes into beeps, voice and announcement tones.
// Playback is fire-and-forget: every sound and utterance runs on its own
// goroutine and a failure in one never affects another.
type Dispatcher struct {
	sound   playback.SoundPlayer
	speaker playback.Speaker
	clock   clock.Clock
	config  DispatcherConfig
	logger  logger.Logger

	// Call numbers and snapshot tickets are de-duplicated separately.
	mu           sync.Mutex
	lastCall     int
	lastSnapshot int
	recent       map[string]time.Time
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(
	sound playback.SoundPlayer,
	speaker playback.Speaker,
	clk clock.Clock,
	config DispatcherConfig,
	logger logger.Logger,
) *Dispatcher {
	if sound == nil {
		sound = playback.Nop{}
	}
	if speaker == nil {
		speaker = playback.Nop{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if config.RepeatWindow <= 0 {
		config.RepeatWindow = defaultRepeatWindow
	}
	if config.Language == "" {
		config.Language = LanguageRu
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sound:   sound,
		speaker: speaker,
		clock:   clk,
		config:  config,
		logger:  logger,
		recent:  make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Dispatcher) HandleChanges(ctx context.Context, changes []models.Change) {
	for _, c := range changes {
		d.handle(ctx, c)
	}
}

// Close cancels pending playback and waits for running goroutines.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// Baselines returns the last call number and the last snapshot ticket seen.
func (d *Dispatcher) Baselines() (call, snapshot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastCall, d.lastSnapshot
}

func (d *Dispatcher) handle(ctx context.Context, c models.Change) {
	switch c.Kind {
	case models.ChangeHydrated, models.ChangeEntriesReplaced:
		if c.Entry != nil && c.Entry.Status.IsActive() {
			d.rebaseCall(c.Entry.Number)
		}
		if c.Snapshot != nil {
			d.rebaseSnapshot(c.Snapshot.LastTicket)
		}

	case models.ChangeCallStarted:
		if c.Entry == nil {
			return
		}
		if c.Stale {
			d.rebaseCall(c.Entry.Number)
			return
		}
		if changed, beep := d.advanceCall(c.Entry.Number); changed {
			d.logger.Debugf(ctx, "service.Dispatcher.handle: call %d", c.Entry.Number)
			if beep {
				d.beep()
			}
			d.say(CallSentence(*c.Entry, d.config.Language, d.config.NamePolicy))
		}

	case models.ChangeSnapshotReplaced:
		if c.Snapshot == nil {
			return
		}
		if c.Stale {
			d.rebaseSnapshot(c.Snapshot.LastTicket)
			return
		}
		if d.advanceSnapshot(c.Snapshot.LastTicket) {
			d.beep()
		}

	case models.ChangeAnnouncementAdded:
		if c.Announcement == nil || c.Stale {
			return
		}
		a := *c.Announcement
		if !d.allow("announcement:" + string(a.Type) + ":" + a.SpokenText()) {
			return
		}
		d.play(toneFor(a.Type))
		d.say(a.SpokenText())
	}
}

// advanceCall records number as the last call. It reports whether the call
// changed and whether it needs a beep, which it does not when a snapshot
// already carried the same number.
func (d *Dispatcher) advanceCall(number int) (changed, beep bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if number <= 0 || number == d.lastCall {
		return false, false
	}
	d.lastCall = number
	return true, number != d.lastSnapshot
}

// advanceSnapshot records ticket as the last snapshot value. It beeps for a
// new value unless a call already announced that number.
func (d *Dispatcher) advanceSnapshot(ticket int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ticket <= 0 || ticket == d.lastSnapshot {
		return false
	}
	d.lastSnapshot = ticket
	return ticket != d.lastCall
}

func (d *Dispatcher) rebaseCall(number int) {
	if number <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastCall = number
}

func (d *Dispatcher) rebaseSnapshot(ticket int) {
	if ticket <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSnapshot = ticket
}

// allow applies the repeat window to identical notifications.
func (d *Dispatcher) allow(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	for k, at := range d.recent {
		if now.Sub(at) >= d.config.RepeatWindow {
			delete(d.recent, k)
		}
	}
	if _, ok := d.recent[key]; ok {
		return false
	}
	d.recent[key] = now
	return true
}

func (d *Dispatcher) beep() {
	d.play(playback.ProfileCall)
}

func (d *Dispatcher) play(profile playback.Profile) {
	if !d.config.SoundEnabled {
		return
	}
	d.spawn("sound", func(ctx context.Context) error {
		return d.sound.Play(ctx, profile)
	})
}

func (d *Dispatcher) say(text string) {
	if !d.config.VoiceEnabled || text == "" {
		return
	}
	if !d.allow("voice:" + text) {
		return
	}
	locale := d.config.Language
	d.spawn("voice", func(ctx context.Context) error {
		return d.speaker.Say(ctx, text, locale)
	})
}

func (d *Dispatcher) spawn(channel string, f func(ctx context.Context) error) {
	// Add must not race with the Wait in Close.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Errorf(d.ctx, "service.Dispatcher.spawn: %s playback panicked: %v", channel, r)
			}
		}()

		ctx, cancel := context.WithTimeout(d.ctx, playbackTimeout)
		defer cancel()
		if err := f(ctx); err != nil {
			d.logger.Warnf(ctx, "service.Dispatcher.spawn: %s playback failed: %v", channel, err)
		}
	}()
}

func toneFor(t models.AnnouncementType) playback.Profile {
	switch t {
	case models.AnnouncementWarning:
		return playback.ProfileWarning
	case models.AnnouncementEmergency:
		return playback.ProfileEmergency
	default:
		return playback.ProfileInfo
	}
}

const (
	LanguageRu = "ru"
	LanguageUz = "uz"
	LanguageEn = "en"
)

// CallSentence builds the spoken call for an entry in the given language.
func CallSentence(e models.QueueEntry, lang string, policy display.NamePolicy) string {
	name := display.FormatName(e.PatientDisplayName, policy)
	cabinet := deref(e.CabinetOrWindow)
	doctor := deref(e.DoctorName)

	parts := make([]string, 0, 3)
	switch lang {
	case LanguageUz:
		parts = append(parts, fmt.Sprintf("%d-raqamli bemor", e.Number))
		if name != "" {
			parts = append(parts, name)
		}
		switch {
		case cabinet != "":
			parts = append(parts, fmt.Sprintf("%s-xonaga kiring", cabinet))
		case doctor != "":
			parts = append(parts, fmt.Sprintf("shifokor %s qabuliga kiring", doctor))
		}
	case LanguageEn:
		parts = append(parts, fmt.Sprintf("Ticket number %d", e.Number))
		if name != "" {
			parts = append(parts, name)
		}
		switch {
		case cabinet != "":
			parts = append(parts, "please proceed to room "+cabinet)
		case doctor != "":
			parts = append(parts, "please proceed to doctor "+doctor)
		}
	default:
		parts = append(parts, fmt.Sprintf("Пациент номер %d", e.Number))
		if name != "" {
			parts = append(parts, name)
		}
		switch {
		case cabinet != "":
			parts = append(parts, "пройдите в кабинет "+cabinet)
		case doctor != "":
			parts = append(parts, "пройдите к врачу "+doctor)
		}
	}
	return strings.Join(parts, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
