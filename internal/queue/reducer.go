package queue

import (
	"context"
	"reflect"

	"github.com/vogiaan1904/clinic-queueboard/internal/errors"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/internal/repository"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

const DefaultRingSize = 5

// Reducer owns the entry collection and snapshot of one topic. It is not safe
// for concurrent use; the Manager serializes access.
type Reducer struct {
	topic    string
	ringSize int
	l        logger.Logger

	entries       []models.QueueEntry
	index         map[int]int
	current       int
	snapshot      *models.QueueSnapshot
	announcements []models.Announcement
	boardState    *models.BoardState
	windows       []models.Window
	lastSeq       int64
	stale         map[string]bool
	unavailable   map[string]bool
}

func NewReducer(topic string, ringSize int, l logger.Logger) *Reducer {
	if ringSize <= 0 {
		ringSize = DefaultRingSize
	}
	return &Reducer{
		topic:       topic,
		ringSize:    ringSize,
		l:           l,
		index:       make(map[int]int),
		stale:       make(map[string]bool),
		unavailable: make(map[string]bool),
	}
}

// Apply runs one event through the state machine and returns the committed changes.
// Rejected or redundant events yield no changes.
func (r *Reducer) Apply(ctx context.Context, env models.Envelope) []models.Change {
	if env.Event == nil {
		return nil
	}

	_, isInitial := env.Event.(models.InitialState)
	if env.Seq > 0 && env.Seq <= r.lastSeq && !isInitial {
		r.l.Warnf(ctx, "queue.Reducer.Apply: %v: %s seq %d <= %d", errors.ErrStaleEvent, env.Event.Type(), env.Seq, r.lastSeq)
		return nil
	}

	var changes []models.Change
	switch ev := env.Event.(type) {
	case models.InitialState:
		changes = r.applyInitialState(ctx, ev)
	case models.QueueReplaced:
		changes = r.replaceEntries(ctx, ev.Entries, nil)
	case models.EntryCreated:
		changes = r.applyEntryCreated(ctx, ev)
	case models.EntryUpserted:
		changes = r.applyEntryUpserted(ctx, ev)
	case models.PatientCall:
		changes = r.applyPatientCall(ctx, ev)
	case models.CallCompleted:
		changes = r.applyCallCompleted(ctx, ev)
	case models.AnnouncementReceived:
		changes = r.addAnnouncement(ev.Announcement)
	case models.AnnouncementRemoved:
		changes = r.removeAnnouncement(ev)
	case models.StatsReceived:
		changes = r.applyStats(ev)
	case models.BoardStateReceived:
		changes = r.applyBoardState(ev)
	case models.WindowsReceived:
		changes = r.applyWindows(ev)
	case models.Availability:
		changes = r.applyAvailability(ev)
	case models.Heartbeat:
		return nil
	default:
		r.l.Warnf(ctx, "queue.Reducer.Apply: unhandled event %T", ev)
		return nil
	}

	// An initial state rebases the sequence, so a restarted server is not rejected as stale.
	if env.Seq > 0 || isInitial {
		r.lastSeq = env.Seq
	}

	for i := range changes {
		changes[i].Topic = r.topic
		changes[i].Seq = env.Seq
	}
	return changes
}

// Restore loads a cached board. The resulting change is marked stale.
func (r *Reducer) Restore(b Board) []models.Change {
	r.setEntries(b.Entries)
	r.current = 0
	if b.CurrentCall != 0 {
		if i, ok := r.index[b.CurrentCall]; ok && r.entries[i].Status.IsActive() {
			r.current = b.CurrentCall
		}
	}
	r.snapshot = cloneSnapshot(b.Snapshot)
	r.announcements = trimRing(append([]models.Announcement(nil), b.Announcements...), r.ringSize)
	r.boardState = cloneBoardState(b.BoardState)
	r.windows = append([]models.Window(nil), b.Windows...)
	for _, res := range []string{repository.ResourceStats, repository.ResourceState, repository.ResourceWindows} {
		r.stale[res] = true
	}

	board := r.Board()
	return []models.Change{{
		Kind:          models.ChangeHydrated,
		Topic:         r.topic,
		Entries:       board.Entries,
		Entry:         board.Current(),
		Snapshot:      cloneSnapshot(board.Snapshot),
		Announcements: board.Announcements,
		BoardState:    cloneBoardState(board.BoardState),
		Windows:       board.Windows,
		Stale:         true,
	}}
}

// Board returns a deep copy of the current state.
func (r *Reducer) Board() Board {
	b := Board{
		Topic:       r.topic,
		Entries:     cloneEntries(r.entries),
		CurrentCall: r.current,
		Snapshot:    cloneSnapshot(r.snapshot),
		BoardState:  cloneBoardState(r.boardState),
		Windows:     append([]models.Window(nil), r.windows...),
	}
	if len(r.announcements) > 0 {
		b.Announcements = append([]models.Announcement(nil), r.announcements...)
	}
	return b
}

func (r *Reducer) Announcements() []models.Announcement {
	return append([]models.Announcement(nil), r.announcements...)
}

func (r *Reducer) applyInitialState(ctx context.Context, ev models.InitialState) []models.Change {
	changes := r.replaceEntries(ctx, ev.Entries, ev.CurrentCall)

	if ev.Announcements != nil {
		ring := trimRing(append([]models.Announcement(nil), ev.Announcements...), r.ringSize)
		if !reflect.DeepEqual(ring, r.announcements) {
			removed := r.announcements
			r.announcements = ring
			for i := range removed {
				if !containsAnnouncement(ring, removed[i]) {
					a := removed[i]
					changes = append(changes, models.Change{Kind: models.ChangeAnnouncementRemoved, Announcement: &a})
				}
			}
			for i := range ring {
				if !containsAnnouncement(removed, ring[i]) {
					a := ring[i]
					changes = append(changes, models.Change{Kind: models.ChangeAnnouncementAdded, Announcement: &a, Stale: true})
				}
			}
		}
	}
	return changes
}

// replaceEntries swaps the whole collection. current, when given, is the call the
// server highlights; otherwise the most recently called active entry wins.
func (r *Reducer) replaceEntries(ctx context.Context, entries []models.QueueEntry, current *models.QueueEntry) []models.Change {
	next := cloneEntries(entries)
	if current != nil {
		c := current.Clone()
		c.Status = models.EntryStatusCalled
		found := false
		for i := range next {
			if next[i].Number == c.Number {
				serving := next[i].Status == models.EntryStatusServing
				next[i] = mergeEntry(next[i], c)
				if serving {
					next[i].Status = models.EntryStatusServing
				}
				found = true
				break
			}
		}
		if !found {
			next = append(next, c)
		}
	}

	currentNumber := normalizeCurrent(ctx, r.l, next, current)
	if reflect.DeepEqual(next, r.entries) && currentNumber == r.current {
		return nil
	}

	r.setEntries(next)
	r.current = currentNumber

	change := models.Change{Kind: models.ChangeEntriesReplaced, Entries: cloneEntries(next)}
	if currentNumber != 0 {
		e := r.entries[r.index[currentNumber]].Clone()
		change.Entry = &e
	}
	return []models.Change{change}
}

func (r *Reducer) applyEntryCreated(ctx context.Context, ev models.EntryCreated) []models.Change {
	if _, ok := r.index[ev.Entry.Number]; ok {
		return r.applyEntryUpserted(ctx, models.EntryUpserted{Entry: ev.Entry})
	}
	if ev.Entry.Status.IsActive() {
		return r.applyPatientCall(ctx, models.PatientCall{Entry: ev.Entry})
	}

	e := ev.Entry.Clone()
	if e.Status == "" {
		e.Status = models.EntryStatusWaiting
	}
	r.index[e.Number] = len(r.entries)
	r.entries = append(r.entries, e)

	added := e.Clone()
	return []models.Change{{Kind: models.ChangeEntryAdded, Entry: &added}}
}

func (r *Reducer) applyEntryUpserted(ctx context.Context, ev models.EntryUpserted) []models.Change {
	i, ok := r.index[ev.Entry.Number]
	if !ok {
		return r.applyEntryCreated(ctx, models.EntryCreated{Entry: ev.Entry})
	}

	prev := r.entries[i]
	next := mergeEntry(prev, ev.Entry)
	if !models.ValidTransition(prev.Status, next.Status) {
		r.l.Warnf(ctx, "queue.Reducer.applyEntryUpserted: %v: entry %d %s -> %s", errors.ErrInvalidTransition, prev.Number, prev.Status, next.Status)
		return nil
	}
	if next.Status.IsActive() && r.current != next.Number {
		changes := r.applyPatientCall(ctx, models.PatientCall{Entry: next})
		if ev.Reorder && len(changes) > 0 && r.moveToEnd(next.Number) {
			changes[len(changes)-1].Reordered = true
		}
		return changes
	}
	if reflect.DeepEqual(prev, next) && (!ev.Reorder || i == len(r.entries)-1) {
		return nil
	}

	r.entries[i] = next
	reordered := ev.Reorder && r.moveToEnd(next.Number)
	if r.current == next.Number && !next.Status.IsActive() {
		r.current = 0
	}

	updated, previous := next.Clone(), prev.Clone()
	kind := models.ChangeEntryUpdated
	if prev.Status.IsActive() && next.Status == models.EntryStatusCompleted {
		kind = models.ChangeCallCompleted
	}
	return []models.Change{{Kind: kind, Entry: &updated, Previous: &previous, Reordered: reordered}}
}

// moveToEnd moves an entry behind all others and reports whether it moved.
func (r *Reducer) moveToEnd(number int) bool {
	i, ok := r.index[number]
	if !ok || i == len(r.entries)-1 {
		return false
	}
	e := r.entries[i]
	r.entries = append(append(r.entries[:i:i], r.entries[i+1:]...), e)
	r.reindex()
	return true
}

// applyPatientCall enforces the single current call: the previous active entry
// takes the declared terminal status, or COMPLETED, before the new one is CALLED.
// A declared SERVING status is kept when the entry may move to it.
func (r *Reducer) applyPatientCall(ctx context.Context, ev models.PatientCall) []models.Change {
	call := ev.Entry.Clone()
	declared := call.Status
	call.Status = models.EntryStatusCalled

	i, exists := r.index[call.Number]
	if declared == models.EntryStatusServing && (!exists || models.ValidTransition(r.entries[i].Status, declared)) {
		call.Status = declared
	}
	if exists {
		prev := r.entries[i]
		if !models.ValidTransition(prev.Status, call.Status) {
			r.l.Warnf(ctx, "queue.Reducer.applyPatientCall: %v: entry %d is %s", errors.ErrInvalidTransition, prev.Number, prev.Status)
			return nil
		}
		call = mergeEntry(prev, call)
		if r.current == call.Number && reflect.DeepEqual(prev, call) {
			return nil
		}
	}

	var changes []models.Change
	var superseded *models.QueueEntry
	for j := range r.entries {
		e := r.entries[j]
		if e.Number == call.Number || !e.Status.IsActive() {
			continue
		}
		target := models.EntryStatusCompleted
		if ev.PreviousStatus != nil && ev.PreviousStatus.IsTerminal() && models.ValidTransition(e.Status, *ev.PreviousStatus) {
			target = *ev.PreviousStatus
		}
		before := e.Clone()
		r.entries[j].Status = target
		after := r.entries[j].Clone()
		changes = append(changes, models.Change{Kind: models.ChangeEntryUpdated, Entry: &after, Previous: &before})
		if e.Number == r.current {
			superseded = &after
		}
	}

	if exists {
		r.entries[i] = call
	} else {
		r.index[call.Number] = len(r.entries)
		r.entries = append(r.entries, call)
	}
	r.current = call.Number

	started := call.Clone()
	change := models.Change{Kind: models.ChangeCallStarted, Entry: &started}
	if superseded != nil {
		p := superseded.Clone()
		change.Previous = &p
	}
	return append(changes, change)
}

func (r *Reducer) applyCallCompleted(ctx context.Context, ev models.CallCompleted) []models.Change {
	number := r.current
	if ev.Number != nil {
		number = *ev.Number
	}
	if number == 0 {
		return nil
	}

	i, ok := r.index[number]
	if !ok {
		r.l.Warnf(ctx, "queue.Reducer.applyCallCompleted: %v: %d", errors.ErrEntryNotFound, number)
		return nil
	}

	prev := r.entries[i]
	if prev.Status == models.EntryStatusCompleted {
		return nil
	}
	if !models.ValidTransition(prev.Status, models.EntryStatusCompleted) {
		r.l.Warnf(ctx, "queue.Reducer.applyCallCompleted: %v: entry %d is %s", errors.ErrInvalidTransition, number, prev.Status)
		return nil
	}

	r.entries[i].Status = models.EntryStatusCompleted
	if r.current == number {
		r.current = 0
	}

	done, before := r.entries[i].Clone(), prev.Clone()
	return []models.Change{{Kind: models.ChangeCallCompleted, Entry: &done, Previous: &before}}
}

func (r *Reducer) addAnnouncement(a models.Announcement) []models.Change {
	if containsAnnouncement(r.announcements, a) {
		return nil
	}

	r.announcements = trimRing(append(r.announcements, a), r.ringSize)

	added := a
	return []models.Change{{Kind: models.ChangeAnnouncementAdded, Announcement: &added}}
}

func (r *Reducer) removeAnnouncement(ev models.AnnouncementRemoved) []models.Change {
	for i, a := range r.announcements {
		if a.CreatedAt.Equal(ev.CreatedAt) {
			r.announcements = append(r.announcements[:i:i], r.announcements[i+1:]...)
			removed := a
			return []models.Change{{Kind: models.ChangeAnnouncementRemoved, Announcement: &removed}}
		}
	}
	return nil
}

func (r *Reducer) applyStats(ev models.StatsReceived) []models.Change {
	if !r.freshnessChanged(repository.ResourceStats, ev.Stale) && r.snapshot != nil && *r.snapshot == ev.Snapshot {
		return nil
	}
	r.setFreshness(repository.ResourceStats, ev.Stale)

	s := ev.Snapshot
	r.snapshot = &s
	return []models.Change{{Kind: models.ChangeSnapshotReplaced, Snapshot: cloneSnapshot(&s), Stale: ev.Stale, Resource: repository.ResourceStats}}
}

func (r *Reducer) applyBoardState(ev models.BoardStateReceived) []models.Change {
	if !r.freshnessChanged(repository.ResourceState, ev.Stale) && r.boardState != nil && reflect.DeepEqual(*r.boardState, ev.State) {
		return nil
	}
	r.setFreshness(repository.ResourceState, ev.Stale)

	r.boardState = cloneBoardState(&ev.State)
	return []models.Change{{Kind: models.ChangeBoardStateReplaced, BoardState: cloneBoardState(&ev.State), Stale: ev.Stale, Resource: repository.ResourceState}}
}

func (r *Reducer) applyWindows(ev models.WindowsReceived) []models.Change {
	windows := ev.Windows
	if windows == nil {
		windows = []models.Window{}
	}
	if !r.freshnessChanged(repository.ResourceWindows, ev.Stale) && r.windows != nil && reflect.DeepEqual(r.windows, windows) {
		return nil
	}
	r.setFreshness(repository.ResourceWindows, ev.Stale)

	r.windows = append([]models.Window{}, windows...)
	return []models.Change{{Kind: models.ChangeWindowsReplaced, Windows: append([]models.Window{}, windows...), Stale: ev.Stale, Resource: repository.ResourceWindows}}
}

func (r *Reducer) applyAvailability(ev models.Availability) []models.Change {
	if r.unavailable[ev.Resource] == ev.Unavailable {
		return nil
	}
	r.unavailable[ev.Resource] = ev.Unavailable
	return []models.Change{{Kind: models.ChangeAvailability, Resource: ev.Resource, Unavailable: ev.Unavailable}}
}

func (r *Reducer) freshnessChanged(resource string, stale bool) bool {
	return r.stale[resource] != stale || r.unavailable[resource]
}

func (r *Reducer) setFreshness(resource string, stale bool) {
	r.stale[resource] = stale
	r.unavailable[resource] = false
}

func (r *Reducer) setEntries(entries []models.QueueEntry) {
	r.entries = cloneEntries(entries)
	r.reindex()
}

func (r *Reducer) reindex() {
	r.index = make(map[int]int, len(r.entries))
	for i, e := range r.entries {
		r.index[e.Number] = i
	}
}

// normalizeCurrent leaves at most one active entry in a replaced list and returns its number.
func normalizeCurrent(ctx context.Context, l logger.Logger, entries []models.QueueEntry, declared *models.QueueEntry) int {
	keep := -1
	for i := range entries {
		if !entries[i].Status.IsActive() {
			continue
		}
		switch {
		case keep < 0:
			keep = i
		case declared != nil && entries[i].Number == declared.Number:
			keep = i
		case declared != nil && entries[keep].Number == declared.Number:
		case calledAfter(entries[i], entries[keep]):
			keep = i
		}
	}
	if keep < 0 {
		return 0
	}

	for i := range entries {
		if i != keep && entries[i].Status.IsActive() {
			l.Warnf(ctx, "queue.normalizeCurrent: entry %d also %s, completing it", entries[i].Number, entries[i].Status)
			entries[i].Status = models.EntryStatusCompleted
		}
	}
	return entries[keep].Number
}

// calledAfter reports whether a was called no earlier than b. Unknown call times sort first,
// so later list positions win ties.
func calledAfter(a, b models.QueueEntry) bool {
	if a.CalledAt == nil {
		return b.CalledAt == nil
	}
	if b.CalledAt == nil {
		return true
	}
	return !a.CalledAt.Before(*b.CalledAt)
}

// mergeEntry overlays an update on an existing entry, keeping fields the update leaves empty.
func mergeEntry(prev, next models.QueueEntry) models.QueueEntry {
	out := next.Clone()
	if out.Status == "" {
		out.Status = prev.Status
	}
	if out.PatientDisplayName == nil && prev.PatientDisplayName != nil {
		out.PatientDisplayName = prev.Clone().PatientDisplayName
	}
	if out.CabinetOrWindow == nil && prev.CabinetOrWindow != nil {
		out.CabinetOrWindow = prev.Clone().CabinetOrWindow
	}
	if out.DoctorName == nil && prev.DoctorName != nil {
		out.DoctorName = prev.Clone().DoctorName
	}
	if out.CreatedAt == nil && prev.CreatedAt != nil {
		out.CreatedAt = prev.Clone().CreatedAt
	}
	if out.CalledAt == nil && prev.CalledAt != nil {
		out.CalledAt = prev.Clone().CalledAt
	}
	if out.Source == "" {
		out.Source = prev.Source
	}
	if out.Department == "" {
		out.Department = prev.Department
	}
	return out
}

func containsAnnouncement(list []models.Announcement, a models.Announcement) bool {
	for _, existing := range list {
		if existing.CreatedAt.Equal(a.CreatedAt) && existing.Text == a.Text {
			return true
		}
	}
	return false
}

func trimRing(list []models.Announcement, size int) []models.Announcement {
	if len(list) <= size {
		return list
	}
	return append([]models.Announcement(nil), list[len(list)-size:]...)
}

func cloneEntries(entries []models.QueueEntry) []models.QueueEntry {
	out := make([]models.QueueEntry, len(entries))
	for i := range entries {
		out[i] = entries[i].Clone()
	}
	return out
}

func cloneSnapshot(s *models.QueueSnapshot) *models.QueueSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneBoardState(s *models.BoardState) *models.BoardState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Announcements != nil {
		c.Announcements = make(map[string]string, len(s.Announcements))
		for k, v := range s.Announcements {
			c.Announcements[k] = v
		}
	}
	if s.Defaults != nil {
		c.Defaults = make(map[string]models.LanguageDefaults, len(s.Defaults))
		for k, v := range s.Defaults {
			c.Defaults[k] = v
		}
	}
	return &c
}
