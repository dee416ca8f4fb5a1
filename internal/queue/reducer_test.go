package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/display"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
)

func newTestReducer() *Reducer {
	return NewReducer("Derma+2025-01-10", DefaultRingSize, logger.InitializeTestZapLogger())
}

func entry(number int, status models.EntryStatus) models.QueueEntry {
	return models.QueueEntry{Number: number, Status: status}
}

func apply(r *Reducer, ev models.Event) []models.Change {
	return r.Apply(context.Background(), models.Envelope{Event: ev})
}

func numbers(entries []models.QueueEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Number
	}
	return out
}

func activeCount(b Board) int {
	n := 0
	for _, e := range b.Entries {
		if e.Status.IsActive() {
			n++
		}
	}
	return n
}

func kinds(changes []models.Change) []models.ChangeKind {
	out := make([]models.ChangeKind, len(changes))
	for i, c := range changes {
		out[i] = c.Kind
	}
	return out
}

func TestAppendVersusReplace(t *testing.T) {
	r := newTestReducer()
	apply(r, models.QueueReplaced{Entries: []models.QueueEntry{entry(1, models.EntryStatusWaiting)}})

	changes := apply(r, models.EntryCreated{Entry: entry(2, models.EntryStatusWaiting)})
	assert.Equal(t, []models.ChangeKind{models.ChangeEntryAdded}, kinds(changes))
	assert.Equal(t, []int{1, 2}, numbers(r.Board().Entries))

	changes = apply(r, models.QueueReplaced{Entries: []models.QueueEntry{
		entry(3, models.EntryStatusWaiting),
		entry(4, models.EntryStatusWaiting),
	}})
	assert.Equal(t, []models.ChangeKind{models.ChangeEntriesReplaced}, kinds(changes))
	assert.Equal(t, []int{3, 4}, numbers(r.Board().Entries))
}

func TestReplayIsIdempotent(t *testing.T) {
	r := newTestReducer()
	update := models.QueueReplaced{Entries: []models.QueueEntry{
		entry(1, models.EntryStatusCompleted),
		entry(2, models.EntryStatusCalled),
		entry(3, models.EntryStatusWaiting),
	}}

	require.NotEmpty(t, apply(r, update))
	once := r.Board()

	assert.Empty(t, apply(r, update))
	assert.Equal(t, once, r.Board())

	created := models.EntryCreated{Entry: entry(4, models.EntryStatusWaiting)}
	require.NotEmpty(t, apply(r, created))
	assert.Empty(t, apply(r, created))
	assert.Equal(t, []int{1, 2, 3, 4}, numbers(r.Board().Entries))

	call := models.PatientCall{Entry: entry(3, models.EntryStatusCalled)}
	require.NotEmpty(t, apply(r, call))
	assert.Empty(t, apply(r, call))
}

func TestSingleCurrentCall(t *testing.T) {
	r := newTestReducer()
	apply(r, models.QueueReplaced{Entries: []models.QueueEntry{
		entry(1, models.EntryStatusWaiting),
		entry(2, models.EntryStatusWaiting),
		entry(3, models.EntryStatusWaiting),
	}})

	for _, n := range []int{1, 2, 3, 7, 2} {
		apply(r, models.PatientCall{Entry: entry(n, models.EntryStatusCalled)})
		b := r.Board()
		assert.LessOrEqual(t, activeCount(b), 1)
	}

	b := r.Board()
	assert.Equal(t, 7, b.CurrentCall, "recalling a completed entry is rejected")
	assert.Equal(t, models.EntryStatusCompleted, b.Entries[0].Status)
	assert.Equal(t, models.EntryStatusCompleted, b.Entries[1].Status)
	assert.Equal(t, models.EntryStatusCompleted, b.Entries[2].Status)
	assert.Equal(t, models.EntryStatusCalled, b.Entries[3].Status)
}

func TestPatientCallSupersedesWithDeclaredStatus(t *testing.T) {
	r := newTestReducer()
	apply(r, models.PatientCall{Entry: entry(5, models.EntryStatusCalled)})

	cancelled := models.EntryStatusCancelled
	changes := apply(r, models.PatientCall{Entry: entry(6, models.EntryStatusCalled), PreviousStatus: &cancelled})
	require.Equal(t, []models.ChangeKind{models.ChangeEntryUpdated, models.ChangeCallStarted}, kinds(changes))

	started := changes[1]
	assert.Equal(t, 6, started.Entry.Number)
	require.NotNil(t, started.Previous)
	assert.Equal(t, 5, started.Previous.Number)
	assert.Equal(t, models.EntryStatusCancelled, started.Previous.Status)

	// A non-terminal declared status cannot leave two active entries.
	serving := models.EntryStatusServing
	apply(r, models.PatientCall{Entry: entry(7, models.EntryStatusCalled), PreviousStatus: &serving})
	b := r.Board()
	assert.Equal(t, 1, activeCount(b))
	assert.Equal(t, models.EntryStatusCompleted, b.Entries[1].Status)
}

func TestDeclaredServingStatus(t *testing.T) {
	r := newTestReducer()
	apply(r, models.QueueReplaced{Entries: []models.QueueEntry{
		entry(1, models.EntryStatusWaiting),
		entry(2, models.EntryStatusCalled),
	}})

	changes := apply(r, models.EntryCreated{Entry: entry(3, models.EntryStatusServing)})
	require.NotEmpty(t, changes)
	started := changes[len(changes)-1]
	assert.Equal(t, models.ChangeCallStarted, started.Kind)
	assert.Equal(t, models.EntryStatusServing, started.Entry.Status)

	b := r.Board()
	assert.Equal(t, 3, b.CurrentCall)
	assert.Equal(t, models.EntryStatusCompleted, b.Entries[1].Status)
	assert.Equal(t, models.EntryStatusServing, b.Entries[2].Status)
	assert.Equal(t, 1, activeCount(b))

	// WAITING cannot jump to SERVING, so the call lands as CALLED.
	apply(r, models.PatientCall{Entry: entry(1, models.EntryStatusServing)})
	b = r.Board()
	assert.Equal(t, 1, b.CurrentCall)
	assert.Equal(t, models.EntryStatusCalled, b.Entries[0].Status)
	assert.Equal(t, 1, activeCount(b))
}

func TestPatientCallKeepsKnownFields(t *testing.T) {
	r := newTestReducer()
	name, cabinet := "Karimova D.", "204"
	apply(r, models.EntryCreated{Entry: models.QueueEntry{Number: 9, Status: models.EntryStatusWaiting, PatientDisplayName: &name}})

	apply(r, models.PatientCall{Entry: models.QueueEntry{Number: 9, Status: models.EntryStatusCalled, CabinetOrWindow: &cabinet}})
	current := r.Board().Current()
	require.NotNil(t, current)
	assert.Equal(t, name, *current.PatientDisplayName)
	assert.Equal(t, cabinet, *current.CabinetOrWindow)
}

func TestFullReplaceNormalizesCurrentCall(t *testing.T) {
	r := newTestReducer()
	early := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	late := early.Add(5 * time.Minute)

	changes := apply(r, models.QueueReplaced{Entries: []models.QueueEntry{
		{Number: 1, Status: models.EntryStatusServing, CalledAt: &early},
		{Number: 2, Status: models.EntryStatusCalled, CalledAt: &late},
		{Number: 3, Status: models.EntryStatusWaiting},
	}})
	require.Len(t, changes, 1)
	require.NotNil(t, changes[0].Entry)
	assert.Equal(t, 2, changes[0].Entry.Number)

	b := r.Board()
	assert.Equal(t, 2, b.CurrentCall)
	assert.Equal(t, models.EntryStatusCompleted, b.Entries[0].Status)
	assert.Equal(t, 1, activeCount(b))
}

func TestInitialStateCurrentCall(t *testing.T) {
	r := newTestReducer()
	current := entry(4, models.EntryStatusCalled)
	apply(r, models.InitialState{
		Entries:     []models.QueueEntry{entry(3, models.EntryStatusCompleted), entry(4, models.EntryStatusWaiting)},
		CurrentCall: &current,
	})

	b := r.Board()
	assert.Equal(t, 4, b.CurrentCall)
	assert.Equal(t, models.EntryStatusCalled, b.Entries[1].Status)
}

func TestCallCompleted(t *testing.T) {
	r := newTestReducer()
	apply(r, models.PatientCall{Entry: entry(12, models.EntryStatusCalled)})

	changes := apply(r, models.CallCompleted{})
	require.Equal(t, []models.ChangeKind{models.ChangeCallCompleted}, kinds(changes))
	assert.Equal(t, models.EntryStatusCompleted, changes[0].Entry.Status)

	b := r.Board()
	assert.Equal(t, 0, b.CurrentCall)
	assert.Nil(t, b.Current())
	assert.Empty(t, apply(r, models.CallCompleted{}))

	missing := 99
	assert.Empty(t, apply(r, models.CallCompleted{Number: &missing}))
}

func TestTransitions(t *testing.T) {
	r := newTestReducer()
	apply(r, models.QueueReplaced{Entries: []models.QueueEntry{entry(1, models.EntryStatusWaiting), entry(2, models.EntryStatusWaiting)}})

	// WAITING -> SERVING skips CALLED.
	assert.Empty(t, apply(r, models.EntryUpserted{Entry: entry(1, models.EntryStatusServing)}))

	changes := apply(r, models.EntryUpserted{Entry: entry(1, models.EntryStatusCalled)})
	assert.Equal(t, models.ChangeCallStarted, changes[len(changes)-1].Kind)

	changes = apply(r, models.EntryUpserted{Entry: entry(1, models.EntryStatusServing)})
	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeEntryUpdated, changes[0].Kind)
	assert.Equal(t, 1, r.Board().CurrentCall)

	changes = apply(r, models.EntryUpserted{Entry: entry(1, models.EntryStatusCompleted)})
	assert.Equal(t, models.ChangeCallCompleted, changes[0].Kind)
	assert.Equal(t, 0, r.Board().CurrentCall)

	// Terminal states do not move.
	assert.Empty(t, apply(r, models.EntryUpserted{Entry: entry(1, models.EntryStatusWaiting)}))
	assert.Empty(t, apply(r, models.PatientCall{Entry: entry(1, models.EntryStatusCalled)}))

	changes = apply(r, models.EntryUpserted{Entry: entry(2, models.EntryStatusCancelled)})
	assert.Equal(t, models.ChangeEntryUpdated, changes[0].Kind)
	assert.Empty(t, apply(r, models.CallCompleted{Number: intPtr(2)}))
}

func TestUpsertKeepsPositionUnlessReordered(t *testing.T) {
	r := newTestReducer()
	apply(r, models.QueueReplaced{Entries: []models.QueueEntry{
		entry(1, models.EntryStatusWaiting),
		entry(2, models.EntryStatusWaiting),
		entry(3, models.EntryStatusWaiting),
	}})

	doctor := "Dr. Aliev"
	apply(r, models.EntryUpserted{Entry: models.QueueEntry{Number: 1, DoctorName: &doctor}})
	b := r.Board()
	assert.Equal(t, []int{1, 2, 3}, numbers(b.Entries))
	assert.Equal(t, models.EntryStatusWaiting, b.Entries[0].Status)

	apply(r, models.EntryUpserted{Entry: models.QueueEntry{Number: 1}, Reorder: true})
	assert.Equal(t, []int{2, 3, 1}, numbers(r.Board().Entries))
}

func TestReorderReachesPresenter(t *testing.T) {
	r := newTestReducer()
	clk := clock.NewFake(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	p := display.NewPresenter("Derma+2025-01-10", display.NamePolicyFull, DefaultRingSize, clk)
	ctx := context.Background()

	p.HandleChanges(ctx, apply(r, models.QueueReplaced{Entries: []models.QueueEntry{
		entry(1, models.EntryStatusWaiting),
		entry(2, models.EntryStatusWaiting),
		entry(3, models.EntryStatusWaiting),
		entry(4, models.EntryStatusWaiting),
	}}))

	changes := apply(r, models.EntryUpserted{Entry: models.QueueEntry{Number: 1}, Reorder: true})
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Reordered)
	p.HandleChanges(ctx, changes)

	waiting := func() []int {
		var out []int
		for _, e := range p.View().Waiting {
			out = append(out, e.Number)
		}
		return out
	}
	assert.Equal(t, []int{2, 3, 4, 1}, numbers(r.Board().Entries))
	assert.Equal(t, []int{2, 3, 4, 1}, waiting())

	// Already last: nothing moves and nothing is emitted.
	assert.Empty(t, apply(r, models.EntryUpserted{Entry: models.QueueEntry{Number: 1}, Reorder: true}))

	changes = apply(r, models.EntryUpserted{Entry: entry(2, models.EntryStatusCalled), Reorder: true})
	require.NotEmpty(t, changes)
	assert.Equal(t, models.ChangeCallStarted, changes[len(changes)-1].Kind)
	assert.True(t, changes[len(changes)-1].Reordered)
	p.HandleChanges(ctx, changes)

	assert.Equal(t, []int{3, 4, 1, 2}, numbers(r.Board().Entries))
	assert.Equal(t, []int{3, 4, 1}, waiting())
	require.NotNil(t, p.View().CurrentCall)
	assert.Equal(t, 2, p.View().CurrentCall.Number)
}

func TestAnnouncementRing(t *testing.T) {
	r := newTestReducer()
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		apply(r, models.AnnouncementReceived{Announcement: models.Announcement{
			Text:      string(rune('a' + i)),
			Type:      models.AnnouncementInfo,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}})
	}

	ring := r.Announcements()
	require.Len(t, ring, 5)
	assert.Equal(t, "c", ring[0].Text)
	assert.Equal(t, "g", ring[4].Text)

	changes := apply(r, models.AnnouncementRemoved{CreatedAt: base.Add(3 * time.Minute)})
	assert.Equal(t, []models.ChangeKind{models.ChangeAnnouncementRemoved}, kinds(changes))
	assert.Len(t, r.Announcements(), 4)

	assert.Empty(t, apply(r, models.AnnouncementRemoved{CreatedAt: base}))
	assert.Len(t, r.Announcements(), 4)
}

func TestSnapshotReplacement(t *testing.T) {
	r := newTestReducer()
	snap := models.QueueSnapshot{LastTicket: 7, Waiting: 2, Serving: 1, Done: 4}

	changes := apply(r, models.StatsReceived{Snapshot: snap})
	require.Len(t, changes, 1)
	assert.Equal(t, snap, *changes[0].Snapshot)
	assert.Empty(t, apply(r, models.StatsReceived{Snapshot: snap}))

	changes = apply(r, models.StatsReceived{Snapshot: snap, Stale: true})
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Stale)

	changes = apply(r, models.Availability{Resource: "stats", Unavailable: true})
	assert.Equal(t, []models.ChangeKind{models.ChangeAvailability}, kinds(changes))
	assert.Empty(t, apply(r, models.Availability{Resource: "stats", Unavailable: true}))
}

func TestStaleSequenceRejected(t *testing.T) {
	r := newTestReducer()
	ctx := context.Background()

	require.NotEmpty(t, r.Apply(ctx, models.Envelope{Seq: 5, Event: models.PatientCall{Entry: entry(12, models.EntryStatusCalled)}}))
	assert.Empty(t, r.Apply(ctx, models.Envelope{Seq: 4, Event: models.PatientCall{Entry: entry(11, models.EntryStatusCalled)}}))
	assert.Equal(t, 12, r.Board().CurrentCall)

	// Unsequenced events are applied in arrival order.
	require.NotEmpty(t, r.Apply(ctx, models.Envelope{Event: models.PatientCall{Entry: entry(13, models.EntryStatusCalled)}}))

	// An initial state rebases the sequence.
	r.Apply(ctx, models.Envelope{Seq: 1, Event: models.InitialState{Entries: []models.QueueEntry{}}})
	require.NotEmpty(t, r.Apply(ctx, models.Envelope{Seq: 2, Event: models.EntryCreated{Entry: entry(1, models.EntryStatusWaiting)}}))
}

func TestRestoreMarksStale(t *testing.T) {
	r := newTestReducer()
	snap := models.QueueSnapshot{LastTicket: 12}
	changes := r.Restore(Board{
		Entries:     []models.QueueEntry{entry(12, models.EntryStatusCompleted)},
		CurrentCall: 12,
		Snapshot:    &snap,
	})

	require.Len(t, changes, 1)
	assert.Equal(t, models.ChangeHydrated, changes[0].Kind)
	assert.True(t, changes[0].Stale)
	assert.Nil(t, changes[0].Entry, "a completed entry is not a current call")
	assert.Equal(t, 0, r.Board().CurrentCall)

	// Fresh data with the same value still clears the stale marker.
	changes = apply(r, models.StatsReceived{Snapshot: snap})
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Stale)
}

func intPtr(v int) *int {
	return &v
}
