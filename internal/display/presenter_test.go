package display

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/clinic-queueboard/internal/clock"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
)

func strPtr(s string) *string {
	return &s
}

func TestFormatName(t *testing.T) {
	tcs := map[string]struct {
		name   *string
		policy NamePolicy
		want   string
	}{
		"nil":              {name: nil, policy: NamePolicyFull, want: ""},
		"full":             {name: strPtr("Karimova  Dilnoza"), policy: NamePolicyFull, want: "Karimova Dilnoza"},
		"initials":         {name: strPtr("Karimova Dilnoza"), policy: NamePolicyInitials, want: "Karimova D."},
		"patronymic":       {name: strPtr("Иванов иван петрович"), policy: NamePolicyInitials, want: "Иванов И. П."},
		"single word":      {name: strPtr("Aziz"), policy: NamePolicyInitials, want: "Aziz"},
		"already initials": {name: strPtr("Karimova D."), policy: NamePolicyInitials, want: "Karimova D."},
		"blank":            {name: strPtr("  "), policy: NamePolicyInitials, want: ""},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatName(tc.name, tc.policy))
		})
	}
}

func TestPresenterView(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	p := NewPresenter("Derma+2025-01-10", NamePolicyInitials, 2, clk)
	ctx := context.Background()

	p.HandleChanges(ctx, []models.Change{{
		Kind: models.ChangeEntriesReplaced,
		Entries: []models.QueueEntry{
			{Number: 1, Status: models.EntryStatusCompleted},
			{Number: 2, Status: models.EntryStatusWaiting, PatientDisplayName: strPtr("Karimova Dilnoza")},
			{Number: 3, Status: models.EntryStatusWaiting},
		},
	}})

	called := models.QueueEntry{Number: 2, Status: models.EntryStatusCalled, PatientDisplayName: strPtr("Karimova Dilnoza"), CabinetOrWindow: strPtr("204")}
	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeCallStarted, Entry: &called}})

	v := p.View()
	require.NotNil(t, v.CurrentCall)
	assert.Equal(t, 2, v.CurrentCall.Number)
	assert.Equal(t, "Karimova D.", v.CurrentCall.Name)
	assert.Equal(t, "204", v.CurrentCall.Cabinet)
	require.Len(t, v.Waiting, 1)
	assert.Equal(t, 3, v.Waiting[0].Number)
	assert.Equal(t, clk.Now(), v.UpdatedAt)

	done := called
	done.Status = models.EntryStatusCompleted
	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeCallCompleted, Entry: &done}})
	assert.Nil(t, p.View().CurrentCall)
}

func TestPresenterFreshness(t *testing.T) {
	p := NewPresenter("Derma+2025-01-10", NamePolicyFull, 0, nil)
	ctx := context.Background()

	snap := models.QueueSnapshot{LastTicket: 4, Waiting: 1, Serving: 1, Done: 2}
	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeSnapshotReplaced, Snapshot: &snap, Resource: "stats", Stale: true}})
	assert.Equal(t, []string{"stats"}, p.View().Stale)

	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeAvailability, Resource: "windows", Unavailable: true}})
	assert.Equal(t, []string{"windows"}, p.View().Unavailable)

	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeSnapshotReplaced, Snapshot: &snap, Resource: "stats"}})
	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeWindowsReplaced, Windows: []models.Window{{Window: "A"}}, Resource: "windows"}})

	v := p.View()
	assert.Empty(t, v.Stale)
	assert.Empty(t, v.Unavailable)
	assert.Equal(t, &snap, v.Stats)
	assert.Len(t, v.Windows, 1)
}

func TestPresenterAnnouncements(t *testing.T) {
	p := NewPresenter("board-1", NamePolicyFull, 2, nil)
	ctx := context.Background()
	base := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	for i, text := range []string{"a", "b", "c"} {
		a := models.Announcement{Text: text, Type: models.AnnouncementInfo, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeAnnouncementAdded, Announcement: &a}})
	}

	v := p.View()
	require.Len(t, v.Announcements, 2)
	assert.Equal(t, "b", v.Announcements[0].Text)

	removed := models.Announcement{CreatedAt: base.Add(time.Minute)}
	p.HandleChanges(ctx, []models.Change{{Kind: models.ChangeAnnouncementRemoved, Announcement: &removed}})
	v = p.View()
	require.Len(t, v.Announcements, 1)
	assert.Equal(t, "c", v.Announcements[0].Text)
}

func TestPresenterConnection(t *testing.T) {
	p := NewPresenter("board-1", NamePolicyFull, 0, nil)
	assert.Equal(t, models.ChannelIdle, p.View().Connection.State)

	p.SetConnection(models.ConnectionState{State: models.ChannelReconnecting, Attempt: 2})
	assert.Equal(t, models.ConnectionState{State: models.ChannelReconnecting, Attempt: 2}, p.View().Connection)
}
