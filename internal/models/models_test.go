package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshotVersions(t *testing.T) {
	t.Run("current", func(t *testing.T) {
		taken := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		raw, err := Snapshot{DisplayName: "Rook", Stats: StatBlock{HP: 40, Armor: 3}, TakenAt: taken}.Encode()
		require.NoError(t, err)

		s, err := DecodeSnapshot(raw)
		require.NoError(t, err)
		assert.Equal(t, SnapshotVersion, s.Version)
		assert.Equal(t, "Rook", s.DisplayName)
		assert.Equal(t, 40, s.Stats.HP)
		assert.True(t, taken.Equal(s.TakenAt))
	})

	t.Run("legacy map with string and missing stats", func(t *testing.T) {
		raw := []byte(`{"displayName":"","photoURL":"p.png","stats":{"hp":"120","energy":7.9,"bogus":3,"armor":"lots"}}`)
		s, err := DecodeSnapshot(raw)
		require.NoError(t, err)
		assert.Equal(t, SnapshotVersion, s.Version)
		assert.Equal(t, DefaultDisplayName, s.DisplayName)
		assert.Equal(t, "p.png", s.PhotoURL)
		assert.Equal(t, StatBlock{HP: 120, Energy: 7}, s.Stats)
	})

	t.Run("empty", func(t *testing.T) {
		s, err := DecodeSnapshot(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultDisplayName, s.DisplayName)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := DecodeSnapshot([]byte(`{"v":99}`))
		assert.Error(t, err)
	})
}

func TestParseStatBlock(t *testing.T) {
	full := map[string]any{
		StatHP: 100.0, StatEnergy: "50", StatRespect: 1, StatEvasion: json.Number("2"),
		StatArmor: 20000, StatResistance: -4, StatBloodRes: 0, StatPoisonRes: 9,
	}
	s, err := ParseStatBlock("stats", full)
	require.NoError(t, err)
	assert.Equal(t, StatBlock{HP: 100, Energy: 50, Respect: 1, Evasion: 2, Armor: MaxStatValue, PoisonRes: 9}, s)

	delete(full, StatPoisonRes)
	_, err = ParseStatBlock("stats", full)
	assert.True(t, IsValidation(err))

	full[StatPoisonRes] = "nine"
	_, err = ParseStatBlock("stats", full)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "stats.poisonRes", ve.Field)
}

func TestParseRequirements(t *testing.T) {
	r, err := ParseRequirements("requirements", map[string]any{StatHP: 30.0, StatBloodRes: "5"})
	require.NoError(t, err)
	assert.Equal(t, StatBlock{HP: 30, BloodRes: 5}, r)

	_, err = ParseRequirements("requirements", map[string]any{"mana": 3})
	assert.True(t, IsValidation(err))

	r, err = ParseRequirements("requirements", nil)
	require.NoError(t, err)
	assert.Equal(t, StatBlock{}, r)
}

func TestDecodeStatsIsLenient(t *testing.T) {
	s, err := DecodeStats([]byte(`{"hp":"12","respect":3,"armor":null}`))
	require.NoError(t, err)
	assert.Equal(t, StatBlock{HP: 12, Respect: 3}, s)

	_, err = DecodeStats([]byte(`[`))
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to ApplicationStatus
		want     bool
	}{
		{ApplicationPending, ApplicationApproved, true},
		{ApplicationPending, ApplicationRejected, true},
		{ApplicationApproved, ApplicationCanceled, true},
		{ApplicationRejected, ApplicationApproved, false},
		{ApplicationRejected, ApplicationPending, true},
		{ApplicationCanceled, ApplicationApproved, false},
		{ApplicationApproved, ApplicationApproved, true},
		{ApplicationPending, "maybe", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEventPatch(t *testing.T) {
	start := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	e := Event{Title: "Old", Capacity: 5, StartsAt: &start, EndsAt: &start}
	title, capacity := "New", 8
	got := EventPatch{Title: &title, Capacity: &capacity, ClearEndsAt: true}.Apply(e)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, 8, got.Capacity)
	assert.Nil(t, got.EndsAt)
	assert.Equal(t, &start, got.StartsAt)
	assert.Equal(t, "Old", e.Title, "original untouched")

	assert.True(t, EventPatch{}.Empty())
	assert.False(t, EventPatch{ClearStartsAt: true}.Empty())
}

func TestSeatsLeft(t *testing.T) {
	e := Event{Capacity: 3, ParticipantsCount: 5}
	assert.Zero(t, e.SeatsLeft())
	assert.True(t, e.IsFull())
	e.ParticipantsCount = 1
	assert.Equal(t, 2, e.SeatsLeft())
	assert.False(t, e.IsFull())
}

func TestFeedViewFor(t *testing.T) {
	me, other := uuid.New(), uuid.New()
	f := &EventFeed{Applications: []Application{{UserID: me}, {UserID: other}}}

	assert.Len(t, f.ViewFor(uuid.New(), true).Applications, 2)

	mine := f.ViewFor(me, false)
	require.Len(t, mine.Applications, 1)
	assert.Equal(t, me, mine.Applications[0].UserID)
	assert.Len(t, f.Applications, 2)

	assert.NotNil(t, f.ViewFor(uuid.New(), false).Applications)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsConflict(ErrCapacityExceeded))
	assert.True(t, IsConflict(ErrAlreadySeated))
	assert.False(t, IsConflict(ErrNotFound))
	var err error = &RequirementsError{Missing: []string{StatHP}}
	assert.ErrorIs(t, err, ErrRequirementsNotMet)
	assert.Contains(t, err.Error(), StatHP)
}
