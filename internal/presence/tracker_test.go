package presence

import (
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/moderation"
)

type fakeIdentity string

func (f fakeIdentity) CurrentUserID() string { return string(f) }

type releaseCall struct {
	userID string
	reason moderation.Reason
}

type fakeEngine struct {
	mu          sync.Mutex
	applies     []string
	releases    []releaseCall
	releaseAlls []moderation.Reason
}

func (f *fakeEngine) ApplyIfEligible(userID string) {
	f.mu.Lock()
	f.applies = append(f.applies, userID)
	f.mu.Unlock()
}

func (f *fakeEngine) Release(userID string, reason moderation.Reason) {
	f.mu.Lock()
	f.releases = append(f.releases, releaseCall{userID: userID, reason: reason})
	f.mu.Unlock()
}

func (f *fakeEngine) ReleaseAll(reason moderation.Reason) {
	f.mu.Lock()
	f.releaseAlls = append(f.releaseAlls, reason)
	f.mu.Unlock()
}

// fakeSnapshot maps user -> channel.
type fakeSnapshot map[string]string

func (f fakeSnapshot) ChannelMembers(channelID string) []string {
	var out []string
	for uid, ch := range f {
		if ch == channelID {
			out = append(out, uid)
		}
	}
	sort.Strings(out)
	return out
}

func (f fakeSnapshot) CurrentChannelOf(userID string) string { return f[userID] }

func trackerSettings() config.Settings {
	return config.Settings{Enabled: true, ModerateOnJoin: true}
}

func newTestTracker(st config.Settings, snap fakeSnapshot) (*Tracker, *fakeEngine) {
	eng := &fakeEngine{}
	t := NewTracker(eng, fakeIdentity("me"), snap, config.Static(st))
	return t, eng
}

func TestJoinAddsAndModerates(t *testing.T) {
	snap := fakeSnapshot{"me": "c1", "u1": "c1"}
	tr, eng := newTestTracker(trackerSettings(), snap)

	tr.HandleVoiceBatch([]VoiceState{{UserID: "u1", ChannelID: "c1"}})

	if !reflect.DeepEqual(tr.Members(), []string{"u1"}) {
		t.Fatalf("unexpected members: %v", tr.Members())
	}
	if !reflect.DeepEqual(eng.applies, []string{"u1"}) {
		t.Fatalf("unexpected applies: %v", eng.applies)
	}

	// Re-announcing the same channel must not re-apply.
	tr.HandleVoiceBatch([]VoiceState{{UserID: "u1", ChannelID: "c1"}})
	if len(eng.applies) != 1 {
		t.Fatalf("duplicate join applied again: %v", eng.applies)
	}
}

func TestLeaveRemovesAndReleases(t *testing.T) {
	snap := fakeSnapshot{"me": "c1", "u1": "c1"}
	tr, eng := newTestTracker(trackerSettings(), snap)
	tr.HandleVoiceBatch([]VoiceState{{UserID: "u1", ChannelID: "c1"}})

	snap["u1"] = "c2"
	tr.HandleVoiceBatch([]VoiceState{{UserID: "u1", ChannelID: "c2", PrevChannelID: "c1"}})

	if len(tr.Members()) != 0 {
		t.Fatalf("member retained after leave: %v", tr.Members())
	}
	want := []releaseCall{{userID: "u1", reason: moderation.ReasonLeft}}
	if !reflect.DeepEqual(eng.releases, want) {
		t.Fatalf("unexpected releases: %v", eng.releases)
	}
}

func TestOperatorLeavesVoice(t *testing.T) {
	snap := fakeSnapshot{"me": "c1", "u1": "c1", "u2": "c1", "u3": "c1"}
	tr, eng := newTestTracker(trackerSettings(), snap)
	tr.HandleVoiceBatch([]VoiceState{
		{UserID: "u1", ChannelID: "c1"},
		{UserID: "u2", ChannelID: "c1"},
		{UserID: "u3", ChannelID: "c1"},
	})
	if len(tr.Members()) != 3 {
		t.Fatalf("setup failed: %v", tr.Members())
	}

	delete(snap, "me")
	tr.HandleVoiceBatch([]VoiceState{{UserID: "me", ChannelID: "", PrevChannelID: "c1"}})

	if len(tr.Members()) != 0 {
		t.Fatalf("membership not cleared: %v", tr.Members())
	}
	if !reflect.DeepEqual(eng.releaseAlls, []moderation.Reason{moderation.ReasonLeft}) {
		t.Fatalf("unexpected releaseAll calls: %v", eng.releaseAlls)
	}
}

func TestOperatorMoveSeedsNewChannel(t *testing.T) {
	snap := fakeSnapshot{"me": "c2", "u3": "c2", "u4": "c2"}
	tr, eng := newTestTracker(trackerSettings(), snap)

	tr.HandleVoiceBatch([]VoiceState{{UserID: "me", ChannelID: "c2", PrevChannelID: "c1"}})

	if !reflect.DeepEqual(eng.releaseAlls, []moderation.Reason{moderation.ReasonLeft}) {
		t.Fatalf("expected releaseAll on move, got %v", eng.releaseAlls)
	}
	if !reflect.DeepEqual(tr.Members(), []string{"u3", "u4"}) {
		t.Fatalf("unexpected members after move: %v", tr.Members())
	}
	sort.Strings(eng.applies)
	if !reflect.DeepEqual(eng.applies, []string{"u3", "u4"}) {
		t.Fatalf("unexpected applies after move: %v", eng.applies)
	}
}

func TestModerateOnJoinFlagGatesMoveAndSeed(t *testing.T) {
	st := trackerSettings()
	st.ModerateOnJoin = false
	snap := fakeSnapshot{"me": "c2", "u3": "c2"}
	tr, eng := newTestTracker(st, snap)

	tr.HandleVoiceBatch([]VoiceState{{UserID: "me", ChannelID: "c2", PrevChannelID: "c1"}})

	// Membership tracking is independent of moderation decisions.
	if !reflect.DeepEqual(tr.Members(), []string{"u3"}) {
		t.Fatalf("unexpected members: %v", tr.Members())
	}
	if len(eng.applies) != 0 {
		t.Fatalf("move seeding must respect the flag: %v", eng.applies)
	}

	tr.Reset()
	tr.Seed()
	if len(eng.applies) != 0 {
		t.Fatalf("startup seeding must respect the flag: %v", eng.applies)
	}
}

func TestSeedPopulatesFromCurrentChannel(t *testing.T) {
	snap := fakeSnapshot{"me": "c1", "u1": "c1", "u2": "c1", "x": "c9"}
	tr, eng := newTestTracker(trackerSettings(), snap)

	tr.Seed()

	if !reflect.DeepEqual(tr.Members(), []string{"u1", "u2"}) {
		t.Fatalf("unexpected members: %v", tr.Members())
	}
	sort.Strings(eng.applies)
	if !reflect.DeepEqual(eng.applies, []string{"u1", "u2"}) {
		t.Fatalf("unexpected applies: %v", eng.applies)
	}
}

func TestSameBatchRejoinResolvesToFinalChannel(t *testing.T) {
	snap := fakeSnapshot{"me": "c1", "u1": "c1"}
	tr, eng := newTestTracker(trackerSettings(), snap)
	tr.HandleVoiceBatch([]VoiceState{{UserID: "u1", ChannelID: "c1"}})

	// Rapid re-route within one batch: away and back. Final channel is c1,
	// so nothing may be released.
	tr.HandleVoiceBatch([]VoiceState{
		{UserID: "u1", ChannelID: "c2", PrevChannelID: "c1"},
		{UserID: "u1", ChannelID: "c1", PrevChannelID: "c2"},
	})

	if len(eng.releases) != 0 {
		t.Fatalf("stale intermediate state applied: %v", eng.releases)
	}
	if !reflect.DeepEqual(tr.Members(), []string{"u1"}) {
		t.Fatalf("unexpected members: %v", tr.Members())
	}

	// The reverse order resolves to a leave exactly once.
	snap["u1"] = "c2"
	tr.HandleVoiceBatch([]VoiceState{
		{UserID: "u1", ChannelID: "c1", PrevChannelID: "c2"},
		{UserID: "u1", ChannelID: "c2", PrevChannelID: "c1"},
	})
	want := []releaseCall{{userID: "u1", reason: moderation.ReasonLeft}}
	if !reflect.DeepEqual(eng.releases, want) {
		t.Fatalf("unexpected releases: %v", eng.releases)
	}
	if len(tr.Members()) != 0 {
		t.Fatalf("unexpected members: %v", tr.Members())
	}
}

func TestBatchForUnrelatedChannelIgnored(t *testing.T) {
	snap := fakeSnapshot{"me": "c1", "u1": "c9"}
	tr, eng := newTestTracker(trackerSettings(), snap)

	tr.HandleVoiceBatch([]VoiceState{{UserID: "u1", ChannelID: "c9"}})

	if len(tr.Members()) != 0 || len(eng.applies) != 0 {
		t.Fatalf("unrelated channel must be ignored: members=%v applies=%v", tr.Members(), eng.applies)
	}
}
