// Package presence maintains the set of users sharing the operator's voice
// channel and drives the moderation engine from voice-state batches.
package presence

import (
	"sort"
	"sync"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/moderation"
)

// VoiceState is one user's entry in a presence-update batch.
type VoiceState struct {
	UserID        string
	ChannelID     string
	PrevChannelID string
}

// Engine is the moderation surface the tracker drives.
type Engine interface {
	ApplyIfEligible(userID string)
	Release(userID string, reason moderation.Reason)
	ReleaseAll(reason moderation.Reason)
}

// Identity resolves the operator's own user ID.
type Identity interface {
	CurrentUserID() string
}

// Snapshot reads the platform's current view of voice channel membership.
type Snapshot interface {
	// ChannelMembers returns the user IDs currently in a channel.
	ChannelMembers(channelID string) []string

	// CurrentChannelOf returns a user's channel, or "" when they are not in
	// voice.
	CurrentChannelOf(userID string) string
}

// Tracker owns the membership set. Membership mirrors platform-reported
// co-location and is independent of moderation decisions: a user is added
// even when the engine skips them.
type Tracker struct {
	engine   Engine
	identity Identity
	snapshot Snapshot
	settings config.Source

	mu      sync.Mutex
	members map[string]struct{}
}

func NewTracker(engine Engine, identity Identity, snapshot Snapshot, settings config.Source) *Tracker {
	return &Tracker{
		engine:   engine,
		identity: identity,
		snapshot: snapshot,
		settings: settings,
		members:  make(map[string]struct{}),
	}
}

// HandleVoiceBatch processes one presence-update batch in arrival order.
func (t *Tracker) HandleVoiceBatch(batch []VoiceState) {
	if len(batch) == 0 {
		return
	}
	me := t.identity.CurrentUserID()
	if me == "" {
		return
	}

	// Collapse the batch to its final entry per user. A user who joins and
	// leaves within one batch must resolve to the last reported channel,
	// never to a stale intermediate state.
	final := make(map[string]VoiceState, len(batch))
	order := make([]string, 0, len(batch))
	for _, vs := range batch {
		if _, seen := final[vs.UserID]; !seen {
			order = append(order, vs.UserID)
		}
		final[vs.UserID] = vs
	}

	st := t.settings.Snapshot()

	if my, ok := final[me]; ok {
		if my.ChannelID == "" {
			logging.Infow("presence: operator left voice, releasing all")
			t.Reset()
			t.engine.ReleaseAll(moderation.ReasonLeft)
		} else if my.ChannelID != my.PrevChannelID {
			logging.Infow("presence: operator moved", logging.ChannelFields(my.ChannelID, "")...)
			t.engine.ReleaseAll(moderation.ReasonLeft)
			t.Reset()
			for _, uid := range t.snapshot.ChannelMembers(my.ChannelID) {
				if uid == me {
					continue
				}
				t.add(uid)
				if st.ModerateOnJoin {
					t.engine.ApplyIfEligible(uid)
				}
			}
		}
	}

	// Handle everyone else against the operator's post-batch channel.
	myChannel := t.snapshot.CurrentChannelOf(me)
	if myChannel == "" {
		return
	}

	for _, uid := range order {
		if uid == me {
			continue
		}
		vs := final[uid]
		if vs.ChannelID == myChannel {
			if !t.has(uid) {
				logging.Infow("presence: user joined operator channel", logging.UserFields(uid, "")...)
				t.add(uid)
				t.engine.ApplyIfEligible(uid)
			}
		} else if t.has(uid) {
			logging.Infow("presence: user left operator channel", logging.UserFields(uid, "")...)
			t.remove(uid)
			t.engine.Release(uid, moderation.ReasonLeft)
		}
	}
}

// Seed populates membership from the operator's current channel, moderating
// pre-existing members when configured. Called at startup; safe to call
// again since adds and ApplyIfEligible are both idempotent.
func (t *Tracker) Seed() {
	me := t.identity.CurrentUserID()
	if me == "" {
		return
	}
	ch := t.snapshot.CurrentChannelOf(me)
	if ch == "" {
		return
	}
	st := t.settings.Snapshot()
	logging.Infow("presence: seeding from current channel", logging.ChannelFields(ch, "")...)
	for _, uid := range t.snapshot.ChannelMembers(ch) {
		if uid == me {
			continue
		}
		t.add(uid)
		if st.ModerateOnJoin {
			t.engine.ApplyIfEligible(uid)
		}
	}
}

// Members returns the tracked user IDs, sorted.
func (t *Tracker) Members() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.members))
	for uid := range t.members {
		out = append(out, uid)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}

// Reset clears the membership set.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.members = make(map[string]struct{})
	t.mu.Unlock()
}

func (t *Tracker) add(uid string) {
	t.mu.Lock()
	t.members[uid] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) remove(uid string) {
	t.mu.Lock()
	delete(t.members, uid)
	t.mu.Unlock()
}

func (t *Tracker) has(uid string) bool {
	t.mu.Lock()
	_, ok := t.members[uid]
	t.mu.Unlock()
	return ok
}
