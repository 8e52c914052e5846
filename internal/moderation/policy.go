package moderation

import (
	"fmt"
	"math"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/volume"
)

// Identity resolves the operator's own user ID.
type Identity interface {
	CurrentUserID() string
}

// Relationships answers friendship lookups. Implementations degrade to
// false on lookup failure.
type Relationships interface {
	IsFriend(userID string) bool
}

// Decision is the outcome of an exemption check. An empty Reason on a skip
// means the no-action is silent (plugin disabled, or the target is the
// operator) and must not be reported.
type Decision struct {
	Skip   bool
	Reason string
}

// Policy decides whether a user is exempt from moderation. Checks run in a
// fixed order and the first match wins so exactly one reason is ever
// reported.
type Policy struct {
	identity      Identity
	relationships Relationships
	whitelist     func() []string
}

func NewPolicy(identity Identity, relationships Relationships, whitelist func() []string) *Policy {
	return &Policy{identity: identity, relationships: relationships, whitelist: whitelist}
}

// Evaluate checks a user against the current settings snapshot.
// currentInternal is the user's present volume in internal units; sc must be
// the same scaler used everywhere else in the pipeline or the
// already-customized check misfires.
func (p *Policy) Evaluate(userID string, currentInternal float64, sc volume.Scaler, st config.Settings) Decision {
	if !st.Enabled {
		return Decision{Skip: true}
	}
	if userID == p.identity.CurrentUserID() {
		return Decision{Skip: true}
	}
	for _, id := range p.whitelist() {
		if id == userID {
			return Decision{Skip: true, Reason: "User is whitelisted."}
		}
	}
	if st.SkipFriends && p.relationships.IsFriend(userID) {
		return Decision{Skip: true, Reason: "User is a friend."}
	}
	if st.SkipCustomVolume {
		display := math.Round(sc.ToDisplay(currentInternal))
		if display != volume.DefaultVolume {
			return Decision{Skip: true, Reason: fmt.Sprintf("User already has a custom volume (%d%%).", int(display))}
		}
	}
	return Decision{}
}
