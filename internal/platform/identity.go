// Package platform adapts the Discord gateway session to the collaborator
// interfaces the moderation core consumes.
package platform

import "github.com/bwmarrin/discordgo"

// Identity reads the operator's user ID from the session state.
type Identity struct {
	s *discordgo.Session
}

func NewIdentity(s *discordgo.Session) *Identity { return &Identity{s: s} }

func (i *Identity) CurrentUserID() string {
	if i.s == nil || i.s.State == nil || i.s.State.User == nil {
		return ""
	}
	return i.s.State.User.ID
}
