package platform

import (
	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-mod/internal/presence"
)

// Presence reads voice channel membership from the session's state cache
// for one guild.
type Presence struct {
	s       *discordgo.Session
	guildID string
}

func NewPresence(s *discordgo.Session, guildID string) *Presence {
	return &Presence{s: s, guildID: guildID}
}

func (p *Presence) ChannelMembers(channelID string) []string {
	if p.s == nil || p.s.State == nil || channelID == "" {
		return nil
	}
	g, err := p.s.State.Guild(p.guildID)
	if err != nil || g == nil {
		return nil
	}
	var out []string
	for _, vs := range g.VoiceStates {
		if vs == nil || vs.ChannelID != channelID || vs.UserID == "" {
			continue
		}
		out = append(out, vs.UserID)
	}
	return out
}

func (p *Presence) CurrentChannelOf(userID string) string {
	if p.s == nil || p.s.State == nil || userID == "" {
		return ""
	}
	g, err := p.s.State.Guild(p.guildID)
	if err != nil || g == nil {
		return ""
	}
	for _, vs := range g.VoiceStates {
		if vs != nil && vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// BatchFromUpdate converts a gateway voice-state update into the tracker's
// batch form. The gateway delivers one user per event; the previous channel
// comes from the state cache's BeforeUpdate copy.
func BatchFromUpdate(vs *discordgo.VoiceStateUpdate) []presence.VoiceState {
	if vs == nil {
		return nil
	}
	prev := ""
	if vs.BeforeUpdate != nil {
		prev = vs.BeforeUpdate.ChannelID
	}
	return []presence.VoiceState{{
		UserID:        vs.UserID,
		ChannelID:     vs.ChannelID,
		PrevChannelID: prev,
	}}
}
