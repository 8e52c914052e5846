// Package notify formats and emits human-readable status messages. The core
// hands over a template kind plus variables and never inspects the result.
package notify

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
)

// Kind selects which configured message template to render.
type Kind string

const (
	Moderate Kind = "moderate"
	Skip     Kind = "skip"
	End      Kind = "end"
)

// Relay emits a rendered status message. Implementations are no-ops when
// notifications are disabled by configuration.
type Relay interface {
	Emit(kind Kind, vars map[string]any)
}

// Render replaces every {name} placeholder in tmpl with the corresponding
// value from vars. Unknown placeholders are left as-is.
func Render(tmpl string, vars map[string]any) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", fmt.Sprint(v))
	}
	return out
}

func templateFor(kind Kind, st config.Settings) string {
	switch kind {
	case Moderate:
		return st.MsgModerate
	case Skip:
		return st.MsgSkip
	case End:
		return st.MsgEnd
	}
	return ""
}

// DiscordRelay posts rendered templates to the configured notify channel.
type DiscordRelay struct {
	s        *discordgo.Session
	settings config.Source
}

func NewDiscordRelay(s *discordgo.Session, settings config.Source) *DiscordRelay {
	return &DiscordRelay{s: s, settings: settings}
}

func (r *DiscordRelay) Emit(kind Kind, vars map[string]any) {
	st := r.settings.Snapshot()
	if !st.Ephemeral || st.NotifyChannelID == "" {
		return
	}
	tmpl := templateFor(kind, st)
	if strings.TrimSpace(tmpl) == "" {
		return
	}
	msg := Render(tmpl, vars)
	if _, err := r.s.ChannelMessageSend(st.NotifyChannelID, msg); err != nil {
		// best-effort; a failed status message never affects moderation
		logging.Debugw("notify: send failed", "kind", string(kind), "err", err)
	}
}

// LogRelay writes rendered templates to the structured log only. Used when
// no notify channel is configured.
type LogRelay struct {
	settings config.Source
}

func NewLogRelay(settings config.Source) *LogRelay {
	return &LogRelay{settings: settings}
}

func (r *LogRelay) Emit(kind Kind, vars map[string]any) {
	st := r.settings.Snapshot()
	if !st.Ephemeral {
		return
	}
	tmpl := templateFor(kind, st)
	if strings.TrimSpace(tmpl) == "" {
		return
	}
	logging.Infow("notify: "+string(kind), "message", Render(tmpl, vars))
}

// Noop discards every notification. Useful for tests.
type Noop struct{}

func (Noop) Emit(Kind, map[string]any) {}
