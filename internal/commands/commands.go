// Package commands registers the /voicemod slash command and serves its
// subcommands. Everything here is a direct, idempotent read or write over
// the volume controller and settings store.
package commands

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/moderation"
	"github.com/discord-voice-mod/internal/volume"
)

// Handler serves /voicemod interactions.
type Handler struct {
	engine     *moderation.Engine
	store      *config.Store
	controller volume.Controller
}

func New(engine *moderation.Engine, store *config.Store, controller volume.Controller) *Handler {
	return &Handler{engine: engine, store: store, controller: controller}
}

func definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "voicemod",
		Description: "Local voice channel moderation controls",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
				Name:        "whitelist",
				Description: "Manage the moderation whitelist",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "add",
						Description: "Never moderate this user",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionUser,
								Name:        "user",
								Description: "User to whitelist",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "remove",
						Description: "Remove a user from the whitelist",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionUser,
								Name:        "user",
								Description: "User to remove",
								Required:    true,
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "list",
						Description: "List whitelisted users",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "volumes",
				Description: "List users with a non-default local volume",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "reset",
				Description: "Reset all custom local volumes back to 100%",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "enable",
				Description: "Enable automatic moderation",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "disable",
				Description: "Disable automatic moderation and stop tracking",
			},
		},
	}
}

// Register creates the slash command for the configured guild (global when
// guildID is empty).
func (h *Handler) Register(s *discordgo.Session, guildID string) error {
	if s.State == nil || s.State.User == nil {
		return fmt.Errorf("session not ready")
	}
	if _, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition()); err != nil {
		return fmt.Errorf("create command: %w", err)
	}
	logging.Infow("commands: registered /voicemod", "guild.id", guildID)
	return nil
}

// HandleInteraction dispatches /voicemod subcommands. Register it with
// Session.AddHandler.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "voicemod" || len(data.Options) == 0 {
		return
	}

	var content string
	top := data.Options[0]
	switch top.Name {
	case "whitelist":
		content = h.handleWhitelist(top)
	case "volumes":
		content = h.handleVolumes()
	case "reset":
		content = h.handleReset()
	case "enable":
		h.store.SetEnabled(true)
		content = "✅ Voice moderation enabled."
	case "disable":
		h.store.SetEnabled(false)
		h.engine.ReleaseAll(moderation.ReasonStop)
		content = "✅ Voice moderation disabled; tracking stopped."
	default:
		return
	}

	respond(s, i, content)
}

func (h *Handler) handleWhitelist(group *discordgo.ApplicationCommandInteractionDataOption) string {
	if len(group.Options) == 0 {
		return ""
	}
	sub := group.Options[0]
	switch sub.Name {
	case "add":
		uid := optionUserID(sub)
		if uid == "" {
			return "❌ No user given."
		}
		added, err := h.store.AddWhitelist(uid)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		if !added {
			return "❌ User already whitelisted."
		}
		return fmt.Sprintf("✅ Added <@%s> to the voice mod whitelist.", uid)
	case "remove":
		uid := optionUserID(sub)
		if uid == "" {
			return "❌ No user given."
		}
		removed, err := h.store.RemoveWhitelist(uid)
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		if !removed {
			return "❌ User is not whitelisted."
		}
		return fmt.Sprintf("✅ Removed <@%s> from the voice mod whitelist.", uid)
	case "list":
		ids := h.store.WhitelistIDs()
		if len(ids) == 0 {
			return "**Voice Mod Whitelist:**\nNone"
		}
		mentions := make([]string, 0, len(ids))
		for _, id := range ids {
			mentions = append(mentions, "<@"+id+">")
		}
		return "**Voice Mod Whitelist:**\n" + strings.Join(mentions, ", ")
	}
	return ""
}

func (h *Handler) handleVolumes() string {
	st := h.store.Snapshot()
	sc := volume.ForCurve(st.VolumeCurve)
	known := h.controller.Known()
	if len(known) == 0 {
		return "No custom user volumes set."
	}
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var b strings.Builder
	b.WriteString("**Custom User Volumes:**\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "• <@%s>: %d%%\n", id, int(math.Round(sc.ToDisplay(known[id]))))
	}
	return b.String()
}

func (h *Handler) handleReset() string {
	known := h.controller.Known()
	count := 0
	for id := range known {
		if err := h.controller.Set(id, volume.DefaultVolume); err != nil {
			logging.Warnw("commands: reset failed", "user.id", id, "err", err)
			continue
		}
		count++
	}
	if count == 0 {
		return "ℹ️ No custom volumes found to reset."
	}
	return fmt.Sprintf("✅ Reset volumes for **%d** users back to 100%%.", count)
}

func optionUserID(sub *discordgo.ApplicationCommandInteractionDataOption) string {
	for _, opt := range sub.Options {
		if opt.Name == "user" && opt.Type == discordgo.ApplicationCommandOptionUser {
			// UserValue(nil) decodes the ID without a REST lookup.
			if u := opt.UserValue(nil); u != nil {
				return u.ID
			}
		}
	}
	return ""
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if content == "" {
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logging.Warnw("commands: respond failed", "err", err)
	}
}
