package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-mod/internal/bridge"
	"github.com/discord-voice-mod/internal/commands"
	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/mcpserver"
	"github.com/discord-voice-mod/internal/moderation"
	"github.com/discord-voice-mod/internal/notify"
	"github.com/discord-voice-mod/internal/platform"
	"github.com/discord-voice-mod/internal/presence"
)

func main() {
	sugar := logging.Init()
	if sugar == nil {
		l, _ := zap.NewProduction()
		defer l.Sync()
		sugar = l.Sugar()
	}

	store, err := config.Load()
	if err != nil {
		sugar.Fatalf("config load failed: %v", err)
	}
	st := store.Snapshot()

	token := os.Getenv("DISCORD_BOT_TOKEN")
	if token == "" {
		sugar.Fatal("DISCORD_BOT_TOKEN required")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		sugar.Fatalf("discordgo.New: %v", err)
	}

	// Guilds + GuildVoiceStates are enough to receive GUILD_CREATE and
	// VoiceStateUpdate events for join/leave tracking.
	if dg.Identify.Intents == 0 {
		dg.Identify = discordgo.Identify{Intents: discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates}
	}
	sugar.Infow("using gateway intents", "intents", dg.Identify.Intents)

	// Collaborators around the moderation core.
	br := bridge.New()
	identity := platform.NewIdentity(dg)
	relationships := platform.NewRelationships(dg)
	snapshot := platform.NewPresence(dg, st.GuildID)

	var relay notify.Relay
	if st.NotifyChannelID != "" {
		relay = notify.NewDiscordRelay(dg, store)
	} else {
		relay = notify.NewLogRelay(store)
	}

	policy := moderation.NewPolicy(identity, relationships, store.WhitelistIDs)
	engine := moderation.NewEngine(policy, br, relay, store)
	br.SetSink(engine)
	tracker := presence.NewTracker(engine, identity, snapshot, store)

	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		if st := store.Snapshot(); st.GuildID != "" && vs.GuildID != st.GuildID {
			return
		}
		tracker.HandleVoiceBatch(platform.BatchFromUpdate(vs))
	})

	// Seed once the configured guild's state (including voice states) is
	// available. Re-seeding after a reconnect is harmless.
	dg.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		if st := store.Snapshot(); st.GuildID != "" && g.ID != st.GuildID {
			return
		}
		tracker.Seed()
	})

	cmdHandler := commands.New(engine, store, br)
	dg.AddHandler(cmdHandler.HandleInteraction)

	sugar.Infow("opening discord session")
	if err := dg.Open(); err != nil {
		sugar.Fatalf("discord session open failed: %v", err)
	}
	sugar.Infow("discord session opened")

	if err := cmdHandler.Register(dg, st.GuildID); err != nil {
		sugar.Warnf("slash command registration failed: %v", err)
	}

	// Volume bridge endpoint for the desktop client add-on.
	bridgeMux := http.NewServeMux()
	bridgeMux.HandleFunc("/bridge/ws", br.Handler())
	bridgeMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	bridgeSrv := &http.Server{Addr: st.BridgeAddr, Handler: bridgeMux}
	go func() {
		sugar.Infow("bridge listening", "addr", st.BridgeAddr)
		if err := bridgeSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Warnf("bridge server error: %v", err)
		}
	}()

	// Optional MCP tool surface.
	var mcpSrv *http.Server
	if st.MCPAddr != "" {
		mcpMux := http.NewServeMux()
		mcpMux.HandleFunc("/mcp/ws", mcpserver.New(engine, store, br).Handler())
		mcpSrv = &http.Server{Addr: st.MCPAddr, Handler: mcpMux}
		go func() {
			sugar.Infow("mcp listening", "addr", st.MCPAddr)
			if err := mcpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sugar.Warnf("mcp server error: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	sugar.Infow("shutdown signal received, closing resources")

	// Drop all tracking synchronously before tearing anything down so no
	// timer can fire into a closed session.
	engine.ReleaseAll(moderation.ReasonStop)
	tracker.Reset()

	if mcpSrv != nil {
		if err := mcpSrv.Close(); err != nil {
			sugar.Warnf("mcp server close error: %v", err)
		}
	}
	if err := bridgeSrv.Close(); err != nil {
		sugar.Warnf("bridge server close error: %v", err)
	}
	if err := dg.Close(); err != nil {
		sugar.Warnf("discord session close error: %v", err)
	}

	if l := zap.L(); l != nil {
		_ = l.Sync()
	}
	sugar.Info("shutdown complete")
}
