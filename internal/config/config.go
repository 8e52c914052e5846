// Package config owns the settings store. Components read an immutable
// Settings snapshot at each decision point; the store also carries the
// whitelist write path.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/discord-voice-mod/internal/logging"
)

// Settings is one immutable snapshot of the moderation configuration.
type Settings struct {
	Enabled          bool    `mapstructure:"enabled"`
	ModerateOnJoin   bool    `mapstructure:"moderate_on_join"`
	Ephemeral        bool    `mapstructure:"ephemeral_messages"`
	TargetVolume     float64 `mapstructure:"target_volume"`
	DurationSeconds  int     `mapstructure:"duration_seconds"`
	Whitelist        string  `mapstructure:"whitelist"`
	SkipFriends      bool    `mapstructure:"skip_friends"`
	SkipCustomVolume bool    `mapstructure:"skip_custom_volume"`
	VolumeCurve      string  `mapstructure:"volume_curve"`

	MsgModerate string `mapstructure:"msg_moderate"`
	MsgSkip     string `mapstructure:"msg_skip"`
	MsgEnd      string `mapstructure:"msg_end"`

	GuildID         string `mapstructure:"guild_id"`
	NotifyChannelID string `mapstructure:"notify_channel_id"`
	BridgeAddr      string `mapstructure:"bridge_addr"`
	MCPAddr         string `mapstructure:"mcp_addr"`
}

// Source yields the current settings snapshot.
type Source interface {
	Snapshot() Settings
}

// Static is a fixed-snapshot Source, mainly for tests.
type Static Settings

func (s Static) Snapshot() Settings { return Settings(s) }

// idPattern matches a Discord snowflake: a 17-19 digit numeric identifier.
var idPattern = regexp.MustCompile(`^\d{17,19}$`)

// Store holds the live settings and persists whitelist/enable changes back
// to the config file when one was loaded.
type Store struct {
	mu       sync.RWMutex
	v        *viper.Viper
	settings Settings
}

// Load reads config/config.<CONFIG_ENV>.yaml (default env "dev"), falling
// back to defaults when the file is missing.
func Load() (*Store, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetDefault("enabled", true)
	v.SetDefault("moderate_on_join", true)
	v.SetDefault("ephemeral_messages", false)
	v.SetDefault("target_volume", 50)
	v.SetDefault("duration_seconds", 30)
	v.SetDefault("whitelist", "")
	v.SetDefault("skip_friends", true)
	v.SetDefault("skip_custom_volume", true)
	v.SetDefault("volume_curve", "perceptual")
	v.SetDefault("msg_moderate", "🛡️ Moderating <@{user_id}>: {old_volume}% -> {new_volume}% ({duration}s)")
	v.SetDefault("msg_skip", "🎙️ Skipping <@{user_id}>: {reason}")
	v.SetDefault("msg_end", "🔄 Moderation ended for <@{user_id}>: {reason}")
	v.SetDefault("guild_id", "")
	v.SetDefault("notify_channel_id", "")
	v.SetDefault("bridge_addr", ":9000")
	v.SetDefault("mcp_addr", "")

	if err := v.ReadInConfig(); err != nil {
		logging.Warnw("config: file not found, using defaults", "path", fileName)
	} else {
		logging.Infow("config: loaded", "path", fileName)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &Store{v: v, settings: s}, nil
}

// NewStore wraps a fixed Settings value without file persistence. Changes
// made through the store still apply in memory.
func NewStore(s Settings) *Store {
	return &Store{settings: s}
}

// Snapshot returns the current settings by value.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.settings
}

// SetEnabled flips the global enable flag and persists it.
func (st *Store) SetEnabled(enabled bool) {
	st.mu.Lock()
	st.settings.Enabled = enabled
	st.persist("enabled", enabled)
	st.mu.Unlock()
	logging.Infow("config: enabled changed", "enabled", enabled)
}

// WhitelistIDs returns the normalized whitelist: entries are split on
// newlines, trimmed, and anything that is not a valid snowflake is dropped
// silently since the raw setting is free-form text.
func (st *Store) WhitelistIDs() []string {
	st.mu.RLock()
	raw := st.settings.Whitelist
	st.mu.RUnlock()
	return normalizeIDs(raw)
}

// AddWhitelist validates and appends an identifier. The second return is
// false when the identifier was already present.
func (st *Store) AddWhitelist(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return false, fmt.Errorf("invalid user identifier %q", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := normalizeIDs(st.settings.Whitelist)
	for _, have := range ids {
		if have == id {
			return false, nil
		}
	}
	ids = append(ids, id)
	st.settings.Whitelist = strings.Join(ids, "\n")
	st.persist("whitelist", st.settings.Whitelist)
	return true, nil
}

// RemoveWhitelist removes an identifier. The second return is false when it
// was not present.
func (st *Store) RemoveWhitelist(id string) (bool, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return false, fmt.Errorf("invalid user identifier %q", id)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := normalizeIDs(st.settings.Whitelist)
	kept := ids[:0]
	removed := false
	for _, have := range ids {
		if have == id {
			removed = true
			continue
		}
		kept = append(kept, have)
	}
	if !removed {
		return false, nil
	}
	st.settings.Whitelist = strings.Join(kept, "\n")
	st.persist("whitelist", st.settings.Whitelist)
	return true, nil
}

// persist writes a single key back to the config file. Callers hold st.mu.
// Persistence is best-effort; an unwritable file must not break the running
// moderation state.
func (st *Store) persist(key string, value interface{}) {
	if st.v == nil {
		return
	}
	st.v.Set(key, value)
	if err := st.v.WriteConfig(); err != nil {
		logging.Warnw("config: write failed", "key", key, "err", err)
	}
}

func normalizeIDs(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(raw, "\n") {
		id := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if !idPattern.MatchString(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
