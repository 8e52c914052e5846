package platform

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-mod/internal/logging"
)

// relationshipFriend is the relationship type value for a mutual friend.
const relationshipFriend = 1

// cacheTTL controls how long a fetched relationship list stays valid.
var cacheTTL = 5 * time.Minute

// Relationships answers friendship lookups against the relationship list,
// fetched lazily and cached with a TTL. Lookup failures degrade to "not a
// friend" since exemptions are best-effort.
type Relationships struct {
	s *discordgo.Session

	mu      sync.Mutex
	friends map[string]struct{}
	expiry  time.Time
}

func NewRelationships(s *discordgo.Session) *Relationships {
	return &Relationships{s: s, friends: make(map[string]struct{})}
}

func (r *Relationships) IsFriend(userID string) bool {
	if r.s == nil || userID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Now().After(r.expiry) {
		rels, err := r.s.RelationshipsGet()
		if err != nil {
			logging.Debugw("platform: relationship fetch failed", "err", err)
			// keep whatever we had; retry on the next lookup
			r.expiry = time.Now().Add(30 * time.Second)
		} else {
			m := make(map[string]struct{}, len(rels))
			for _, rel := range rels {
				if rel == nil || rel.Type != relationshipFriend {
					continue
				}
				m[rel.ID] = struct{}{}
			}
			r.friends = m
			r.expiry = time.Now().Add(cacheTTL)
		}
	}
	_, ok := r.friends[userID]
	return ok
}
