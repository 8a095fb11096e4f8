package identity

import (
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
)

// UserFetcher is the one discordgo call this resolver needs.
type UserFetcher interface {
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
}

// DiscordResolver resolves display names for speakers nobody bound
// explicitly: bindings in the Store win, then a cached REST username lookup,
// then the raw ID.
type DiscordResolver struct {
	store *Store
	api   UserFetcher
	log   *log.Logger

	mu    sync.RWMutex
	cache map[string]string
}

func NewDiscordResolver(store *Store, api UserFetcher, logger *log.Logger) *DiscordResolver {
	return &DiscordResolver{
		store: store,
		api:   api,
		log:   logger,
		cache: make(map[string]string),
	}
}

func (r *DiscordResolver) Resolve(speakerID string) Identity {
	if speakerID == "" {
		return Identity{Label: "unknown"}
	}

	if id := r.store.Resolve(speakerID); id.Label != speakerID {
		return id
	}

	r.mu.RLock()
	name, ok := r.cache[speakerID]
	r.mu.RUnlock()
	if ok {
		return Identity{Label: name}
	}

	user, err := r.api.User(speakerID)
	if err != nil || user == nil {
		r.log.Debug("user lookup failed", "speaker", speakerID, "error", err)
		return Identity{Label: speakerID}
	}

	r.mu.Lock()
	r.cache[speakerID] = user.Username
	r.mu.Unlock()

	return Identity{Label: user.Username}
}
