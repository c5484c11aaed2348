package directory

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/vibely/server/internal/repository"
)

// Profile is the display slice of a user that chat surfaces need.
type Profile struct {
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// Directory is a read-through cache over the user table, keyed by user id.
// It resolves participant ids to display profiles without entangling the
// conversation model with user ownership.
type Directory struct {
	users repository.UserRepository

	mu    sync.RWMutex
	cache map[uuid.UUID]Profile
}

func New(users repository.UserRepository) *Directory {
	return &Directory{
		users: users,
		cache: make(map[uuid.UUID]Profile),
	}
}

// Warm bulk-fetches profiles for the given ids in one query.
func (d *Directory) Warm(ctx context.Context, ids []uuid.UUID) error {
	missing := make([]uuid.UUID, 0, len(ids))
	d.mu.RLock()
	for _, id := range ids {
		if _, ok := d.cache[id]; !ok {
			missing = append(missing, id)
		}
	}
	d.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	users, err := d.users.ListByIDs(ctx, missing)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, u := range users {
		d.cache[u.ID] = Profile{
			Username:    u.Username,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
		}
	}
	d.mu.Unlock()
	return nil
}

// Resolve returns the profile for a user id, fetching on a cache miss.
func (d *Directory) Resolve(ctx context.Context, id uuid.UUID) (Profile, bool) {
	d.mu.RLock()
	p, ok := d.cache[id]
	d.mu.RUnlock()
	if ok {
		return p, true
	}

	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		log.Printf("directory: fetch %s: %v", id, err)
		return Profile{}, false
	}
	if user == nil {
		return Profile{}, false
	}

	p = Profile{
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarURL:   user.AvatarURL,
	}
	d.mu.Lock()
	d.cache[id] = p
	d.mu.Unlock()
	return p, true
}

// ResolveDisplayName returns the user's display name, or the empty string
// when the user is unknown.
func (d *Directory) ResolveDisplayName(ctx context.Context, id uuid.UUID) string {
	p, ok := d.Resolve(ctx, id)
	if !ok {
		return ""
	}
	return p.DisplayName
}

// Invalidate drops a cached profile, e.g. after a profile edit or account
// deletion.
func (d *Directory) Invalidate(id uuid.UUID) {
	d.mu.Lock()
	delete(d.cache, id)
	d.mu.Unlock()
}
