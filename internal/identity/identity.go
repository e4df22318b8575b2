// Package identity manages the anonymous player id and the profile captured
// by the welcome flow (username plus an opaque wallet address).
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/platform/clock"
)

// ProfilePrefix namespaces profiles in the key-value store.
const ProfilePrefix = "basecaster_profile/"

// MaxUsernameLength bounds the display name in runes.
const MaxUsernameLength = 32

var (
	ErrNoProfile       = errors.New("profile not established")
	ErrInvalidUsername = errors.New("username required")
	ErrInvalidWallet   = errors.New("wallet required")
	ErrInvalidID       = errors.New("invalid player id")
)

// Profile is what the welcome flow captures.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Wallet    string    `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPlayerID generates an anonymous player identifier.
func NewPlayerID() string {
	return "user_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// ValidID reports whether id is usable as a player id (and storage key suffix).
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// Listener is notified after a profile is established or updated.
type Listener func(p Profile)

// Registry stores profiles in the key-value store.
type Registry struct {
	kv    storage.KeyValueStore
	clock clock.Clock

	mu        sync.RWMutex
	nextID    int
	listeners map[string]map[int]Listener
}

// NewRegistry creates a registry. clk may be nil for the wall clock.
func NewRegistry(kv storage.KeyValueStore, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Registry{kv: kv, clock: clk, listeners: make(map[string]map[int]Listener)}
}

// Establish creates or updates the profile of id. Both fields are required;
// the wallet is stored as given.
func (r *Registry) Establish(ctx context.Context, id, username, wallet string) (Profile, error) {
	if !ValidID(id) {
		return Profile{}, ErrInvalidID
	}
	username = strings.TrimSpace(username)
	wallet = strings.TrimSpace(wallet)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength {
		return Profile{}, ErrInvalidUsername
	}
	if wallet == "" {
		return Profile{}, ErrInvalidWallet
	}

	now := r.clock.Now().UTC()
	p, err := r.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNoProfile):
		p = Profile{ID: id, CreatedAt: now}
	case err != nil:
		return Profile{}, err
	}
	p.Username = username
	p.Wallet = wallet
	p.UpdatedAt = now

	raw, err := json.Marshal(p)
	if err != nil {
		return Profile{}, err
	}
	if err := r.kv.Put(ctx, ProfilePrefix+id, raw); err != nil {
		return Profile{}, fmt.Errorf("store profile: %w", err)
	}

	r.mu.RLock()
	ls := make([]Listener, 0, len(r.listeners[id]))
	for _, l := range r.listeners[id] {
		ls = append(ls, l)
	}
	r.mu.RUnlock()
	for _, l := range ls {
		l(p)
	}
	return p, nil
}

// Get returns the profile of id or ErrNoProfile.
func (r *Registry) Get(ctx context.Context, id string) (Profile, error) {
	raw, err := r.kv.Get(ctx, ProfilePrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return Profile{}, ErrNoProfile
	}
	if err != nil {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return p, nil
}

// Watch registers fn for changes to id's profile and returns a cancel func.
func (r *Registry) Watch(id string, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	key := r.nextID
	if r.listeners[id] == nil {
		r.listeners[id] = make(map[int]Listener)
	}
	r.listeners[id][key] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners[id], key)
		if len(r.listeners[id]) == 0 {
			delete(r.listeners, id)
		}
	}
}
