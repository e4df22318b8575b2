package savegame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/infra/storage"
	"github.com/MRamiBalles/Basecaster/internal/platform/clock"
)

// SlotPrefix namespaces save slots in the key-value store.
const SlotPrefix = "basecaster_save_v2/"

// SlotKey is the storage key of a player's save slot.
func SlotKey(playerID string) string {
	return SlotPrefix + playerID
}

// Slots reads and writes save slots.
type Slots struct {
	kv      storage.KeyValueStore
	catalog *card.Catalog
	rules   rules.Rules
	clock   clock.Clock
}

// NewSlots creates a slot store. clk may be nil for the wall clock.
func NewSlots(kv storage.KeyValueStore, catalog *card.Catalog, r rules.Rules, clk clock.Clock) *Slots {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Slots{kv: kv, catalog: catalog, rules: r, clock: clk}
}

// Load returns the decoded slot. found is false for an empty slot. A slot
// that cannot be decoded returns an error wrapping ErrCorruptSnapshot.
func (s *Slots) Load(ctx context.Context, playerID string) (p progress.Progress, found bool, err error) {
	raw, err := s.kv.Get(ctx, SlotKey(playerID))
	if errors.Is(err, storage.ErrNotFound) {
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("load slot %s: %w", playerID, err)
	}
	p, err = Decode(raw, s.catalog, s.rules)
	if err != nil {
		return p, true, fmt.Errorf("load slot %s: %w", playerID, err)
	}
	return p, true, nil
}

// Save encodes p stamped with the current time and writes it.
func (s *Slots) Save(ctx context.Context, playerID string, p progress.Progress) error {
	raw, err := Encode(p, s.clock.Now())
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, SlotKey(playerID), raw); err != nil {
		return fmt.Errorf("save slot %s: %w", playerID, err)
	}
	return nil
}

// Delete clears a player's slot.
func (s *Slots) Delete(ctx context.Context, playerID string) error {
	return s.kv.Delete(ctx, SlotKey(playerID))
}

// Now exposes the slot clock, used for elapsed-time reconciliation.
func (s *Slots) Now() time.Time {
	return s.clock.Now()
}
