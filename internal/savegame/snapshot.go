// Package savegame encodes player progress into save slots and back.
package savegame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
)

// CurrentVersion is written into every snapshot. Snapshots without a version
// and with the old camelCase keys are read as the legacy format.
const CurrentVersion = 3

// ErrCorruptSnapshot means the slot held something that is not a snapshot.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot is the persisted JSON shape of a player's progress.
type Snapshot struct {
	Version               int                  `json:"version"`
	CurrentPoints         int64                `json:"current_points"`
	LifetimePoints        int64                `json:"lifetime_points"`
	Energy                int64                `json:"energy"`
	TapUpgradeLevel       int                  `json:"tap_upgrade_level"`
	EnergyCapUpgradeLevel int                  `json:"energy_cap_upgrade_level"`
	MiningCards           []progress.CardState `json:"mining_cards"`
	LastPersistedAtMs     int64                `json:"last_persisted_at_ms"`
	PendingOfflineReward  int64                `json:"pending_offline_reward"`
}

// rawSnapshot accepts both layouts. Every field is optional.
type rawSnapshot struct {
	Version               json.Number `json:"version"`
	CurrentPoints         json.Number `json:"current_points"`
	LifetimePoints        json.Number `json:"lifetime_points"`
	Energy                json.Number `json:"energy"`
	TapUpgradeLevel       json.Number `json:"tap_upgrade_level"`
	EnergyCapUpgradeLevel json.Number `json:"energy_cap_upgrade_level"`
	MiningCards           []rawCard   `json:"mining_cards"`
	LastPersistedAtMs     json.Number `json:"last_persisted_at_ms"`
	PendingOfflineReward  json.Number `json:"pending_offline_reward"`
}

type rawCard struct {
	ID    string      `json:"id"`
	Level json.Number `json:"level"`
}

// legacySnapshot is the shape saved under basecaster_save_v2 by the web build.
type legacySnapshot struct {
	Score            json.Number `json:"score"`
	TotalScore       json.Number `json:"totalScore"`
	Energy           json.Number `json:"energy"`
	MultitapLevel    json.Number `json:"multitapLevel"`
	EnergyLimitLevel json.Number `json:"energyLimitLevel"`
	LastUpdated      json.Number `json:"lastUpdated"`
}

// Encode serialises p, stamping the write time.
func Encode(p progress.Progress, now time.Time) ([]byte, error) {
	s := Snapshot{
		Version:               CurrentVersion,
		CurrentPoints:         p.CurrentPoints,
		LifetimePoints:        p.LifetimePoints,
		Energy:                p.Energy,
		TapUpgradeLevel:       p.TapUpgradeLevel,
		EnergyCapUpgradeLevel: p.EnergyCapUpgradeLevel,
		MiningCards:           p.MiningCards,
		LastPersistedAtMs:     now.UnixMilli(),
		PendingOfflineReward:  p.PendingOfflineReward,
	}
	if s.MiningCards == nil {
		s.MiningCards = []progress.CardState{}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

// Decode parses a snapshot of either layout, reconciles its cards against
// catalog and clamps it back inside the economy invariants. Missing fields
// default to zero. Anything that is not a JSON object is ErrCorruptSnapshot.
func Decode(raw []byte, catalog *card.Catalog, r rules.Rules) (progress.Progress, error) {
	var p progress.Progress
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, ErrCorruptSnapshot
	}

	var rs rawSnapshot
	if err := json.Unmarshal(trimmed, &rs); err != nil {
		return p, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	if isLegacy(rs) {
		var legacy legacySnapshot
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return p, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		p = fromLegacy(legacy)
	} else {
		p = progress.Progress{
			CurrentPoints:         num64(rs.CurrentPoints),
			LifetimePoints:        num64(rs.LifetimePoints),
			Energy:                num64(rs.Energy),
			TapUpgradeLevel:       numInt(rs.TapUpgradeLevel),
			EnergyCapUpgradeLevel: numInt(rs.EnergyCapUpgradeLevel),
			LastPersistedAtMs:     num64(rs.LastPersistedAtMs),
			PendingOfflineReward:  num64(rs.PendingOfflineReward),
		}
		if rs.LifetimePoints == "" {
			p.LifetimePoints = p.CurrentPoints
		}
		for _, c := range rs.MiningCards {
			p.MiningCards = append(p.MiningCards, progress.CardState{ID: c.ID, Level: numInt(c.Level)})
		}
	}

	p.Normalize(catalog, r)
	return p, nil
}

// isLegacy reports a snapshot written before the versioned layout.
func isLegacy(rs rawSnapshot) bool {
	return rs.Version == "" && rs.CurrentPoints == "" && rs.LifetimePoints == ""
}

func fromLegacy(l legacySnapshot) progress.Progress {
	p := progress.Progress{
		CurrentPoints:         num64(l.Score),
		LifetimePoints:        num64(l.TotalScore),
		Energy:                num64(l.Energy),
		TapUpgradeLevel:       numInt(l.MultitapLevel),
		EnergyCapUpgradeLevel: numInt(l.EnergyLimitLevel),
		LastPersistedAtMs:     num64(l.LastUpdated),
	}
	if p.LifetimePoints == 0 {
		p.LifetimePoints = p.CurrentPoints
	}
	return p
}

// num64 reads a JSON number, flooring fractions and saturating at the int64
// range. Empty or unparsable values are zero.
func num64(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if v, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	f = math.Floor(f)
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func numInt(n json.Number) int {
	v := num64(n)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int(v)
}
