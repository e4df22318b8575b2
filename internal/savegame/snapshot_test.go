package savegame

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/engine"
)

func testCatalog() *card.Catalog {
	return card.MustCatalog([]card.Card{
		{ID: "rig", Name: "Rig", BaseCost: 500, BaseProfitPerHour: 3600},
		{ID: "farm", Name: "Farm", BaseCost: 2000, BaseProfitPerHour: 100},
	})
}

func sample() progress.Progress {
	return progress.Progress{
		CurrentPoints:         1234,
		LifetimePoints:        5678,
		Energy:                900,
		TapUpgradeLevel:       2,
		EnergyCapUpgradeLevel: 1,
		MiningCards:           []progress.CardState{{ID: "rig", Level: 3}, {ID: "farm", Level: 0}},
		LastPersistedAtMs:     42,
		PendingOfflineReward:  77,
	}
}

func TestRoundTripWithZeroElapsed(t *testing.T) {
	cat := testCatalog()
	r := rules.Default()
	orig := sample()

	raw, err := Encode(orig, time.UnixMilli(1_700_000_000_000))
	require.NoError(t, err)

	got, err := Decode(raw, cat, r)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_000), got.LastPersistedAtMs)

	e := engine.NewEngine("p1", got, cat, r, nil, nil)
	require.NoError(t, e.ReconcileOfflineTime(0))
	reloaded := e.Snapshot()

	reloaded.LastPersistedAtMs = orig.LastPersistedAtMs
	assert.Equal(t, orig, reloaded)
}

func TestDecodeReconcilesCatalog(t *testing.T) {
	raw := []byte(`{"version":3,"current_points":10,"lifetime_points":10,"energy":5,
		"mining_cards":[{"id":"gone","level":9},{"id":"farm","level":2},{"id":"farm","level":8}]}`)
	p, err := Decode(raw, testCatalog(), rules.Default())
	require.NoError(t, err)
	assert.Equal(t, []progress.CardState{{ID: "rig", Level: 0}, {ID: "farm", Level: 2}}, p.MiningCards)
}

func TestDecodeMissingFieldsDefault(t *testing.T) {
	p, err := Decode([]byte(`{"version":3,"current_points":50}`), testCatalog(), rules.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.CurrentPoints)
	assert.Equal(t, int64(50), p.LifetimePoints, "missing lifetime falls back to current")
	assert.Zero(t, p.Energy)
	assert.Len(t, p.MiningCards, 2)
}

func TestDecodeLegacyLayout(t *testing.T) {
	raw := []byte(`{"score":300,"totalScore":900,"energy":750.6,"multitapLevel":2,"energyLimitLevel":1,"lastUpdated":1700000000000}`)
	p, err := Decode(raw, testCatalog(), rules.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(300), p.CurrentPoints)
	assert.Equal(t, int64(900), p.LifetimePoints)
	assert.Equal(t, int64(750), p.Energy)
	assert.Equal(t, 2, p.TapUpgradeLevel)
	assert.Equal(t, 1, p.EnergyCapUpgradeLevel)
	assert.Equal(t, int64(1700000000000), p.LastPersistedAtMs)
}

func TestDecodeLegacyWithoutTotal(t *testing.T) {
	p, err := Decode([]byte(`{"score":120}`), testCatalog(), rules.Default())
	require.NoError(t, err)
	assert.Equal(t, int64(120), p.LifetimePoints)
	assert.Zero(t, p.Energy)
}

func TestDecodeClampsOutOfRange(t *testing.T) {
	raw := []byte(`{"version":3,"current_points":-9,"lifetime_points":4,"energy":99999}`)
	p, err := Decode(raw, testCatalog(), rules.Default())
	require.NoError(t, err)
	assert.Zero(t, p.CurrentPoints)
	assert.Equal(t, int64(1000), p.Energy)
	assert.Equal(t, int64(4), p.LifetimePoints)
}

func TestDecodeCorrupt(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", "[1,2]", "{not json", `{"version":"x"}`, `"str"`} {
		_, err := Decode([]byte(raw), testCatalog(), rules.Default())
		assert.True(t, errors.Is(err, ErrCorruptSnapshot), "input %q: %v", raw, err)
	}
}
