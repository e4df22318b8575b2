package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
)

func testCatalog(t *testing.T) *card.Catalog {
	t.Helper()
	c, err := card.NewCatalog([]card.Card{
		{ID: "a", BaseCost: 500, BaseProfitPerHour: 100},
		{ID: "b", BaseCost: 1000, BaseProfitPerHour: 250},
	})
	require.NoError(t, err)
	return c
}

func TestFreshStartsWithFullEnergy(t *testing.T) {
	p := Fresh(testCatalog(t), rules.Default())
	assert.Equal(t, int64(1000), p.Energy)
	assert.Zero(t, p.CurrentPoints)
	assert.Zero(t, p.LifetimePoints)
	require.Len(t, p.MiningCards, 2)
	assert.Equal(t, "a", p.MiningCards[0].ID)
	assert.Zero(t, p.MiningCards[0].Level)
}

func TestCloneIsDeep(t *testing.T) {
	p := Fresh(testCatalog(t), rules.Default())
	c := p.Clone()
	c.MiningCards[0].Level = 9
	assert.Zero(t, p.MiningCards[0].Level)
}

func TestIncomePerHour(t *testing.T) {
	cat := testCatalog(t)
	p := Fresh(cat, rules.Default())
	p.MiningCards[0].Level = 2
	p.MiningCards[1].Level = 1
	assert.Equal(t, int64(450), p.IncomePerHour(cat))
	assert.Equal(t, 2, p.CardLevel("a"))
	assert.Zero(t, p.CardLevel("missing"))
}

func TestNormalizeReconcilesCards(t *testing.T) {
	cat := testCatalog(t)
	p := Progress{
		MiningCards: []CardState{
			{ID: "ghost", Level: 4},
			{ID: "b", Level: 3},
			{ID: "b", Level: 7},
		},
	}
	p.Normalize(cat, rules.Default())
	assert.Equal(t, []CardState{{ID: "a", Level: 0}, {ID: "b", Level: 3}}, p.MiningCards)
}

func TestNormalizeClampsCounters(t *testing.T) {
	cat := testCatalog(t)
	p := Progress{
		CurrentPoints:        -5,
		LifetimePoints:       -1,
		Energy:               99999,
		TapUpgradeLevel:      -2,
		PendingOfflineReward: -3,
	}
	p.Normalize(cat, rules.Default())
	assert.Zero(t, p.CurrentPoints)
	assert.Zero(t, p.LifetimePoints)
	assert.Equal(t, int64(1000), p.Energy)
	assert.Zero(t, p.TapUpgradeLevel)
	assert.Zero(t, p.PendingOfflineReward)

	p = Progress{CurrentPoints: 40, LifetimePoints: 10, Energy: -4}
	p.Normalize(cat, rules.Default())
	assert.Equal(t, int64(40), p.LifetimePoints)
	assert.Zero(t, p.Energy)
}
