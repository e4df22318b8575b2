package engine

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/Basecaster/internal/domain/card"
	"github.com/MRamiBalles/Basecaster/internal/domain/progress"
	"github.com/MRamiBalles/Basecaster/internal/domain/rules"
	"github.com/MRamiBalles/Basecaster/internal/events"
)

func testCatalog() *card.Catalog {
	return card.MustCatalog([]card.Card{
		{ID: "rig", Name: "Rig", BaseCost: 500, BaseProfitPerHour: 3600},
		{ID: "farm", Name: "Farm", BaseCost: 2000, BaseProfitPerHour: 100},
	})
}

// newReady returns a reconciled engine over p.
func newReady(t *testing.T, p progress.Progress) *Engine {
	t.Helper()
	e := NewEngine("p1", p, testCatalog(), rules.Default(), events.NewEventLog(nil), nil)
	require.NoError(t, e.ReconcileOfflineTime(0))
	return e
}

func fresh() progress.Progress {
	return progress.Fresh(testCatalog(), rules.Default())
}

func TestTapConsumesEnergy(t *testing.T) {
	e := newReady(t, fresh())
	res := e.Tap()
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(1), res.Gained)
	assert.Equal(t, int64(999), res.Energy)

	s := e.Snapshot()
	assert.Equal(t, int64(1), s.CurrentPoints)
	assert.Equal(t, int64(1), s.LifetimePoints)
}

func TestTapWithoutEnoughEnergyChangesNothing(t *testing.T) {
	p := fresh()
	p.Energy = 2
	p.TapUpgradeLevel = 2 // tap value 3
	e := newReady(t, p)
	before := e.Snapshot()

	res := e.Tap()
	assert.False(t, res.Accepted)
	assert.Equal(t, before, e.Snapshot())
}

func TestActionsRejectedBeforeReconcile(t *testing.T) {
	p := fresh()
	p.CurrentPoints = 10000
	p.LifetimePoints = 10000
	p.Energy = 500
	e := NewEngine("p1", p, testCatalog(), rules.Default(), nil, nil)

	assert.False(t, e.Tap().Accepted)
	assert.False(t, e.BuyUpgrade(TrackTap))
	assert.False(t, e.BuyCard("rig"))
	e.Grant(10)
	e.TickRegeneration()
	assert.Equal(t, p, e.Snapshot())
	assert.False(t, e.Reconciled())

	require.NoError(t, e.ReconcileOfflineTime(0))
	assert.True(t, e.Reconciled())
	assert.ErrorIs(t, e.ReconcileOfflineTime(5), ErrAlreadyReconciled)
}

func TestUpgradeCostSequence(t *testing.T) {
	p := fresh()
	p.CurrentPoints = 100 + 200 + 400 + 800
	e := newReady(t, p)

	for i := 0; i < 4; i++ {
		require.True(t, e.BuyUpgrade(TrackTap), "purchase %d", i)
	}
	s := e.Snapshot()
	assert.Zero(t, s.CurrentPoints)
	assert.Equal(t, 4, s.TapUpgradeLevel)
	assert.Zero(t, s.EnergyCapUpgradeLevel, "other track untouched")
	assert.False(t, e.BuyUpgrade(TrackTap))
}

func TestEnergyCapUpgradeKeepsEnergy(t *testing.T) {
	p := fresh()
	p.CurrentPoints = 100
	p.Energy = 700
	e := newReady(t, p)

	require.True(t, e.BuyUpgrade(TrackEnergyCap))
	v := e.View()
	assert.Equal(t, int64(700), v.Energy)
	assert.Equal(t, int64(1500), v.MaxEnergy)
	assert.Equal(t, 1, v.EnergyCapLevel)
	assert.Zero(t, v.TapUpgradeLevel)
}

func TestUnknownTrackRejected(t *testing.T) {
	p := fresh()
	p.CurrentPoints = 1000
	e := newReady(t, p)
	assert.False(t, e.BuyUpgrade(Track("turbo")))
	assert.Equal(t, int64(1000), e.Snapshot().CurrentPoints)
}

func TestCardCostSequence(t *testing.T) {
	p := fresh()
	p.CurrentPoints = 500 + 575 + 661
	e := newReady(t, p)

	for i := 0; i < 3; i++ {
		require.True(t, e.BuyCard("rig"), "purchase %d", i)
	}
	s := e.Snapshot()
	assert.Zero(t, s.CurrentPoints)
	assert.Equal(t, 3, s.CardLevel("rig"))
	assert.Zero(t, s.CardLevel("farm"))
}

func TestUnknownCardMutatesNothing(t *testing.T) {
	p := fresh()
	p.CurrentPoints = 100000
	e := newReady(t, p)
	before := e.Snapshot()
	assert.False(t, e.BuyCard("nope"))
	assert.Equal(t, before, e.Snapshot())
}

func TestGrantIgnoresNonPositive(t *testing.T) {
	e := newReady(t, fresh())
	e.Grant(-50)
	e.Grant(0)
	assert.Zero(t, e.Snapshot().LifetimePoints)
	e.Grant(250)
	s := e.Snapshot()
	assert.Equal(t, int64(250), s.CurrentPoints)
	assert.Equal(t, int64(250), s.LifetimePoints)
}

func TestTickRegeneration(t *testing.T) {
	p := fresh()
	p.Energy = 998
	e := newReady(t, p)

	e.TickRegeneration()
	assert.Equal(t, int64(999), e.Snapshot().Energy)
	e.TickRegeneration()
	e.TickRegeneration()
	assert.Equal(t, int64(1000), e.Snapshot().Energy)

	before := e.Snapshot()
	e.TickRegeneration()
	assert.Equal(t, before, e.Snapshot())
}

func TestObserversSeeMutationsInOrder(t *testing.T) {
	e := newReady(t, fresh())
	var seen []int64
	e.Subscribe(func(p progress.Progress) { seen = append(seen, p.CurrentPoints) })

	e.Tap()
	e.Tap()
	e.Grant(10)
	e.BuyCard("nope")
	assert.Equal(t, []int64{1, 2, 12}, seen)
}

func TestAuditLogSkipsRegenTicks(t *testing.T) {
	el := events.NewEventLog(nil)
	p := fresh()
	p.Energy = 10
	e := NewEngine("p1", p, testCatalog(), rules.Default(), el, nil)
	require.NoError(t, e.ReconcileOfflineTime(0))
	e.TickRegeneration()
	e.Tap()

	types := []events.EventType{}
	for _, ev := range el.GetByActor("p1") {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []events.EventType{events.EventTypeOfflineReconcile, events.EventTypeTap}, types)
}

func TestInvariantsUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := fresh()
	p.CurrentPoints = 5000
	e := newReady(t, p)

	lastLifetime := int64(0)
	for i := 0; i < 5000; i++ {
		switch rng.Intn(6) {
		case 0, 1:
			e.Tap()
		case 2:
			e.BuyUpgrade([]Track{TrackTap, TrackEnergyCap}[rng.Intn(2)])
		case 3:
			e.BuyCard([]string{"rig", "farm", "ghost"}[rng.Intn(3)])
		case 4:
			e.TickRegeneration()
		case 5:
			e.Grant(int64(rng.Intn(50) - 10))
		}
		v := e.View()
		require.GreaterOrEqual(t, v.Energy, int64(0))
		require.LessOrEqual(t, v.Energy, v.MaxEnergy)
		require.GreaterOrEqual(t, v.CurrentPoints, int64(0))
		require.GreaterOrEqual(t, v.LifetimePoints, lastLifetime)
		lastLifetime = v.LifetimePoints
	}
}

func TestConcurrentTapsAndTicksStayInBounds(t *testing.T) {
	p := fresh()
	p.Energy = 500
	e := newReady(t, p)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.Tap()
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e.TickRegeneration()
			}
		}()
	}
	wg.Wait()

	s := e.Snapshot()
	assert.GreaterOrEqual(t, s.Energy, int64(0))
	assert.LessOrEqual(t, s.Energy, int64(1000))
	// every point came from exactly one unit of energy
	assert.Equal(t, s.CurrentPoints, s.LifetimePoints)
	assert.LessOrEqual(t, s.CurrentPoints, int64(500+8*200))
}

func TestViewDerivedValues(t *testing.T) {
	p := fresh()
	p.MiningCards[0].Level = 2
	p.TapUpgradeLevel = 1
	e := newReady(t, p)

	v := e.View()
	assert.Equal(t, int64(2), v.TapValue)
	assert.Equal(t, int64(200), v.TapUpgradeCost)
	assert.Equal(t, int64(100), v.EnergyCapUpgradeCost)
	assert.Equal(t, int64(7200), v.IncomePerHour)
	require.Len(t, v.Cards, 2)
	assert.Equal(t, int64(661), v.Cards[0].NextCost)
	assert.Equal(t, int64(7200), v.Cards[0].ProfitPerHour)
}
