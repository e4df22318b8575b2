// Package rules contains the pure calculation logic for the tap economy.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"math"
	"time"
)

// Rules holds the economy constants. The zero value is not usable; start from
// Default() and override what the balance config changes.
type Rules struct {
	BaseEnergy      int64         `yaml:"base_energy"`
	EnergyCapStep   int64         `yaml:"energy_cap_step"`
	RegenRate       int64         `yaml:"regen_rate"`
	RegenInterval   time.Duration `yaml:"regen_interval"`
	TapMultiplier   int64         `yaml:"tap_multiplier"`
	UpgradeBaseCost int64         `yaml:"upgrade_base_cost"`
	UpgradeGrowth   float64       `yaml:"upgrade_growth"`
	CardGrowth      float64       `yaml:"card_growth"`
	OfflineCap      time.Duration `yaml:"offline_cap"`
}

// Default returns the live balance.
func Default() Rules {
	return Rules{
		BaseEnergy:      1000,
		EnergyCapStep:   500,
		RegenRate:       1,
		RegenInterval:   time.Second,
		TapMultiplier:   1,
		UpgradeBaseCost: 100,
		UpgradeGrowth:   2,
		CardGrowth:      1.15,
		OfflineCap:      3 * time.Hour,
	}
}

// MaxEnergy is the energy ceiling for a given cap upgrade level.
func (r Rules) MaxEnergy(energyCapLevel int) int64 {
	return satAdd(r.BaseEnergy, satMul(int64(energyCapLevel), r.EnergyCapStep))
}

// TapValue is the points gained and energy spent by one tap.
func (r Rules) TapValue(tapLevel int) int64 {
	return satAdd(1, satMul(int64(tapLevel), r.TapMultiplier))
}

// UpgradeCost prices the next level of either upgrade track.
func (r Rules) UpgradeCost(level int) int64 {
	return growthCost(r.UpgradeBaseCost, r.UpgradeGrowth, level)
}

// CardCost prices the next level of a mining card.
func (r Rules) CardCost(baseCost int64, level int) int64 {
	return growthCost(baseCost, r.CardGrowth, level)
}

// CardIncome is what a card contributes to hourly income at a level.
func CardIncome(baseProfitPerHour int64, level int) int64 {
	return satMul(int64(level), baseProfitPerHour)
}

// OfflineSeconds caps an absence for idle income purposes.
func (r Rules) OfflineSeconds(elapsedSeconds int64) int64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	capSeconds := int64(r.OfflineCap / time.Second)
	if elapsedSeconds > capSeconds {
		return capSeconds
	}
	return elapsedSeconds
}

// OfflineReward is the idle income earned over an absence.
func (r Rules) OfflineReward(incomePerHour int64, elapsedSeconds int64) int64 {
	secs := r.OfflineSeconds(elapsedSeconds)
	if incomePerHour <= 0 || secs == 0 {
		return 0
	}
	if incomePerHour > math.MaxInt64/secs {
		// big product: divide first and keep the remainder term
		return satAdd(satMul(incomePerHour/3600, secs), (incomePerHour%3600)*secs/3600)
	}
	return incomePerHour * secs / 3600
}

// RegenCatchUp is the energy restored over an absence. Not capped by OfflineCap.
func (r Rules) RegenCatchUp(elapsedSeconds int64) int64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	interval := r.RegenInterval
	if interval <= 0 {
		interval = time.Second
	}
	// as many ticks as the live ticker would have fired
	var ticks int64
	if interval%time.Second == 0 {
		ticks = elapsedSeconds / int64(interval/time.Second)
	} else {
		ticks = satMul(elapsedSeconds, int64(time.Second)) / int64(interval)
	}
	return satMul(ticks, r.RegenRate)
}

func growthCost(base int64, growth float64, level int) int64 {
	if level < 0 {
		level = 0
	}
	v := float64(base) * math.Pow(growth, float64(level))
	// float rounding on exact products like 500*1.15 must not lose a point
	v = math.Floor(v + 1e-9)
	if v >= math.MaxInt64 || math.IsInf(v, 1) || math.IsNaN(v) {
		return math.MaxInt64
	}
	return int64(v)
}

func satAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > 0 && b > 0 && a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

// SatAdd adds two non-negative counters without wrapping.
func SatAdd(a, b int64) int64 {
	return satAdd(a, b)
}
