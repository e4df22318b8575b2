// Package rewards keeps the quest bookkeeping (daily login, social follows,
// referral) that pays out through the engine's grant entry point.
package rewards

import (
	"errors"
	"time"
)

// Config holds reward amounts and timings.
type Config struct {
	DailyReward   int64         `yaml:"daily_reward"`
	DailyCooldown time.Duration `yaml:"daily_cooldown"`
	SocialReward  int64         `yaml:"social_reward"`
	VerifyDelay   time.Duration `yaml:"verify_delay"`
	ReferralBonus int64         `yaml:"referral_bonus"`
	Platforms     []string      `yaml:"platforms"`
}

// DefaultConfig returns the live reward table.
func DefaultConfig() Config {
	return Config{
		DailyReward:   1000,
		DailyCooldown: 24 * time.Hour,
		SocialReward:  5000,
		VerifyDelay:   2 * time.Second,
		ReferralBonus: 10000,
		Platforms:     []string{"twitter", "farcaster"},
	}
}

// Validate rejects negative amounts and durations.
func (c Config) Validate() error {
	if c.DailyReward < 0 || c.SocialReward < 0 || c.ReferralBonus < 0 {
		return errors.New("reward amounts must be non-negative")
	}
	if c.DailyCooldown < 0 || c.VerifyDelay < 0 {
		return errors.New("reward durations must be non-negative")
	}
	seen := map[string]bool{}
	for _, p := range c.Platforms {
		if p == "" || seen[p] {
			return errors.New("platforms must be unique and non-empty")
		}
		seen[p] = true
	}
	return nil
}

func (c Config) hasPlatform(p string) bool {
	for _, q := range c.Platforms {
		if q == p {
			return true
		}
	}
	return false
}
