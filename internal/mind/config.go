package mind

import (
	"errors"
	"fmt"
	"time"
)

// Config holds every tunable of the persona engine. DefaultConfig returns
// values that feel natural for a single persona chatting with one person.
type Config struct {
	// Life state drift.
	MoodBaseline           float64
	SleepMoodBaseline      float64
	MoodDriftPerMinute     float64
	EnergyRecoverPerMinute float64
	SleepRecoverMultiplier float64
	EnergyCostPerTurn      float64
	ExhaustionFloor        float64
	TransitDuration        time.Duration
	OfflineReset           time.Duration

	// Scene switching.
	ColdLockWindow     time.Duration
	WarmLockWindow     time.Duration
	WarmTurns          int
	SwitchCooldown     time.Duration
	WarmSwitchCooldown time.Duration
	SwitchRetries      int
	SwitchMoodBonus    float64
	LowEnergy          float64

	// Proactive engagement.
	BoredomThreshold   time.Duration
	RewindMargin       time.Duration
	MaxIdleChatter     int
	RepetitionWindow   int
	MinProactiveEnergy float64
	IgnoreAffection    float64
	ProactivePerMinute float64

	// Turn handling.
	OracleTimeout        time.Duration
	InterruptMoodPenalty float64
	HistoryLimit         int
	GiftSpamLimit        int
	DailyBonus           float64
	ComfortBonus         float64

	FallbackReply    string
	InterruptedReply string
	BlacklistReply   string
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MoodBaseline:           50,
		SleepMoodBaseline:      60,
		MoodDriftPerMinute:     0.2,
		EnergyRecoverPerMinute: 0.5,
		SleepRecoverMultiplier: 6,
		EnergyCostPerTurn:      2,
		ExhaustionFloor:        15,
		TransitDuration:        10 * time.Second,
		OfflineReset:           2 * time.Hour,

		ColdLockWindow:     120 * time.Second,
		WarmLockWindow:     10 * time.Second,
		WarmTurns:          5,
		SwitchCooldown:     30 * time.Minute,
		WarmSwitchCooldown: 2 * time.Minute,
		SwitchRetries:      5,
		SwitchMoodBonus:    5,
		LowEnergy:          20,

		BoredomThreshold:   120 * time.Second,
		RewindMargin:       10 * time.Second,
		MaxIdleChatter:     1,
		RepetitionWindow:   5,
		MinProactiveEnergy: 30,
		IgnoreAffection:    -60,
		ProactivePerMinute: 2,

		OracleTimeout:        20 * time.Second,
		InterruptMoodPenalty: 2,
		HistoryLimit:         60,
		GiftSpamLimit:        3,
		DailyBonus:           10,
		ComfortBonus:         10,

		FallbackReply:    "(She trails off, lost in thought.) Hm... say that again?",
		InterruptedReply: "[annoyed] Hey! Let me finish what I was saying!",
		BlacklistReply:   "...(She turns away and pretends you are not there.)",
	}
}

var ErrInvalidConfig = errors.New("invalid mind config")

// Validate checks the ordering constraints between the timing knobs.
func (c Config) Validate() error {
	switch {
	case c.WarmLockWindow > c.ColdLockWindow:
		return fmt.Errorf("%w: warm lock %v exceeds cold lock %v", ErrInvalidConfig, c.WarmLockWindow, c.ColdLockWindow)
	case c.SwitchCooldown < c.ColdLockWindow:
		return fmt.Errorf("%w: switch cooldown %v shorter than lock %v", ErrInvalidConfig, c.SwitchCooldown, c.ColdLockWindow)
	case c.WarmSwitchCooldown < c.WarmLockWindow:
		return fmt.Errorf("%w: warm cooldown %v shorter than warm lock %v", ErrInvalidConfig, c.WarmSwitchCooldown, c.WarmLockWindow)
	case c.RewindMargin <= 0 || c.RewindMargin >= c.BoredomThreshold:
		return fmt.Errorf("%w: rewind margin %v must be within boredom threshold %v", ErrInvalidConfig, c.RewindMargin, c.BoredomThreshold)
	case c.SleepRecoverMultiplier < 1:
		return fmt.Errorf("%w: sleep multiplier %v below 1", ErrInvalidConfig, c.SleepRecoverMultiplier)
	case c.RepetitionWindow < 1:
		return fmt.Errorf("%w: repetition window must be positive", ErrInvalidConfig)
	case c.OracleTimeout <= 0:
		return fmt.Errorf("%w: oracle timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
