package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"living-persona/internal/mind"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"json"`
	StoragePath    string `env:"STORAGE_PATH" envDefault:"persona.json"`

	PersonaName     string `env:"PERSONA_NAME" envDefault:"Domme"`
	PersonaIdentity string `env:"PERSONA_IDENTITY_FILE"`

	OracleEndpoint    string        `env:"ORACLE_ENDPOINT" envDefault:"g4f"`
	OracleModel       string        `env:"ORACLE_MODEL" envDefault:"gpt-oss-120b"`
	OracleKey         string        `env:"ORACLE_KEY"`
	OracleTemperature float64       `env:"ORACLE_TEMPERATURE" envDefault:"0.9"`
	OracleTimeout     time.Duration `env:"ORACLE_TIMEOUT" envDefault:"20s"`

	DiscordToken     string `env:"DISCORD_TOKEN"`
	DiscordChannelID string `env:"DISCORD_CHANNEL_ID"`

	CLIUser      string        `env:"CLI_USER" envDefault:"you"`
	HubAddr      string        `env:"HUB_ADDR"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	Debounce     time.Duration `env:"DEBOUNCE" envDefault:"1500ms"`
	RunePace     time.Duration `env:"RUNE_PACE" envDefault:"40ms"`

	MoodDriftPerMinute     float64       `env:"MOOD_DRIFT_PER_MINUTE" envDefault:"0.2"`
	EnergyRecoverPerMinute float64       `env:"ENERGY_RECOVER_PER_MINUTE" envDefault:"0.5"`
	SleepRecoverMultiplier float64       `env:"SLEEP_RECOVER_MULTIPLIER" envDefault:"6"`
	EnergyCostPerTurn      float64       `env:"ENERGY_COST_PER_TURN" envDefault:"2"`
	ExhaustionFloor        float64       `env:"EXHAUSTION_FLOOR" envDefault:"15"`
	TransitDuration        time.Duration `env:"TRANSIT_DURATION" envDefault:"10s"`
	OfflineReset           time.Duration `env:"OFFLINE_RESET" envDefault:"2h"`

	ColdLockWindow     time.Duration `env:"SWITCH_LOCK" envDefault:"120s"`
	WarmLockWindow     time.Duration `env:"SWITCH_LOCK_WARM" envDefault:"10s"`
	WarmTurns          int           `env:"SWITCH_WARM_TURNS" envDefault:"5"`
	SwitchCooldown     time.Duration `env:"SWITCH_COOLDOWN" envDefault:"30m"`
	WarmSwitchCooldown time.Duration `env:"SWITCH_COOLDOWN_WARM" envDefault:"2m"`
	SwitchRetries      int           `env:"SWITCH_RETRIES" envDefault:"5"`

	BoredomThreshold   time.Duration `env:"BOREDOM_THRESHOLD" envDefault:"120s"`
	RewindMargin       time.Duration `env:"REWIND_MARGIN" envDefault:"10s"`
	MaxIdleChatter     int           `env:"MAX_IDLE_CHATTER" envDefault:"1"`
	RepetitionWindow   int           `env:"REPETITION_WINDOW" envDefault:"5"`
	MinProactiveEnergy float64       `env:"MIN_PROACTIVE_ENERGY" envDefault:"30"`
	IgnoreAffection    float64       `env:"IGNORE_AFFECTION" envDefault:"-60"`
	ProactivePerMinute float64       `env:"PROACTIVE_PER_MINUTE" envDefault:"2"`
	HistoryLimit       int           `env:"HISTORY_LIMIT" envDefault:"60"`
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := c.Mind(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Logger builds the process logger.
func (c *Config) Logger() zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if c.LogPretty {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(lvl).With().Timestamp().Logger()
}

// Mind overlays the environment on the engine defaults.
func (c *Config) Mind() (mind.Config, error) {
	m := mind.DefaultConfig()
	m.MoodDriftPerMinute = c.MoodDriftPerMinute
	m.EnergyRecoverPerMinute = c.EnergyRecoverPerMinute
	m.SleepRecoverMultiplier = c.SleepRecoverMultiplier
	m.EnergyCostPerTurn = c.EnergyCostPerTurn
	m.ExhaustionFloor = c.ExhaustionFloor
	m.TransitDuration = c.TransitDuration
	m.OfflineReset = c.OfflineReset

	m.ColdLockWindow = c.ColdLockWindow
	m.WarmLockWindow = c.WarmLockWindow
	m.WarmTurns = c.WarmTurns
	m.SwitchCooldown = c.SwitchCooldown
	m.WarmSwitchCooldown = c.WarmSwitchCooldown
	m.SwitchRetries = c.SwitchRetries

	m.BoredomThreshold = c.BoredomThreshold
	m.RewindMargin = c.RewindMargin
	m.MaxIdleChatter = c.MaxIdleChatter
	m.RepetitionWindow = c.RepetitionWindow
	m.MinProactiveEnergy = c.MinProactiveEnergy
	m.IgnoreAffection = c.IgnoreAffection
	m.ProactivePerMinute = c.ProactivePerMinute
	m.HistoryLimit = c.HistoryLimit
	m.OracleTimeout = c.OracleTimeout
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}
