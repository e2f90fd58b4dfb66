package mounts

import (
	"time"

	"github.com/spf13/viper"
	"umbasa.net/seraph-mounts/config"
)

type Config struct {
	// tag stored on every mount point
	Provider string        `mapstructure:"provider" validate:"required"`
	Refresh  RefreshConfig `mapstructure:"refresh"`
}

type RefreshConfig struct {
	// more affected users than this are refreshed in the background
	CutoffUsers int `mapstructure:"cutoffUsers" validate:"gte=1"`
	// synchronous refreshing stops once this much time has passed
	TimeBudget time.Duration `mapstructure:"timeBudget" validate:"gt=0"`
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
	// deferring users wakes the job at most once per WakeDelay, zero only uses Interval
	WakeDelay  time.Duration `mapstructure:"wakeDelay" validate:"gte=0"`
	Parallel   int           `mapstructure:"parallel" validate:"gte=1"`
	// where deferred users are remembered: "memory" or "jetstream"
	Flags string `mapstructure:"flags" validate:"oneof=memory jetstream"`
	// flags not handled within this time expire, zero keeps them
	FlagTtl time.Duration `mapstructure:"flagTtl" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Provider: "shared",
		Refresh: RefreshConfig{
			CutoffUsers: 50,
			TimeBudget:  2 * time.Second,
			Interval:    time.Minute,
			WakeDelay:   time.Second,
			Parallel:    4,
			Flags:       "memory",
		},
	}
}

func NewConfig(v *viper.Viper) (Config, error) {
	def := DefaultConfig()
	v.SetDefault("mounts.provider", def.Provider)
	v.SetDefault("mounts.refresh.cutoffUsers", def.Refresh.CutoffUsers)
	v.SetDefault("mounts.refresh.timeBudget", def.Refresh.TimeBudget)
	v.SetDefault("mounts.refresh.interval", def.Refresh.Interval)
	v.SetDefault("mounts.refresh.wakeDelay", def.Refresh.WakeDelay)
	v.SetDefault("mounts.refresh.parallel", def.Refresh.Parallel)
	v.SetDefault("mounts.refresh.flags", def.Refresh.Flags)
	v.SetDefault("mounts.refresh.flagTtl", def.Refresh.FlagTtl)

	cfg := Config{}
	err := config.Unmarshal(v, "mounts", &cfg)
	return cfg, err
}
