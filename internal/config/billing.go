package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the tunable pricing knobs: per-tier multipliers,
// per-cycle discounts and the overdue grace window. It is hot-reloadable.
type BillingConfig struct {
	TierMultipliers map[string]float64 `mapstructure:"tierMultipliers"`
	CycleDiscounts  map[string]float64 `mapstructure:"cycleDiscounts"`
	OverdueGrace    int                `mapstructure:"overdueGraceDays"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		TierMultipliers: map[string]float64{
			"FREE":         0,
			"STARTER":      1.0,
			"PROFESSIONAL": 1.5,
			"ENTERPRISE":   2.5,
			"CUSTOM":       1.0,
		},
		CycleDiscounts: map[string]float64{
			"MONTHLY":     0,
			"QUARTERLY":   0.05,
			"SEMI_ANNUAL": 0.10,
			"ANNUAL":      0.15,
		},
		OverdueGrace: 3,
	}
}

// TierMultiplier returns the multiplier for a tier, defaulting to 1.
func (c BillingConfig) TierMultiplier(tier string) float64 {
	if m, ok := c.TierMultipliers[tier]; ok {
		return m
	}
	return 1.0
}

// CycleDiscount returns the discount fraction for a billing cycle.
func (c BillingConfig) CycleDiscount(cycle string) float64 {
	return c.CycleDiscounts[cycle]
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/croplytics/config") // Volume-mounted config
	v.AddConfigPath("/etc/croplytics")            // System config
	v.AddConfigPath(".")                          // Current directory (dev mode)

	v.SetEnvPrefix("CROPLYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultBillingConfig()
		v.SetDefault("billing.tierMultipliers", defaults.TierMultipliers)
		v.SetDefault("billing.cycleDiscounts", defaults.CycleDiscounts)
		v.SetDefault("billing.overdueGraceDays", defaults.OverdueGrace)
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.TierMultipliers) == 0 {
		return errors.New("billing.tierMultipliers cannot be empty")
	}
	if len(cfg.CycleDiscounts) == 0 {
		return errors.New("billing.cycleDiscounts cannot be empty")
	}
	if cfg.OverdueGrace < 0 {
		return errors.New("billing.overdueGraceDays cannot be negative")
	}
	return nil
}
