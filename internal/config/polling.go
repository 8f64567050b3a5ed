package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PollBudget bounds a poll-until loop.
type PollBudget struct {
	Interval    time.Duration `mapstructure:"interval"`
	MaxAttempts int           `mapstructure:"maxAttempts"`
}

// PollingConfig holds the retry budgets of the checkout flow.
type PollingConfig struct {
	CheckoutSession  PollBudget `mapstructure:"checkoutSession"`
	PurchaseComplete PollBudget `mapstructure:"purchaseComplete"`
}

func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		CheckoutSession:  PollBudget{Interval: time.Second, MaxAttempts: 10},
		PurchaseComplete: PollBudget{Interval: time.Second, MaxAttempts: 10},
	}
}

type PollingConfigHolder struct {
	current atomic.Value // holds PollingConfig
}

// NewStaticPollingConfigHolder returns a holder that never reloads.
func NewStaticPollingConfigHolder(cfg PollingConfig) *PollingConfigHolder {
	holder := &PollingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPollingConfigHolder() (*PollingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/carbonmarket")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CARBONMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPollingConfig()
	v.SetDefault("polling.checkoutSession.interval", defaults.CheckoutSession.Interval)
	v.SetDefault("polling.checkoutSession.maxAttempts", defaults.CheckoutSession.MaxAttempts)
	v.SetDefault("polling.purchaseComplete.interval", defaults.PurchaseComplete.Interval)
	v.SetDefault("polling.purchaseComplete.maxAttempts", defaults.PurchaseComplete.MaxAttempts)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PollingConfig
	if err := v.UnmarshalKey("polling", &cfg); err != nil {
		return nil, err
	}
	if err := validatePollingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPollingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PollingConfig
		if err := v.UnmarshalKey("polling", &updated); err != nil {
			log.Printf("[polling-config] reload failed: %v", err)
			return
		}
		if err := validatePollingConfig(updated); err != nil {
			log.Printf("[polling-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[polling-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PollingConfigHolder) Get() PollingConfig {
	if h == nil {
		return DefaultPollingConfig()
	}
	return h.current.Load().(PollingConfig)
}

func validatePollingConfig(cfg PollingConfig) error {
	if cfg.CheckoutSession.Interval <= 0 || cfg.CheckoutSession.MaxAttempts <= 0 {
		return errors.New("polling.checkoutSession requires a positive interval and maxAttempts")
	}
	if cfg.PurchaseComplete.Interval <= 0 || cfg.PurchaseComplete.MaxAttempts <= 0 {
		return errors.New("polling.purchaseComplete requires a positive interval and maxAttempts")
	}
	return nil
}
