package scheduler

import (
	"time"

	"github.com/smallbiznis/carbonmarket/internal/config"
)

const (
	JobReconcilePending = "reconcile_pending"
	JobFulfillSessions  = "fulfill_sessions"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// PendingThreshold is how long a purchase request may stay pending
	// before the sweep hands it to the reconciler again.
	PendingThreshold time.Duration
	JobTimeout       time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      time.Minute,
		BatchSize:        50,
		PendingThreshold: 2 * time.Minute,
		JobTimeout:       30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:      cfg.Scheduler.RunInterval,
		BatchSize:        cfg.Scheduler.BatchSize,
		PendingThreshold: cfg.Scheduler.PendingThreshold,
		EnabledJobs:      cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PendingThreshold <= 0 {
		c.PendingThreshold = defaults.PendingThreshold
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
