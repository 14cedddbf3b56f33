package scheduler

import "time"

// SchedulerConfig controls the overdue sweep interval and batch size.
type SchedulerConfig struct {
	RunInterval time.Duration
	BatchSize   int
}

func DefaultConfig() SchedulerConfig {
	return SchedulerConfig{
		RunInterval: time.Minute,
		BatchSize:   100,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
