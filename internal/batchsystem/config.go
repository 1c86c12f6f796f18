package batchsystem

import "time"

// Config holds the spawn-time tunables from spec.md §6. MaxBatchSize of
// zero means "unset", resolved to 256 by MaxBatchSizeOrDefault.
type Config struct {
	MaxBatchSize         int
	PoolSize             int
	RescheduleDuration   time.Duration
	LowPriorityPoolSize  int
}

// DefaultConfig mirrors the Rust original's Default impl.
func DefaultConfig() Config {
	return Config{
		PoolSize:            2,
		RescheduleDuration:  5 * time.Second,
		LowPriorityPoolSize: 1,
	}
}

// MaxBatchSizeOrDefault resolves the configured soft cap, defaulting to 256
// when unset.
func (c Config) MaxBatchSizeOrDefault() int {
	if c.MaxBatchSize <= 0 {
		return 256
	}
	return c.MaxBatchSize
}

// shutdownSentinels resolves spec.md §9's Open Question: the number of
// Empty sentinels flooded per channel on shutdown, generalized from the
// Rust original's hardcoded 100 to enough for any pool size.
func (c Config) shutdownSentinels() int {
	n := c.PoolSize
	if c.LowPriorityPoolSize > n {
		n = c.LowPriorityPoolSize
	}
	return n + 32
}
