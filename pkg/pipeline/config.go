package pipeline

import "time"

// Config carries every pipeline tunable. It is passed by value into the
// machine, runner and grading loop so concurrent sessions never share
// ambient state.
type Config struct {
	// Grading loop
	PassThreshold   float64
	MaxQAIterations int
	QAConcurrency   int

	// Stage runner retry policy
	MaxRetries          int
	StageTimeout        time.Duration
	RetryBackoffInitial time.Duration
	RetryBackoffMax     time.Duration

	// Detached submit-then-poll
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	PollCeiling     time.Duration

	// Session retention after terminal status
	RetentionWindow time.Duration
	// Event log grace period after terminal status
	EventGracePeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		PassThreshold:       0.95,
		MaxQAIterations:     3,
		QAConcurrency:       4,
		MaxRetries:          2,
		StageTimeout:        5 * time.Minute,
		RetryBackoffInitial: 2 * time.Second,
		RetryBackoffMax:     30 * time.Second,
		PollInterval:        10 * time.Second,
		PollMaxInterval:     60 * time.Second,
		PollCeiling:         60 * time.Minute,
		RetentionWindow:     7 * 24 * time.Hour,
		EventGracePeriod:    15 * time.Minute,
	}
}
