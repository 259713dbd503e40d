package history

import "github.com/gabrielpetry/MangoHud/internal/errors"

const (
	defaultDirPerm = 0o755

	// DefaultBatchSize is how many snapshots accumulate before a flush.
	DefaultBatchSize = 16
	// DefaultBatchTimeout bounds how long a partial batch waits, in seconds.
	DefaultBatchTimeout = 5
)

type Config struct {
	Enabled      bool
	DBPath       string
	BatchSize    int
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    DefaultBatchSize,
		BatchTimeout: DefaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the path if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}

	return nil
}

// withDefaults fills unusable batch settings so the flusher always has a
// valid ticker.
func (c Config) withDefaults() Config {
	if c.BatchSize < 1 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout < 1 {
		c.BatchTimeout = DefaultBatchTimeout
	}

	return c
}
