package kafka

import (
	"errors"
	"runtime"
	"time"
)

type CheckpointCfg struct {
	CommitInt time.Duration `koanf:"commit_interval"` // flush cadence
}

type Config struct {
	Driver    string   `koanf:"driver"` // registry name, sarama when empty
	Brokers   []string `koanf:"brokers"`
	Topics    []string `koanf:"topics"`
	GroupID   string   `koanf:"group_id"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	// Concurrency bounds the renders in flight per claimed partition.
	Concurrency int           `koanf:"concurrency"`
	Checkpoint  CheckpointCfg `koanf:"checkpoint"`
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.Driver == "" {
		c.Driver = "sarama"
	}
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.GOMAXPROCS(0)
	}
	if c.Checkpoint.CommitInt == 0 {
		c.Checkpoint.CommitInt = 5 * time.Second
	}
}

func (c Config) Validate() error {
	switch {
	case len(c.Brokers) == 0:
		return errors.New("kafka: brokers are required")
	case len(c.Topics) == 0:
		return errors.New("kafka: topics are required")
	case c.GroupID == "":
		return errors.New("kafka: group_id is required")
	}
	return nil
}
