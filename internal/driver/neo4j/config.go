package neo4j

import (
	"time"

	"github.com/nikmy/graphtx/pkg/errors"
)

type Config struct {
	// URI selects the transport: bolt:// for a single server, neo4j:// for
	// a routed cluster, with +s or +ssc for TLS.
	URI string `yaml:"uri"`

	Auth struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`

	// Database used when a transaction does not name one. Empty means the
	// server's default database.
	Database string `yaml:"database"`

	MaxConnectionPoolSize   int           `yaml:"max_connection_pool_size"`
	ConnectionTimeout       time.Duration `yaml:"connection_timeout"`
	MaxTransactionRetryTime time.Duration `yaml:"max_transaction_retry_time"`

	ConnectRetries uint64 `yaml:"connect_retries"`
}

func DefaultConfig() Config {
	return Config{
		URI:                     "bolt://localhost:7687",
		MaxConnectionPoolSize:   50,
		ConnectionTimeout:       30 * time.Second,
		MaxTransactionRetryTime: 30 * time.Second,
		ConnectRetries:          5,
	}
}

func (c Config) Validate() error {
	if c.URI == "" {
		return errors.Error("neo4j uri is empty")
	}
	if c.MaxConnectionPoolSize < 0 {
		return errors.Errorf("negative neo4j pool size %d", c.MaxConnectionPoolSize)
	}
	return nil
}
