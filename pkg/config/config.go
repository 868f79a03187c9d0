package config

import (
	"fmt"

	"github.com/subset-labs/zk-membership-go/pkg/commitment"
)

// Environment variable names for membership engine configuration
const (
	EnvTreeDepth     = "ZKMEMBERSHIP_TREE_DEPTH"
	EnvRegistryType  = "ZKMEMBERSHIP_REGISTRY_TYPE"
	EnvDataDir       = "ZKMEMBERSHIP_DATA_DIR"
	EnvRedisAddress  = "ZKMEMBERSHIP_REDIS_ADDRESS"
	EnvRedisPassword = "ZKMEMBERSHIP_REDIS_PASSWORD"
	EnvRedisDB       = "ZKMEMBERSHIP_REDIS_DB"
	EnvVerbose       = "ZKMEMBERSHIP_VERBOSE"
)

// RegistryType selects the replay-guard backend
type RegistryType string

const (
	RegistryTypeMemory RegistryType = "memory"
	RegistryTypeBadger RegistryType = "badger"
	RegistryTypeRedis  RegistryType = "redis"
)

func (r RegistryType) String() string {
	return string(r)
}

// SupportedRegistryTypes returns the valid backend names for CLI help.
func SupportedRegistryTypes() []RegistryType {
	return []RegistryType{RegistryTypeMemory, RegistryTypeBadger, RegistryTypeRedis}
}

// Config is the complete configuration of the membership engine.
type Config struct {
	// TreeDepth is the structural depth of the commitment tree and the
	// circuit. Changing it changes the circuit, so it is fixed per
	// deployment.
	TreeDepth int `json:"tree_depth"`

	// RegistryType selects the nullifier replay-guard backend
	RegistryType RegistryType `json:"registry_type"`

	// DataDir is the storage directory for the badger backend
	DataDir string `json:"data_dir,omitempty"`

	// Redis connection settings, used when RegistryType is "redis"
	RedisAddress  string `json:"redis_address,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`

	// Verbose enables debug logging
	Verbose bool `json:"verbose"`
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.TreeDepth < commitment.MinDepth || c.TreeDepth > commitment.MaxDepth {
		return fmt.Errorf("tree depth must be between %d and %d, got %d",
			commitment.MinDepth, commitment.MaxDepth, c.TreeDepth)
	}

	switch c.RegistryType {
	case RegistryTypeMemory:
		// nothing else required
	case RegistryTypeBadger:
		if c.DataDir == "" {
			return fmt.Errorf("data dir is required for the badger registry")
		}
	case RegistryTypeRedis:
		if c.RedisAddress == "" {
			return fmt.Errorf("redis address is required for the redis registry")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("redis db must be between 0 and 15, got %d", c.RedisDB)
		}
	default:
		return fmt.Errorf("unsupported registry type %q (supported: %v)", c.RegistryType, SupportedRegistryTypes())
	}

	return nil
}
