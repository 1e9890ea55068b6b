package bconfig

import (
	"github.com/ooici/mi-agent/chunker"
)

// SieveConfig provides an interface for the configuration of sieves locating records in instrument streams
//
// All the implementations should support YAML unmarshalling
type SieveConfig interface {
	BaseConfig

	// NewSieve creates a sieve. Sieves are stateless and may be shared by all sessions of an input.
	NewSieve() (chunker.Sieve, error)

	VerifyConfig() error
}

// SieveConfigHolder holds SieveConfig
type SieveConfigHolder = ConfigHolder[SieveConfig]

// SieveConfigCreatorTable defines the table of constructors for SieveConfig implementations
type SieveConfigCreatorTable = ConfigCreatorTable[SieveConfig]
