// Package sieveconfig provides the configurations of sieves usable by inputs
package sieveconfig

import (
	"encoding/hex"
	"fmt"

	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/chunker"
)

// RegexConfig configures a sieve to find the matches of regular expressions (RE2 syntax)
type RegexConfig struct {
	bconfig.Header `yaml:",inline"`
	Patterns       []string `yaml:"patterns"`
}

// DelimiterConfig configures a sieve to find records between start and end markers, both inclusive
type DelimiterConfig struct {
	bconfig.Header `yaml:",inline"`
	Start          string `yaml:"start"`
	End            string `yaml:"end"`
}

// FixedLengthConfig configures a sieve to find binary records of fixed length starting with a sync pattern
type FixedLengthConfig struct {
	bconfig.Header `yaml:",inline"`
	Sync           string `yaml:"sync"`   // hex-encoded sync pattern, e.g. "A39D7A"
	Length         int    `yaml:"length"` // total record length including the sync pattern
}

// MultiConfig combines the ranges found by several sieves, e.g. for instruments with mixed ASCII and binary records
type MultiConfig struct {
	bconfig.Header `yaml:",inline"`
	Sieves         []bconfig.SieveConfigHolder `yaml:"sieves"`
}

// NewSieve creates a regex sieve
func (cfg *RegexConfig) NewSieve() (chunker.Sieve, error) {
	return chunker.CompileRegexSieve(cfg.Patterns...)
}

// VerifyConfig checks configuration
func (cfg *RegexConfig) VerifyConfig() error {
	if len(cfg.Patterns) == 0 {
		return fmt.Errorf(".patterns is empty")
	}
	for i, p := range cfg.Patterns {
		if p == "" {
			return fmt.Errorf(".patterns[%d] is empty", i)
		}
	}
	if _, err := cfg.NewSieve(); err != nil {
		return fmt.Errorf(".patterns: %w", err)
	}
	return nil
}

// NewSieve creates a delimiter sieve
func (cfg *DelimiterConfig) NewSieve() (chunker.Sieve, error) {
	return chunker.NewDelimiterSieve([]byte(cfg.Start), []byte(cfg.End))
}

// VerifyConfig checks configuration
func (cfg *DelimiterConfig) VerifyConfig() error {
	if cfg.Start == "" {
		return fmt.Errorf(".start is unspecified")
	}
	if cfg.End == "" {
		return fmt.Errorf(".end is unspecified")
	}
	return nil
}

// NewSieve creates a fixed-length sieve
func (cfg *FixedLengthConfig) NewSieve() (chunker.Sieve, error) {
	syncPattern, err := hex.DecodeString(cfg.Sync)
	if err != nil {
		return nil, fmt.Errorf(".sync: %w", err)
	}
	return chunker.NewFixedLengthSieve(syncPattern, cfg.Length)
}

// VerifyConfig checks configuration
func (cfg *FixedLengthConfig) VerifyConfig() error {
	if cfg.Sync == "" {
		return fmt.Errorf(".sync is unspecified")
	}
	if cfg.Length <= 0 {
		return fmt.Errorf(".length is unspecified")
	}
	_, err := cfg.NewSieve()
	return err
}

// NewSieve creates a sieve combining all the child sieves
func (cfg *MultiConfig) NewSieve() (chunker.Sieve, error) {
	sieves := make([]chunker.Sieve, 0, len(cfg.Sieves))
	for i, holder := range cfg.Sieves {
		s, err := holder.Value.NewSieve()
		if err != nil {
			return nil, fmt.Errorf(".sieves[%d]: %w", i, err)
		}
		sieves = append(sieves, s)
	}
	return chunker.NewMultiSieve(sieves...), nil
}

// VerifyConfig checks configuration
func (cfg *MultiConfig) VerifyConfig() error {
	if len(cfg.Sieves) == 0 {
		return fmt.Errorf(".sieves is empty")
	}
	for i, holder := range cfg.Sieves {
		if holder.Value == nil {
			return fmt.Errorf(".sieves[%d] is empty", i)
		}
		if err := holder.Value.VerifyConfig(); err != nil {
			return fmt.Errorf(".sieves[%d] %s: %w", i, holder.Location, err)
		}
	}
	return nil
}

func init() {
	bconfig.RegisterConfigConstructors(bconfig.SieveConfigCreatorTable{
		"regex":       func() bconfig.SieveConfig { return &RegexConfig{} },
		"delimiter":   func() bconfig.SieveConfig { return &DelimiterConfig{} },
		"fixedLength": func() bconfig.SieveConfig { return &FixedLengthConfig{} },
		"multi":       func() bconfig.SieveConfig { return &MultiConfig{} },
	})
}

// Register registers all sieve config types
func Register() {
	// trigger init()
}
