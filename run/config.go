package run

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/input"
	"github.com/ooici/mi-agent/orchestrate/ofanout"
	"github.com/ooici/mi-agent/output"
	"github.com/ooici/mi-agent/util"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config defines the root of mi-agent config file
type Config struct {
	Anchors AnchorsConfig               `yaml:"anchors"`
	Inputs  []bconfig.InputConfigHolder `yaml:"inputs"`
	Outputs []OutputEntryConfig         `yaml:"outputs"`
}

// AnchorsConfig defines the anchors section in config file
// The section is meant to provide anchors for other sections and doesn't need to be unmarshalled itself
type AnchorsConfig struct {
}

// OutputEntryConfig defines a named output and the instruments routed to it
type OutputEntryConfig struct {
	Name        string                     `yaml:"name"`
	Instruments []string                   `yaml:"instruments"` // glob patterns of instrument names; empty to accept all
	Output      bconfig.OutputConfigHolder `yaml:"output"`
}

func init() {
	input.Register()
	output.Register()
}

// LoadConfigFile loads config from the path and verifies all configurations
func LoadConfigFile(filepath string) (*Config, error) {
	cref := &Config{}
	if err := util.UnmarshalYamlFile(filepath, cref); err != nil {
		return nil, err
	}
	if err := cref.Verify(); err != nil {
		return nil, err
	}
	return cref, nil
}

// Verify checks the whole configuration
func (cfg *Config) Verify() error {
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("inputs is empty")
	}
	for i, holder := range cfg.Inputs {
		if err := holder.Value.VerifyConfig(); err != nil {
			return fmt.Errorf("inputs[%d] %s: %w", i, holder.Location, err)
		}
	}

	if len(cfg.Outputs) == 0 {
		return fmt.Errorf("outputs is empty")
	}
	for i, entry := range cfg.Outputs {
		if entry.Name == "" {
			return fmt.Errorf("outputs[%d]: .name is unspecified", i)
		}
		if entry.Output.Value == nil {
			return fmt.Errorf("outputs[%d]: .output is unspecified", i)
		}
		if _, err := compileInstrumentGlobs(entry.Instruments); err != nil {
			return fmt.Errorf("outputs[%d]: .instruments: %w", i, err)
		}
		if err := entry.Output.Value.VerifyConfig(); err != nil {
			return fmt.Errorf("outputs[%d] %s: %w", i, entry.Output.Location, err)
		}
	}
	names := lo.Map(cfg.Outputs, func(entry OutputEntryConfig, _ int) string { return entry.Name })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return fmt.Errorf("outputs: duplicate names %v", dups)
	}
	return nil
}

// NewRoutes creates routes for the fan-out distributor out of the outputs section
func (cfg *Config) NewRoutes() []ofanout.Route {
	return lo.Map(cfg.Outputs, func(entry OutputEntryConfig, _ int) ofanout.Route {
		globs, _ := compileInstrumentGlobs(entry.Instruments) // verified in LoadConfigFile
		return ofanout.Route{
			Name:        entry.Name,
			Instruments: globs,
			Output:      entry.Output.Value,
		}
	})
}

func compileInstrumentGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for i, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("[%d] '%s': %w", i, p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// MarshalYAML provides custom marshalling to export readable document. The result is not reversible.
func (holder AnchorsConfig) MarshalYAML() (interface{}, error) {
	return []string(nil), nil
}

// UnmarshalYAML provides custom unmarshalling for the implementations of Config
func (holder *AnchorsConfig) UnmarshalYAML(value *yaml.Node) error {
	return nil
}
