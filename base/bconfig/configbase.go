package bconfig

// BaseConfig is implemented by all the configs loaded through ConfigHolder, e.g. inputs, sieves and outputs
type BaseConfig interface {
	GetType() string
}

// Header is the "type" property embedded inline in every config, which must come first in YAML
type Header struct {
	Type string `yaml:"type"`
}

// GetType returns the registered type name, e.g. "instrument" or "chunkFile"
func (header *Header) GetType() string {
	return header.Type
}
