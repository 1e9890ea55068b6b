// Package output registers the list of all output implementations
package output

import (
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/output/chunkfile"
	"github.com/ooici/mi-agent/output/fluentdforward"
	"github.com/ooici/mi-agent/output/nulloutput"
)

func init() {
	bconfig.RegisterConfigConstructors(bconfig.OutputConfigCreatorTable{
		"chunkFile":      func() bconfig.OutputConfig { return &chunkfile.Config{} },
		"fluentdForward": func() bconfig.OutputConfig { return &fluentdforward.Config{} },
		"null":           func() bconfig.OutputConfig { return &nulloutput.Config{} },
	})
}

// Register registers all output config types
func Register() {
	// trigger init()
}
