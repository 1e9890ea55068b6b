// Package input registers the list of all ChunkInput implementations
package input

import (
	"github.com/ooici/mi-agent/base/bconfig"
	"github.com/ooici/mi-agent/input/instrumentinput"
	"github.com/ooici/mi-agent/input/playbackinput"
)

func init() {
	bconfig.RegisterConfigConstructors(bconfig.InputConfigCreatorTable{
		"instrument": func() bconfig.InputConfig { return &instrumentinput.Config{} },
		"playback":   func() bconfig.InputConfig { return &playbackinput.Config{} },
	})
}

// Register registers all input config types
func Register() {
	// trigger init()
}
