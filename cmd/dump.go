package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ooici/mi-agent/output/chunkfile"
	"github.com/relex/gotils/logger"
)

type dumpCommandState struct {
	Labels bool `help:"Print instrument names labelled on files (xattr)"`
}

var dumpCmd = dumpCommandState{
	Labels: false,
}

func (cmd *dumpCommandState) run(args []string) {
	if len(args) == 0 {
		logger.Fatal("no files specified")
	}
	for _, path := range args {
		if cmd.Labels {
			instruments, err := chunkfile.ReadInstruments(path)
			if err != nil {
				logger.Warnf("failed to read labels of %s: %s", path, err.Error())
			}
			fmt.Fprintf(os.Stdout, "# %s: %s\n", path, strings.Join(instruments, ","))
		}
		chunks, err := chunkfile.ReadFile(path)
		for _, chunk := range chunks {
			fmt.Fprintln(os.Stdout, formatChunk(chunk))
		}
		if err != nil {
			logger.Fatal(err)
		}
	}
}
