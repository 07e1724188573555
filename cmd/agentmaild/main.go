package main

import (
	"fmt"
	"os"

	"github.com/agentmail/coordinator/cmd/agentmaild/commands"
	"github.com/agentmail/coordinator/internal/core"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if core.IsKind(err, core.KindInvalidInput) || core.IsKind(err, core.KindNotFound) || core.IsKind(err, core.KindConflict) || core.IsKind(err, core.KindFtsError) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
