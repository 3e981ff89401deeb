package main

import (
	"fmt"
	"os"

	"github.com/harun/toolhost/internal/cli"
	"github.com/harun/toolhost/pkg/tool"
	_ "github.com/harun/toolhost/tools/all"
)

func main() {
	if err := cli.Execute(); err != nil {
		if terr, ok := tool.AsError(err); ok {
			fmt.Fprintf(os.Stderr, "Error (%d): %s\n", int(terr.Code), terr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
