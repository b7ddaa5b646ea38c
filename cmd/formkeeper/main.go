package main

import (
	"os"

	"github.com/solatis/formkeeper/cmd/formkeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
