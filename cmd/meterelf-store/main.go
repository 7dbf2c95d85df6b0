package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/meterelf/meterelf-store/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
