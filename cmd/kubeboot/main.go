package main

import (
	"os"

	"github.com/kubeboot/kubeboot/cmd/kubeboot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
