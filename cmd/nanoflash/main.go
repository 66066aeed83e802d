package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"
	"k8s.io/apiserver/pkg/server"

	"cloupeer.io/nanoflash/cmd/nanoflash/app"
)

func main() {
	ctx := server.SetupSignalContext()
	if err := app.NewNanoflashCommand(ctx).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(app.ExitCode(err))
	}
}
