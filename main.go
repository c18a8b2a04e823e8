package main

import (
	"context"
	"log/slog"
	"os"
)

// App is the global application instance, initialized in main before the
// command tree runs and referenced by all command actions.
var App *PoolApp

func main() {
	App = initApp()
	err := App.cliCmd.Run(context.Background(), os.Args)
	if err != nil {
		slog.Error("Error", "msg", err)
		os.Exit(1)
	}
}
