package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gatekeeper/internal/admincli"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stderr, cfg.Debug)

	root := admincli.NewRootCmd(admincli.ServerOpener(cfg, logger), os.Stdin)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
