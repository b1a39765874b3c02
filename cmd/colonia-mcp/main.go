package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/peterkuimelis/colonia/internal/config"
	"github.com/peterkuimelis/colonia/internal/log"
	coloniamcp "github.com/peterkuimelis/colonia/internal/mcp"
)

func main() {
	cfgPath := flag.String("config", "", "path to config YAML file")
	addr := flag.String("server", "", "game server address, overrides the config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server = *addr
	}
	logger, err := log.NewZap(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	coloniamcp.SetConfig(cfg)
	coloniamcp.SetLogger(logger)

	s := server.NewMCPServer("colonia", "1.0.0")
	coloniamcp.RegisterTools(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
