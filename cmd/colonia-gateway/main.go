package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/web"
)

func main() {
	port := flag.Int("port", 8080, "HTTP port to listen on")
	upstream := flag.String("upstream", "localhost:3541", "game server host:port")
	origins := flag.String("origins", "", "comma-separated extra browser origins allowed to connect")
	level := flag.String("log-level", "info", "diagnostic log level")
	flag.Parse()

	logger, err := log.NewZap(*level, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	gw := web.NewGateway(*upstream, logger)
	if *origins != "" {
		gw.OriginPatterns = strings.Split(*origins, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("gateway listening", zap.String("addr", addr), zap.String("upstream", *upstream))
	if err := gw.ListenAndServe(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
