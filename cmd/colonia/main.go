package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/app"
	"github.com/peterkuimelis/colonia/internal/config"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/journal"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/net"
	"github.com/peterkuimelis/colonia/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error
	switch cmd {
	case "play":
		err = runPlay(os.Args[2:])
	case "replay":
		err = runReplay(os.Args[2:])
	case "saves":
		err = runSaves(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  colonia play   [--config FILE] [--server ADDR] [--name NAME]")
	fmt.Println("  colonia replay [--filter TAG] JOURNAL")
	fmt.Println("  colonia saves  [--config FILE] GAME_ID")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  play    Connect to a game server and play in the terminal")
	fmt.Println("  replay  Print the frames recorded in a journal")
	fmt.Println("  saves   List the autosaves kept for a game")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(path, server, name, level string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if server != "" {
		cfg.Server = server
	}
	if name != "" {
		cfg.Name = name
	}
	if level != "" {
		cfg.LogLevel = level
	}
	cfg.Normalize()
	return cfg, cfg.Validate()
}

func runPlay(args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config YAML file")
	server := fs.String("server", "", "server address (host:port or ws://...)")
	name := fs.String("name", "", "player name")
	level := fs.String("log-level", "", "diagnostic log level")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath, *server, *name, *level)
	if err != nil {
		return err
	}
	logger, err := log.NewZap(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	lines := gui.NewLineRouter(logger)
	term := gui.NewTerminal(os.Stdout, lines)
	exec := gui.NewExecutor(logger, 64)
	defer exec.Close()
	bridge := gui.NewBridge(exec, term, logger)

	a, err := app.Open(ctx, cfg, bridge, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	term.Render = func(w io.Writer) {
		if status := a.Session.Status(); status != "" {
			fmt.Fprintln(w, status)
		}
	}

	go func() {
		if err := lines.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
			logger.Warn("input closed", zap.Error(err))
		}
	}()

	if err := a.Session.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	r := &repl{app: a, out: os.Stdout, term: term}
	r.joinLobby(ctx)
	fmt.Fprintln(os.Stdout, "Type 'help' for commands.")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.Conn.Done():
			fmt.Fprintf(os.Stdout, "Disconnected: %v\n", a.Conn.Err())
			return nil
		case line, ok := <-lines.Commands():
			if !ok {
				return nil
			}
			if quit := r.run(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	filter := fs.String("filter", "", "only print frames whose message tag matches")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("replay takes one journal file")
	}

	n := 0
	err := journal.ReadFile(fs.Arg(0), func(e journal.Entry) error {
		tag := ""
		if e.Frame.Msg != nil {
			tag = e.Frame.Msg.Tag
		}
		if *filter != "" && tag != *filter {
			return nil
		}
		n++
		arrow := "<-"
		if e.Flow == net.Outbound {
			arrow = "->"
		}
		fmt.Printf("%s %s %-7s %s\n", e.Time.Format("15:04:05.000"), arrow, e.Frame.Kind, formatWire(e.Frame.Msg))
		return nil
	})
	fmt.Printf("%d frames\n", n)
	return err
}

func runSaves(args []string) error {
	fs := flag.NewFlagSet("saves", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to config YAML file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("saves takes one game id")
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	path := cfg.Autosave.Path
	if path == "" {
		path = "colonia-autosave.db"
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	saves, err := st.List(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	for _, s := range saves {
		fmt.Printf("#%-5d turn %-4d %-12s %s %6d bytes\n", s.ID, s.Turn, s.Player, s.CreatedAt.Format("2006-01-02 15:04"), s.Size)
	}
	fmt.Printf("%d autosaves\n", len(saves))
	return nil
}
