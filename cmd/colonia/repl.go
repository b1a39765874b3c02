package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterkuimelis/colonia/internal/app"
	"github.com/peterkuimelis/colonia/internal/client"
	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

// repl runs typed commands against the session.
type repl struct {
	app  *app.App
	out  io.Writer
	term *gui.Terminal
}

const helpText = `Lobby:
  ready [off]              mark yourself ready
  nation NATION            pick a nation
  color COLOR              pick a colour
  launch                   start once everyone is ready
Game:
  move [UNIT] DIR          move one tile (N NE E SE S SW W NW)
  goto [UNIT] DEST         set a destination and move there
  route UNIT ROUTE         assign a trade route
  build [UNIT] NAME        found a colony
  state [UNIT] STATE       ACTIVE, SENTRY, FORTIFY
  skip [UNIT]              skip a unit this turn
  disband [UNIT]           disband a unit
  cashin [UNIT]            cash in a treasure train
  end                      end the turn
  orders                   move units with destinations
  affairs                  foreign affairs report
  ignore KEY               hide a message key for a while
Any time:
  chat TEXT | tell PLAYER TEXT
  status | events | help | quit`

// joinLobby applies the configured nation and colour.
func (r *repl) joinLobby(ctx context.Context) {
	s := r.app.Session
	if s.InGame() {
		return
	}
	cfg := r.app.Config
	if cfg.Nation != "" {
		r.report("nation", s.SetNation(ctx, cfg.Nation))
	}
	if cfg.Color != "" {
		r.report("color", s.SetColor(ctx, cfg.Color))
	}
}

func (r *repl) report(cmd string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, client.ErrInvalidState), errors.Is(err, client.ErrRejected):
		// Already shown by the presenter.
	default:
		fmt.Fprintf(r.out, "%s: %v\n", cmd, err)
	}
}

// unitAndRest splits args into an optional leading unit id and the rest.
// Without one the active unit is used.
func (r *repl) unitAndRest(args []string, want int) (string, []string) {
	if len(args) > want {
		return args[0], args[1:]
	}
	return r.term.ActiveUnit(), args
}

var directionNames = map[string]game.Direction{
	"N": game.North, "NE": game.NorthEast, "E": game.East, "SE": game.SouthEast,
	"S": game.South, "SW": game.SouthWest, "W": game.West, "NW": game.NorthWest,
}

func parseDirection(s string) (game.Direction, bool) {
	s = strings.ToUpper(s)
	if d, ok := directionNames[s]; ok {
		return d, true
	}
	return game.ParseDirection(s)
}

// run executes one command line and reports whether to quit.
func (r *repl) run(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	s := r.app.Session
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "help", "?":
		fmt.Fprintln(r.out, helpText)
	case "quit", "exit":
		r.report(cmd, s.Logout(ctx, "quit"))
		return true
	case "status":
		fmt.Fprintln(r.out, s.Status())
	case "events":
		fmt.Fprint(r.out, log.FormatAll(r.app.History.Drain()))

	case "ready":
		r.report(cmd, s.SetReady(ctx, len(args) == 0 || args[0] != "off"))
	case "nation":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "usage: nation NATION")
			break
		}
		r.report(cmd, s.SetNation(ctx, args[0]))
	case "color":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "usage: color COLOR")
			break
		}
		r.report(cmd, s.SetColor(ctx, args[0]))
	case "launch":
		r.report(cmd, s.RequestStartGame(ctx))

	case "move":
		unit, rest := r.unitAndRest(args, 1)
		if len(rest) != 1 {
			fmt.Fprintln(r.out, "usage: move [UNIT] DIR")
			break
		}
		dir, ok := parseDirection(rest[0])
		if !ok {
			fmt.Fprintf(r.out, "unknown direction %q\n", rest[0])
			break
		}
		r.report(cmd, s.Move(ctx, unit, dir))
	case "goto":
		unit, rest := r.unitAndRest(args, 1)
		if len(rest) != 1 {
			fmt.Fprintln(r.out, "usage: goto [UNIT] DEST")
			break
		}
		if err := s.SetDestination(ctx, unit, rest[0]); err != nil {
			r.report(cmd, err)
			break
		}
		r.report(cmd, s.ExecuteGotoOrders(ctx))
	case "route":
		if len(args) != 2 {
			fmt.Fprintln(r.out, "usage: route UNIT ROUTE")
			break
		}
		r.report(cmd, s.AssignTradeRoute(ctx, args[0], args[1]))
	case "build":
		unit, rest := r.term.ActiveUnit(), args
		if len(args) > 1 && strings.Contains(args[0], ":") {
			unit, rest = args[0], args[1:]
		}
		r.report(cmd, s.BuildColony(ctx, unit, strings.Join(rest, " ")))
	case "state":
		unit, rest := r.unitAndRest(args, 1)
		if len(rest) != 1 {
			fmt.Fprintln(r.out, "usage: state [UNIT] STATE")
			break
		}
		r.report(cmd, s.ChangeState(ctx, unit, game.UnitState(strings.ToUpper(rest[0]))))
	case "skip":
		unit, _ := r.unitAndRest(args, 0)
		r.report(cmd, s.SkipUnit(ctx, unit))
	case "disband":
		unit, _ := r.unitAndRest(args, 0)
		r.report(cmd, s.DisbandUnit(ctx, unit))
	case "cashin":
		unit, _ := r.unitAndRest(args, 0)
		r.report(cmd, s.CashInTreasureTrain(ctx, unit))
	case "end":
		r.report(cmd, s.EndTurn(ctx))
	case "orders":
		r.report(cmd, s.ExecuteGotoOrders(ctx))
	case "affairs":
		report, err := s.GetForeignAffairs(ctx)
		r.report(cmd, err)
		fmt.Fprint(r.out, report)
	case "ignore":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "usage: ignore KEY")
			break
		}
		s.IgnoreMessage(args[0])

	case "chat":
		r.report(cmd, s.Chat(ctx, rest, ""))
	case "tell":
		if len(args) < 2 {
			fmt.Fprintln(r.out, "usage: tell PLAYER TEXT")
			break
		}
		r.report(cmd, s.Chat(ctx, strings.Join(args[1:], " "), args[0]))
	default:
		fmt.Fprintf(r.out, "unknown command %q, try help\n", cmd)
	}
	return false
}

// formatWire renders a journalled message on one line.
func formatWire(w *message.Wire) string {
	if w == nil {
		return "-"
	}
	return message.FromWire(w).String()
}

