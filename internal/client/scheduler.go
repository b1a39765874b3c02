package client

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

// State is the derived state of the turn scheduler.
type State int

const (
	StateIdle State = iota
	StateUnitActive
	StateExecutingGoto
	StateEndingTurn
)

func (st State) String() string {
	switch st {
	case StateUnitActive:
		return "unit-active"
	case StateExecutingGoto:
		return "executing-goto-queue"
	case StateEndingTurn:
		return "ending-turn"
	default:
		return "idle"
	}
}

type scheduler struct {
	activeUnit    string
	endingTurn    bool
	executingGoto bool

	// attempted holds the units already moved by the current sweep, so
	// that each sweep tries a unit at most once.
	attempted map[string]bool
}

func (sc *scheduler) state() State {
	switch {
	case sc.endingTurn:
		return StateEndingTurn
	case sc.executingGoto:
		return StateExecutingGoto
	case sc.activeUnit != "":
		return StateUnitActive
	}
	return StateIdle
}

func (sc *scheduler) reset() {
	*sc = scheduler{}
}

func (sc *scheduler) beginSweep() {
	sc.attempted = make(map[string]bool)
}

// SchedulerState returns the scheduler state and the active unit.
func (s *Session) SchedulerState() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.state(), s.sched.activeUnit
}

// ActiveUnit returns the unit awaiting the player, "" if none.
func (s *Session) ActiveUnit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.activeUnit
}

func (s *Session) setActiveUnit(id string) {
	if s.sched.activeUnit == id {
		return
	}
	s.sched.activeUnit = id
	s.gui.SetActiveUnit(id)
}

func (s *Session) myTurn() bool {
	return s.started && s.player != "" && s.game.CurrentPlayer == s.player
}

// executeGotoOrders starts a sweep over the units with standing orders.
func (s *Session) executeGotoOrders(ctx context.Context) {
	s.sched.executingGoto = true
	s.sched.beginSweep()
	s.nextActiveUnit(ctx)
}

// nextActiveUnit drains standing orders while a sweep is running, then
// selects the next unit that needs the player. When nothing is left and
// the turn is ending, endTurn is sent exactly once.
func (s *Session) nextActiveUnit(ctx context.Context) {
	defer s.refresh()
	for {
		if !s.myTurn() {
			s.sched.executingGoto, s.sched.endingTurn = false, false
			s.setActiveUnit("")
			return
		}
		if s.sched.executingGoto || s.sched.endingTurn {
			if s.sched.attempted == nil {
				s.sched.beginSweep()
			}
			blocked := s.sweepOrders(ctx)
			s.sched.executingGoto = false
			if blocked != nil && !s.sched.endingTurn {
				s.setActiveUnit(blocked.ID)
				return
			}
		}
		if s.sched.endingTurn {
			s.submitEndTurn(ctx)
			return
		}
		if u := s.nextMovableUnit(); u != nil {
			s.setActiveUnit(u.ID)
			return
		}
		s.setActiveUnit("")
		if s.opts.AutoEndTurn {
			s.sched.endingTurn = true
			continue
		}
		return
	}
}

// sweepOrders moves every unit with standing orders once and returns the
// first one that stopped needing the player.
func (s *Session) sweepOrders(ctx context.Context) *game.Unit {
	var blocked *game.Unit
	for u := s.nextOrderedUnit(); u != nil; u = s.nextOrderedUnit() {
		s.sched.attempted[u.ID] = true
		halt := s.followOrders(ctx, u)
		s.logger.Debug("orders followed", zap.String("unit", u.ID), zap.Stringer("halt", halt))
		if halt == HaltBlockedAwaitingUser && blocked == nil && !u.Disposed {
			blocked = u
		}
		if !s.myTurn() {
			break
		}
	}
	return blocked
}

func hasOrders(u *game.Unit) bool {
	return u.Destination != "" || u.TradeRoute != ""
}

func (s *Session) nextOrderedUnit() *game.Unit {
	for _, u := range s.game.UnitsOf(s.player) {
		if s.sched.attempted[u.ID] || !hasOrders(u) {
			continue
		}
		if u.MovesLeft > 0 || u.Location == game.LocationEurope {
			return u
		}
	}
	return nil
}

// nextMovableUnit prefers the current active unit while it can still move.
func (s *Session) nextMovableUnit() *game.Unit {
	if u := s.game.Unit(s.sched.activeUnit); u != nil && s.movable(u) {
		return u
	}
	for _, u := range s.game.UnitsOf(s.player) {
		if s.movable(u) {
			return u
		}
	}
	return nil
}

func (s *Session) movable(u *game.Unit) bool {
	if u.Disposed || u.Owner != s.player || u.MovesLeft <= 0 || hasOrders(u) {
		return false
	}
	if u.State != game.StateActive && u.State != "" {
		return false
	}
	return s.game.UnitTile(u) != nil
}

func (s *Session) submitEndTurn(ctx context.Context) {
	s.sched.endingTurn = false
	s.sched.executingGoto = false
	s.setActiveUnit("")
	reply, err := s.request(ctx, message.New(message.TagEndTurn))
	if err != nil {
		s.logger.Warn("end turn not accepted", zap.Error(err))
		return
	}
	s.events.Log(log.NewEndTurnEvent(s.turn(), s.playerName(s.player)))
	if err := s.apply(reply); err != nil {
		s.logger.Warn("end turn reply", zap.Error(err))
	}
}

// followOrders moves u toward its destination. A trade-route unit carries
// on to the next stop after working each stop it reaches.
func (s *Session) followOrders(ctx context.Context, u *game.Unit) Halt {
	var route *game.TradeRoute
	legs := 1
	if u.TradeRoute != "" {
		route = s.game.TradeRoute(u.TradeRoute)
		if route == nil || len(route.Stops) == 0 {
			s.gui.ShowInformationMessage(s.game.Describe(u.ID) + " follows a trade route without stops.")
			return HaltBlockedAwaitingUser
		}
		legs = len(route.Stops)
		if u.Destination == "" {
			s.setStopDestination(ctx, u, route, u.StopIndex%legs)
		}
	}

	for leg := 0; leg < legs; leg++ {
		halt := s.moveToDestination(ctx, u)
		if halt != HaltArrived {
			return halt
		}
		if route == nil {
			s.arrive(ctx, u)
			return HaltArrived
		}
		s.workStop(ctx, u, route)
		if u.Disposed {
			return HaltDisposed
		}
		if u.MovesLeft <= 0 {
			return HaltBlockedNoMoves
		}
	}
	return HaltBlockedNoMoves
}

// arrive clears a reached destination.
func (s *Session) arrive(ctx context.Context, u *game.Unit) {
	dest := u.Destination
	tx := s.game.Begin()
	tx.Unit(u.ID).Destination = ""
	if err := s.sendAndWait(ctx, message.New(message.TagSetDestination, "unit", u.ID)); err != nil {
		tx.Rollback()
		return
	}
	tx.Commit()
	s.events.Log(log.NewArrivedEvent(s.turn(), s.playerName(s.player), u.ID, s.game.Describe(dest)))
}

func (s *Session) setStopDestination(ctx context.Context, u *game.Unit, route *game.TradeRoute, index int) {
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.StopIndex = index
	tu.Destination = route.Stops[index].Location
	msg := message.New(message.TagSetDestination,
		"unit", u.ID,
		"destination", tu.Destination,
		"stopIndex", strconv.Itoa(index))
	if err := s.sendAndWait(ctx, msg); err != nil {
		tx.Rollback()
		return
	}
	tx.Commit()
}

// workStop unloads and loads at the stop u has reached and points it at
// the next stop.
func (s *Session) workStop(ctx context.Context, u *game.Unit, route *game.TradeRoute) {
	stop := route.Stops[u.StopIndex%len(route.Stops)]
	var unloaded, loaded []string
	for _, goodsType := range stop.Unload {
		amount := u.Goods[goodsType]
		if amount <= 0 {
			continue
		}
		if err := s.unload(ctx, u, stop.Location, goodsType, amount); err == nil {
			unloaded = append(unloaded, goodsType)
		}
	}
	for _, goodsType := range stop.Load {
		amount := s.loadable(u, stop.Location, goodsType)
		if amount <= 0 {
			continue
		}
		if err := s.load(ctx, u, stop.Location, goodsType, amount); err == nil {
			loaded = append(loaded, goodsType)
		}
	}
	s.events.Log(log.NewTradeRouteStopEvent(s.turn(), s.playerName(s.player), u.ID, s.game.Describe(stop.Location), unloaded, loaded))
	s.setStopDestination(ctx, u, route, (u.StopIndex+1)%len(route.Stops))
}

// loadable returns how much of goodsType u should take at loc: what the
// colony holds above its export level, or a full hold in Europe, capped by
// the free room aboard.
func (s *Session) loadable(u *game.Unit, loc, goodsType string) int {
	room := s.goodsRoom(u, goodsType)
	if loc == game.LocationEurope {
		return min(room, 100)
	}
	colony := s.game.Settlement(loc)
	if colony == nil {
		return 0
	}
	spare := colony.Goods[goodsType] - colony.ExportLevel[goodsType]
	return max(0, min(spare, room))
}

// goodsRoom returns how much more of goodsType fits aboard u.
func (s *Session) goodsRoom(u *game.Unit, goodsType string) int {
	used := len(s.game.Cargo(u))
	for t, amount := range u.Goods {
		if t != goodsType {
			used += (amount + 99) / 100
		}
	}
	return max(0, (u.Space-used)*100-u.Goods[goodsType])
}
