package client

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

// startTurn runs when the server hands the turn to the local player.
func (s *Session) startTurn(ctx context.Context) {
	s.sched.reset()
	s.gui.SetActiveUnit("")
	s.events.Log(log.NewTurnStartEvent(s.turn(), s.playerName(s.player)))

	s.autosave(ctx)
	for _, u := range s.game.ForgetUnseen(s.player) {
		s.events.Log(log.NewUnitForgottenEvent(s.turn(), u.ID))
	}
	s.offerEmigration(ctx)
	s.workPorts(ctx)
	s.showMessages()
	s.executeGotoOrders(ctx)
}

// autosave stores a snapshot every AutosaveEvery turns and prunes old
// ones. Failures are logged and never stop the turn.
func (s *Session) autosave(ctx context.Context) {
	every := s.opts.AutosaveEvery
	if s.opts.Autosave == nil || every <= 0 || s.turn()%every != 0 {
		return
	}
	id, err := s.opts.Autosave.Save(ctx, s.id, s.game.ID, s.turn(), s.player, s.codec.Encode(s.game))
	if err != nil {
		s.logger.Warn("autosave failed", zap.Int("turn", s.turn()), zap.Error(err))
		return
	}
	if n, err := s.opts.Autosave.Prune(ctx, s.game.ID, s.opts.AutosaveKeep); err != nil {
		s.logger.Warn("autosave prune failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Debug("pruned autosaves", zap.Int64("count", n))
	}
	s.events.Log(log.NewAutosaveEvent(s.turn(), id))
}

// offerEmigration lets the player take the emigrant earned by
// immigration points.
func (s *Session) offerEmigration(ctx context.Context) {
	me := s.me()
	if me == nil || me.ImmigrationRequired <= 0 || me.Immigration < me.ImmigrationRequired {
		return
	}
	if !s.gui.ShowConfirmDialog("A new colonist is ready to emigrate. Bring them to the docks?", "Yes", "Later") {
		return
	}
	if err := s.europeRequest(ctx, message.NewBuilder(message.TagEmigrateUnitInEurope).Int("slot", 0).Build()); err != nil {
		s.logger.Debug("emigration refused", zap.Error(err))
	}
}

// workPorts lets trade-route carriers that start the turn at their stop
// load and unload before anything moves.
func (s *Session) workPorts(ctx context.Context) {
	for _, u := range s.game.UnitsOf(s.player) {
		if u.TradeRoute == "" || !s.game.AtDestination(u) {
			continue
		}
		if route := s.game.TradeRoute(u.TradeRoute); route != nil && len(route.Stops) > 0 {
			s.workStop(ctx, u, route)
		}
	}
}

// showMessages displays the queued model messages that are neither
// suppressed nor ignored this turn.
func (s *Session) showMessages() {
	pending := s.messages
	s.messages = nil
	for _, m := range pending {
		if slices.Contains(s.opts.Suppress, m.Key) || s.ignored.IsIgnored(m.Key, s.turn()) {
			continue
		}
		s.gui.ShowInformationMessage(m.Text)
	}
}
