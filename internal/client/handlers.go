package client

import (
	"cmp"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
	"github.com/peterkuimelis/colonia/internal/net"
)

func (s *Session) newInGameRegistry() *net.Registry {
	r := net.NewRegistry("in-game", s.logger)
	r.Register(message.TagUpdate, s.handleUpdate)
	r.Register(message.TagRemove, s.handleRemove)
	r.Register(message.TagOpponentMove, s.handleOpponentMove)
	r.Register(message.TagOpponentAttack, s.handleOpponentAttack)
	r.Register(message.TagSetCurrentPlayer, s.handleSetCurrentPlayer)
	r.Register(message.TagNewTurn, s.handleNewTurn)
	r.Register(message.TagSetDead, s.handleSetDead)
	r.Register(message.TagGameEnded, s.handleGameEnded)
	r.Register(message.TagChat, s.handleChat)
	r.Register(message.TagDisconnect, s.handleDisconnect)
	r.Register(message.TagError, s.handleError)
	r.Register(message.TagChooseFoundingFather, s.handleChooseFoundingFather)
	r.Register(message.TagDeliverGift, s.handleDeliverGift)
	r.Register(message.TagIndianDemand, s.handleIndianDemand)
	r.Register(message.TagReconnect, s.handleReconnect)
	r.Register(message.TagSetAI, s.handleSetAI)
	r.Register(message.TagMonarchAction, s.handleMonarchAction)
	r.Register(message.TagRemoveGoods, s.handleRemoveGoods)
	r.Register(message.TagLostCityRumour, s.handleLostCityRumour)
	r.Register(message.TagSetStance, s.handleSetStance)
	r.Register(message.TagGiveIndependence, s.handleGiveIndependence)
	return r
}

// merge decodes every object element among the children of msg.
func (s *Session) merge(msg *message.Message) {
	for _, c := range msg.Children() {
		if !isObjectTag(c.Tag()) {
			continue
		}
		if _, err := s.codec.Decode(c, s.game); err != nil {
			s.logger.Warn("bad object element", zap.Stringer("msg", c), zap.Error(err))
		}
	}
}

func (s *Session) handleUpdate(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	for _, c := range msg.Children() {
		if c.Tag() == message.TagModelMessage {
			s.messages = append(s.messages, ModelMessage{
				Key:  c.Attr("key"),
				Text: c.Attr("text"),
				Turn: s.turn(),
			})
			continue
		}
		if _, err := s.codec.Decode(c, s.game); err != nil {
			s.logger.Warn("bad update element", zap.Stringer("msg", c), zap.Error(err))
		}
	}
	s.refresh()
	return nil, nil
}

func (s *Session) handleRemove(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	ids := make([]string, 0, len(msg.Children())+1)
	if id := msg.Attr("id"); id != "" {
		ids = append(ids, id)
	}
	for _, c := range msg.Children() {
		if id := c.Attr("id"); id != "" {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if !s.game.Remove(id) {
			s.logger.Debug("remove of unknown object", zap.String("id", id))
		}
		if id == s.sched.activeUnit {
			s.setActiveUnit("")
		}
	}
	s.refresh()
	return nil, nil
}

func (s *Session) handleOpponentMove(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	s.merge(msg)
	id := msg.Attr("unit")
	u := s.game.Unit(id)
	if u == nil {
		return nil, fmt.Errorf("opponentMove: unknown unit %q", id)
	}
	if to := msg.Attr("to"); to != "" {
		u.Location = to
	}
	if !s.game.UnitVisibleTo(s.player, u) {
		s.game.DisposeUnit(u.ID)
		s.events.Log(log.NewUnitForgottenEvent(s.turn(), u.ID))
	}
	s.refresh()
	return nil, nil
}

// handleOpponentAttack merges the combat result first and then forgets
// whichever side the local player can no longer see.
func (s *Session) handleOpponentAttack(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	s.merge(msg)
	attackerID, defenderID := msg.Attr("attacker"), msg.Attr("defender")
	result := msg.Attr("result")
	for _, id := range []string{attackerID, defenderID} {
		u := s.game.Unit(id)
		if u == nil {
			continue
		}
		if u.Owner != s.player && s.game.Carrier(u) == nil && !s.game.UnitVisibleTo(s.player, u) {
			s.game.DisposeUnit(id)
			s.events.Log(log.NewUnitForgottenEvent(s.turn(), id))
		}
	}
	attacker := s.playerName(msg.Attr("attackerOwner"))
	s.events.Log(log.NewCombatEvent(s.turn(), attacker, attackerID, defenderID, result))
	mine := msg.Attr("defenderOwner") == s.player
	if d := s.game.Unit(defenderID); d != nil && d.Owner == s.player {
		mine = true
	}
	if mine {
		s.gui.ShowInformationMessage(fmt.Sprintf("%s attacked %s: %s.", attacker, s.game.Describe(defenderID), result))
	}
	s.refresh()
	return nil, nil
}

func (s *Session) handleSetCurrentPlayer(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	player := msg.Attr("player")
	if s.game.Player(player) == nil {
		return nil, fmt.Errorf("setCurrentPlayer: unknown player %q", player)
	}
	s.game.CurrentPlayer = player
	if player == s.player {
		s.startTurn(s.ctx)
		return nil, nil
	}
	s.sched.endingTurn, s.sched.executingGoto = false, false
	s.setActiveUnit("")
	s.refresh()
	return nil, nil
}

func (s *Session) handleNewTurn(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	turn, err := strconv.Atoi(msg.Attr("turn"))
	if err != nil {
		return nil, fmt.Errorf("newTurn: bad turn %q: %w", msg.Attr("turn"), err)
	}
	s.game.Turn = turn
	s.ignored.Prune(turn)
	s.setActiveUnit("")
	s.sched.reset()
	for _, u := range s.game.UnitsOf(s.player) {
		if u.State == game.StateSkipped {
			u.State = game.StateActive
		}
	}
	s.events.Log(log.NewTurnEvent(turn))
	s.refresh()
	return nil, nil
}

// handleSetDead lets a defeated player keep watching or leave.
func (s *Session) handleSetDead(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	id := msg.Attr("player")
	p := s.game.Player(id)
	if p == nil {
		return nil, fmt.Errorf("setDead: unknown player %q", id)
	}
	p.Dead = true
	s.events.Log(log.NewEvent(s.turn(), log.EventPlayerDead, p.Name, ""))
	if id != s.player {
		s.gui.ShowInformationMessage(p.Name + " has been defeated.")
		return nil, nil
	}
	if !s.gui.ShowConfirmDialog("You have been defeated. Keep watching the game?", "Watch", "Quit") {
		s.disconnect("defeated")
	}
	return nil, nil
}

func (s *Session) handleGameEnded(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	winner := msg.Attr("winner")
	s.events.Log(log.NewEvent(s.turn(), log.EventGameEnded, s.playerName(winner), ""))
	text := fmt.Sprintf("The game is over. %s has won. Keep playing?", s.playerName(winner))
	if winner == s.player {
		text = "You have won the game. Keep playing?"
	}
	if !s.gui.ShowConfirmDialog(text, "Keep playing", "Quit") {
		s.disconnect("game ended")
	}
	return nil, nil
}

// disconnect leaves the game from inside a handler.
func (s *Session) disconnect(reason string) {
	s.logger.Info("leaving game", zap.String("reason", reason))
	s.sched.reset()
	s.cancel()
	_ = s.conn.Close()
}

func (s *Session) handleChat(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	sender, text := s.playerName(msg.Attr("sender")), msg.Attr("message")
	private := msg.Bool("private")
	s.gui.DisplayChat(sender, text, private)
	s.events.Log(log.NewChatEvent(s.turn(), sender, text, private))
	return nil, nil
}

func (s *Session) handleDisconnect(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	s.gui.ShowInformationMessage("The server closed the game.")
	s.disconnect(msg.Attr("reason"))
	return nil, nil
}

func (s *Session) handleError(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	text := msg.Attr("message")
	s.gui.ShowErrorMessage(text)
	s.events.Log(log.NewServerErrorEvent(s.turn(), text))
	return nil, nil
}

func (s *Session) handleChooseFoundingFather(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	fathers := msg.ChildrenOf(message.TagFoundingFather)
	if len(fathers) == 0 {
		return nil, fmt.Errorf("chooseFoundingFather: no candidates")
	}
	choices := make([]gui.Choice, 0, len(fathers))
	ids := make([]string, 0, len(fathers))
	for _, f := range fathers {
		id := f.Attr("id")
		label := f.Attr("name")
		if label == "" {
			label = id
		}
		if t := f.Attr("type"); t != "" {
			label += " (" + t + ")"
		}
		ids = append(ids, id)
		choices = append(choices, gui.Choice{Key: id, Label: label})
	}
	if me := s.me(); me != nil {
		me.FatherChoices = ids
	}
	key, ok := s.gui.ShowChoiceDialog("Which founding father should join the Continental Congress?", choices)
	if !ok {
		key = ids[0]
	}
	if me := s.me(); me != nil {
		me.CurrentFather = key
	}
	s.events.Log(log.NewEvent(s.turn(), log.EventFoundingFather, s.playerName(s.player), key))
	return message.New(message.TagChooseFoundingFather, "foundingFather", key), nil
}

// handleDeliverGift is a native settlement giving goods to a colony.
func (s *Session) handleDeliverGift(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	s.merge(msg)
	colony := s.game.Settlement(msg.Attr("colony"))
	goods := msg.Child(message.TagGoods)
	if colony == nil || goods == nil {
		return nil, fmt.Errorf("deliverGift: missing colony or goods")
	}
	goodsType, amount := goods.Attr("type"), goods.Int("amount", 0)
	if colony.Goods == nil {
		colony.Goods = make(map[string]int)
	}
	colony.Goods[goodsType] += amount
	giver := msg.Attr("settlement")
	if g := s.game.Settlement(giver); g != nil {
		giver = g.Name
	}
	text := fmt.Sprintf("%s delivers a gift of %d %s to %s.", giver, amount, goodsType, colony.Name)
	s.events.Log(log.NewEvent(s.turn(), log.EventGift, s.playerName(s.player), text))
	s.gui.ShowInformationMessage(text)
	s.refresh()
	return nil, nil
}

// handleIndianDemand asks whether to hand over goods or gold to natives.
func (s *Session) handleIndianDemand(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	colony := s.game.Settlement(msg.Attr("colony"))
	if colony == nil {
		return nil, fmt.Errorf("indianDemand: unknown colony %q", msg.Attr("colony"))
	}
	var text string
	goods := msg.Child(message.TagGoods)
	gold := msg.Int("gold", 0)
	if goods != nil {
		text = fmt.Sprintf("The natives demand %d %s from %s. Hand them over?", goods.Int("amount", 0), goods.Attr("type"), colony.Name)
	} else {
		text = fmt.Sprintf("The natives demand %d gold from %s. Pay?", gold, colony.Name)
	}
	accepted := s.gui.ShowConfirmDialog(text, "Accept", "Refuse")
	if accepted {
		if goods != nil {
			if t := goods.Attr("type"); colony.Goods[t] > 0 {
				colony.Goods[t] = max(0, colony.Goods[t]-goods.Int("amount", 0))
			}
		} else if me := s.me(); me != nil {
			me.Gold = max(0, me.Gold-gold)
		}
	}
	s.events.Log(log.NewEvent(s.turn(), log.EventDemand, s.playerName(s.player),
		fmt.Sprintf("%s: accepted=%v", colony.Name, accepted)))
	s.refresh()
	return message.NewBuilder(message.TagIndianDemand).
		Attr("colony", colony.ID).
		AttrIf("unit", msg.Attr("unit")).
		Bool("accepted", accepted).
		Build(), nil
}

// handleReconnect logs in again and rebuilds the replica from the server.
func (s *Session) handleReconnect(_ *net.Connection, _ *message.Message) (*message.Message, error) {
	reply, err := s.login(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	g := game.NewGame("")
	if gm := reply.Child(message.TagGame); gm != nil {
		if _, err := s.codec.Decode(gm, g); err != nil {
			return nil, fmt.Errorf("reconnect: %w", err)
		}
	}
	s.game = g
	s.sched.reset()
	s.messages = nil
	s.gui.SetActiveUnit("")
	s.events.Log(log.NewEvent(s.turn(), log.EventReconnect, s.playerName(s.player), ""))
	if s.myTurn() {
		s.startTurn(s.ctx)
	} else {
		s.refresh()
	}
	return nil, nil
}

func (s *Session) handleSetAI(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	p := s.game.Player(msg.Attr("player"))
	if p == nil {
		return nil, fmt.Errorf("setAI: unknown player %q", msg.Attr("player"))
	}
	p.AI = msg.Bool("ai")
	if p.ID == s.player && p.AI {
		s.gui.ShowInformationMessage("The computer has taken over your nation.")
	}
	return nil, nil
}

// handleMonarchAction shows a decree from the crown. Tax raises and
// mercenary offers need an answer; everything else is a notice.
func (s *Session) handleMonarchAction(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	action := msg.Attr("action")
	me := s.me()
	amount := msg.Int("amount", 0)
	var text string
	switch action {
	case "RAISE_TAX":
		text = fmt.Sprintf("The crown raises your tax to %d%%.", amount)
		if g := msg.Attr("goods"); g != "" {
			text += fmt.Sprintf(" Refusing means a boycott of %s.", g)
		}
		accepted := s.gui.ShowConfirmDialog(text+" Accept?", "Accept", "Refuse")
		if accepted && me != nil {
			me.Tax = amount
		}
		s.events.Log(log.NewMonarchEvent(s.turn(), action, fmt.Sprintf("%d%% accepted=%v", amount, accepted)))
		return monarchReply(action, accepted), nil
	case "OFFER_MERCENARIES":
		text = fmt.Sprintf("The crown offers mercenaries for %d gold. Hire them?", amount)
		accepted := false
		if me != nil && me.Gold >= amount {
			accepted = s.gui.ShowConfirmDialog(text, "Hire", "Decline")
		} else {
			s.gui.ShowInformationMessage(fmt.Sprintf("The crown offers mercenaries for %d gold, which you can not afford.", amount))
		}
		if accepted {
			me.Gold -= amount
		}
		s.events.Log(log.NewMonarchEvent(s.turn(), action, fmt.Sprintf("%d gold accepted=%v", amount, accepted)))
		return monarchReply(action, accepted), nil
	case "LOWER_TAX":
		if me != nil {
			me.Tax = amount
		}
		text = fmt.Sprintf("The crown lowers your tax to %d%%.", amount)
	case "WAIVE_TAX":
		text = "The crown waives the tax raise."
	case "ADD_TO_REF":
		text = "The crown adds forces to the Royal Expeditionary Force."
	case "DECLARE_WAR":
		text = fmt.Sprintf("The crown has declared war on %s.", s.playerName(msg.Attr("enemy")))
	case "SUPPORT_LAND", "SUPPORT_SEA":
		text = "The crown sends forces to support you."
	default:
		s.logger.Warn("unknown monarch action", zap.String("action", action))
		return nil, nil
	}
	s.merge(msg)
	s.events.Log(log.NewMonarchEvent(s.turn(), action, text))
	s.gui.ShowInformationMessage(text)
	s.refresh()
	return nil, nil
}

func monarchReply(action string, accepted bool) *message.Message {
	return message.NewBuilder(message.TagMonarchAction).
		Attr("action", action).
		Bool("accepted", accepted).
		Build()
}

func (s *Session) handleRemoveGoods(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	var goods map[string]int
	where := msg.Attr("location")
	if c := s.game.Settlement(where); c != nil {
		goods = c.Goods
	} else if u := s.game.Unit(where); u != nil {
		goods = u.Goods
	} else {
		return nil, fmt.Errorf("removeGoods: unknown location %q", where)
	}
	for _, g := range msg.ChildrenOf(message.TagGoods) {
		t := g.Attr("type")
		if !g.Has("amount") {
			delete(goods, t)
			continue
		}
		if left := goods[t] - g.Int("amount", 0); left > 0 {
			goods[t] = left
		} else {
			delete(goods, t)
		}
	}
	s.refresh()
	return nil, nil
}

// Lost city rumour outcomes.
const (
	RumourBurialGround       = "BURIAL_GROUND"
	RumourExpeditionVanishes = "EXPEDITION_VANISHES"
	RumourNothing            = "NOTHING"
	RumourLearn              = "LEARN"
	RumourTribalChief        = "TRIBAL_CHIEF"
	RumourColonist           = "COLONIST"
	RumourTreasure           = "TREASURE"
	RumourFountainOfYouth    = "FOUNTAIN_OF_YOUTH"
)

const (
	burialTension  = 100
	seasonedScout  = "seasonedScout"
	youthEmigrants = 8
)

// handleLostCityRumour applies an exploration outcome. An unknown outcome
// means client and server disagree on the rules.
func (s *Session) handleLostCityRumour(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	kind := msg.Attr("type")
	u := s.game.Unit(msg.Attr("unit"))
	me := s.me()
	var text string
	switch kind {
	case RumourBurialGround:
		natives := s.game.Player(msg.Attr("player"))
		if natives != nil {
			if natives.Tension == nil {
				natives.Tension = make(map[string]int)
			}
			natives.Tension[s.player] += msg.Int("tension", burialTension)
		}
		text = "You have desecrated a native burial ground. The natives are angry."
	case RumourExpeditionVanishes:
		if u != nil {
			s.game.DisposeUnit(u.ID)
			s.events.Log(log.NewUnitLostEvent(s.turn(), s.playerName(s.player), u.ID, "vanished"))
		}
		text = "Your expedition has vanished without a trace."
	case RumourNothing:
		text = "The rumour proves to be nothing but a legend."
	case RumourLearn:
		if u != nil {
			u.Type = cmp.Or(msg.Attr("unitType"), seasonedScout)
		}
		text = "Your unit has learned from the experience."
	case RumourTribalChief:
		gold := msg.Int("gold", 0)
		if me != nil {
			me.Gold += gold
		}
		text = fmt.Sprintf("A tribal chief gives you %d gold.", gold)
	case RumourColonist:
		text = "You find survivors of a lost colony who join you."
	case RumourTreasure:
		text = fmt.Sprintf("You discover treasure worth %d gold.", msg.Int("gold", 0))
	case RumourFountainOfYouth:
		text = fmt.Sprintf("You find the Fountain of Youth. %d emigrants wait on the docks.", msg.Int("emigrants", youthEmigrants))
	default:
		return nil, fmt.Errorf("lostCityRumour %q: %w", kind, net.ErrFatalProtocol)
	}
	s.merge(msg)
	tile := s.game.Tile(msg.Attr("tile"))
	if tile == nil && u != nil {
		tile = s.game.UnitTile(u)
	}
	if tile != nil {
		tile.LostCityRumour = false
	}
	unitID := ""
	if u != nil {
		unitID = u.ID
	}
	s.events.Log(log.NewRumourEvent(s.turn(), s.playerName(s.player), unitID, kind, text))
	s.gui.ShowInformationMessage(text)
	s.refresh()
	return nil, nil
}

func (s *Session) handleSetStance(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	first, second := s.game.Player(msg.Attr("first")), s.game.Player(msg.Attr("second"))
	stance := game.Stance(msg.Attr("stance"))
	if first == nil || second == nil || stance == "" {
		return nil, fmt.Errorf("setStance: bad players or stance in %s", msg)
	}
	for _, pair := range [][2]*game.Player{{first, second}, {second, first}} {
		if pair[0].Stances == nil {
			pair[0].Stances = make(map[string]game.Stance)
		}
		pair[0].Stances[pair[1].ID] = stance
	}
	s.events.Log(log.NewStanceEvent(s.turn(), first.Name, second.Name, string(stance)))
	if first.ID == s.player || second.ID == s.player {
		other := first
		if other.ID == s.player {
			other = second
		}
		s.gui.ShowInformationMessage(fmt.Sprintf("You are now at %s with %s.", stanceLabel(stance), other.Name))
	}
	s.refresh()
	return nil, nil
}

func stanceLabel(st game.Stance) string {
	switch st {
	case game.StanceWar:
		return "war"
	case game.StanceCeaseFire:
		return "cease fire"
	case game.StanceAlliance:
		return "alliance"
	}
	return "peace"
}

func (s *Session) handleGiveIndependence(_ *net.Connection, msg *message.Message) (*message.Message, error) {
	p := s.game.Player(msg.Attr("player"))
	if p == nil {
		return nil, fmt.Errorf("giveIndependence: unknown player %q", msg.Attr("player"))
	}
	if ref := msg.Attr("ref"); ref != "" {
		if p.Stances == nil {
			p.Stances = make(map[string]game.Stance)
		}
		p.Stances[ref] = game.StancePeace
	}
	s.merge(msg)
	s.events.Log(log.NewEvent(s.turn(), log.EventIndependence, p.Name, ""))
	if p.ID == s.player {
		s.gui.ShowInformationMessage("The crown has recognised your independence.")
	} else {
		s.gui.ShowInformationMessage(p.Name + " has won independence.")
	}
	s.refresh()
	return nil, nil
}
