package client

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/gui"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

// Halt is why a unit stopped moving.
type Halt int

const (
	// HaltAdvance means the unit moved and may continue.
	HaltAdvance Halt = iota
	// HaltBlockedAwaitingUser means the next step needs the player.
	HaltBlockedAwaitingUser
	// HaltBlockedNoMoves means the unit is done for this turn.
	HaltBlockedNoMoves
	// HaltArrived means the unit reached its destination.
	HaltArrived
	// HaltDisposed means the unit no longer exists.
	HaltDisposed
)

func (h Halt) String() string {
	switch h {
	case HaltAdvance:
		return "advance"
	case HaltBlockedAwaitingUser:
		return "blocked-awaiting-user"
	case HaltBlockedNoMoves:
		return "blocked-no-moves"
	case HaltArrived:
		return "arrived"
	case HaltDisposed:
		return "disposed"
	}
	return "unknown"
}

// errCancelled is returned when the player declines a dialog. Nothing was
// sent.
var errCancelled = errors.New("cancelled")

// moveToDestination walks u along the planned route until it arrives, runs
// out of moves, or reaches a step that needs the player.
func (s *Session) moveToDestination(ctx context.Context, u *game.Unit) Halt {
	switch {
	case u.Disposed:
		return HaltDisposed
	case s.game.AtDestination(u):
		return HaltArrived
	case u.Location == game.LocationHighSeas:
		return HaltBlockedNoMoves
	case u.Location == game.LocationEurope:
		return s.sailFromEurope(ctx, u)
	case u.MovesLeft <= 0:
		return HaltBlockedNoMoves
	}

	from := s.game.UnitTile(u)
	var to *game.Tile
	if u.Destination == game.LocationEurope {
		if !u.Naval {
			s.gui.ShowInformationMessage(s.game.Describe(u.ID) + " needs a ship to reach Europe.")
			return HaltBlockedAwaitingUser
		}
		if from != nil && from.IsHighSeas() {
			return s.sailToEurope(ctx, u)
		}
	} else if to = s.game.DestinationTile(u.Destination); to == nil {
		s.gui.ShowInformationMessage(fmt.Sprintf("%s has an unknown destination %s.", s.game.Describe(u.ID), u.Destination))
		return HaltBlockedAwaitingUser
	}

	path := s.pathFinder().FindPath(u, from, to)
	if path == nil {
		s.gui.ShowInformationMessage(fmt.Sprintf("%s can not find a path to %s.", s.game.Describe(u.ID), s.game.Describe(u.Destination)))
		return HaltBlockedAwaitingUser
	}
	return s.followPath(ctx, u, path)
}

func (s *Session) followPath(ctx context.Context, u *game.Unit, path []game.PathNode) Halt {
	for _, node := range path {
		mt, target := s.game.ClassifyMove(u, node.Direction)
		if target == nil || target.ID != node.Tile {
			return HaltBlockedAwaitingUser
		}
		halt, _ := s.step(ctx, u, mt, node.Direction, true)
		if u.Disposed {
			return HaltDisposed
		}
		if s.game.AtDestination(u) {
			return HaltArrived
		}
		if halt != HaltAdvance {
			return halt
		}
	}
	if u.Destination == game.LocationEurope {
		if t := s.game.UnitTile(u); t != nil && t.IsHighSeas() {
			return s.sailToEurope(ctx, u)
		}
	}
	if s.game.AtDestination(u) {
		return HaltArrived
	}
	return HaltBlockedAwaitingUser
}

// step executes one classified move. While following orders only moves
// that need no dialog are taken.
func (s *Session) step(ctx context.Context, u *game.Unit, mt game.MoveType, dir game.Direction, ordered bool) (Halt, error) {
	if ordered && !mt.Progresses() {
		if mt == game.MoveNoMoves {
			return HaltBlockedNoMoves, nil
		}
		return HaltBlockedAwaitingUser, nil
	}

	var err error
	switch mt {
	case game.MoveNoMoves:
		s.gui.ShowInformationMessage(s.game.Describe(u.ID) + " has no moves left.")
		return HaltBlockedNoMoves, fmt.Errorf("move %s: no moves left: %w", u.ID, ErrInvalidState)
	case game.MoveIllegal:
		return HaltBlockedAwaitingUser, s.invalid("move", "You can not move there.")
	case game.MoveSimple:
		err = s.doMove(ctx, u, dir, message.TagMove)
	case game.MoveDisembark:
		err = s.doMove(ctx, u, dir, message.TagDisembark)
	case game.MoveHighSeas:
		err = s.moveHighSeas(ctx, u, dir, ordered)
	case game.MoveEmbark:
		err = s.embarkAt(ctx, u, dir, ordered)
	case game.MoveExploreRumour:
		err = s.exploreRumour(ctx, u, dir)
	case game.MoveAttack:
		err = s.confirmAttack(ctx, u, dir)
	case game.MoveScoutSettlement:
		err = s.scoutSettlement(ctx, u, dir)
	case game.MoveMissionarySettlement:
		err = s.missionaryAtSettlement(ctx, u, dir)
	case game.MoveColonistSettlement:
		err = s.learnSkillAt(ctx, u, dir)
	case game.MoveForeignColony:
		err = s.foreignColony(ctx, u, dir)
	case game.MoveTrade:
		err = s.tradeAt(ctx, u, dir)
	}
	if err != nil {
		return HaltBlockedAwaitingUser, err
	}
	switch {
	case u.Disposed:
		return HaltDisposed, nil
	case u.MovesLeft <= 0:
		return HaltBlockedNoMoves, nil
	case mt.Progresses():
		return HaltAdvance, nil
	}
	return HaltBlockedAwaitingUser, nil
}

// target resolves the tile and settlement one step from u.
func (s *Session) target(u *game.Unit, dir game.Direction) (*game.Tile, *game.Settlement) {
	from := s.game.UnitTile(u)
	if from == nil {
		return nil, nil
	}
	t := s.game.Neighbour(from, dir)
	if t == nil {
		return nil, nil
	}
	return t, s.game.SettlementAt(t.ID)
}

// doMove moves u one tile, optimistically, and merges the reply. tag is
// move, or disembark when u leaves its carrier.
func (s *Session) doMove(ctx context.Context, u *game.Unit, dir game.Direction, tag message.Tag) error {
	from := s.game.UnitTile(u)
	to, settlement := s.target(u, dir)
	if from == nil || to == nil {
		return s.invalid(string(tag), "You can not move there.")
	}

	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.Location = to.ID
	if settlement != nil && settlement.Owner == u.Owner {
		tu.Location = settlement.ID
	}
	tu.MovesLeft = max(0, tu.MovesLeft-1)
	if tu.State != game.StateActive {
		tu.State = game.StateActive
	}

	reply, err := s.request(ctx, message.New(tag, "unit", u.ID, "direction", dir.String()))
	if err != nil {
		tx.Rollback()
		s.events.Log(log.NewMoveRejectedEvent(s.turn(), s.playerName(s.player), u.ID, err.Error()))
		return err
	}
	tx.Commit()
	s.events.Log(log.NewMoveEvent(s.turn(), s.playerName(s.player), u.ID, s.game.Describe(from.ID), s.game.Describe(to.ID)))
	if err := s.apply(reply); err != nil {
		return err
	}
	if slowed := reply.Int("movesSlowed", 0); slowed > 0 {
		s.slowed(u, slowed, reply.Attr("slowedBy"))
	}
	return nil
}

func (s *Session) slowed(u *game.Unit, by int, slowerID string) {
	u.MovesLeft = max(0, u.MovesLeft-by)
	nation := "enemy"
	if slower := s.game.Unit(slowerID); slower != nil {
		if p := s.game.Player(slower.Owner); p != nil && p.Nation != "" {
			nation = p.Nation
		}
	}
	s.gui.ShowInformationMessage(fmt.Sprintf("%s has been slowed by %s units.", s.game.Describe(u.ID), nation))
}

// moveHighSeas offers to sail to Europe before entering the high seas.
func (s *Session) moveHighSeas(ctx context.Context, u *game.Unit, dir game.Direction, ordered bool) error {
	if !ordered && u.Destination != game.LocationEurope && u.TradeRoute == "" {
		if s.gui.ShowConfirmDialog("Sail to Europe?", "Yes", "No") {
			tx := s.game.Begin()
			tx.Unit(u.ID).Destination = game.LocationEurope
			if err := s.sendAndWait(ctx, message.New(message.TagSetDestination, "unit", u.ID, "destination", game.LocationEurope)); err != nil {
				tx.Rollback()
				return err
			}
			tx.Commit()
		}
	}
	if err := s.doMove(ctx, u, dir, message.TagMove); err != nil {
		return err
	}
	if u.Destination == game.LocationEurope && u.MovesLeft > 0 && !ordered {
		s.sailToEurope(ctx, u)
	}
	return nil
}

// sailToEurope leaves the map from a high seas tile.
func (s *Session) sailToEurope(ctx context.Context, u *game.Unit) Halt {
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.Location = game.LocationHighSeas
	tu.MovesLeft = 0
	reply, err := s.request(ctx, message.New(message.TagMove, "unit", u.ID, "to", game.LocationEurope))
	if err != nil {
		tx.Rollback()
		return HaltBlockedAwaitingUser
	}
	tx.Commit()
	if err := s.apply(reply); err != nil {
		return HaltDisposed
	}
	if s.game.AtDestination(u) {
		return HaltArrived
	}
	return HaltBlockedNoMoves
}

// sailFromEurope sends a ship in Europe back to the map.
func (s *Session) sailFromEurope(ctx context.Context, u *game.Unit) Halt {
	if !u.Naval {
		return HaltBlockedNoMoves
	}
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.Location = game.LocationHighSeas
	tu.MovesLeft = 0
	reply, err := s.request(ctx, message.New(message.TagMove, "unit", u.ID, "to", u.Destination))
	if err != nil {
		tx.Rollback()
		return HaltBlockedAwaitingUser
	}
	tx.Commit()
	if err := s.apply(reply); err != nil {
		return HaltDisposed
	}
	return HaltBlockedNoMoves
}

// embarkAt boards a ship on the neighbouring water tile.
func (s *Session) embarkAt(ctx context.Context, u *game.Unit, dir game.Direction, ordered bool) error {
	to, _ := s.target(u, dir)
	if to == nil {
		return s.invalid("embark", "There is no ship there.")
	}
	var carriers []*game.Unit
	for _, c := range s.game.UnitsAt(to.ID) {
		if c.Owner == u.Owner && c.Naval && s.game.SpaceLeft(c) > 0 {
			carriers = append(carriers, c)
		}
	}
	if len(carriers) == 0 {
		return s.invalid("embark", "There is no ship with room there.")
	}
	carrier := carriers[0]
	if len(carriers) > 1 && !ordered {
		choices := make([]gui.Choice, 0, len(carriers))
		for _, c := range carriers {
			choices = append(choices, gui.Choice{Key: c.ID, Label: s.game.Describe(c.ID)})
		}
		key, ok := s.gui.ShowChoiceDialog("Board which ship?", choices)
		if !ok {
			return errCancelled
		}
		if carrier = s.game.Unit(key); carrier == nil {
			return errCancelled
		}
	}
	return s.embark(ctx, u, carrier, dir.String())
}

func (s *Session) embark(ctx context.Context, u, carrier *game.Unit, direction string) error {
	tx := s.game.Begin()
	tu := tx.Unit(u.ID)
	tu.Location = carrier.ID
	tu.State = game.StateSentry
	tu.MovesLeft = max(0, tu.MovesLeft-1)
	msg := message.NewBuilder(message.TagEmbark).
		Attr("unit", u.ID).
		Attr("carrier", carrier.ID).
		AttrIf("direction", direction).
		Build()
	reply, err := s.request(ctx, msg)
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return s.apply(reply)
}

func (s *Session) exploreRumour(ctx context.Context, u *game.Unit, dir game.Direction) error {
	to, _ := s.target(u, dir)
	if !s.gui.ShowConfirmDialog("There is a lost city rumour here. Explore it?", "Explore", "Leave it") {
		return errCancelled
	}
	if err := s.doMove(ctx, u, dir, message.TagMove); err != nil {
		return err
	}
	if to != nil {
		to.LostCityRumour = false
	}
	return nil
}

// defender returns the owner of whatever is attacked one step from u.
func (s *Session) defender(u *game.Unit, dir game.Direction) (string, []*game.Unit) {
	to, settlement := s.target(u, dir)
	if to == nil {
		return "", nil
	}
	var units []*game.Unit
	owner := ""
	for _, d := range s.game.UnitsAt(to.ID) {
		if d.Owner != u.Owner {
			units = append(units, d)
			owner = d.Owner
		}
	}
	if settlement != nil {
		owner = settlement.Owner
		for _, d := range s.game.UnitsAt(settlement.ID) {
			units = append(units, d)
		}
	}
	return owner, units
}

func (s *Session) confirmAttack(ctx context.Context, u *game.Unit, dir game.Direction) error {
	owner, _ := s.defender(u, dir)
	if me := s.me(); me != nil && owner != "" && me.Stances[owner] != game.StanceWar {
		text := fmt.Sprintf("You are not at war with %s. Attack anyway?", s.playerName(owner))
		if !s.gui.ShowConfirmDialog(text, "Attack", "Cancel") {
			return errCancelled
		}
	}
	return s.attack(ctx, u, dir)
}

// attack resolves combat one step from u. Defenders that end up out of
// sight are forgotten once the result is merged.
func (s *Session) attack(ctx context.Context, u *game.Unit, dir game.Direction) error {
	owner, defenders := s.defender(u, dir)
	tx := s.game.Begin()
	tx.Unit(u.ID).MovesLeft = 0
	reply, err := s.request(ctx, message.New(message.TagAttack, "unit", u.ID, "direction", dir.String()))
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	if err := s.apply(reply); err != nil {
		return err
	}
	s.forgetInvisible(defenders)

	result := reply.Attr("result")
	defender := s.playerName(owner)
	if len(defenders) > 0 {
		defender = defenders[0].ID
	}
	s.events.Log(log.NewAttackEvent(s.turn(), s.playerName(s.player), u.ID, defender, result))
	if result != "" {
		s.gui.ShowInformationMessage(fmt.Sprintf("Combat result: %s.", result))
	}
	return nil
}

func (s *Session) forgetInvisible(units []*game.Unit) {
	for _, d := range units {
		if d.Disposed || d.Owner == s.player {
			continue
		}
		if s.game.Carrier(d) == nil && !s.game.UnitVisibleTo(s.player, d) {
			s.game.DisposeUnit(d.ID)
			s.events.Log(log.NewUnitForgottenEvent(s.turn(), d.ID))
		}
	}
}

func (s *Session) scoutSettlement(ctx context.Context, u *game.Unit, dir game.Direction) error {
	_, settlement := s.target(u, dir)
	if settlement == nil {
		return s.invalid("scout", "There is no settlement there.")
	}
	key, ok := s.gui.ShowChoiceDialog(fmt.Sprintf("What should your scout do at %s?", settlement.Name), []gui.Choice{
		{Key: "speak", Label: "Speak with the chief"},
		{Key: "tribute", Label: "Demand tribute"},
		{Key: "attack", Label: "Attack"},
	})
	if !ok {
		return errCancelled
	}
	if key == "attack" {
		return s.confirmAttack(ctx, u, dir)
	}
	return s.scout(ctx, u, settlement, dir, key)
}

func (s *Session) scout(ctx context.Context, u *game.Unit, settlement *game.Settlement, dir game.Direction, action string) error {
	tx := s.game.Begin()
	tx.Unit(u.ID).MovesLeft = 0
	msg := message.New(message.TagScoutIndianSettlement,
		"unit", u.ID,
		"settlement", settlement.ID,
		"direction", dir.String(),
		"action", action)
	reply, err := s.request(ctx, msg)
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	if err := s.apply(reply); err != nil {
		return err
	}

	gold := reply.Int("gold", 0)
	var text string
	switch reply.Attr("result") {
	case "die":
		text = fmt.Sprintf("Your scout was killed at %s.", settlement.Name)
		if !u.Disposed {
			s.game.DisposeUnit(u.ID)
		}
		s.events.Log(log.NewUnitLostEvent(s.turn(), s.playerName(s.player), u.ID, "killed while scouting"))
	case "expert":
		text = "The chief is impressed and trains your scout as a seasoned scout."
	case "tales":
		text = "The chief tells tales of nearby lands."
	case "beads":
		text = fmt.Sprintf("The chief gives you %d gold.", gold)
	case "accepted":
		text = fmt.Sprintf("%s pays a tribute of %d gold.", settlement.Name, gold)
	case "rejected":
		text = fmt.Sprintf("%s refuses to pay tribute.", settlement.Name)
	default:
		text = fmt.Sprintf("Nothing of interest happens at %s.", settlement.Name)
	}
	s.gui.ShowInformationMessage(text)
	return nil
}

func (s *Session) missionaryAtSettlement(ctx context.Context, u *game.Unit, dir game.Direction) error {
	_, settlement := s.target(u, dir)
	if settlement == nil {
		return s.invalid("missionary", "There is no settlement there.")
	}
	choices := []gui.Choice{{Key: "establish", Label: "Establish a mission"}}
	if settlement.Mission != "" && settlement.Mission != s.player {
		choices = []gui.Choice{{Key: "denounce", Label: "Denounce the heresy"}}
	}
	key, ok := s.gui.ShowChoiceDialog(fmt.Sprintf("What should your missionary do at %s?", settlement.Name), choices)
	if !ok {
		return errCancelled
	}
	return s.missionary(ctx, u, settlement, dir, key)
}

func (s *Session) missionary(ctx context.Context, u *game.Unit, settlement *game.Settlement, dir game.Direction, action string) error {
	msg := message.New(message.TagMissionaryAtSettlement,
		"unit", u.ID,
		"settlement", settlement.ID,
		"direction", dir.String(),
		"action", action)
	reply, err := s.request(ctx, msg)
	if err != nil {
		return err
	}
	if err := s.apply(reply); err != nil {
		return err
	}
	if reply.Bool("success") {
		settlement.Mission = s.player
		if !u.Disposed {
			s.game.DisposeUnit(u.ID)
		}
		s.gui.ShowInformationMessage(fmt.Sprintf("A mission has been established at %s.", settlement.Name))
		return nil
	}
	if !u.Disposed && reply.Bool("died") {
		s.game.DisposeUnit(u.ID)
	}
	s.gui.ShowInformationMessage(fmt.Sprintf("Your missionary was not welcome at %s.", settlement.Name))
	return nil
}

// learnSkillAt asks what a native settlement teaches and, once the player
// agrees, learns it.
func (s *Session) learnSkillAt(ctx context.Context, u *game.Unit, dir game.Direction) error {
	_, settlement := s.target(u, dir)
	if settlement == nil {
		return s.invalid("learnSkill", "There is no settlement there.")
	}
	reply, err := s.request(ctx, message.New(message.TagAskSkill,
		"unit", u.ID,
		"settlement", settlement.ID,
		"direction", dir.String()))
	if err != nil {
		return err
	}
	if err := s.apply(reply); err != nil {
		return err
	}
	skill := reply.Attr("skill")
	if skill == "" {
		s.gui.ShowInformationMessage(fmt.Sprintf("The natives of %s have nothing more to teach.", settlement.Name))
		return nil
	}
	if !s.gui.ShowConfirmDialog(fmt.Sprintf("The natives of %s offer to teach you to be a %s. Learn?", settlement.Name, skill), "Learn", "Decline") {
		return errCancelled
	}
	return s.learnSkill(ctx, u, settlement, dir, skill)
}

func (s *Session) learnSkill(ctx context.Context, u *game.Unit, settlement *game.Settlement, dir game.Direction, skill string) error {
	tx := s.game.Begin()
	tx.Unit(u.ID).MovesLeft = 0
	reply, err := s.request(ctx, message.New(message.TagLearnSkill,
		"unit", u.ID,
		"settlement", settlement.ID,
		"direction", dir.String()))
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	if err := s.apply(reply); err != nil {
		return err
	}
	switch reply.Attr("result") {
	case "learned":
		u.Type = skill
		s.gui.ShowInformationMessage(fmt.Sprintf("%s has learned to be a %s.", s.game.Describe(u.ID), skill))
	case "die":
		if !u.Disposed {
			s.game.DisposeUnit(u.ID)
		}
		s.events.Log(log.NewUnitLostEvent(s.turn(), s.playerName(s.player), u.ID, "killed while learning"))
		s.gui.ShowInformationMessage("Your colonist was killed by the natives.")
	case "expelled":
		s.gui.ShowInformationMessage(fmt.Sprintf("Your colonist was expelled from %s.", settlement.Name))
	default:
		s.gui.ShowInformationMessage(fmt.Sprintf("The natives of %s refuse to teach you.", settlement.Name))
	}
	return nil
}

func (s *Session) foreignColony(ctx context.Context, u *game.Unit, dir game.Direction) error {
	_, settlement := s.target(u, dir)
	if settlement == nil {
		return s.invalid("foreignColony", "There is no colony there.")
	}
	choices := []gui.Choice{{Key: "negotiate", Label: "Negotiate"}}
	if u.Role == game.RoleScout {
		choices = append(choices, gui.Choice{Key: "spy", Label: "Spy on the colony"})
	}
	key, ok := s.gui.ShowChoiceDialog(fmt.Sprintf("What should %s do at %s?", s.game.Describe(u.ID), settlement.Name), choices)
	if !ok {
		return errCancelled
	}
	if key == "spy" {
		return s.spy(ctx, u, settlement, dir)
	}
	return s.proposePeace(ctx, u, settlement)
}

func (s *Session) spy(ctx context.Context, u *game.Unit, settlement *game.Settlement, dir game.Direction) error {
	reply, err := s.request(ctx, message.New(message.TagSpySettlement,
		"unit", u.ID,
		"settlement", settlement.ID,
		"direction", dir.String()))
	if err != nil {
		return err
	}
	if err := s.apply(reply); err != nil {
		return err
	}
	defenders := len(s.game.UnitsAt(settlement.ID))
	s.gui.ShowInformationMessage(fmt.Sprintf("%s: %d units inside, building %q.", settlement.Name, defenders, settlement.Building))
	return nil
}

// proposePeace is the diplomacy offered by a unit entering a foreign
// colony.
func (s *Session) proposePeace(ctx context.Context, u *game.Unit, settlement *game.Settlement) error {
	return s.diplomaticTrade(ctx, u.ID, settlement.ID, settlement.Owner, game.StancePeace, 0)
}

func (s *Session) diplomaticTrade(ctx context.Context, unitID, settlementID, other string, stance game.Stance, gold int) error {
	msg := message.NewBuilder(message.TagDiplomaticTrade).
		Attr("unit", unitID).
		AttrIf("settlement", settlementID).
		Attr("other", other).
		Attr("stance", string(stance)).
		Int("gold", gold).
		Build()
	reply, err := s.request(ctx, msg)
	if err != nil {
		return err
	}
	if err := s.apply(reply); err != nil {
		return err
	}
	if reply.Attr("status") != "accepted" {
		s.gui.ShowInformationMessage(fmt.Sprintf("%s rejects the proposal.", s.playerName(other)))
		return nil
	}
	if me := s.me(); me != nil {
		if me.Stances == nil {
			me.Stances = make(map[string]game.Stance)
		}
		me.Stances[other] = stance
	}
	s.events.Log(log.NewStanceEvent(s.turn(), s.playerName(s.player), s.playerName(other), string(stance)))
	s.gui.ShowInformationMessage(fmt.Sprintf("%s accepts the proposal.", s.playerName(other)))
	return nil
}

func (s *Session) tradeAt(ctx context.Context, u *game.Unit, dir game.Direction) error {
	_, settlement := s.target(u, dir)
	if settlement == nil {
		return s.invalid("trade", "There is no settlement there.")
	}
	for {
		key, ok := s.gui.ShowChoiceDialog(fmt.Sprintf("Trade with %s:", settlement.Name), []gui.Choice{
			{Key: "buy", Label: "Buy"},
			{Key: "sell", Label: "Sell"},
			{Key: "gift", Label: "Deliver a gift"},
		})
		if !ok {
			return nil
		}
		var err error
		switch key {
		case "buy":
			err = s.buyFromSettlement(ctx, u, settlement)
		case "sell", "gift":
			goodsType, picked := s.pickCargo(u, key)
			if !picked {
				continue
			}
			if key == "sell" {
				err = s.sellToSettlement(ctx, u, settlement, goodsType, u.Goods[goodsType])
			} else {
				err = s.deliverGift(ctx, u, settlement, goodsType, u.Goods[goodsType])
			}
		}
		if err != nil && !errors.Is(err, errCancelled) {
			s.logger.Debug("trade step failed", zap.String("unit", u.ID), zap.Error(err))
		}
	}
}

func (s *Session) pickCargo(u *game.Unit, verb string) (string, bool) {
	var choices []gui.Choice
	for _, t := range sortedGoods(u.Goods) {
		choices = append(choices, gui.Choice{Key: t, Label: fmt.Sprintf("%d %s", u.Goods[t], t)})
	}
	if len(choices) == 0 {
		s.gui.ShowInformationMessage("There are no goods aboard.")
		return "", false
	}
	return s.gui.ShowChoiceDialog(fmt.Sprintf("Which goods to %s?", verb), choices)
}

// afterManualMove cashes in treasure that reached a coastal colony and
// hands over to the next unit once this one is done.
func (s *Session) afterManualMove(ctx context.Context, u *game.Unit, halt Halt) {
	if !u.Disposed && u.IsTreasureTrain() {
		if colony := s.game.Settlement(u.Location); colony != nil && colony.Owner == s.player && s.coastal(colony) {
			text := fmt.Sprintf("Cash in the treasure of %d gold now?", u.Treasure)
			if s.gui.ShowConfirmDialog(text, "Cash in", "Later") {
				if err := s.cashIn(ctx, u); err != nil {
					s.logger.Debug("cash in failed", zap.Error(err))
				}
			}
		}
	}
	if halt == HaltDisposed || halt == HaltBlockedNoMoves || u.Disposed || u.MovesLeft <= 0 {
		s.nextActiveUnit(ctx)
		return
	}
	s.refresh()
}

func (s *Session) coastal(colony *game.Settlement) bool {
	t := s.game.Tile(colony.Tile)
	if t == nil {
		return false
	}
	for _, d := range game.Directions {
		if n := s.game.Neighbour(t, d); n != nil && !n.IsLand() {
			return true
		}
	}
	return false
}
