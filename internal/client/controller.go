package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/peterkuimelis/colonia/internal/game"
	"github.com/peterkuimelis/colonia/internal/log"
	"github.com/peterkuimelis/colonia/internal/message"
)

// turnOp runs fn under the session lock once the turn gate passes.
// Declined dialogs are not errors.
func (s *Session) turnOp(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkTurn(op); err != nil {
		return err
	}
	defer s.refresh()
	if err := fn(); err != nil && !errors.Is(err, errCancelled) {
		return err
	}
	return nil
}

// unitOp is turnOp for an operation on one of the player's units.
func (s *Session) unitOp(op, unitID string, fn func(u *game.Unit) error) error {
	return s.turnOp(op, func() error {
		u, err := s.ownUnit(op, unitID)
		if err != nil {
			return err
		}
		return fn(u)
	})
}

// Move moves a unit one tile, running whatever dialog the step needs.
func (s *Session) Move(ctx context.Context, unitID string, dir game.Direction) error {
	return s.unitOp("move", unitID, func(u *game.Unit) error {
		mt, _ := s.game.ClassifyMove(u, dir)
		halt, err := s.step(ctx, u, mt, dir, false)
		s.afterManualMove(ctx, u, halt)
		return err
	})
}

// Attack attacks the neighbouring tile.
func (s *Session) Attack(ctx context.Context, unitID string, dir game.Direction) error {
	return s.unitOp("attack", unitID, func(u *game.Unit) error {
		if mt, _ := s.game.ClassifyMove(u, dir); mt != game.MoveAttack {
			return s.invalid("attack", "There is nothing to attack there.")
		}
		err := s.confirmAttack(ctx, u, dir)
		s.afterManualMove(ctx, u, HaltBlockedNoMoves)
		return err
	})
}

// Embark boards a ship on the neighbouring tile.
func (s *Session) Embark(ctx context.Context, unitID string, dir game.Direction) error {
	return s.unitOp("embark", unitID, func(u *game.Unit) error {
		if mt, _ := s.game.ClassifyMove(u, dir); mt != game.MoveEmbark {
			return s.invalid("embark", "There is no ship to board there.")
		}
		halt, err := s.step(ctx, u, game.MoveEmbark, dir, false)
		s.afterManualMove(ctx, u, halt)
		return err
	})
}

// Disembark lands a unit from its carrier onto the neighbouring tile.
func (s *Session) Disembark(ctx context.Context, unitID string, dir game.Direction) error {
	return s.unitOp("disembark", unitID, func(u *game.Unit) error {
		if s.game.Carrier(u) == nil {
			return s.invalid("disembark", "The unit is not aboard a ship.")
		}
		mt, _ := s.game.ClassifyMove(u, dir)
		if mt != game.MoveDisembark && mt != game.MoveExploreRumour {
			return s.invalid("disembark", "The unit can not land there.")
		}
		halt, err := s.step(ctx, u, mt, dir, false)
		s.afterManualMove(ctx, u, halt)
		return err
	})
}

// BuildColony founds a colony on the unit's tile.
func (s *Session) BuildColony(ctx context.Context, unitID, name string) error {
	return s.unitOp("buildColony", unitID, func(u *game.Unit) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return s.invalid("buildColony", "A colony needs a name.")
		}
		t := s.game.Tile(u.Location)
		if u.Naval || t == nil || !t.IsLand() {
			return s.invalid("buildColony", "A colony must be founded on land.")
		}
		if s.game.SettlementAt(t.ID) != nil {
			return s.invalid("buildColony", "There is already a settlement here.")
		}
		if t.Owner != "" && t.Owner != s.player {
			return s.invalid("buildColony", "This land is owned by "+s.playerName(t.Owner)+".")
		}
		reply, err := s.request(ctx, message.New(message.TagBuildColony, "unit", u.ID, "name", name))
		if err != nil {
			return err
		}
		if err := s.apply(reply); err != nil {
			return err
		}
		s.events.Log(log.NewEvent(s.turn(), log.EventColony, s.playerName(s.player), "founded "+name))
		s.nextActiveUnit(ctx)
		return nil
	})
}

// SetDestination gives a unit standing orders and starts following them.
// An empty destination clears the orders.
func (s *Session) SetDestination(ctx context.Context, unitID, dest string) error {
	return s.unitOp("setDestination", unitID, func(u *game.Unit) error {
		if dest != "" && dest != game.LocationEurope && s.game.DestinationTile(dest) == nil {
			return s.invalid("setDestination", "Unknown destination "+dest+".")
		}
		tx := s.game.Begin()
		tx.Unit(u.ID).Destination = dest
		msg := message.NewBuilder(message.TagSetDestination).
			Attr("unit", u.ID).
			AttrIf("destination", dest).
			Build()
		if err := s.sendAndWait(ctx, msg); err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		if dest == "" {
			return nil
		}
		halt := s.followOrders(ctx, u)
		if halt == HaltBlockedAwaitingUser && !u.Disposed {
			s.setActiveUnit(u.ID)
			return nil
		}
		s.afterManualMove(ctx, u, halt)
		return nil
	})
}

// portOf returns where u can load and unload: Europe or an own colony.
func (s *Session) portOf(u *game.Unit) string {
	if u.Location == game.LocationEurope {
		return u.Location
	}
	if c := s.game.Settlement(u.Location); c != nil && c.Owner == s.player {
		return c.ID
	}
	if t := s.game.UnitTile(u); t != nil {
		if c := s.game.SettlementAt(t.ID); c != nil && c.Owner == s.player {
			return c.ID
		}
	}
	return ""
}

// LoadCargo loads goods in port. In Europe this buys them.
func (s *Session) LoadCargo(ctx context.Context, unitID, goodsType string, amount int) error {
	return s.unitOp("loadCargo", unitID, func(u *game.Unit) error {
		port := s.portOf(u)
		if port == "" {
			return s.invalid("loadCargo", "The unit is not in port.")
		}
		return s.load(ctx, u, port, goodsType, amount)
	})
}

// UnloadCargo unloads goods in port. In Europe this sells them.
func (s *Session) UnloadCargo(ctx context.Context, unitID, goodsType string, amount int) error {
	return s.unitOp("unloadCargo", unitID, func(u *game.Unit) error {
		port := s.portOf(u)
		if port == "" {
			return s.invalid("unloadCargo", "The unit is not in port.")
		}
		return s.unload(ctx, u, port, goodsType, amount)
	})
}

// BuyGoods buys goods in Europe onto a ship.
func (s *Session) BuyGoods(ctx context.Context, unitID, goodsType string, amount int) error {
	return s.unitOp("buyGoods", unitID, func(u *game.Unit) error {
		if u.Location != game.LocationEurope {
			return s.invalid("buyGoods", "The unit is not in Europe.")
		}
		return s.load(ctx, u, game.LocationEurope, goodsType, amount)
	})
}

// SellGoods sells goods aboard a ship in Europe.
func (s *Session) SellGoods(ctx context.Context, unitID, goodsType string, amount int) error {
	return s.unitOp("sellGoods", unitID, func(u *game.Unit) error {
		if u.Location != game.LocationEurope {
			return s.invalid("sellGoods", "The unit is not in Europe.")
		}
		return s.unload(ctx, u, game.LocationEurope, goodsType, amount)
	})
}

func (s *Session) load(ctx context.Context, u *game.Unit, port, goodsType string, amount int) error {
	if amount <= 0 {
		return s.invalid("load", "Nothing to load.")
	}
	if s.goodsRoom(u, goodsType) < amount {
		return s.invalid("load", "There is no room aboard.")
	}
	tx := s.game.Begin()
	tag := message.TagLoadCargo
	if port == game.LocationEurope {
		tag = message.TagBuyGoods
	} else if colony := tx.Settlement(port); colony != nil {
		if colony.Goods[goodsType] < amount {
			tx.Rollback()
			return s.invalid("load", fmt.Sprintf("%s does not have %d %s.", colony.Name, amount, goodsType))
		}
		colony.Goods[goodsType] -= amount
	}
	tu := tx.Unit(u.ID)
	if tu.Goods == nil {
		tu.Goods = make(map[string]int)
	}
	tu.Goods[goodsType] += amount
	reply, err := s.request(ctx, message.NewBuilder(tag).
		Attr("unit", u.ID).
		Child(game.GoodsMessage(goodsType, amount)).
		Build())
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return s.apply(reply)
}

func (s *Session) unload(ctx context.Context, u *game.Unit, port, goodsType string, amount int) error {
	if amount <= 0 || u.Goods[goodsType] < amount {
		return s.invalid("unload", fmt.Sprintf("There are not %d %s aboard.", amount, goodsType))
	}
	tx := s.game.Begin()
	tag := message.TagUnloadCargo
	if port == game.LocationEurope {
		tag = message.TagSellGoods
	} else if colony := tx.Settlement(port); colony != nil {
		if colony.Goods == nil {
			colony.Goods = make(map[string]int)
		}
		colony.Goods[goodsType] += amount
	}
	tu := tx.Unit(u.ID)
	tu.Goods[goodsType] -= amount
	if tu.Goods[goodsType] <= 0 {
		delete(tu.Goods, goodsType)
	}
	reply, err := s.request(ctx, message.NewBuilder(tag).
		Attr("unit", u.ID).
		Child(game.GoodsMessage(goodsType, amount)).
		Build())
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	if port == game.LocationEurope {
		s.events.Log(log.NewEvent(s.turn(), log.EventEurope, s.playerName(s.player),
			fmt.Sprintf("sold %d %s", amount, goodsType)))
	}
	return s.apply(reply)
}

// EquipUnit changes the role of a unit in port.
func (s *Session) EquipUnit(ctx context.Context, unitID, role string) error {
	return s.unitOp("equipUnit", unitID, func(u *game.Unit) error {
		if s.portOf(u) == "" {
			return s.invalid("equipUnit", "Units can only be equipped in a colony or in Europe.")
		}
		tx := s.game.Begin()
		tx.Unit(u.ID).Role = role
		reply, err := s.request(ctx, message.New(message.TagEquipUnit, "unit", u.ID, "role", role))
		if err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		return s.apply(reply)
	})
}

// Work puts a unit to work inside the colony it stands in.
func (s *Session) Work(ctx context.Context, unitID, workLocation string) error {
	return s.unitOp("work", unitID, func(u *game.Unit) error {
		port := s.portOf(u)
		if port == "" || port == game.LocationEurope || u.Naval {
			return s.invalid("work", "The unit is not in one of your colonies.")
		}
		tx := s.game.Begin()
		tu := tx.Unit(u.ID)
		tu.Location = port
		tu.State = game.StateInColony
		reply, err := s.request(ctx, message.New(message.TagWork, "unit", u.ID, "workLocation", workLocation))
		if err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		if err := s.apply(reply); err != nil {
			return err
		}
		if s.sched.activeUnit == u.ID {
			s.nextActiveUnit(ctx)
		}
		return nil
	})
}

var knownStates = []game.UnitState{
	game.StateActive, game.StateSentry, game.StateFortify, game.StateFortified, game.StateSkipped,
}

// ChangeState sets the standing activity of a unit.
func (s *Session) ChangeState(ctx context.Context, unitID string, state game.UnitState) error {
	return s.unitOp("changeState", unitID, func(u *game.Unit) error {
		if !slices.Contains(knownStates, state) {
			return s.invalid("changeState", fmt.Sprintf("Unknown unit state %q.", state))
		}
		tx := s.game.Begin()
		tx.Unit(u.ID).State = state
		if err := s.sendAndWait(ctx, message.New(message.TagChangeState, "unit", u.ID, "state", string(state))); err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		if state != game.StateActive && s.sched.activeUnit == u.ID {
			s.nextActiveUnit(ctx)
		}
		return nil
	})
}

// ChangeWorkType changes what a working unit produces.
func (s *Session) ChangeWorkType(ctx context.Context, unitID, workType string) error {
	return s.unitOp("changeWorkType", unitID, func(u *game.Unit) error {
		if u.State != game.StateInColony {
			return s.invalid("changeWorkType", "The unit is not working in a colony.")
		}
		tx := s.game.Begin()
		tx.Unit(u.ID).WorkType = workType
		reply, err := s.request(ctx, message.New(message.TagChangeWorkType, "unit", u.ID, "workType", workType))
		if err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		return s.apply(reply)
	})
}

// AssignTeacher pairs a student with a teacher in the same colony.
func (s *Session) AssignTeacher(ctx context.Context, studentID, teacherID string) error {
	return s.unitOp("assignTeacher", studentID, func(student *game.Unit) error {
		teacher, err := s.ownUnit("assignTeacher", teacherID)
		if err != nil {
			return err
		}
		if student.Location != teacher.Location || s.game.Settlement(student.Location) == nil {
			return s.invalid("assignTeacher", "Student and teacher must be in the same colony.")
		}
		reply, err := s.request(ctx, message.New(message.TagAssignTeacher, "student", student.ID, "teacher", teacher.ID))
		if err != nil {
			return err
		}
		return s.apply(reply)
	})
}

// SetCurrentlyBuilding changes what a colony builds.
func (s *Session) SetCurrentlyBuilding(ctx context.Context, colonyID, building string) error {
	return s.turnOp("setCurrentlyBuilding", func() error {
		colony, err := s.ownColony("setCurrentlyBuilding", colonyID)
		if err != nil {
			return err
		}
		tx := s.game.Begin()
		tx.Settlement(colony.ID).Building = building
		reply, err := s.request(ctx, message.New(message.TagSetCurrentlyBuilding, "colony", colony.ID, "building", building))
		if err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		return s.apply(reply)
	})
}

func (s *Session) ownColony(op, id string) (*game.Settlement, error) {
	c := s.game.Settlement(id)
	if c == nil || !c.Colony || c.Owner != s.player {
		return nil, s.invalid(op, "No such colony: "+id)
	}
	return c, nil
}

// PayForBuilding completes the current build of a colony with gold.
func (s *Session) PayForBuilding(ctx context.Context, colonyID string) error {
	return s.turnOp("payForBuilding", func() error {
		colony, err := s.ownColony("payForBuilding", colonyID)
		if err != nil {
			return err
		}
		if colony.Building == "" {
			return s.invalid("payForBuilding", colony.Name+" is not building anything.")
		}
		reply, err := s.request(ctx, message.New(message.TagPayForBuilding, "colony", colony.ID))
		if err != nil {
			return err
		}
		return s.apply(reply)
	})
}

// PayArrears lifts a boycott on a goods type.
func (s *Session) PayArrears(ctx context.Context, goodsType string) error {
	return s.turnOp("payArrears", func() error {
		reply, err := s.request(ctx, message.New(message.TagPayArrears, "goodsType", goodsType))
		if err != nil {
			return err
		}
		return s.apply(reply)
	})
}

// TrainUnitInEurope buys a trained unit in Europe.
func (s *Session) TrainUnitInEurope(ctx context.Context, unitType string) error {
	return s.turnOp("trainUnitInEurope", func() error {
		return s.europeRequest(ctx, message.New(message.TagTrainUnitInEurope, "unitType", unitType))
	})
}

// RecruitUnitInEurope buys one of the emigrants waiting on the docks.
func (s *Session) RecruitUnitInEurope(ctx context.Context, slot int) error {
	return s.turnOp("recruitUnitInEurope", func() error {
		if me := s.me(); me != nil && me.RecruitPrice > me.Gold {
			return s.invalid("recruitUnitInEurope", fmt.Sprintf("Recruiting costs %d gold.", me.RecruitPrice))
		}
		return s.europeRequest(ctx, message.NewBuilder(message.TagRecruitUnitInEurope).Int("slot", slot).Build())
	})
}

// EmigrateUnitInEurope takes the emigrant earned by immigration points.
func (s *Session) EmigrateUnitInEurope(ctx context.Context, slot int) error {
	return s.turnOp("emigrateUnitInEurope", func() error {
		return s.europeRequest(ctx, message.NewBuilder(message.TagEmigrateUnitInEurope).Int("slot", slot).Build())
	})
}

func (s *Session) europeRequest(ctx context.Context, msg *message.Message) error {
	reply, err := s.request(ctx, msg)
	if err != nil {
		return err
	}
	s.events.Log(log.NewEvent(s.turn(), log.EventEurope, s.playerName(s.player), string(msg.Tag())))
	return s.apply(reply)
}

// BoardShip puts a unit aboard a ship in the same port.
func (s *Session) BoardShip(ctx context.Context, unitID, carrierID string) error {
	return s.unitOp("boardShip", unitID, func(u *game.Unit) error {
		carrier, err := s.ownUnit("boardShip", carrierID)
		if err != nil {
			return err
		}
		if !carrier.Naval || s.game.SpaceLeft(carrier) <= 0 {
			return s.invalid("boardShip", s.game.Describe(carrier.ID)+" has no room.")
		}
		if s.portOf(u) == "" || s.portOf(u) != s.portOf(carrier) {
			return s.invalid("boardShip", "The unit and the ship must be in the same port.")
		}
		tx := s.game.Begin()
		tu := tx.Unit(u.ID)
		tu.Location = carrier.ID
		tu.State = game.StateSentry
		reply, err := s.request(ctx, message.New(message.TagBoardShip, "unit", u.ID, "carrier", carrier.ID))
		if err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		return s.apply(reply)
	})
}

// LeaveShip takes a unit off its carrier in port.
func (s *Session) LeaveShip(ctx context.Context, unitID string) error {
	return s.unitOp("leaveShip", unitID, func(u *game.Unit) error {
		carrier := s.game.Carrier(u)
		if carrier == nil {
			return s.invalid("leaveShip", "The unit is not aboard a ship.")
		}
		port := s.portOf(carrier)
		if port == "" {
			return s.invalid("leaveShip", "The ship is not in port.")
		}
		tx := s.game.Begin()
		tu := tx.Unit(u.ID)
		tu.Location = carrier.Location
		tu.State = game.StateActive
		reply, err := s.request(ctx, message.New(message.TagLeaveShip, "unit", u.ID))
		if err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		return s.apply(reply)
	})
}

// adjacentSettlement resolves a settlement next to u and the direction
// towards it.
func (s *Session) adjacentSettlement(op string, u *game.Unit, settlementID string) (game.Direction, *game.Settlement, error) {
	settlement := s.game.Settlement(settlementID)
	from := s.game.UnitTile(u)
	if settlement == nil || from == nil {
		return 0, nil, s.invalid(op, "No such settlement: "+settlementID)
	}
	to := s.game.Tile(settlement.Tile)
	if to == nil {
		return 0, nil, s.invalid(op, "No such settlement: "+settlementID)
	}
	dir, ok := s.game.DirectionTo(from, to)
	if !ok {
		return 0, nil, s.invalid(op, fmt.Sprintf("%s is not next to %s.", s.game.Describe(u.ID), settlement.Name))
	}
	return dir, settlement, nil
}

// SellToSettlement haggles over goods with a neighbouring settlement.
func (s *Session) SellToSettlement(ctx context.Context, unitID, settlementID, goodsType string) error {
	return s.unitOp("sellToSettlement", unitID, func(u *game.Unit) error {
		_, settlement, err := s.adjacentSettlement("sellToSettlement", u, settlementID)
		if err != nil {
			return err
		}
		return s.sellToSettlement(ctx, u, settlement, goodsType, u.Goods[goodsType])
	})
}

// BuyFromSettlement haggles over goods a neighbouring settlement sells.
func (s *Session) BuyFromSettlement(ctx context.Context, unitID, settlementID string) error {
	return s.unitOp("buyFromSettlement", unitID, func(u *game.Unit) error {
		_, settlement, err := s.adjacentSettlement("buyFromSettlement", u, settlementID)
		if err != nil {
			return err
		}
		return s.buyFromSettlement(ctx, u, settlement)
	})
}

// DeliverGift gives goods to a neighbouring settlement.
func (s *Session) DeliverGift(ctx context.Context, unitID, settlementID, goodsType string, amount int) error {
	return s.unitOp("deliverGift", unitID, func(u *game.Unit) error {
		_, settlement, err := s.adjacentSettlement("deliverGift", u, settlementID)
		if err != nil {
			return err
		}
		return s.deliverGift(ctx, u, settlement, goodsType, amount)
	})
}

// ScoutIndianSettlement has a scout speak with the chief, demand tribute or
// attack.
func (s *Session) ScoutIndianSettlement(ctx context.Context, unitID, settlementID, action string) error {
	return s.unitOp("scoutIndianSettlement", unitID, func(u *game.Unit) error {
		if u.Role != game.RoleScout {
			return s.invalid("scoutIndianSettlement", "Only scouts can do that.")
		}
		dir, settlement, err := s.adjacentSettlement("scoutIndianSettlement", u, settlementID)
		if err != nil {
			return err
		}
		switch action {
		case "speak", "tribute":
			err = s.scout(ctx, u, settlement, dir, action)
		case "attack":
			err = s.confirmAttack(ctx, u, dir)
		default:
			return s.invalid("scoutIndianSettlement", "Unknown action "+action+".")
		}
		s.afterManualMove(ctx, u, HaltBlockedNoMoves)
		return err
	})
}

// MissionaryAtSettlement establishes a mission or denounces a rival one.
func (s *Session) MissionaryAtSettlement(ctx context.Context, unitID, settlementID, action string) error {
	return s.unitOp("missionaryAtSettlement", unitID, func(u *game.Unit) error {
		if u.Role != game.RoleMissionary {
			return s.invalid("missionaryAtSettlement", "Only missionaries can do that.")
		}
		if action != "establish" && action != "denounce" {
			return s.invalid("missionaryAtSettlement", "Unknown action "+action+".")
		}
		dir, settlement, err := s.adjacentSettlement("missionaryAtSettlement", u, settlementID)
		if err != nil {
			return err
		}
		err = s.missionary(ctx, u, settlement, dir, action)
		s.afterManualMove(ctx, u, HaltBlockedNoMoves)
		return err
	})
}

// SpySettlement has a scout look inside a foreign colony.
func (s *Session) SpySettlement(ctx context.Context, unitID, settlementID string) error {
	return s.unitOp("spySettlement", unitID, func(u *game.Unit) error {
		dir, settlement, err := s.adjacentSettlement("spySettlement", u, settlementID)
		if err != nil {
			return err
		}
		return s.spy(ctx, u, settlement, dir)
	})
}

// LearnSkill asks a neighbouring native settlement to teach a colonist.
func (s *Session) LearnSkill(ctx context.Context, unitID, settlementID string) error {
	return s.unitOp("learnSkill", unitID, func(u *game.Unit) error {
		dir, _, err := s.adjacentSettlement("learnSkill", u, settlementID)
		if err != nil {
			return err
		}
		err = s.learnSkillAt(ctx, u, dir)
		s.afterManualMove(ctx, u, HaltBlockedNoMoves)
		return err
	})
}

// DiplomaticTrade proposes a stance change, with an optional gold payment,
// to another player.
func (s *Session) DiplomaticTrade(ctx context.Context, unitID, other string, stance game.Stance, gold int) error {
	return s.unitOp("diplomaticTrade", unitID, func(u *game.Unit) error {
		if s.game.Player(other) == nil || other == s.player {
			return s.invalid("diplomaticTrade", "No such player: "+other)
		}
		if me := s.me(); me != nil && gold > me.Gold {
			return s.invalid("diplomaticTrade", "You do not have that much gold.")
		}
		return s.diplomaticTrade(ctx, u.ID, "", other, stance, gold)
	})
}

// DisbandUnit removes a unit after the player confirms.
func (s *Session) DisbandUnit(ctx context.Context, unitID string) error {
	return s.unitOp("disbandUnit", unitID, func(u *game.Unit) error {
		if !s.gui.ShowConfirmDialog(fmt.Sprintf("Really disband %s?", s.game.Describe(u.ID)), "Disband", "Keep") {
			return errCancelled
		}
		tx := s.game.Begin()
		tx.DisposeUnit(u.ID)
		if err := s.sendAndWait(ctx, message.New(message.TagDisbandUnit, "unit", u.ID)); err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		s.events.Log(log.NewUnitLostEvent(s.turn(), s.playerName(s.player), u.ID, "disbanded"))
		if s.sched.activeUnit == u.ID {
			s.nextActiveUnit(ctx)
		}
		return nil
	})
}

// SkipUnit passes over a unit for the rest of the turn.
func (s *Session) SkipUnit(ctx context.Context, unitID string) error {
	return s.unitOp("skipUnit", unitID, func(u *game.Unit) error {
		tx := s.game.Begin()
		tx.Unit(u.ID).State = game.StateSkipped
		if err := s.sendAndWait(ctx, message.New(message.TagSkipUnit, "unit", u.ID)); err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		s.nextActiveUnit(ctx)
		return nil
	})
}

// CashInTreasureTrain turns a treasure train into gold.
func (s *Session) CashInTreasureTrain(ctx context.Context, unitID string) error {
	return s.unitOp("cashInTreasureTrain", unitID, func(u *game.Unit) error {
		if !u.IsTreasureTrain() {
			return s.invalid("cashInTreasureTrain", "The unit carries no treasure.")
		}
		return s.cashIn(ctx, u)
	})
}

func (s *Session) cashIn(ctx context.Context, u *game.Unit) error {
	treasure := u.Treasure
	tx := s.game.Begin()
	tx.DisposeUnit(u.ID)
	reply, err := s.request(ctx, message.New(message.TagCashInTreasureTrain, "unit", u.ID))
	if err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	s.events.Log(log.NewEvent(s.turn(), log.EventEurope, s.playerName(s.player),
		fmt.Sprintf("cashed in %d gold of treasure", treasure)))
	return s.apply(reply)
}

// ClaimLand takes a tile, paying price to its owner when positive.
func (s *Session) ClaimLand(ctx context.Context, tileID string, price int) error {
	return s.turnOp("claimLand", func() error {
		t := s.game.Tile(tileID)
		if t == nil || !t.IsLand() {
			return s.invalid("claimLand", "No such land: "+tileID)
		}
		if t.Owner == s.player {
			return nil
		}
		if me := s.me(); me != nil && price > me.Gold {
			return s.invalid("claimLand", "You do not have that much gold.")
		}
		reply, err := s.request(ctx, message.NewBuilder(message.TagClaimLand).
			Attr("tile", t.ID).
			Int("price", price).
			Build())
		if err != nil {
			return err
		}
		t.Owner = s.player
		return s.apply(reply)
	})
}

// AssignTradeRoute puts a carrier on a trade route, or takes it off when
// routeID is empty. A carrier with moves left sets off at once.
func (s *Session) AssignTradeRoute(ctx context.Context, unitID, routeID string) error {
	return s.unitOp("assignTradeRoute", unitID, func(u *game.Unit) error {
		if routeID != "" {
			route := s.game.TradeRoute(routeID)
			if route == nil || len(route.Stops) < 2 {
				return s.invalid("assignTradeRoute", "No usable trade route: "+routeID)
			}
			if u.Space == 0 {
				return s.invalid("assignTradeRoute", s.game.Describe(u.ID)+" can not carry goods.")
			}
		}
		tx := s.game.Begin()
		tu := tx.Unit(u.ID)
		tu.TradeRoute = routeID
		tu.StopIndex = 0
		tu.Destination = ""
		msg := message.NewBuilder(message.TagAssignTradeRoute).
			Attr("unit", u.ID).
			AttrIf("tradeRoute", routeID).
			Build()
		if err := s.sendAndWait(ctx, msg); err != nil {
			tx.Rollback()
			return err
		}
		tx.Commit()
		if routeID != "" && u.MovesLeft > 0 {
			s.followOrders(ctx, u)
		}
		if s.sched.activeUnit == u.ID {
			s.nextActiveUnit(ctx)
		}
		return nil
	})
}

func validRoute(r *game.TradeRoute) bool {
	if r == nil || r.ID == "" || len(r.Stops) < 2 {
		return false
	}
	for _, stop := range r.Stops {
		if stop.Location == "" {
			return false
		}
	}
	return true
}

// UpdateTradeRoute creates or replaces one of the player's trade routes.
func (s *Session) UpdateTradeRoute(ctx context.Context, route *game.TradeRoute) error {
	return s.turnOp("updateTradeRoute", func() error {
		if !validRoute(route) {
			return s.invalid("updateTradeRoute", "A trade route needs an id and at least two stops.")
		}
		r := *route
		r.Owner = s.player
		if err := s.sendAndWait(ctx, message.NewBuilder(message.TagUpdateTradeRoute).
			Child(s.codec.Encode(&r)).
			Build()); err != nil {
			return err
		}
		s.game.AddTradeRoute(&r)
		return nil
	})
}

// SetTradeRoutes replaces the player's whole list of trade routes. Units on
// a route that is no longer listed lose it.
func (s *Session) SetTradeRoutes(ctx context.Context, routes []*game.TradeRoute) error {
	return s.turnOp("setTradeRoutes", func() error {
		b := message.NewBuilder(message.TagSetTradeRoutes)
		kept := make(map[string]*game.TradeRoute, len(routes))
		for _, route := range routes {
			if !validRoute(route) {
				return s.invalid("setTradeRoutes", "A trade route needs an id and at least two stops.")
			}
			r := *route
			r.Owner = s.player
			kept[r.ID] = &r
			b.Child(s.codec.Encode(&r))
		}
		if err := s.sendAndWait(ctx, b.Build()); err != nil {
			return err
		}
		for _, old := range s.game.TradeRoutes() {
			if old.Owner == s.player && kept[old.ID] == nil {
				s.game.Remove(old.ID)
			}
		}
		for _, r := range kept {
			s.game.AddTradeRoute(r)
		}
		for _, u := range s.game.UnitsOf(s.player) {
			if u.TradeRoute != "" && kept[u.TradeRoute] == nil {
				u.TradeRoute, u.Destination, u.StopIndex = "", "", 0
			}
		}
		return nil
	})
}

// EndTurn ends the turn once standing orders have been carried out. The
// player confirms first when units could still move.
func (s *Session) EndTurn(ctx context.Context) error {
	return s.turnOp("endTurn", func() error {
		if s.sched.endingTurn {
			return nil
		}
		if s.nextMovableUnit() != nil {
			if !s.gui.ShowConfirmDialog("Some units can still move. End the turn anyway?", "End turn", "Keep playing") {
				return errCancelled
			}
		}
		s.sched.endingTurn = true
		s.sched.beginSweep()
		s.nextActiveUnit(ctx)
		return nil
	})
}

// ExecuteGotoOrders moves every unit with standing orders.
func (s *Session) ExecuteGotoOrders(ctx context.Context) error {
	return s.turnOp("executeGotoOrders", func() error {
		s.executeGotoOrders(ctx)
		return nil
	})
}

// IgnoreMessage hides a model message key for the configured number of
// turns.
func (s *Session) IgnoreMessage(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignored.Ignore(key, s.turn())
}

// Chat sends a chat line. to names a player for a private message.
func (s *Session) Chat(ctx context.Context, text, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	msg := message.NewBuilder(message.TagChat).
		Attr("sender", s.player).
		Attr("message", text).
		AttrIf("to", to).
		Bool("private", to != "").
		Build()
	if err := s.send(ctx, msg); err != nil {
		return err
	}
	s.events.Log(log.NewChatEvent(s.turn(), s.playerName(s.player), text, to != ""))
	return nil
}

// GetForeignAffairs asks for the standing of every other player and
// returns it as a report.
func (s *Session) GetForeignAffairs(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, err := s.request(ctx, message.New(message.TagGetForeignAffairs))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, p := range reply.ChildrenOf(message.TagPlayer) {
		if _, err := s.codec.Decode(p, s.game); err != nil {
			continue
		}
		id := p.Attr("id")
		if id == s.player {
			continue
		}
		stance := p.Attr("stance")
		if stance == "" {
			if me := s.me(); me != nil {
				stance = string(me.Stances[id])
			}
		}
		fmt.Fprintf(&sb, "%s (%s): %s, score %d, gold %d\n",
			s.playerName(id), p.Attr("nation"), strings.ToLower(cmp.Or(stance, string(game.StanceUnknown))),
			p.Int("score", 0), p.Int("gold", 0))
	}
	s.refresh()
	return sb.String(), nil
}

// Logout tells the server the player is leaving and closes the session.
func (s *Session) Logout(ctx context.Context, reason string) error {
	s.mu.Lock()
	err := s.sendAndWait(ctx, message.NewBuilder(message.TagLogout).AttrIf("reason", reason).Build())
	s.mu.Unlock()
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}
