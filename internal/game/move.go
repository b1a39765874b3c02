package game

// ClassifyMoveTo classifies the step of u onto the adjacent tile target.
// It looks only at the local replica, so the server may still refuse.
func (g *Game) ClassifyMoveTo(u *Unit, target *Tile) MoveType {
	if target == nil {
		return MoveIllegal
	}
	if u.MovesLeft <= 0 {
		return MoveNoMoves
	}
	settlement := g.SettlementAt(target.ID)
	if u.Naval {
		return g.navalMoveType(u, target, settlement)
	}
	return g.landMoveType(u, target, settlement)
}

// ClassifyMove classifies the step of u in direction d from its current tile.
// It returns the target tile, which is nil off the known map.
func (g *Game) ClassifyMove(u *Unit, d Direction) (MoveType, *Tile) {
	from := g.UnitTile(u)
	if from == nil {
		return MoveIllegal, nil
	}
	target := g.Neighbour(from, d)
	return g.ClassifyMoveTo(u, target), target
}

func (g *Game) navalMoveType(u *Unit, target *Tile, s *Settlement) MoveType {
	if s != nil {
		switch {
		case s.Owner == u.Owner:
			return MoveSimple
		case !s.Colony && u.GoodsCount() > 0:
			return MoveTrade
		}
		return MoveIllegal
	}
	if target.IsLand() {
		return MoveIllegal
	}
	if g.OccupiedBy(target.ID, u.Owner) != "" {
		return MoveAttack
	}
	if target.IsHighSeas() {
		return MoveHighSeas
	}
	return MoveSimple
}

func (g *Game) landMoveType(u *Unit, target *Tile, s *Settlement) MoveType {
	aboard := g.Carrier(u) != nil

	if !target.IsLand() {
		if aboard {
			return MoveIllegal
		}
		for _, c := range g.UnitsAt(target.ID) {
			if c.Owner == u.Owner && c.Naval && g.SpaceLeft(c) > 0 {
				return MoveEmbark
			}
		}
		return MoveIllegal
	}

	if s != nil {
		if s.Owner == u.Owner {
			if aboard {
				return MoveDisembark
			}
			return MoveSimple
		}
		if IsMilitary(u.Role) {
			return MoveAttack
		}
		if s.Colony {
			return MoveForeignColony
		}
		switch {
		case u.Role == RoleScout:
			return MoveScoutSettlement
		case u.Role == RoleMissionary:
			return MoveMissionarySettlement
		case u.Space > 0:
			return MoveTrade
		case u.IsTreasureTrain():
			return MoveIllegal
		}
		return MoveColonistSettlement
	}

	if g.OccupiedBy(target.ID, u.Owner) != "" {
		if IsMilitary(u.Role) {
			return MoveAttack
		}
		return MoveIllegal
	}
	if target.LostCityRumour {
		return MoveExploreRumour
	}
	if aboard {
		return MoveDisembark
	}
	return MoveSimple
}

// DestinationTile resolves a destination id to a map tile. Europe and
// unknown ids resolve to nil.
func (g *Game) DestinationTile(dest string) *Tile {
	if t := g.tiles[dest]; t != nil {
		return t
	}
	if s := g.settlements[dest]; s != nil {
		return g.tiles[s.Tile]
	}
	return nil
}

// AtDestination reports whether u has reached its destination.
func (g *Game) AtDestination(u *Unit) bool {
	if u.Destination == "" {
		return false
	}
	if u.Destination == LocationEurope {
		return u.Location == LocationEurope
	}
	if u.Location == u.Destination {
		return true
	}
	t := g.UnitTile(u)
	return t != nil && t == g.DestinationTile(u.Destination)
}
