package game

// ColonySight is how far a settlement sees.
const ColonySight = 2

func distance(a, b *Tile) int {
	dx, dy := a.X-b.X, a.Y-b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return max(dx, dy)
}

// CanSee reports whether player currently has line of sight to tile t.
func (g *Game) CanSee(player string, t *Tile) bool {
	if t == nil {
		return false
	}
	for _, u := range g.UnitsOf(player) {
		ut := g.UnitTile(u)
		if ut != nil && distance(ut, t) <= max(u.LineOfSight, 1) {
			return true
		}
	}
	for _, s := range g.settlements {
		if s.Owner != player {
			continue
		}
		if st := g.tiles[s.Tile]; st != nil && distance(st, t) <= ColonySight {
			return true
		}
	}
	return false
}

// UnitVisibleTo reports whether player can observe u. A player always sees
// their own units; units in Europe or on the high seas are never visible to
// anyone else.
func (g *Game) UnitVisibleTo(player string, u *Unit) bool {
	if u.Owner == player {
		return true
	}
	return g.CanSee(player, g.UnitTile(u))
}

// ForgetUnseen disposes foreign units the player can no longer see and
// returns them.
func (g *Game) ForgetUnseen(player string) []*Unit {
	var gone []*Unit
	for _, u := range g.Units() {
		if u.Disposed || u.Owner == player {
			continue
		}
		if g.Carrier(u) != nil {
			continue // follows its carrier
		}
		if !g.UnitVisibleTo(player, u) {
			gone = append(gone, g.DisposeUnit(u.ID)...)
		}
	}
	return gone
}
