package game

// PathNode is one step of a path: the tile entered and the direction taken
// to enter it.
type PathNode struct {
	Tile      string
	Direction Direction
}

// PathFinder plans a route for a unit. A nil result means no route exists;
// an empty one means from and to are the same tile.
type PathFinder interface {
	FindPath(u *Unit, from, to *Tile) []PathNode
}

// GridPathFinder is a breadth-first finder over the known tiles. Land units
// walk on land, ships sail on water and may end in their own settlements.
// A ship with a nil destination is routed to the nearest high seas.
type GridPathFinder struct {
	Game *Game
}

// FindPath implements PathFinder.
func (f GridPathFinder) FindPath(u *Unit, from, to *Tile) []PathNode {
	g := f.Game
	if from == nil {
		return nil
	}
	if to != nil && from.ID == to.ID {
		return []PathNode{}
	}

	goal := func(t *Tile) bool {
		if to == nil {
			return u.Naval && t.IsHighSeas()
		}
		return t.ID == to.ID
	}

	type visit struct {
		prev string
		dir  Direction
	}
	seen := map[string]visit{from.ID: {}}
	queue := []*Tile{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range Directions {
			next := g.Neighbour(cur, d)
			if next == nil {
				continue
			}
			if _, ok := seen[next.ID]; ok {
				continue
			}
			isGoal := goal(next)
			if !isGoal && !f.passable(u, next) {
				continue
			}
			if isGoal && !f.enterable(u, next) {
				continue
			}
			seen[next.ID] = visit{prev: cur.ID, dir: d}
			if isGoal {
				var rev []PathNode
				for id := next.ID; id != from.ID; id = seen[id].prev {
					rev = append(rev, PathNode{Tile: id, Direction: seen[id].dir})
				}
				path := make([]PathNode, len(rev))
				for i, n := range rev {
					path[len(rev)-1-i] = n
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// passable reports whether u may walk through t on the way elsewhere.
func (f GridPathFinder) passable(u *Unit, t *Tile) bool {
	g := f.Game
	if g.SettlementAt(t.ID) != nil {
		return false
	}
	if g.OccupiedBy(t.ID, u.Owner) != "" {
		return false
	}
	if u.Naval {
		return !t.IsLand()
	}
	return t.IsLand()
}

// enterable reports whether u may finish its route on t.
func (f GridPathFinder) enterable(u *Unit, t *Tile) bool {
	g := f.Game
	if s := g.SettlementAt(t.ID); s != nil {
		return s.Owner == u.Owner || !u.Naval
	}
	if u.Naval {
		return !t.IsLand()
	}
	return t.IsLand()
}
