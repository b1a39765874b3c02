package game

import (
	"maps"
	"slices"
)

// Tx records the state of every object it touches so that optimistic
// changes can be undone. Touch an object through the Tx before mutating it;
// changes made directly on the graph are not covered.
type Tx struct {
	g           *Game
	units       map[string]*unitSnap
	players     map[string]*playerSnap
	settlements map[string]*settlementSnap
	done        bool
}

type unitSnap struct {
	live  *Unit
	saved Unit
	order int
}

type playerSnap struct {
	live  *Player
	saved Player
}

type settlementSnap struct {
	live  *Settlement
	saved Settlement
}

// Begin starts a transaction over g.
func (g *Game) Begin() *Tx {
	return &Tx{
		g:           g,
		units:       make(map[string]*unitSnap),
		players:     make(map[string]*playerSnap),
		settlements: make(map[string]*settlementSnap),
	}
}

// Unit snapshots and returns the live unit, or nil if it does not exist.
func (tx *Tx) Unit(id string) *Unit {
	u := tx.g.units[id]
	if u == nil {
		return nil
	}
	if _, ok := tx.units[id]; !ok {
		tx.units[id] = &unitSnap{
			live:  u,
			saved: cloneUnit(u),
			order: slices.Index(tx.g.unitOrder, id),
		}
	}
	return u
}

// Player snapshots and returns the live player.
func (tx *Tx) Player(id string) *Player {
	p := tx.g.players[id]
	if p == nil {
		return nil
	}
	if _, ok := tx.players[id]; !ok {
		saved := *p
		saved.Stances = maps.Clone(p.Stances)
		saved.Tension = maps.Clone(p.Tension)
		saved.FatherChoices = slices.Clone(p.FatherChoices)
		tx.players[id] = &playerSnap{live: p, saved: saved}
	}
	return p
}

// Settlement snapshots and returns the live settlement.
func (tx *Tx) Settlement(id string) *Settlement {
	s := tx.g.settlements[id]
	if s == nil {
		return nil
	}
	if _, ok := tx.settlements[id]; !ok {
		saved := *s
		saved.Goods = maps.Clone(s.Goods)
		saved.ExportLevel = maps.Clone(s.ExportLevel)
		tx.settlements[id] = &settlementSnap{live: s, saved: saved}
	}
	return s
}

// DisposeUnit disposes a unit (and its cargo) so that Rollback can bring
// them back.
func (tx *Tx) DisposeUnit(id string) {
	u := tx.g.units[id]
	if u == nil {
		return
	}
	for _, cargo := range tx.g.UnitsAt(id) {
		tx.Unit(cargo.ID)
	}
	tx.Unit(id)
	tx.g.DisposeUnit(id)
}

// Touched reports whether the transaction has snapshotted anything.
func (tx *Tx) Touched() bool {
	return len(tx.units)+len(tx.players)+len(tx.settlements) > 0
}

// Commit makes the changes permanent.
func (tx *Tx) Commit() {
	tx.done = true
	tx.units, tx.players, tx.settlements = nil, nil, nil
}

// Rollback restores every touched object to its state at first touch.
// Pointers held by callers stay valid. Rollback after Commit is a no-op.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true

	// Restore in original order so unit iteration order survives.
	snaps := slices.Collect(maps.Values(tx.units))
	slices.SortFunc(snaps, func(a, b *unitSnap) int { return a.order - b.order })
	for _, s := range snaps {
		*s.live = s.saved
		if tx.g.units[s.live.ID] == nil {
			tx.g.units[s.live.ID] = s.live
			pos := min(s.order, len(tx.g.unitOrder))
			if pos < 0 {
				pos = len(tx.g.unitOrder)
			}
			tx.g.unitOrder = slices.Insert(tx.g.unitOrder, pos, s.live.ID)
		}
	}
	for _, s := range tx.players {
		*s.live = s.saved
	}
	for _, s := range tx.settlements {
		*s.live = s.saved
	}
	tx.units, tx.players, tx.settlements = nil, nil, nil
}

func cloneUnit(u *Unit) Unit {
	c := *u
	c.Goods = maps.Clone(u.Goods)
	return c
}
